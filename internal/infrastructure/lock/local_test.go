package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPartyLocker_SerializesSameParty(t *testing.T) {
	l := NewLocalPartyLocker(0)
	party := uuid.New()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Lock(context.Background(), party)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocalPartyLocker_IndependentParties(t *testing.T) {
	l := NewLocalPartyLocker(50 * time.Millisecond)
	releaseA, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := l.Lock(context.Background(), uuid.New())
	require.NoError(t, err)
	releaseB()
	releaseB()
	assert.Equal(t, 1, l.Len())
}

func TestLocalPartyLocker_WaitTimeout(t *testing.T) {
	l := NewLocalPartyLocker(20 * time.Millisecond)
	party := uuid.New()
	release, err := l.Lock(context.Background(), party)
	require.NoError(t, err)
	defer release()

	_, err = l.Lock(context.Background(), party)
	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict), "got %v", err)
}

func TestLocalPartyLocker_ContextCanceled(t *testing.T) {
	l := NewLocalPartyLocker(0)
	party := uuid.New()
	release, err := l.Lock(context.Background(), party)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, party)
	assert.ErrorIs(t, err, context.Canceled)
}
