package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Operation":  "process_payment",
		"bill-type":  "invoice",
		"party_id":   "4f1c",
		"empty":      "",
		"long value": strings.Repeat("x", 200),
		"%%":         "dropped",
	})
	assert.Equal(t, []string{
		"bill_type", "invoice",
		"long_value", strings.Repeat("x", MaxLabelValueLength),
		"operation", "process_payment",
	}, pairs)
	assert.Nil(t, sanitizeLabels(nil))
}

func TestWithProfilingLabels(t *testing.T) {
	var got string
	WithProfilingLabels(context.Background(), LedgerOperationLabels("refund_advance", "purchase"), func(ctx context.Context) {
		got, _ = pprof.Label(ctx, ProfilingLabelOperation)
	})
	assert.Equal(t, "refund_advance", got)

	called := false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}

func TestLabelBuilders(t *testing.T) {
	assert.Equal(t, map[string]string{"operation": "aging"}, LedgerOperationLabels("aging", ""))
	assert.Equal(t, map[string]string{"route": "/api/v1/payments", "method": "POST"},
		HTTPRequestLabels("/api/v1/payments", "POST"))
	assert.Empty(t, HTTPRequestLabels("", ""))
}

func TestParseProfileTypes(t *testing.T) {
	types, err := ParseProfileTypes([]string{"cpu", " Inuse_Space "})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = ParseProfileTypes([]string{"heap"})
	assert.Error(t, err)
}

func TestNewProfiler(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())

	_, err = NewProfiler(ProfilerConfig{Enabled: true, ApplicationName: "ledger"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, zap.NewNop())
	assert.Error(t, err)
}
