// Package lock provides per-party mutual exclusion for ledger writes and
// receipt sequence reservation shared across instances.
package lock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
)

// busyError reports that the party lock could not be taken in time.
func busyError(partyID uuid.UUID, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return fmt.Errorf("waiting for lock on party %s: %w", partyID, cause)
	}
	return shared.NewDomainError(shared.CodeConcurrencyConflict,
		fmt.Sprintf("party %s is locked by another operation, retry later", partyID))
}
