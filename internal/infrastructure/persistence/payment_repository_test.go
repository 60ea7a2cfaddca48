package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockPaymentRepository creates a GormPaymentRepository on a mocked
// postgres connection
func newMockPaymentRepository(t *testing.T) (*GormPaymentRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormPaymentRepository(gormDB), mock, mockDB
}

func TestGormPaymentRepository_UpdateAdvance(t *testing.T) {
	patch := ledger.AdvancePatch{AdvanceConsumed: dec("25"), Version: 3}

	t.Run("updates when the version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockPaymentRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "payments" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateAdvance(context.Background(), uuid.New(), patch))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports a conflict for a stale version", func(t *testing.T) {
		repo, mock, mockDB := newMockPaymentRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		mock.ExpectExec(`UPDATE "payments" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "payments" WHERE id = \$1`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		err := repo.UpdateAdvance(context.Background(), id, patch)
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		repo, mock, mockDB := newMockPaymentRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "payments"`).WillReturnError(errors.New("connection reset"))

		err := repo.UpdateAdvance(context.Background(), uuid.New(), patch)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormPaymentRepository_ExistsByReceiptNumber(t *testing.T) {
	repo, mock, mockDB := newMockPaymentRepository(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "payments" WHERE receipt_number = \$1`).
		WithArgs("PRC2425/0007").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.ExistsByReceiptNumber(context.Background(), "PRC2425/0007")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
