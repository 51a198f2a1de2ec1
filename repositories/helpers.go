package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLExecutor позволяет методам репозиториев работать как с *sql.DB, так и с
// *sql.Tx, когда несколько операций должны пройти в одной транзакции.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ErrTxContention возвращается, когда транзакция не прошла после нескольких
// повторов из-за конкурентного доступа.
var ErrTxContention = errors.New("transaction contention, retries exhausted")

// TxManager прячет управление транзакциями от сервисов: они получают
// SQLExecutor и не знают про Begin/Commit/Rollback.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) error
}

type sqlTxManager struct {
	db *sql.DB
}

func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db}
}

const txMaxAttempts = 3

// WithinTx выполняет fn в транзакции. Сериализационные конфликты повторяются
// до txMaxAttempts раз, затем наружу уходит ErrTxContention.
func (m *sqlTxManager) WithinTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		err = m.runOnce(ctx, fn)
		if err == nil || !retryableTxError(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrTxContention, err)
}

func (m *sqlTxManager) runOnce(ctx context.Context, fn func(exec SQLExecutor) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func retryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001: serialization_failure, 40P01: deadlock_detected,
		// 55P03: lock_not_available
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

func checkAffectedRows(result sql.Result, notFoundError error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return notFoundError
	}
	return nil
}
