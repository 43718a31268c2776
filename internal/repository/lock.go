package repository

import (
	"context"
	"fmt"
)

// TryLock берёт транзакционную advisory-блокировку PostgreSQL по ключу.
// Блокировка живёт, пока открыта транзакция; release откатывает её и снимает блокировку.
// ok=false означает, что ключ уже занят другим экземпляром.
func (s *Storage) TryLock(ctx context.Context, key int64) (release func(), ok bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}

	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&ok); err != nil {
		_ = tx.Rollback(ctx)
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		_ = tx.Rollback(ctx)
		return nil, false, nil
	}

	return func() { _ = tx.Rollback(context.Background()) }, true, nil
}
