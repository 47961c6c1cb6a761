package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CommentLockRepo — блокировки комментариев VCS на уровне таблицы.
//
// Блокировка — запись с ID комментария; конфликт уникальности означает,
// что блокировку держит другой воркер.
type CommentLockRepo struct {
	pool *pgxpool.Pool
}

// NewCommentLockRepo создаёт новый CommentLockRepo.
func NewCommentLockRepo(pool *pgxpool.Pool) *CommentLockRepo {
	return &CommentLockRepo{pool: pool}
}

// TryLock пытается создать запись блокировки.
func (r *CommentLockRepo) TryLock(ctx context.Context, key string) (bool, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO vcs_comment_locks (id) VALUES ($1)`, key)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert comment lock: %w", err)
	}
	return true, nil
}

// Unlock удаляет запись блокировки.
func (r *CommentLockRepo) Unlock(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM vcs_comment_locks WHERE id = $1`, key); err != nil {
		return fmt.Errorf("delete comment lock: %w", err)
	}
	return nil
}
