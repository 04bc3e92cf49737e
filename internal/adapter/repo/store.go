// Package repo implements the store ports on PostgreSQL via pgx.
package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"reelmint/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// repository code serves transactional and auto-commit calls.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL implementation of domain.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithinTx runs fn in one transaction; rollback on error, commit on
// nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgtx.Rollback(ctx) // no-op after commit

	if err := fn(ctx, txView{q: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Tasks() domain.TaskRepository     { return &TaskRepositoryPG{q: s.pool} }
func (s *Store) Credits() domain.CreditRepository { return &CreditRepositoryPG{q: s.pool} }

type txView struct{ q pgx.Tx }

func (t txView) Tasks() domain.TaskRepository     { return &TaskRepositoryPG{q: t.q} }
func (t txView) Credits() domain.CreditRepository { return &CreditRepositoryPG{q: t.q} }

var _ domain.Store = (*Store)(nil)
