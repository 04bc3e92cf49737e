// Package memory implements the store ports in process memory. A
// single mutex plays the role of the database's locks: transactions are
// fully serialized, which is exactly the isolation the services assume.
// Used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"reelmint/internal/domain"
)

type Store struct {
	mu           sync.Mutex
	seq          int64
	tasks        map[string]*domain.VideoTask
	reservations map[string]*domain.CreditReservation
	transactions []domain.CreditTransaction
}

func NewStore() *Store {
	return &Store{
		tasks:        make(map[string]*domain.VideoTask),
		reservations: make(map[string]*domain.CreditReservation),
	}
}

// WithinTx serializes on the store mutex and restores a snapshot when
// fn fails, mirroring a database rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapTasks := make(map[string]*domain.VideoTask, len(s.tasks))
	for k, v := range s.tasks {
		c := cloneTask(v)
		snapTasks[k] = &c
	}
	snapRes := make(map[string]*domain.CreditReservation, len(s.reservations))
	for k, v := range s.reservations {
		c := *v
		snapRes[k] = &c
	}
	snapTx := make([]domain.CreditTransaction, len(s.transactions))
	copy(snapTx, s.transactions)
	snapSeq := s.seq

	if err := fn(ctx, txView{s}); err != nil {
		s.tasks = snapTasks
		s.reservations = snapRes
		s.transactions = snapTx
		s.seq = snapSeq
		return err
	}
	return nil
}

func (s *Store) Tasks() domain.TaskRepository     { return taskRepo{s: s, lock: true} }
func (s *Store) Credits() domain.CreditRepository { return creditRepo{s: s, lock: true} }

type txView struct{ s *Store }

func (t txView) Tasks() domain.TaskRepository     { return taskRepo{s: t.s} }
func (t txView) Credits() domain.CreditRepository { return creditRepo{s: t.s} }

func cloneTask(t *domain.VideoTask) domain.VideoTask {
	c := *t
	c.ImageURLs = append([]string(nil), t.ImageURLs...)
	c.Outputs = append([]domain.TaskOutput(nil), t.Outputs...)
	return c
}

type taskRepo struct {
	s    *Store
	lock bool
}

func (r taskRepo) locked(fn func() error) error {
	if r.lock {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
	}
	return fn()
}

func (r taskRepo) Create(ctx context.Context, task *domain.VideoTask) error {
	return r.locked(func() error {
		r.s.seq++
		task.Seq = r.s.seq
		c := cloneTask(task)
		r.s.tasks[task.ID] = &c
		return nil
	})
}

func (r taskRepo) GetByID(ctx context.Context, id string) (*domain.VideoTask, error) {
	var out *domain.VideoTask
	err := r.locked(func() error {
		t, ok := r.s.tasks[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := cloneTask(t)
		out = &c
		return nil
	})
	return out, err
}

func (r taskRepo) GetByProviderTaskID(ctx context.Context, provider, providerTaskID string) (*domain.VideoTask, error) {
	var out *domain.VideoTask
	err := r.locked(func() error {
		for _, t := range r.s.tasks {
			if t.Provider == provider && t.ProviderTaskID != "" && t.ProviderTaskID == providerTaskID {
				c := cloneTask(t)
				out = &c
				return nil
			}
		}
		return domain.ErrNotFound
	})
	return out, err
}

// GetForUpdate is plain GetByID here: the store mutex already excludes
// concurrent transactions.
func (r taskRepo) GetForUpdate(ctx context.Context, id string) (*domain.VideoTask, error) {
	return r.GetByID(ctx, id)
}

func (r taskRepo) Update(ctx context.Context, task *domain.VideoTask) error {
	return r.locked(func() error {
		if _, ok := r.s.tasks[task.ID]; !ok {
			return domain.ErrNotFound
		}
		c := cloneTask(task)
		r.s.tasks[task.ID] = &c
		return nil
	})
}

func (r taskRepo) Delete(ctx context.Context, id string) error {
	return r.locked(func() error {
		if _, ok := r.s.tasks[id]; !ok {
			return domain.ErrNotFound
		}
		delete(r.s.tasks, id)
		return nil
	})
}

func (r taskRepo) ListByUser(ctx context.Context, userID string, limit int) ([]domain.VideoTask, error) {
	var out []domain.VideoTask
	err := r.locked(func() error {
		for _, t := range r.s.tasks {
			if t.UserID == userID {
				out = append(out, cloneTask(t))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r taskRepo) ListStaleSubmitted(ctx context.Context, olderThan time.Time, limit int) ([]domain.VideoTask, error) {
	var out []domain.VideoTask
	err := r.locked(func() error {
		for _, t := range r.s.tasks {
			if t.Status != domain.TaskStatusSubmitted || t.SubmittedAt == nil {
				continue
			}
			if t.SubmittedAt.Before(olderThan) {
				out = append(out, cloneTask(t))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

type creditRepo struct {
	s    *Store
	lock bool
}

func (r creditRepo) locked(fn func() error) error {
	if r.lock {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
	}
	return fn()
}

// LockUser is a no-op: the store mutex already serializes every
// transaction.
func (r creditRepo) LockUser(ctx context.Context, userID string) error { return nil }

func (r creditRepo) SpendableBalance(ctx context.Context, userID string, now time.Time) (int64, error) {
	var balance int64
	err := r.locked(func() error {
		for _, tx := range r.s.transactions {
			if tx.UserID != userID {
				continue
			}
			if tx.Kind == domain.TxRecharge && tx.ExpiresAt != nil && !tx.ExpiresAt.After(now) {
				continue
			}
			balance += tx.Amount
		}
		if balance < 0 {
			balance = 0
		}
		return nil
	})
	return balance, err
}

func (r creditRepo) InsertTransaction(ctx context.Context, tx *domain.CreditTransaction) error {
	return r.locked(func() error {
		r.s.transactions = append(r.s.transactions, *tx)
		return nil
	})
}

func (r creditRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	var out []domain.CreditTransaction
	err := r.locked(func() error {
		for i := len(r.s.transactions) - 1; i >= 0; i-- {
			if r.s.transactions[i].UserID == userID {
				out = append(out, r.s.transactions[i])
				if limit > 0 && len(out) == limit {
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func (r creditRepo) CreateReservation(ctx context.Context, res *domain.CreditReservation) error {
	return r.locked(func() error {
		c := *res
		r.s.reservations[res.ID] = &c
		return nil
	})
}

func (r creditRepo) GetReservationForUpdate(ctx context.Context, id string) (*domain.CreditReservation, error) {
	var out *domain.CreditReservation
	err := r.locked(func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := *res
		out = &c
		return nil
	})
	return out, err
}

func (r creditRepo) UpdateReservation(ctx context.Context, res *domain.CreditReservation) error {
	return r.locked(func() error {
		if _, ok := r.s.reservations[res.ID]; !ok {
			return domain.ErrNotFound
		}
		c := *res
		r.s.reservations[res.ID] = &c
		return nil
	})
}

var _ domain.Store = (*Store)(nil)
