package dbtest

import (
	"context"
	"sync"

	"github.com/padraicbc/f1mirror/db"
)

// Recorder wraps a repository and counts the writes that reach it.
// FailUpdate, when set, is consulted before every UpdateFields call.
type Recorder[T any] struct {
	db.Repository[T]

	FailUpdate func(key any) error

	mu       sync.Mutex
	upserted int
	updates  []any
}

// Record wraps repo.
func Record[T any](repo db.Repository[T]) *Recorder[T] {
	return &Recorder[T]{Repository: repo}
}

func (r *Recorder[T]) Upsert(ctx context.Context, records []*T) error {
	r.mu.Lock()
	r.upserted += len(records)
	r.mu.Unlock()
	return r.Repository.Upsert(ctx, records)
}

func (r *Recorder[T]) UpdateFields(ctx context.Context, key any, fields db.Fields) error {
	if r.FailUpdate != nil {
		if err := r.FailUpdate(key); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.updates = append(r.updates, key)
	r.mu.Unlock()
	return r.Repository.UpdateFields(ctx, key, fields)
}

// Upserted returns how many records were passed to Upsert.
func (r *Recorder[T]) Upserted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserted
}

// Updates returns the keys passed to UpdateFields, in call order.
func (r *Recorder[T]) Updates() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.updates...)
}

// Writes is Upserted plus the number of UpdateFields calls.
func (r *Recorder[T]) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserted + len(r.updates)
}

// Reset zeroes the counters.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted = 0
	r.updates = nil
}
