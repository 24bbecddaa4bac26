package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/susu3304/gastobot/internal/ledger"
)

var ErrAlreadyResolved = errors.New("dialog result already resolved")

// Result is the single-resolution outcome of a dialog. An empty split list means declined or cancelled.
type Result struct {
	once   sync.Once
	done   chan struct{}
	splits []ledger.Split
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// resolve sets the outcome. Only the first call has an effect.
func (r *Result) resolve(splits []ledger.Split) error {
	err := ErrAlreadyResolved
	r.once.Do(func() {
		r.splits = append([]ledger.Split(nil), splits...)
		close(r.done)
		err = nil
	})
	return err
}

func (r *Result) Done() <-chan struct{} { return r.done }

// Wait blocks until the result is resolved or ctx ends.
func (r *Result) Wait(ctx context.Context) ([]ledger.Split, error) {
	select {
	case <-r.done:
		return append([]ledger.Split(nil), r.splits...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
