package records

import (
	"context"
	"fmt"
	"time"

	"github.com/fixr105/Seven-Render-sub002/internal/apperr"
)

// bounded issues every call with its own deadline. A call whose caller gives
// up (deadline or cancellation) is left to finish in the background but its
// result is dropped, so nothing is partially applied on our side.
type bounded struct {
	inner   Gateway
	timeout time.Duration
}

// WithTimeout wraps inner so that each FetchTable/Upsert is bounded by
// timeout and every returned row is flat. Failures come back as
// apperr.KindUnavailable.
func WithTimeout(inner Gateway, timeout time.Duration) Gateway {
	return &bounded{inner: inner, timeout: timeout}
}

type callResult[T any] struct {
	value T
	err   error
}

func (b *bounded) FetchTable(ctx context.Context, table string) ([]Row, error) {
	rows, err := call(ctx, b.timeout, func(callCtx context.Context) ([]Row, error) {
		return b.inner.FetchTable(callCtx, table)
	})
	if err != nil {
		return nil, apperr.FromStore(fmt.Sprintf("fetch table %q failed", table), err)
	}
	flat := make([]Row, len(rows))
	for i, row := range rows {
		flat[i] = Flatten(row)
	}
	return flat, nil
}

func (b *bounded) Upsert(ctx context.Context, table string, row Row) (Row, error) {
	stored, err := call(ctx, b.timeout, func(callCtx context.Context) (Row, error) {
		return b.inner.Upsert(callCtx, table, row.Clone())
	})
	if err != nil {
		return nil, apperr.FromStore(fmt.Sprintf("upsert into %q failed", table), err)
	}
	return Flatten(stored), nil
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	done := make(chan callResult[T], 1)
	go func() {
		defer cancel()
		value, err := fn(callCtx)
		done <- callResult[T]{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-callCtx.Done():
		var zero T
		return zero, callCtx.Err()
	}
}
