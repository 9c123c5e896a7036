package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/automaton-integrity/internal/domain/integrity"
	"github.com/bryanwahyu/automaton-integrity/internal/domain/integrity/rules"
)

var errRuleTimeout = errors.New("rule timed out")

// callGuarded runs fn with a timeout and turns panics into errors. When the timeout
// fires first the goroutine is abandoned; its late result lands in a buffered channel.
func callGuarded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(rctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-rctx.Done():
		// a result that raced with the timer still wins
		select {
		case r := <-done:
			return r.v, r.err
		default:
		}
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", errRuleTimeout, timeout)
	}
}

// readOnly hides Patch/Delete from rule checks.
type readOnly struct {
	r domain.DataReader
}

func (ro readOnly) List(ctx context.Context, collection string, filter domain.Filter) ([]domain.Document, error) {
	return ro.r.List(ctx, collection, filter)
}

// fixAccess is the handle fixers get: deletes of primary business records are refused.
type fixAccess struct {
	domain.TenantDataAccess
}

func (f fixAccess) Delete(ctx context.Context, collection, id string) error {
	if rules.PrimaryCollections[collection] {
		return fmt.Errorf("refusing to delete %s/%s: primary business record", collection, id)
	}
	return f.TenantDataAccess.Delete(ctx, collection, id)
}
