package bridge

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// source is one way of obtaining a value. It must return promptly once its
// context is cancelled.
type source[T any] func(ctx context.Context) (T, error)

// race runs every source concurrently and returns the first value produced
// without error. The remaining sources are cancelled and race waits for all
// of them to return before it does, so nothing outlives the call. If no
// source succeeds, race returns the first error observed.
func race[T any](ctx context.Context, sources ...source[T]) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once   sync.Once
		winner T
		won    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			v, err := src(gctx)
			if err != nil {
				return err
			}
			once.Do(func() {
				winner, won = v, true
				cancel()
			})
			return nil
		})
	}
	err := g.Wait()
	if won {
		return winner, nil
	}
	var zero T
	if err == nil {
		err = ctx.Err()
	}
	return zero, err
}
