package usecase

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 10

// fanOut calls fn once per input with at most limit calls in flight and
// waits for all of them. Results keep input order. A failed call leaves the
// zero value in its slot and is reported to onErr; siblings keep running.
func fanOut[In, Out any](ctx context.Context, limit int, inputs []In, fn func(context.Context, In) (Out, error), onErr func(In, error)) []Out {
	out := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return out
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(min(limit, len(inputs)))
	for i, in := range inputs {
		g.Go(func() error {
			v, err := fn(ctx, in)
			if err != nil {
				if onErr != nil {
					onErr(in, err)
				}
				return nil
			}
			out[i] = v
			return nil
		})
	}
	_ = g.Wait()
	return out
}
