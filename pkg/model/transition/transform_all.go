package transition

import (
	"context"
	"fmt"

	"cairn.build/pkg/model/options"

	"go.starlark.net/starlark"
	"golang.org/x/sync/errgroup"
)

// TransformAll applies a transition to multiple configurations in
// parallel. Results are returned in input order. Each configuration is
// transformed on its own Starlark thread, as transitions share no
// mutable state.
func TransformAll(ctx context.Context, t Transition, inputs []*options.BuildOptions) ([]TransformResult, error) {
	results := make([]TransformResult, len(inputs))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, bo := range inputs {
		i, bo := i, bo
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			thread := &starlark.Thread{
				Name: fmt.Sprintf("transition %d", i),
			}
			result, err := t.Transform(thread, bo)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
