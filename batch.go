package usearch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// AddBatch inserts vectors[i] under labels[i], fanning the work out over
// the scratch pool. Returned ids are positionally aligned with the input.
// The first insertion error cancels the remaining work and is returned;
// insertions already committed stay in the index.
func (ix *Index) AddBatch(ctx context.Context, labels []int64, vectors [][]float32) ([]uint32, error) {
	if len(labels) != len(vectors) {
		return nil, ErrInvalidArgument
	}

	ids := make([]uint32, len(labels))
	workers := ix.pool.Workers()
	if workers > len(labels) {
		workers = len(labels)
	}

	g, ctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		worker := w
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= len(labels) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				id, err := ix.AddWithOptions(labels[i], vectors[i], AddOptions{Worker: worker})
				if err != nil {
					return err
				}
				ids[i] = id
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
