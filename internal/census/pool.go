package census

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	csvparser "census/internal/parser/csv"
)

// Aggregate runs a fixed-size worker pool over the incoming chunks and blocks
// until every dispatched chunk's partial has been collected: a full barrier,
// not a streaming reduce. workers < 1 selects the host's core count.
//
// Worker count is an operational knob only: the partials are merged with
// order-independent rules, so neither pool size nor completion order affects
// the final aggregate.
//
// The first failing chunk cancels the pool's context and aborts the whole
// run; no partial result set is returned alongside an error.
func Aggregate(ctx context.Context, workers int, chunks <-chan *csvparser.Chunk, n *Normalizer) ([]*Partial, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	var (
		mu       sync.Mutex
		partials []*Partial
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case c, ok := <-chunks:
					if !ok {
						return nil
					}
					p, err := n.AggregateChunk(c)
					if err != nil {
						return err
					}
					mu.Lock()
					partials = append(partials, p)
					mu.Unlock()
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}
