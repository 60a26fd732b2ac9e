package extract

import (
	"context"
	"sync/atomic"

	"github.com/sourcegraph/conc/stream"
)

// runParallel renders tiles on Workers goroutines, each owning its own
// scratch image. The stream runs callbacks in submission order, so fn
// and Progress still see tiles strictly by index.
func (e *Extractor) runParallel(ctx context.Context, fn func(Tile) error) (int, error) {
	total := e.grid.TotalTiles
	workers := min(e.opts.Workers, total)

	scratches := make(chan *scratch, workers)
	for range workers {
		s, err := e.newScratch()
		if err != nil {
			return 0, err
		}
		scratches <- s
	}
	if err := ctx.Err(); err != nil {
		return 0, e.fail(0, "yield", 0, err)
	}

	var (
		stopped  atomic.Bool
		produced int   // callbacks only
		firstErr error // callbacks only, read after Wait
	)

	st := stream.New().WithMaxGoroutines(workers)
	e.log.Debug("parallel extraction", "workers", workers, "batch", e.batch, "total", total)

	var yieldErr error
	for start := 0; start < total && !stopped.Load(); start += e.batch {
		if start > 0 {
			if err := e.opts.Yield(ctx); err != nil {
				yieldErr = err
				stopped.Store(true)
				break
			}
		}

		end := min(start+e.batch, total)
		for i := start; i < end && !stopped.Load(); i++ {
			st.Go(func() stream.Callback {
				if stopped.Load() {
					return func() {}
				}
				s := <-scratches
				t, rerr := e.render(i, s)
				scratches <- s

				return func() {
					if firstErr != nil {
						return
					}
					if rerr != nil {
						rerr.Produced = produced
						firstErr = rerr
						stopped.Store(true)
						return
					}
					if err := fn(t); err != nil {
						firstErr = e.fail(i, "deliver", produced, err)
						stopped.Store(true)
						return
					}
					produced++
					e.progress(produced, total)
				}
			})
		}
	}
	st.Wait()

	if firstErr != nil {
		return produced, firstErr
	}
	if yieldErr != nil {
		return produced, e.fail(produced, "yield", produced, yieldErr)
	}
	if produced < total {
		// A stopped task left a gap without recording why.
		return produced, e.fail(produced, "deliver", produced, context.Canceled)
	}
	return produced, nil
}
