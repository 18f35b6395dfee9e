package upload

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/openflux/upwire/internal/coord"
)

// scheduler drives part transfers over a fixed worker pool so that at most
// `concurrency` transfers are in flight at any instant. The first part to
// exhaust its retries stops dispatch of further parts; already-dispatched
// parts drain, but their outcome never masks the triggering failure.
type scheduler struct {
	concurrency int
	attempts    int

	transfer func(ctx context.Context, part PartRange) (coord.CompletedPart, error)

	// aborted is shared with the orchestrator; set asynchronously by Abort.
	aborted *atomic.Bool

	// onDispatch fires just before a part transfer starts.
	onDispatch func(partNumber int)

	// onComplete fires for each successful part, unless the session was
	// aborted in the meantime (aborted results are discarded).
	onComplete func(rec coord.CompletedPart)
}

func (s *scheduler) run(ctx context.Context, parts []PartRange) error {
	jobs := make(chan PartRange)

	var failed atomic.Bool
	var errMu sync.Mutex
	var firstErr error

	fail := func(part PartRange, err error) {
		failed.Store(true)
		errMu.Lock()
		if firstErr == nil {
			firstErr = &TransferError{
				PartNumber: part.Number,
				Attempts:   s.attempts,
				Err:        err,
			}
		}
		errMu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(s.concurrency)
	for range s.concurrency {
		go func() {
			defer wg.Done()
			for part := range jobs {
				// drain without dispatching once a failure or abort is seen
				if failed.Load() || s.aborted.Load() {
					continue
				}

				if s.onDispatch != nil {
					s.onDispatch(part.Number)
				}

				rec, err := s.transfer(ctx, part)
				if err != nil {
					fail(part, err)
					continue
				}

				// results arriving after abort are discarded
				if s.aborted.Load() {
					continue
				}
				if s.onComplete != nil {
					s.onComplete(rec)
				}
			}
		}()
	}

	// Feed parts in order, stopping early on failure or abort.
feed:
	for _, part := range parts {
		if failed.Load() || s.aborted.Load() {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- part:
		}
	}
	close(jobs)

	wg.Wait()

	errMu.Lock()
	err := firstErr
	errMu.Unlock()

	switch {
	case err != nil:
		return err
	case s.aborted.Load():
		return ErrAborted
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return nil
	}
}
