package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/upwire/internal/coord"
)

func testParts(n int) []PartRange {
	parts := make([]PartRange, n)
	for i := range parts {
		parts[i] = PartRange{Number: i + 1, Start: int64(i) * 10, End: int64(i+1) * 10}
	}
	return parts
}

func TestScheduler_AllPartsComplete(t *testing.T) {
	var aborted atomic.Bool
	var mu sync.Mutex
	var completed []int

	s := &scheduler{
		concurrency: 3,
		attempts:    1,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			return coord.CompletedPart{PartNumber: part.Number, ETag: "e"}, nil
		},
		onComplete: func(rec coord.CompletedPart) {
			mu.Lock()
			completed = append(completed, rec.PartNumber)
			mu.Unlock()
		},
	}

	err := s.run(context.Background(), testParts(10))
	require.NoError(t, err)
	assert.Len(t, completed, 10)
}

func TestScheduler_ConcurrencyHighWaterMark(t *testing.T) {
	const limit = 4

	var aborted atomic.Bool
	var inFlight, highWater atomic.Int32

	s := &scheduler{
		concurrency: limit,
		attempts:    1,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			n := inFlight.Add(1)
			for {
				hw := highWater.Load()
				if n <= hw || highWater.CompareAndSwap(hw, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return coord.CompletedPart{PartNumber: part.Number, ETag: "e"}, nil
		},
	}

	err := s.run(context.Background(), testParts(20))
	require.NoError(t, err)

	assert.LessOrEqual(t, highWater.Load(), int32(limit))
	assert.Greater(t, highWater.Load(), int32(1), "transfers should overlap")
}

func TestScheduler_FirstFailureStopsDispatchAndPropagates(t *testing.T) {
	var aborted atomic.Bool
	var dispatched atomic.Int32
	boom := errors.New("part exploded")

	s := &scheduler{
		concurrency: 2,
		attempts:    4,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			dispatched.Add(1)
			if part.Number == 3 {
				return coord.CompletedPart{}, boom
			}
			time.Sleep(time.Millisecond)
			return coord.CompletedPart{PartNumber: part.Number, ETag: "e"}, nil
		},
	}

	err := s.run(context.Background(), testParts(50))

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 3, transferErr.PartNumber)
	assert.Equal(t, 4, transferErr.Attempts)
	assert.ErrorIs(t, err, boom, "triggering error must be preserved unwrapped")

	// dispatch stops quickly after the failure; in-flight work drains
	assert.Less(t, dispatched.Load(), int32(50))
}

func TestScheduler_LaterResultsCannotMaskFailure(t *testing.T) {
	var aborted atomic.Bool
	first := errors.New("first failure")

	s := &scheduler{
		concurrency: 2,
		attempts:    1,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			if part.Number == 1 {
				return coord.CompletedPart{}, first
			}
			// the in-flight neighbor also fails, slightly later
			time.Sleep(10 * time.Millisecond)
			return coord.CompletedPart{}, errors.New("second failure")
		},
	}

	err := s.run(context.Background(), testParts(2))
	assert.ErrorIs(t, err, first)
}

func TestScheduler_AbortStopsDispatchAndDiscardsResults(t *testing.T) {
	var aborted atomic.Bool
	var completions atomic.Int32
	release := make(chan struct{})

	s := &scheduler{
		concurrency: 2,
		attempts:    1,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			if part.Number <= 2 {
				// abort lands while these two are in flight
				<-release
			}
			return coord.CompletedPart{PartNumber: part.Number, ETag: "e"}, nil
		},
		onComplete: func(coord.CompletedPart) {
			completions.Add(1)
		},
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		aborted.Store(true)
		close(release)
	}()

	err := s.run(context.Background(), testParts(10))
	require.ErrorIs(t, err, ErrAborted)
	assert.Zero(t, completions.Load(), "in-flight results must be discarded after abort")
}

func TestScheduler_AbortBeforeRun(t *testing.T) {
	var aborted atomic.Bool
	aborted.Store(true)

	var dispatched atomic.Int32
	s := &scheduler{
		concurrency: 2,
		attempts:    1,
		aborted:     &aborted,
		transfer: func(_ context.Context, part PartRange) (coord.CompletedPart, error) {
			dispatched.Add(1)
			return coord.CompletedPart{PartNumber: part.Number, ETag: "e"}, nil
		},
	}

	err := s.run(context.Background(), testParts(5))
	require.ErrorIs(t, err, ErrAborted)
	assert.Zero(t, dispatched.Load())
}
