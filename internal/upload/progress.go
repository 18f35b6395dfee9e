package upload

import "log/slog"

// Phase identifies which stage of the upload a progress event belongs to.
type Phase string

const (
	PhaseInitiating Phase = "initiating"
	PhaseUploading  Phase = "uploading"
	PhaseCompleting Phase = "completing"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// ProgressEvent is a snapshot of upload progress. Percent runs 0-100: it
// tracks completed parts while uploading, pins to 95 while the finalize call
// is in flight, and reaches 100 only on completion.
type ProgressEvent struct {
	Phase          Phase
	Percent        float64
	TotalParts     int
	CompletedParts int
	// LastPart is the part number most recently dispatched, 0 before the
	// first dispatch.
	LastPart int
	// Err is set only for PhaseError events.
	Err error
}

// ProgressObserver receives progress events during an upload. Implementations
// must not block; calls are synchronous from the upload's own goroutines.
type ProgressObserver interface {
	OnProgress(ProgressEvent)
}

// ProgressFunc adapts a function to the ProgressObserver interface.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) OnProgress(ev ProgressEvent) { f(ev) }

// emit delivers an event to the observer, swallowing panics so a misbehaving
// observer can never take down a transfer.
func emit(obs ProgressObserver, ev ProgressEvent) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("upload: progress observer panicked", "phase", ev.Phase, "recovered", r)
		}
	}()
	obs.OnProgress(ev)
}
