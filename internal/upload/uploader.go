package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openflux/upwire/internal/coord"
	"github.com/openflux/upwire/internal/utils"
)

const cancelTimeout = 30 * time.Second

// File is an upload source with a known byte length.
type File struct {
	// Name is the object key the coordinator will store the file under.
	Name string
	// Type is the MIME type; when empty it is detected from Name's extension.
	Type string
	Size int64
	Data io.ReaderAt
}

// Result describes the finalized object.
type Result struct {
	SessionID  string
	Location   string
	ETag       string
	TotalParts int
}

// Uploader orchestrates multipart uploads against a coordination service:
// plan, transfer parts concurrently, finalize or cancel.
//
// An Uploader runs one upload at a time. Abort is safe to call from any
// goroutine, including before Upload.
type Uploader struct {
	coordinator coord.Coordinator
	opts        Options
	httpClient  *http.Client

	mu      sync.Mutex
	current *session
	aborted atomic.Bool
}

// New creates an Uploader. Zero-valued options take the documented defaults.
func New(coordinator coord.Coordinator, opts Options) (*Uploader, error) {
	if coordinator == nil {
		return nil, &ConfigError{Reason: "coordinator is required"}
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	return &Uploader{
		coordinator: coordinator,
		opts:        opts,
		httpClient:  newPartHTTPClient(opts.MaxConcurrentParts),
	}, nil
}

// UploadFile uploads the file at path, using its base name as the object key.
func (u *Uploader) UploadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("upload: open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("upload: stat file: %w", err)
	}

	return u.Upload(ctx, &File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Data: f,
	})
}

// Upload runs the full multipart flow and returns exactly one terminal
// outcome: the finalization result, or an error from the package taxonomy. A
// final error progress event is emitted before an error return.
func (u *Uploader) Upload(ctx context.Context, file *File) (*Result, error) {
	if u.aborted.Load() {
		return nil, ErrAborted
	}
	if file == nil || file.Data == nil {
		return nil, &ConfigError{Reason: "file source is required"}
	}
	if file.Size <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("file size must be positive, got %d", file.Size)}
	}

	parts, err := u.plan(file.Size)
	if err != nil {
		return nil, err
	}
	totalParts := len(parts)

	sess := newSession(parts[0].Len(), totalParts)
	u.setCurrent(sess)
	defer u.setCurrent(nil)

	emit(u.opts.Observer, ProgressEvent{Phase: PhaseInitiating, TotalParts: totalParts})

	sess.setState(StatePlanning)
	if err := u.authorizeSession(ctx, sess, file, parts); err != nil {
		return nil, u.failUpload(sess, err)
	}

	sess.setState(StateTransferring)
	slog.Debug("upload: transferring",
		"session", sess.ID(), "parts", totalParts,
		"chunkSize", sess.chunkSize, "concurrency", u.opts.MaxConcurrentParts,
		"mode", u.opts.Mode.String())

	if err := u.transferParts(ctx, sess, file, parts); err != nil {
		return nil, u.failUpload(sess, err)
	}

	if u.aborted.Load() {
		return nil, u.failUpload(sess, ErrAborted)
	}
	if got := sess.completedCount(); got != totalParts {
		return nil, u.failUpload(sess, fmt.Errorf("upload: %d of %d parts completed", got, totalParts))
	}

	sess.setState(StateFinalizing)
	emit(u.opts.Observer, ProgressEvent{
		Phase:          PhaseCompleting,
		Percent:        95,
		TotalParts:     totalParts,
		CompletedParts: totalParts,
	})

	result, err := u.finalize(ctx, sess)
	if err != nil {
		return nil, u.failUpload(sess, err)
	}

	sess.setState(StateCompleted)
	emit(u.opts.Observer, ProgressEvent{
		Phase:          PhaseCompleted,
		Percent:        100,
		TotalParts:     totalParts,
		CompletedParts: totalParts,
	})

	return &Result{
		SessionID:  sess.ID(),
		Location:   result.Location,
		ETag:       result.ETag,
		TotalParts: totalParts,
	}, nil
}

// Abort stops the current upload: no new part transfers start, results of
// in-flight ones are discarded, and the session is cancelled best-effort.
// Never returns an error; safe to call repeatedly and from any goroutine.
func (u *Uploader) Abort() {
	u.aborted.Store(true)

	u.mu.Lock()
	sess := u.current
	u.mu.Unlock()

	if sess == nil || sess.ID() == "" {
		return
	}
	sess.setState(StateAborting)
	u.cancelSession(sess)
}

func (u *Uploader) plan(fileSize int64) ([]PartRange, error) {
	if u.opts.PartCount > 0 {
		return PlanParts(fileSize, u.opts.PartCount)
	}
	return Plan(fileSize, u.opts.ChunkSize)
}

// authorizeSession creates the session and, in upfront mode, validates and
// stores the full token set. No partial session survives a malformed
// response.
func (u *Uploader) authorizeSession(ctx context.Context, sess *session, file *File, parts []PartRange) error {
	params := &coord.CreateSessionParams{
		FileName: file.Name,
		FileType: fileType(file),
	}
	if u.opts.Mode == ModeUpfront {
		params.FileSize = file.Size
		params.TotalParts = len(parts)
	}

	resp, err := u.coordinator.CreateSession(ctx, params)
	if err != nil {
		if errors.Is(err, coord.ErrBadURLSet) {
			return &ConfigError{Reason: err.Error()}
		}
		return &AuthError{Reason: "create session", Err: err}
	}
	if resp.ID == "" {
		return &AuthError{Reason: "response missing session id"}
	}

	if u.opts.Mode == ModeUpfront {
		if len(resp.Parts) != len(parts) {
			return &AuthError{Reason: fmt.Sprintf("expected %d part tokens, got %d", len(parts), len(resp.Parts))}
		}
		tokens := make(map[int]string, len(resp.Parts))
		for _, auth := range resp.Parts {
			if auth.URL == "" {
				return &AuthError{Reason: fmt.Sprintf("part %d token missing url", auth.PartNumber)}
			}
			if auth.PartNumber < 1 || auth.PartNumber > len(parts) {
				return &AuthError{Reason: fmt.Sprintf("token for unknown part %d", auth.PartNumber)}
			}
			if _, dup := tokens[auth.PartNumber]; dup {
				return &AuthError{Reason: fmt.Sprintf("duplicate token for part %d", auth.PartNumber)}
			}
			tokens[auth.PartNumber] = auth.URL
		}
		sess.bind(resp.ID, resp.Locator)
		for num, url := range tokens {
			sess.setToken(num, url)
		}
		return nil
	}

	sess.bind(resp.ID, resp.Locator)
	return nil
}

func (u *Uploader) transferParts(ctx context.Context, sess *session, file *File, parts []PartRange) error {
	unit := &partTransfer{
		httpClient:  u.httpClient,
		coordinator: u.coordinator,
		sess:        sess,
		src:         file.Data,
		lazy:        u.opts.Mode == ModeLazy,
		maxRetries:  u.opts.MaxRetries,
		retryDelay:  u.opts.RetryDelay,
		sleep:       sleepCtx,
	}

	var lastPart atomic.Int64
	totalParts := len(parts)

	sched := &scheduler{
		concurrency: u.opts.MaxConcurrentParts,
		attempts:    u.opts.MaxRetries + 1,
		transfer:    unit.transfer,
		aborted:     &u.aborted,
		onDispatch: func(partNumber int) {
			lastPart.Store(int64(partNumber))
			done := sess.completedCount()
			emit(u.opts.Observer, ProgressEvent{
				Phase:          PhaseUploading,
				Percent:        percent(done, totalParts),
				TotalParts:     totalParts,
				CompletedParts: done,
				LastPart:       partNumber,
			})
		},
		onComplete: func(rec coord.CompletedPart) {
			done := sess.recordCompletion(rec)
			emit(u.opts.Observer, ProgressEvent{
				Phase:          PhaseUploading,
				Percent:        percent(done, totalParts),
				TotalParts:     totalParts,
				CompletedParts: done,
				LastPart:       int(lastPart.Load()),
			})
		},
	}

	return sched.run(ctx, parts)
}

func (u *Uploader) finalize(ctx context.Context, sess *session) (*coord.FinalizeResult, error) {
	if !sess.markFinalized() {
		return nil, ErrFinalized
	}
	result, err := u.coordinator.Finalize(ctx, &coord.FinalizeParams{
		SessionID: sess.ID(),
		Locator:   sess.Locator(),
		Parts:     sess.completedSorted(),
	})
	if err != nil {
		return nil, &FinalizeError{Err: err}
	}
	return result, nil
}

// failUpload runs the shared failure path: best-effort cancel, terminal state
// transition, final error progress event, and pass-through of the original
// error.
func (u *Uploader) failUpload(sess *session, err error) error {
	u.cancelSession(sess)

	if errors.Is(err, ErrAborted) {
		sess.setState(StateAborted)
	} else {
		sess.setState(StateFailed)
	}

	emit(u.opts.Observer, ProgressEvent{
		Phase:          PhaseError,
		TotalParts:     sess.totalParts,
		CompletedParts: sess.completedCount(),
		Err:            err,
	})
	return err
}

// cancelSession fires the coordinator's cancel at most once per session.
// Cancellation is inherently best-effort: its own failure is logged, never
// surfaced.
func (u *Uploader) cancelSession(sess *session) {
	if sess.ID() == "" || !sess.markCancelled() {
		return
	}
	bestEffort("cancel session "+sess.ID(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		return u.coordinator.Cancel(ctx, &coord.CancelParams{
			SessionID: sess.ID(),
			Locator:   sess.Locator(),
		})
	})
}

func (u *Uploader) setCurrent(sess *session) {
	u.mu.Lock()
	u.current = sess
	u.mu.Unlock()
}

// bestEffort invokes fn and logs any failure instead of returning it.
func bestEffort(op string, fn func() error) {
	if err := fn(); err != nil {
		slog.Warn("upload: best-effort operation failed", "op", op, "error", err)
	}
}

func percent(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

func fileType(f *File) string {
	if f.Type != "" {
		return f.Type
	}
	return utils.DetectContentType(f.Name)
}
