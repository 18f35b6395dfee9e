package upload

import (
	"sort"
	"sync"

	"github.com/openflux/upwire/internal/coord"
)

// State is the lifecycle state of an upload session.
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateTransferring
	StateFinalizing
	StateCompleted
	StateAborting
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateTransferring:
		return "transferring"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateAborting:
		return "aborting"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// session is the in-memory record of one in-progress multipart upload. It
// lives for exactly one Upload call; nothing survives past the return.
type session struct {
	mu sync.Mutex

	id      string
	locator coord.Locator
	state   State

	chunkSize  int64
	totalParts int

	// tokens maps part number to its presigned URL. Fully populated at
	// session start in upfront mode, empty in lazy mode.
	tokens map[int]string

	// completed maps part number to its completion record. Grows
	// monotonically; a duplicate record for the same part overwrites.
	completed map[int]coord.CompletedPart

	finalized bool
	cancelled bool
}

func newSession(chunkSize int64, totalParts int) *session {
	return &session{
		state:      StateIdle,
		chunkSize:  chunkSize,
		totalParts: totalParts,
		tokens:     make(map[int]string, totalParts),
		completed:  make(map[int]coord.CompletedPart, totalParts),
	}
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *session) Locator() coord.Locator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locator
}

func (s *session) bind(id string, locator coord.Locator) {
	s.mu.Lock()
	s.id = id
	s.locator = locator
	s.mu.Unlock()
}

func (s *session) setToken(part int, url string) {
	s.mu.Lock()
	s.tokens[part] = url
	s.mu.Unlock()
}

func (s *session) token(part int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	url, ok := s.tokens[part]
	return url, ok
}

// recordCompletion stores a part's completion record, overwriting any
// previous record for the same part number. Returns the completed count.
func (s *session) recordCompletion(rec coord.CompletedPart) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[rec.PartNumber] = rec
	return len(s.completed)
}

func (s *session) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// completedSorted returns all completion records sorted ascending by part
// number, as the store's completion API requires.
func (s *session) completedSorted() []coord.CompletedPart {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]coord.CompletedPart, 0, len(s.completed))
	for _, rec := range s.completed {
		parts = append(parts, rec)
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
	return parts
}

// markFinalized flips the finalize guard. Returns false if already finalized.
func (s *session) markFinalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	return true
}

// markCancelled flips the cancel guard so the coordinator's cancel fires at
// most once per session. Returns false if already cancelled.
func (s *session) markCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return false
	}
	s.cancelled = true
	return true
}
