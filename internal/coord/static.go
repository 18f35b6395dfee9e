package coord

import (
	"context"
	"errors"
	"fmt"
)

// ErrBadURLSet reports a caller-supplied presigned URL set that cannot serve
// the session (wrong count, empty entries). Callers treat this as a
// configuration problem rather than a coordinator failure.
var ErrBadURLSet = errors.New("coord: malformed presigned url set")

// Static serves a session from a caller-supplied, ordered presigned URL set.
// It performs no finalize or cancel of its own: those still need a real
// coordinator, so Static is typically paired with one that holds the session,
// or used where the caller finalizes out of band.
type Static struct {
	sessionID string
	locator   Locator
	urls      []string

	// Next, when set, receives Finalize and Cancel calls.
	Next Coordinator
}

// NewStatic builds a static issuer over an ordered URL list, one URL per part
// in part-number order.
func NewStatic(sessionID string, locator Locator, urls []string) (*Static, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrBadURLSet)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no urls", ErrBadURLSet)
	}
	for i, u := range urls {
		if u == "" {
			return nil, fmt.Errorf("%w: empty url for part %d", ErrBadURLSet, i+1)
		}
	}
	return &Static{sessionID: sessionID, locator: locator, urls: urls}, nil
}

func (s *Static) CreateSession(_ context.Context, params *CreateSessionParams) (*Session, error) {
	if params.TotalParts > 0 && params.TotalParts != len(s.urls) {
		return nil, fmt.Errorf("%w: have %d urls, session needs %d", ErrBadURLSet, len(s.urls), params.TotalParts)
	}
	parts := make([]PartAuthorization, len(s.urls))
	for i, u := range s.urls {
		parts[i] = PartAuthorization{PartNumber: i + 1, URL: u}
	}
	return &Session{ID: s.sessionID, Locator: s.locator, Parts: parts}, nil
}

func (s *Static) PartToken(_ context.Context, params *PartTokenParams) (string, error) {
	idx := params.PartNumber - 1
	if idx < 0 || idx >= len(s.urls) {
		return "", fmt.Errorf("%w: no url for part %d", ErrBadURLSet, params.PartNumber)
	}
	return s.urls[idx], nil
}

func (s *Static) Finalize(ctx context.Context, params *FinalizeParams) (*FinalizeResult, error) {
	if s.Next == nil {
		return nil, fmt.Errorf("static issuer cannot finalize session %q", params.SessionID)
	}
	return s.Next.Finalize(ctx, params)
}

func (s *Static) Cancel(ctx context.Context, params *CancelParams) error {
	if s.Next == nil {
		return fmt.Errorf("static issuer cannot cancel session %q", params.SessionID)
	}
	return s.Next.Cancel(ctx, params)
}

var _ Coordinator = (*Static)(nil)
