// Package coord defines the client side of the upload coordination service:
// the external collaborator that issues per-part authorization tokens
// (presigned URLs) and performs create/finalize/cancel against the backing
// object store.
package coord

import "context"

// Locator identifies the final object as a (container, key) pair.
type Locator struct {
	Container string `json:"container"`
	Key       string `json:"key"`
}

// PartAuthorization is a time-limited presigned URL scoped to one part write.
type PartAuthorization struct {
	PartNumber int    `json:"partNumber"`
	URL        string `json:"url"`
}

// CompletedPart is the proof of receipt for one uploaded part: its number and
// the store-computed integrity tag (ETag).
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

// CreateSessionParams describes the object being uploaded. TotalParts is zero
// for lazy sessions, where tokens are fetched per part.
type CreateSessionParams struct {
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize,omitempty"`
	FileType   string `json:"fileType"`
	TotalParts int    `json:"totalParts,omitempty"`
}

// Session is the coordinator's record of an in-progress multipart upload.
// Parts is populated only for upfront sessions, in which case its length must
// equal the requested TotalParts.
type Session struct {
	ID      string              `json:"sessionId"`
	Locator Locator             `json:"locator"`
	Parts   []PartAuthorization `json:"parts,omitempty"`
}

// PartTokenParams requests a fresh authorization for one part of a lazy
// session.
type PartTokenParams struct {
	SessionID  string  `json:"sessionId"`
	Locator    Locator `json:"locator"`
	PartNumber int     `json:"partNumber"`
}

// FinalizeParams assembles the uploaded parts into the final object. Parts
// must be sorted ascending by part number, gapless 1..N; the store rejects
// anything else.
type FinalizeParams struct {
	SessionID string          `json:"sessionId"`
	Locator   Locator         `json:"locator"`
	Parts     []CompletedPart `json:"parts"`
}

// FinalizeResult describes the assembled object.
type FinalizeResult struct {
	Location string `json:"location"`
	ETag     string `json:"etag"`
}

// CancelParams aborts an in-progress session. Cancellation is best-effort at
// every call site; the store reaps abandoned uploads on its own schedule.
type CancelParams struct {
	SessionID string  `json:"sessionId"`
	Locator   Locator `json:"locator"`
}

// Coordinator is the external part-authorization and finalization service.
type Coordinator interface {
	// CreateSession starts a multipart upload. With TotalParts > 0 the
	// response carries one authorization per part (upfront mode); otherwise
	// just the session id and locator (lazy mode).
	CreateSession(ctx context.Context, params *CreateSessionParams) (*Session, error)

	// PartToken returns a fresh authorization for one part of a lazy session.
	PartToken(ctx context.Context, params *PartTokenParams) (string, error)

	// Finalize assembles the uploaded parts into the final object.
	Finalize(ctx context.Context, params *FinalizeParams) (*FinalizeResult, error)

	// Cancel aborts the session. Callers treat failures as best-effort.
	Cancel(ctx context.Context, params *CancelParams) error
}
