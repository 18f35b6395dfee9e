package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by Upload once the abort flag is observed.
	ErrAborted = errors.New("upload: aborted")

	// ErrFinalized guards against a second finalize attempt on the same session.
	ErrFinalized = errors.New("upload: session already finalized")
)

const (
	// Error codes carried by the typed errors below.
	CodeInvalidConfig       = "E_INVALID_CONFIG"        // bad chunk size, zero file size, malformed URL set
	CodeAuthorization       = "E_AUTHORIZATION"         // coordinator response missing fields or token count mismatch
	CodeTransfer            = "E_TRANSFER"              // part transfer failed after retries
	CodeMissingIntegrityTag = "E_MISSING_INTEGRITY_TAG" // store accepted the part but returned no tag
	CodeFinalization        = "E_FINALIZATION"          // finalize call failed
)

// UploadError is implemented by all typed errors in this package.
type UploadError interface {
	error
	ErrorCode() string
}

// ConfigError reports invalid construction-time options or a malformed
// caller-supplied authorization set.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("upload: invalid configuration: %s", e.Reason)
}

func (e *ConfigError) ErrorCode() string { return CodeInvalidConfig }

// AuthError reports a malformed or incomplete response from the coordination
// service during session creation or part token retrieval.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload: authorization: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("upload: authorization: %s", e.Reason)
}

func (e *AuthError) ErrorCode() string { return CodeAuthorization }
func (e *AuthError) Unwrap() error     { return e.Err }

// TransferError reports a part whose transfer failed after exhausting retries.
// Err is the last attempt's error, unmodified.
type TransferError struct {
	PartNumber int
	Attempts   int
	Err        error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("upload: part %d failed after %d attempts: %v", e.PartNumber, e.Attempts, e.Err)
}

func (e *TransferError) ErrorCode() string { return CodeTransfer }
func (e *TransferError) Unwrap() error     { return e.Err }

// MissingIntegrityTagError reports a part write the store accepted without
// returning an integrity tag. The tag is mandatory input to finalization, so
// this counts as a failed attempt.
type MissingIntegrityTagError struct {
	PartNumber int
}

func (e *MissingIntegrityTagError) Error() string {
	return fmt.Sprintf("upload: part %d: store returned no integrity tag", e.PartNumber)
}

func (e *MissingIntegrityTagError) ErrorCode() string { return CodeMissingIntegrityTag }

// FinalizeError reports a failed finalize call.
type FinalizeError struct {
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("upload: finalize: %v", e.Err)
}

func (e *FinalizeError) ErrorCode() string { return CodeFinalization }
func (e *FinalizeError) Unwrap() error     { return e.Err }

var (
	_ UploadError = (*ConfigError)(nil)
	_ UploadError = (*AuthError)(nil)
	_ UploadError = (*TransferError)(nil)
	_ UploadError = (*MissingIntegrityTagError)(nil)
	_ UploadError = (*FinalizeError)(nil)
)
