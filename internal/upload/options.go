package upload

import (
	"fmt"
	"time"
)

const (
	// DefaultChunkSize matches the S3/MinIO minimum part size.
	DefaultChunkSize = int64(5 * 1024 * 1024)

	// MinChunkSize is the store-imposed minimum for any part other than the
	// last of a multi-part upload.
	MinChunkSize = int64(5 * 1024 * 1024)

	DefaultMaxConcurrentParts = 5
	DefaultMaxRetries         = 3
	DefaultRetryDelay         = 1 * time.Second
)

// Mode selects how part authorizations are obtained.
type Mode int

const (
	// ModeUpfront requests the session id and every part token in a single
	// call before any transfer begins.
	ModeUpfront Mode = iota

	// ModeLazy creates the session with just an id and fetches each part's
	// token immediately before transferring that part.
	ModeLazy
)

func (m Mode) String() string {
	switch m {
	case ModeUpfront:
		return "upfront"
	case ModeLazy:
		return "lazy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options configures an Uploader. The zero value is usable; unset fields take
// the documented defaults.
type Options struct {
	// ChunkSize is the byte size used to partition the file. Default 5 MiB.
	ChunkSize int64

	// PartCount, when > 0, selects the alternate planning strategy: the chunk
	// size is derived as ceil(fileSize/PartCount) instead of using ChunkSize.
	// Mutually exclusive with an explicit ChunkSize.
	PartCount int

	// MaxConcurrentParts caps simultaneously in-flight part transfers.
	// Default 5.
	MaxConcurrentParts int

	// MaxRetries is the number of additional attempts per part after the
	// first failure. Default 3.
	MaxRetries int

	// RetryDelay is the linear backoff base: the delay before the (k+1)-th
	// attempt is k*RetryDelay. Default 1s.
	RetryDelay time.Duration

	// Mode selects upfront or lazy part authorization. Default ModeUpfront.
	Mode Mode

	// Observer, when set, receives progress events. Calls are synchronous and
	// never block the transfer pipeline; panics are swallowed.
	Observer ProgressObserver
}

// withDefaults returns a copy with unset fields filled in.
func (o Options) withDefaults() Options {
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxConcurrentParts == 0 {
		o.MaxConcurrentParts = DefaultMaxConcurrentParts
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

func (o Options) validate() error {
	if o.ChunkSize < 0 {
		return &ConfigError{Reason: fmt.Sprintf("chunk size must be positive, got %d", o.ChunkSize)}
	}
	if o.PartCount < 0 {
		return &ConfigError{Reason: fmt.Sprintf("part count must be positive, got %d", o.PartCount)}
	}
	if o.PartCount > 0 && o.ChunkSize > 0 {
		return &ConfigError{Reason: "chunk size and part count are mutually exclusive"}
	}
	if o.MaxConcurrentParts < 0 {
		return &ConfigError{Reason: fmt.Sprintf("concurrency must be positive, got %d", o.MaxConcurrentParts)}
	}
	if o.MaxRetries < 0 {
		return &ConfigError{Reason: fmt.Sprintf("max retries must not be negative, got %d", o.MaxRetries)}
	}
	if o.RetryDelay < 0 {
		return &ConfigError{Reason: "retry delay must not be negative"}
	}
	if o.Mode != ModeUpfront && o.Mode != ModeLazy {
		return &ConfigError{Reason: fmt.Sprintf("unknown mode %d", int(o.Mode))}
	}
	return nil
}
