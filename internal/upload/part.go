package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openflux/upwire/internal/coord"
)

// partTransfer moves exactly one part's bytes to its presigned destination
// and extracts the integrity tag. It is stateless across calls; retry
// counters are local to one invocation.
type partTransfer struct {
	httpClient  *http.Client
	coordinator coord.Coordinator
	sess        *session
	src         io.ReaderAt

	lazy       bool
	maxRetries int
	retryDelay time.Duration

	// sleep is swapped out in tests to observe backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// newPartHTTPClient builds the client used for presigned part PUTs. Presigned
// URLs go through net/http directly: req buffers request bodies, which
// defeats streaming a section reader.
func newPartHTTPClient(concurrency int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          concurrency * 4,
			MaxIdleConnsPerHost:   concurrency * 2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// transfer uploads one part, retrying transient failures with linear backoff:
// the delay before the (k+1)-th attempt is k*retryDelay. The last attempt's
// error is returned unmodified.
func (t *partTransfer) transfer(ctx context.Context, part PartRange) (coord.CompletedPart, error) {
	var lastErr error
	attempts := t.maxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * t.retryDelay
			slog.Debug("upload: retrying part", "part", part.Number, "attempt", attempt, "delay", delay)
			if err := t.sleep(ctx, delay); err != nil {
				return coord.CompletedPart{}, lastErr
			}
		}

		rec, err := t.attempt(ctx, part)
		if err == nil {
			return rec, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		slog.Debug("upload: part attempt failed", "part", part.Number, "attempt", attempt, "error", err)
	}

	return coord.CompletedPart{}, lastErr
}

// attempt performs one token fetch (lazy mode) plus one authorized write. The
// whole sequence counts as a single retryable unit.
func (t *partTransfer) attempt(ctx context.Context, part PartRange) (coord.CompletedPart, error) {
	url, err := t.authorize(ctx, part.Number)
	if err != nil {
		return coord.CompletedPart{}, err
	}

	body := io.NewSectionReader(t.src, part.Start, part.Len())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return coord.CompletedPart{}, fmt.Errorf("part %d: create request: %w", part.Number, err)
	}
	req.ContentLength = part.Len() // presigned PUTs require an explicit length
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return coord.CompletedPart{}, fmt.Errorf("part %d: put: %w", part.Number, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		return coord.CompletedPart{}, fmt.Errorf("part %d: put failed with status %d", part.Number, resp.StatusCode)
	}

	etag := strings.Trim(resp.Header.Get("ETag"), "\"")
	if etag == "" {
		return coord.CompletedPart{}, &MissingIntegrityTagError{PartNumber: part.Number}
	}

	return coord.CompletedPart{PartNumber: part.Number, ETag: etag}, nil
}

func (t *partTransfer) authorize(ctx context.Context, partNumber int) (string, error) {
	if !t.lazy {
		url, ok := t.sess.token(partNumber)
		if !ok {
			return "", fmt.Errorf("part %d: no authorization token", partNumber)
		}
		return url, nil
	}

	url, err := t.coordinator.PartToken(ctx, &coord.PartTokenParams{
		SessionID:  t.sess.ID(),
		Locator:    t.sess.Locator(),
		PartNumber: partNumber,
	})
	if err != nil {
		return "", fmt.Errorf("part %d: token: %w", partNumber, err)
	}
	return url, nil
}
