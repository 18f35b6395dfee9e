package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflux/upwire/internal/coord"
)

// noSleep records requested backoff delays instead of waiting.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func newTestTransfer(sess *session, src io.ReaderAt, maxRetries int) (*partTransfer, *[]time.Duration) {
	delays := &[]time.Duration{}
	return &partTransfer{
		httpClient: http.DefaultClient,
		sess:       sess,
		src:        src,
		maxRetries: maxRetries,
		retryDelay: time.Second,
		sleep:      noSleep(delays),
	}, delays
}

func TestPartTransfer_Success(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("ETag", `"etag-p1"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess := newSession(4, 2)
	sess.bind("sess-1", coord.Locator{Container: "bucket", Key: "obj"})
	sess.setToken(2, srv.URL)

	src := strings.NewReader("0123456789")
	unit, _ := newTestTransfer(sess, src, 3)

	rec, err := unit.transfer(context.Background(), PartRange{Number: 2, Start: 4, End: 8})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.PartNumber)
	assert.Equal(t, "etag-p1", rec.ETag, "quotes must be trimmed")
	assert.Equal(t, "4567", gotBody, "body must be the part's byte range only")
}

func TestPartTransfer_LinearBackoffDelays(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// fail twice, then succeed
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("ETag", `"ok"`)
	}))
	defer srv.Close()

	sess := newSession(4, 1)
	sess.setToken(1, srv.URL)
	unit, delays := newTestTransfer(sess, strings.NewReader("data"), 3)

	_, err := unit.transfer(context.Background(), PartRange{Number: 1, Start: 0, End: 4})
	require.NoError(t, err)

	require.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *delays)
	assert.Equal(t, int32(3), hits.Load())
}

func TestPartTransfer_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sess := newSession(4, 1)
	sess.setToken(1, srv.URL)
	unit, delays := newTestTransfer(sess, strings.NewReader("data"), 2)

	_, err := unit.transfer(context.Background(), PartRange{Number: 1, Start: 0, End: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	// maxRetries=2 means 3 attempts with delays 1x and 2x base
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *delays)
}

func TestPartTransfer_MissingIntegrityTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK) // accepted, but no ETag header
	}))
	defer srv.Close()

	sess := newSession(4, 1)
	sess.setToken(1, srv.URL)
	unit, delays := newTestTransfer(sess, strings.NewReader("data"), 1)

	_, err := unit.transfer(context.Background(), PartRange{Number: 1, Start: 0, End: 4})

	var tagErr *MissingIntegrityTagError
	require.ErrorAs(t, err, &tagErr)
	assert.Equal(t, 1, tagErr.PartNumber)
	assert.Len(t, *delays, 1, "missing tag is retried like any transport failure")
}

func TestPartTransfer_MissingToken(t *testing.T) {
	sess := newSession(4, 1)
	unit, _ := newTestTransfer(sess, strings.NewReader("data"), 0)

	_, err := unit.transfer(context.Background(), PartRange{Number: 1, Start: 0, End: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authorization token")
}

func TestPartTransfer_LazyTokenFetchRetriedAsOneUnit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"ok"`)
	}))
	defer srv.Close()

	var tokenCalls atomic.Int32
	fake := &fakeCoordinator{
		partToken: func(_ context.Context, params *coord.PartTokenParams) (string, error) {
			// first token fetch fails, second succeeds
			if tokenCalls.Add(1) == 1 {
				return "", errors.New("token service unavailable")
			}
			return srv.URL, nil
		},
	}

	sess := newSession(4, 1)
	sess.bind("sess-lazy", coord.Locator{})
	unit, delays := newTestTransfer(sess, strings.NewReader("data"), 2)
	unit.lazy = true
	unit.coordinator = fake

	rec, err := unit.transfer(context.Background(), PartRange{Number: 1, Start: 0, End: 4})
	require.NoError(t, err)

	assert.Equal(t, "ok", rec.ETag)
	assert.Equal(t, int32(2), tokenCalls.Load())
	assert.Len(t, *delays, 1, "token failure consumes one retry of the combined unit")
}

func TestPartTransfer_ContextCancelledStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())

	sess := newSession(4, 1)
	sess.setToken(1, srv.URL)
	unit := &partTransfer{
		httpClient: http.DefaultClient,
		sess:       sess,
		src:        strings.NewReader("data"),
		maxRetries: 5,
		retryDelay: time.Second,
		sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}

	_, err := unit.transfer(ctx, PartRange{Number: 1, Start: 0, End: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("status %d", http.StatusInternalServerError))
}
