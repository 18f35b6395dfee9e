package coord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatic_Validation(t *testing.T) {
	_, err := NewStatic("", Locator{}, []string{"http://p1"})
	require.ErrorIs(t, err, ErrBadURLSet)

	_, err = NewStatic("s", Locator{}, nil)
	require.ErrorIs(t, err, ErrBadURLSet)

	_, err = NewStatic("s", Locator{}, []string{"http://p1", ""})
	require.ErrorIs(t, err, ErrBadURLSet)

	s, err := NewStatic("s", Locator{Container: "b", Key: "k"}, []string{"http://p1"})
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestStatic_CreateSession(t *testing.T) {
	s, err := NewStatic("sess-s", Locator{Container: "b", Key: "k"},
		[]string{"http://p1", "http://p2", "http://p3"})
	require.NoError(t, err)

	sess, err := s.CreateSession(context.Background(), &CreateSessionParams{TotalParts: 3})
	require.NoError(t, err)

	assert.Equal(t, "sess-s", sess.ID)
	require.Len(t, sess.Parts, 3)
	for i, part := range sess.Parts {
		assert.Equal(t, i+1, part.PartNumber)
	}
}

func TestStatic_CreateSessionCountMismatch(t *testing.T) {
	s, err := NewStatic("sess-s", Locator{}, []string{"http://p1", "http://p2"})
	require.NoError(t, err)

	_, err = s.CreateSession(context.Background(), &CreateSessionParams{TotalParts: 3})
	require.ErrorIs(t, err, ErrBadURLSet)
}

func TestStatic_PartToken(t *testing.T) {
	s, err := NewStatic("sess-s", Locator{}, []string{"http://p1", "http://p2"})
	require.NoError(t, err)

	url, err := s.PartToken(context.Background(), &PartTokenParams{PartNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, "http://p2", url)

	_, err = s.PartToken(context.Background(), &PartTokenParams{PartNumber: 3})
	require.ErrorIs(t, err, ErrBadURLSet)

	_, err = s.PartToken(context.Background(), &PartTokenParams{PartNumber: 0})
	require.ErrorIs(t, err, ErrBadURLSet)
}

func TestStatic_FinalizeDelegates(t *testing.T) {
	s, err := NewStatic("sess-s", Locator{}, []string{"http://p1"})
	require.NoError(t, err)

	// without a next coordinator, finalize and cancel cannot be served
	_, err = s.Finalize(context.Background(), &FinalizeParams{SessionID: "sess-s"})
	require.Error(t, err)
	require.Error(t, s.Cancel(context.Background(), &CancelParams{SessionID: "sess-s"}))
}
