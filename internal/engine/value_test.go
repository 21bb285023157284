package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Stream) []any {
	t.Helper()
	tbl, err := s.Materialize()
	require.NoError(t, err)
	return tbl.Rows
}

func TestStreamOfAndMaterialize(t *testing.T) {
	s := StreamOf(int64(1), int64(2), int64(3))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, drain(t, s))

	// Exhausted streams stay exhausted.
	_, ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTeeBranchesSeeFullSequence(t *testing.T) {
	a, b := StreamOf(int64(1), int64(2), int64(3)).Tee()

	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, drain(t, a))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, drain(t, b))
}

func TestTeeInterleavedPulls(t *testing.T) {
	a, b := StreamOf("x", "y").Tee()

	v, ok, err := a.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok, err = b.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	assert.Equal(t, []any{"y"}, drain(t, b))
	assert.Equal(t, []any{"y"}, drain(t, a))
}

func TestPrependPushesBack(t *testing.T) {
	s := StreamOf(int64(2), int64(3))
	v, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)

	s = s.Prepend(v)
	assert.Equal(t, []any{int64(2), int64(3)}, drain(t, s))
}

func TestRowsAcceptsBothDatasets(t *testing.T) {
	rows, err := Rows(NewTable("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, rows)

	rows, err = Rows(StreamOf("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, rows)
}
