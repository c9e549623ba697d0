package codes

import (
	"errors"
	"testing"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
	"github.com/stretchr/testify/require"
)

func TestNewTransferCode_Shape(t *testing.T) {
	for i := 0; i < 500; i++ {
		code := NewTransferCode()
		require.Len(t, code, TransferCodeLen)
		require.True(t, IsTransferCode(code), code)
	}
}

func TestNewConnectionID_Shape(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := NewConnectionID()
		require.Len(t, id, 11)
		require.True(t, IsConnectionID(id), id)
	}
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	candidates := []string{"AAAAAA", "BBBBBB", "CCCCCC"}
	i := 0
	gen := func() string {
		c := candidates[i]
		i++
		return c
	}
	taken := map[string]bool{"AAAAAA": true, "BBBBBB": true}

	code, err := Issue(gen, func(c string) bool { return taken[c] }, 5)
	require.NoError(t, err)
	require.Equal(t, "CCCCCC", code)
	require.Equal(t, 3, i)
}

func TestIssue_ExhaustedIsBounded(t *testing.T) {
	calls := 0
	gen := func() string {
		calls++
		return "ZZZZZZ"
	}

	_, err := Issue(gen, func(string) bool { return true }, 8)
	require.True(t, errors.Is(err, cerr.ErrCodeSpaceExhausted))
	require.Equal(t, 8, calls)
}

func TestShapeChecks(t *testing.T) {
	require.True(t, IsTransferCode("AB12CD"))
	require.False(t, IsTransferCode("ab12cd"))
	require.False(t, IsTransferCode("AB12C"))
	require.False(t, IsTransferCode("AB12C!"))
	require.Equal(t, "AB12CD", NormalizeTransferCode("  ab12cd "))

	require.True(t, IsConnectionID("ABC-123-XYZ"))
	require.False(t, IsConnectionID("ABC123XYZ"))
	require.False(t, IsConnectionID("ABC-123-XY"))
}
