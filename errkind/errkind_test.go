package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	require.Equal(t, "BadCommand", BadCommand.String())
	require.Equal(t, "InternalError", InternalError.String())
	require.Equal(t, "CryptoFailed", CryptoFailed.String())
}

func TestNewConstructorsSetKind(t *testing.T) {
	require.Equal(t, BadCommand, NewBadCommand("bad: %s", "x").Kind)
	require.Equal(t, InternalError, NewInternalError("bad").Kind)
	require.Equal(t, CryptoFailed, NewCryptoFailed("bad").Kind)
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(CryptoFailed, cause)

	require.Equal(t, CryptoFailed, wrapped.Kind)
	require.ErrorIs(t, wrapped, cause)
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, Wrap(InternalError, nil))
}

func TestWrapIdempotentOnOwnType(t *testing.T) {
	original := NewBadCommand("boom")
	require.Same(t, original, Wrap(InternalError, original))
}
