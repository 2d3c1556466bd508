package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	err := NewError(ErrNameTaken)
	require.Equal(t, ErrNameTaken, err.Code)
	require.Equal(t, "name taken", err.Message)
	require.Equal(t, http.StatusOK, err.Status)

	limited := NewError(ErrRateLimitExceeded)
	require.Equal(t, http.StatusTooManyRequests, limited.Status)
}

func TestNewErrorUnknownCode(t *testing.T) {
	err := NewError(424242)
	require.Equal(t, ErrUnknown, err.Code)
}

func TestErrorsIsMatchesCode(t *testing.T) {
	wrapped := fmt.Errorf("set name: %w", NewError(ErrNameTaken))

	require.True(t, errors.Is(wrapped, NewError(ErrNameTaken)))
	require.False(t, errors.Is(wrapped, NewError(ErrInvalidName)))
	require.False(t, errors.Is(errors.New("plain"), NewError(ErrNameTaken)))
}
