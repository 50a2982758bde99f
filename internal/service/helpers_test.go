package service

import (
	"errors"
	"testing"

	"chainremit/pkg/apperror"

	"github.com/stretchr/testify/require"
)

// assertAppError fails the test unless err wraps an *apperror.AppError
// with the given code.
func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
}
