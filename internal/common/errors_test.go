package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionConflictError_MatchesSentinel(t *testing.T) {
	err := &VersionConflictError{Expected: 3, Actual: 5}
	require.True(t, errors.Is(err, ErrVersionConflict))
	assert.Contains(t, err.Error(), "expected 3")
	assert.Contains(t, err.Error(), "actual 5")
}

func TestVersionConflictError_WrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("updating record: %w", &VersionConflictError{Expected: 1, Actual: 2})
	require.True(t, errors.Is(err, ErrVersionConflict))

	var vc *VersionConflictError
	require.True(t, errors.As(err, &vc))
	assert.Equal(t, int64(1), vc.Expected)
	assert.Equal(t, int64(2), vc.Actual)
}

func TestMakeRandHexString_LengthAndUniqueness(t *testing.T) {
	a := MakeRandHexString(16)
	b := MakeRandHexString(16)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
