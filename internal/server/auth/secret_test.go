package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loobric/smooth-core/internal/common"
)

func TestFormatSplitKey(t *testing.T) {
	raw := FormatKey("grant-1", "s3cr3t")
	assert.Equal(t, "grant-1.s3cr3t", raw)

	grantID, secret, err := SplitKey(raw)
	require.NoError(t, err)
	assert.Equal(t, "grant-1", grantID)
	assert.Equal(t, "s3cr3t", secret)
}

func TestSplitKey_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no separator", raw: "grant1secret"},
		{name: "empty grant id", raw: ".secret"},
		{name: "empty secret", raw: "grant-1."},
		{name: "empty string", raw: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitKey(tt.raw)
			assert.ErrorIs(t, err, common.ErrUnauthenticated)
		})
	}
}

func TestHashVerifySecret(t *testing.T) {
	hash, err := HashSecret("s3cr3t")
	require.NoError(t, err)
	require.NotEqual(t, "s3cr3t", hash)

	assert.True(t, VerifySecret(hash, "s3cr3t"))
	assert.False(t, VerifySecret(hash, "wrong"))
}

func TestNewKeySecret_Unique(t *testing.T) {
	a := NewKeySecret()
	b := NewKeySecret()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
