package common

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandByteArray returns n cryptographically secure random bytes.
func GenerateRandByteArray(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// MakeRandHexString returns a hex string encoding n random bytes.
func MakeRandHexString(n int) string {
	return hex.EncodeToString(GenerateRandByteArray(n))
}
