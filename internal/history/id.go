package history

import (
	"crypto/rand"
	"crypto/sha1" //nolint: gosec
	"fmt"
)

const (
	// IDShort is the short version of a call ID.
	IDShort = 7

	// IDMinLen is the minimum prefix length that resolves a call ID.
	IDMinLen = 4

	idReadBlockSize = 4096
)

// NewCallID generates a new call ID.
func NewCallID() string {
	b := make([]byte, idReadBlockSize)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", sha1.Sum(b)) //nolint: gosec
}
