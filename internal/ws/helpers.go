package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID mints an opaque id for correlating a connection's lifecycle
// events across logs and broker messages.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
