package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New mints a prefixed, collision-resistant identifier. Identifiers carry
// no ordering guarantee, they are unique handles for documents and audit
// records.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
