// Package xid generates prefixed unique identifiers for locally created
// records (sync runs, inferred shifts). The embedded nanosecond timestamp
// makes IDs sort roughly by creation time, which is handy in logs.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// The timestamp alone is still unique enough for
		// single-process use.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
