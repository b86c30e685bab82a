// Package idgen generates execution identifiers that are both unique
// and lexically sortable by creation time, relied on by the
// ConfigStore's bbolt key ordering for the created-at index.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// NewExecutionID returns a 32-character identifier: a 48-bit
// millisecond timestamp followed by 80 bits of randomness, both
// hex-encoded. Two ids generated in the same process at the same
// millisecond still sort correctly relative to ids from earlier or
// later milliseconds; ids within the same millisecond sort by their
// random suffix, which carries no ordering guarantee but does not need
// one.
func NewExecutionID() string {
	return NewID(time.Now())
}

// NewID is NewExecutionID parameterized on the timestamp, for tests.
func NewID(t time.Time) string {
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(t.UnixMilli()))

	var randBuf [10]byte
	if _, err := rand.Read(randBuf[:]); err != nil {
		// crypto/rand failing is not recoverable; a degraded id would
		// silently break sortability and uniqueness guarantees.
		panic(fmt.Sprintf("idgen: reading random bytes: %v", err))
	}

	return hex.EncodeToString(tsBuf[2:]) + hex.EncodeToString(randBuf[:])
}
