// Package clockid provides the monotonic wall-clock source and stable record
// identifiers used throughout the synchronization core (spec §4.1).
package clockid

import (
	"strconv"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
)

// Clock returns milliseconds since epoch and guarantees the returned value
// never goes backward within a process, even across rapid successive calls
// or system clock adjustments.
type Clock struct {
	mu   stdsync.Mutex
	last int64
}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// NowMillis returns the current time in milliseconds since epoch, clamped to
// be strictly non-decreasing relative to the previous call on this Clock.
func (c *Clock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}

	c.last = now

	return now
}

// NewRecordID generates a UUID-like stable identifier for records whose
// business domain does not supply a natural key.
func NewRecordID() string {
	return uuid.NewString()
}

// Stringify returns a deterministic string form of a millisecond timestamp,
// suitable for comparison and for use inside object-store keys
// (sync/<type>/<yyyymmdd>/<id>/<version>.blob and similar).
func Stringify(millis int64) string {
	return strconv.FormatInt(millis, 10)
}
