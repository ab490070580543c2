package envelope

import (
	"time"

	"github.com/google/uuid"
)

// NowMs returns the current UTC time as milliseconds, the unit every
// envelope timestamp is measured in.
func NowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// DefaultCutoff implements spec §3's "millisecond cutoff semantics": when
// no explicit cutoff is given, the cutoff is now+1ms so a version created
// at the current millisecond is visible.
func DefaultCutoff(at *int64) int64 {
	if at != nil {
		return *at
	}
	return NowMs() + 1
}

// NewID assigns a fresh unique identifier for an envelope whose id is
// empty, per spec §4.1's Create contract.
func NewID() string {
	return uuid.NewString()
}
