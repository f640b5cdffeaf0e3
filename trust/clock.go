package trust

import (
	"time"

	"github.com/WatchBeam/clock"
)

// strictTimeFormat is the TUF/mamba timestamp format used for both the
// root "expires" field (v1) and the "expiration" field (v0.6).
const strictTimeFormat = "2006-01-02T15:04:05Z"

// TimeRef freezes a single wall-clock reading so that every expiration
// check performed during one update cycle sees the same instant, no
// matter how long the cycle takes to run.
type TimeRef struct {
	clock clock.Clock
	now   time.Time
}

// NewTimeRef samples c.Now() once. A nil clock falls back to the real
// wall clock.
func NewTimeRef(c clock.Clock) *TimeRef {
	if c == nil {
		c = clock.New()
	}
	return &TimeRef{clock: c, now: c.Now().UTC()}
}

// Resample re-reads the underlying clock. Production code never needs
// this; it exists so long-lived checkers can start a fresh cycle.
func (tr *TimeRef) Resample() {
	tr.now = tr.clock.Now().UTC()
}

// Now returns the frozen instant.
func (tr *TimeRef) Now() time.Time {
	return tr.now
}

// Timestamp renders the frozen instant in the role-file format.
func (tr *TimeRef) Timestamp() string {
	return tr.now.Format(strictTimeFormat)
}

// ParseTimestamp parses a role-file expiration string.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(strictTimeFormat, s)
	if err != nil {
		return time.Time{}, newErr(CategoryRoleMeta, "", "malformed timestamp "+s, err)
	}
	return t, nil
}
