// Package ids issues lexicographically sortable identifiers for
// applications, notifications and audit entries.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a ULID. Ordering by id matches ordering by creation time,
// which the notification read-state cutoff relies on.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID stamped with the provided time.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
