package runtime

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so routing is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// ShortIDGenerator produces the 8-character user IDs handed out on registration.
type ShortIDGenerator struct{}

func (ShortIDGenerator) New() string { return uuid.NewString()[:8] }

// UUIDGenerator produces message IDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }

// stamper hands out millisecond timestamps that never go backwards,
// even if the wall clock does.
type stamper struct {
	clock Clock
	last  atomic.Int64
}

func (s *stamper) Stamp() int64 {
	now := s.clock.Now().UnixMilli()
	for {
		last := s.last.Load()
		if now <= last {
			return last
		}
		if s.last.CompareAndSwap(last, now) {
			return now
		}
	}
}
