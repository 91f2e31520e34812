package comport

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
)

// Stats are cumulative per-port counters. They are updated from the receive
// goroutine and from writers at the same time.
type Stats struct {
	RxBytes   atomic.Uint64
	RxErrors  atomic.Uint64
	TxBytes   atomic.Uint64
	TxErrors  atomic.Uint64
	Lines     atomic.Uint64
	Overflows atomic.Uint64
}

type StatsSnapshot struct {
	RxBytes   uint64
	RxErrors  uint64
	TxBytes   uint64
	TxErrors  uint64
	Lines     uint64
	Overflows uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		RxBytes:   s.RxBytes.Load(),
		RxErrors:  s.RxErrors.Load(),
		TxBytes:   s.TxBytes.Load(),
		TxErrors:  s.TxErrors.Load(),
		Lines:     s.Lines.Load(),
		Overflows: s.Overflows.Load(),
	}
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf("rx %s (%d err) tx %s (%d err) lines %d overflows %d",
		humanize.Bytes(s.RxBytes), s.RxErrors,
		humanize.Bytes(s.TxBytes), s.TxErrors,
		s.Lines, s.Overflows)
}
