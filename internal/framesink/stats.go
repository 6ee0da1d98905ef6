package framesink

import "time"

// Stats is a snapshot of the sink's operational state. Values may be
// slightly stale by the time the caller reads them; that is acceptable
// for monitoring.
type Stats struct {
	// Generation is the current generation counter.
	Generation uint64

	// Published is the lifetime count of accepted frames.
	Published uint64

	// Rejected is the lifetime count of empty payloads refused by Publish.
	// Non-zero indicates a producer bug upstream.
	Rejected uint64

	// LastPublishAt is the wall-clock time of the most recent publish.
	// Zero before the first frame.
	LastPublishAt time.Time

	// Waiters is the number of viewers currently blocked in WaitForNext.
	Waiters int64
}

// Stats returns a non-blocking snapshot of the sink's counters.
func (s *Sink) Stats() Stats {
	s.mu.RLock()
	st := Stats{
		Generation:    s.gen,
		Published:     s.published,
		Rejected:      s.rejected,
		LastPublishAt: s.lastPublish,
	}
	s.mu.RUnlock()
	st.Waiters = s.waiters.Load()
	return st
}
