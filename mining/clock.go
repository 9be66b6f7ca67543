package mining

import "sync/atomic"

// CurrentTimeInSeconds returns the server's notion of wall clock time: the
// time source plus the accumulated test adjustment, floored at one second
// past the timestamp of the last parent a candidate was built on. The floor
// keeps candidate timestamps strictly increasing across rebuilds.
func (s *MinerServer) CurrentTimeInSeconds() int64 {
	now := s.timeSource.Now().Unix() + atomic.LoadInt64(&s.timeAdjustment)
	if minimum := atomic.LoadInt64(&s.minimumAcceptableTime); now < minimum {
		return minimum
	}
	return now
}

// IncreaseTime advances the server clock by the given number of seconds and
// returns the new accumulated adjustment. Non-positive deltas are ignored;
// the adjustment only ever grows.
func (s *MinerServer) IncreaseTime(seconds int64) int64 {
	if seconds <= 0 {
		return atomic.LoadInt64(&s.timeAdjustment)
	}
	return atomic.AddInt64(&s.timeAdjustment, seconds)
}
