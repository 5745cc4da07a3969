package governor

import "time"

// Clock provides the governor's notion of time. Guardrail arithmetic never
// reads the wall clock directly so tests can drive it deterministically.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// state tracks the guardrail counters: the sliding action window, the last
// action time, and the consecutive-failure streak. It is owned by the
// Governor and is not safe for concurrent use; the daemon drives the
// governor from a single incident loop.
type state struct {
	window       []time.Time
	lastActionAt time.Time
	failStreak   int
}

// pruneWindow drops window entries older than cutoff and returns the
// remaining count.
func (s *state) pruneWindow(cutoff time.Time) int {
	kept := s.window[:0]
	for _, t := range s.window {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	s.window = kept
	return len(s.window)
}

// recordAction appends now to the window and stamps the last action time.
// It runs before dispatch so failed attempts still consume rate budget.
func (s *state) recordAction(now time.Time) {
	s.window = append(s.window, now)
	s.lastActionAt = now
}
