package governor

import (
	"sync"
	"time"
)

// emaAlpha weights the newest outcome in the running success rate.
const emaAlpha = 0.1

// cooldownPenalty is the maximum advisory deduction while a strategy is
// inside the cooldown window.
const cooldownPenalty = 0.2

// Scorer tracks a per-strategy success rate as an exponential moving
// average. Scores are advisory telemetry only; nothing in decide or execute
// gates on them.
type Scorer struct {
	mu    sync.RWMutex
	rates map[string]float64
}

// NewScorer returns a scorer optionally warm-started with prior rates.
// Rates outside [0,1] are clamped.
func NewScorer(warm map[string]float64) *Scorer {
	rates := make(map[string]float64, len(warm))
	for k, v := range warm {
		rates[k] = clamp01(v)
	}
	return &Scorer{rates: rates}
}

// Observe folds one outcome (1 success, 0 failure) into the strategy's
// rate. A strategy with no prior takes the outcome as its seed.
func (s *Scorer) Observe(strategy string, success bool) {
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rates[strategy]
	if !ok {
		s.rates[strategy] = outcome
		return
	}
	s.rates[strategy] = (1-emaAlpha)*old + emaAlpha*outcome
}

// Rate returns the strategy's success rate; unknown strategies report 1.0.
func (s *Scorer) Rate(strategy string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rate, ok := s.rates[strategy]; ok {
		return rate
	}
	return 1.0
}

// Score is the advisory ranking value: success rate minus a penalty that
// decays linearly over the cooldown window since the last action.
func (s *Scorer) Score(strategy string, elapsed, cooldown time.Duration) float64 {
	rate := s.Rate(strategy)
	if cooldown <= 0 || elapsed < 0 || elapsed >= cooldown {
		return rate
	}
	penalty := cooldownPenalty * (1 - float64(elapsed)/float64(cooldown))
	return rate - penalty
}

// Rates returns a copy of every tracked rate.
func (s *Scorer) Rates() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
