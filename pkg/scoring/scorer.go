// Package scoring assigns each collected signal a normalized strength from
// recency, source authority, and engagement. Scoring is a pure function:
// identical inputs always produce identical scores.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/elonfeng/narradar/pkg/signal"
)

// Per-source raw-metric saturation points. Engagement is log-scaled against
// these so a single outlier cannot dominate a narrative.
var saturation = map[signal.Source]float64{
	signal.SourceOnChain: 100_000,
	signal.SourceGitHub:  500,
	signal.SourceTwitter: 5_000,
}

// Scorer computes signal scores with fixed component weights.
type Scorer struct {
	RecencyWeight    float64
	AuthorityWeight  float64
	EngagementWeight float64
}

// NewScorer returns a scorer with the given weights, falling back to the
// defaults when all are zero. Weights must sum to 1.
func NewScorer(recencyW, authorityW, engagementW float64) (*Scorer, error) {
	if recencyW == 0 && authorityW == 0 && engagementW == 0 {
		recencyW, authorityW, engagementW = 0.35, 0.35, 0.30
	}
	// Same tolerance as config validation, so a config that validates also
	// builds a scorer.
	if math.Abs(recencyW+authorityW+engagementW-1) > 1e-3 {
		return nil, fmt.Errorf("scoring weights must sum to 1, got %f", recencyW+authorityW+engagementW)
	}
	return &Scorer{
		RecencyWeight:    recencyW,
		AuthorityWeight:  authorityW,
		EngagementWeight: engagementW,
	}, nil
}

// Score returns a copy of sig with the score set. A signal is scored exactly
// once; passing an already-scored signal is an error.
func (s *Scorer) Score(sig signal.Signal, window signal.Window) (signal.Signal, error) {
	if sig.Scored {
		return signal.Signal{}, fmt.Errorf("signal %s already scored", sig.ID)
	}
	if err := sig.Validate(); err != nil {
		return signal.Signal{}, err
	}

	age := window.To.Sub(sig.ObservedAt)
	if age < 0 {
		age = 0
	}

	score := s.RecencyWeight*recencyDecay(age, window) +
		s.AuthorityWeight*sig.Authority +
		s.EngagementWeight*engagementNorm(sig.RawMetric, sig.Source)

	sig.Score = clamp01(score)
	sig.Scored = true
	return sig, nil
}

// ScoreAll scores every signal in the set's insertion order.
func (s *Scorer) ScoreAll(sigs []signal.Signal, window signal.Window) ([]signal.Signal, error) {
	out := make([]signal.Signal, 0, len(sigs))
	for _, sig := range sigs {
		scored, err := s.Score(sig, window)
		if err != nil {
			return nil, err
		}
		out = append(out, scored)
	}
	return out, nil
}

// recencyDecay is an exponential decay with half-life of a quarter of the
// collection window: a signal from the start of the window retains ~6% of
// full recency weight.
func recencyDecay(age time.Duration, window signal.Window) float64 {
	halfLife := window.To.Sub(window.From) / 4
	if halfLife <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// engagementNorm maps a raw metric through a saturating log curve into [0,1].
func engagementNorm(raw float64, src signal.Source) float64 {
	if raw <= 0 {
		return 0
	}
	sat, ok := saturation[src]
	if !ok || sat <= 0 {
		return 0
	}
	return clamp01(math.Log10(1+raw) / math.Log10(1+sat))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
