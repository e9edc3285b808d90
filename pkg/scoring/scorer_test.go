package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/narradar/pkg/signal"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func scoredInput(id string, src signal.Source, age time.Duration, raw, authority float64) signal.Signal {
	return signal.Signal{
		ID:         id,
		Source:     src,
		Type:       "test_activity",
		Subject:    "jupiter",
		ObservedAt: testNow.Add(-age),
		RawMetric:  raw,
		Authority:  authority,
	}
}

func TestNewScorer(t *testing.T) {
	t.Run("zero weights fall back to defaults", func(t *testing.T) {
		s, err := NewScorer(0, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 0.35, s.RecencyWeight)
		assert.Equal(t, 0.35, s.AuthorityWeight)
		assert.Equal(t, 0.30, s.EngagementWeight)
	})

	t.Run("weights must sum to one", func(t *testing.T) {
		_, err := NewScorer(0.5, 0.5, 0.5)
		assert.Error(t, err)
	})

	t.Run("tolerance matches config validation", func(t *testing.T) {
		_, err := NewScorer(0.35, 0.35, 0.2995)
		assert.NoError(t, err, "a sum that passes config validation must build a scorer")

		_, err = NewScorer(0.35, 0.35, 0.29)
		assert.Error(t, err)
	})
}

func TestScore(t *testing.T) {
	s, err := NewScorer(0, 0, 0)
	require.NoError(t, err)
	window := signal.NewWindow(testNow, 14)

	t.Run("score is in unit range", func(t *testing.T) {
		for _, sig := range []signal.Signal{
			scoredInput("fresh", signal.SourceOnChain, time.Minute, 1e9, 1),
			scoredInput("stale", signal.SourceGitHub, 13*24*time.Hour, 0, 0),
			scoredInput("mid", signal.SourceTwitter, 7*24*time.Hour, 500, 0.5),
		} {
			got, err := s.Score(sig, window)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.Score, 0.0)
			assert.LessOrEqual(t, got.Score, 1.0)
			assert.True(t, got.Scored)
		}
	})

	t.Run("scoring is deterministic", func(t *testing.T) {
		sig := scoredInput("a", signal.SourceTwitter, 48*time.Hour, 1234, 0.8)
		first, err := s.Score(sig, window)
		require.NoError(t, err)
		second, err := s.Score(sig, window)
		require.NoError(t, err)
		assert.Equal(t, first.Score, second.Score)
	})

	t.Run("already scored signal is an error", func(t *testing.T) {
		sig := scoredInput("a", signal.SourceOnChain, time.Hour, 100, 0.5)
		once, err := s.Score(sig, window)
		require.NoError(t, err)
		_, err = s.Score(once, window)
		assert.Error(t, err)
	})

	t.Run("fresher signal scores higher", func(t *testing.T) {
		fresh, err := s.Score(scoredInput("f", signal.SourceGitHub, time.Hour, 100, 0.5), window)
		require.NoError(t, err)
		stale, err := s.Score(scoredInput("s", signal.SourceGitHub, 10*24*time.Hour, 100, 0.5), window)
		require.NoError(t, err)
		assert.Greater(t, fresh.Score, stale.Score)
	})

	t.Run("higher authority scores higher", func(t *testing.T) {
		high, err := s.Score(scoredInput("h", signal.SourceTwitter, time.Hour, 100, 0.9), window)
		require.NoError(t, err)
		low, err := s.Score(scoredInput("l", signal.SourceTwitter, time.Hour, 100, 0.1), window)
		require.NoError(t, err)
		assert.Greater(t, high.Score, low.Score)
	})

	t.Run("engagement saturates instead of dominating", func(t *testing.T) {
		at := scoredInput("at", signal.SourceTwitter, time.Hour, 5_000, 0.5)
		over := scoredInput("over", signal.SourceTwitter, time.Hour, 500_000, 0.5)

		a, err := s.Score(at, window)
		require.NoError(t, err)
		b, err := s.Score(over, window)
		require.NoError(t, err)

		// A 100x larger raw metric past saturation changes nothing.
		assert.InDelta(t, a.Score, b.Score, 1e-9)
	})

	t.Run("zero raw metric contributes zero engagement", func(t *testing.T) {
		sig := scoredInput("z", signal.SourceOnChain, 0, 0, 1)
		got, err := s.Score(sig, window)
		require.NoError(t, err)
		// Full recency and authority, no engagement.
		assert.InDelta(t, 0.35+0.35, got.Score, 1e-9)
	})

	t.Run("half life is a quarter of the window", func(t *testing.T) {
		halfLife := 14 * 24 * time.Hour / 4
		sig := scoredInput("hl", signal.SourceOnChain, halfLife, 0, 0)
		got, err := s.Score(sig, window)
		require.NoError(t, err)
		// Only the recency component contributes, and it halved.
		assert.InDelta(t, 0.35*0.5, got.Score, 1e-9)
	})
}

func TestScoreAll(t *testing.T) {
	s, err := NewScorer(0, 0, 0)
	require.NoError(t, err)
	window := signal.NewWindow(testNow, 14)

	t.Run("preserves order", func(t *testing.T) {
		sigs := []signal.Signal{
			scoredInput("a", signal.SourceOnChain, time.Hour, 10, 0.5),
			scoredInput("b", signal.SourceGitHub, 2*time.Hour, 20, 0.6),
			scoredInput("c", signal.SourceTwitter, 3*time.Hour, 30, 0.7),
		}
		out, err := s.ScoreAll(sigs, window)
		require.NoError(t, err)
		require.Len(t, out, 3)
		for i, sig := range out {
			assert.Equal(t, sigs[i].ID, sig.ID)
			assert.True(t, sig.Scored)
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		sigs := []signal.Signal{scoredInput("a", signal.SourceOnChain, time.Hour, 10, 0.5)}
		_, err := s.ScoreAll(sigs, window)
		require.NoError(t, err)
		assert.False(t, sigs[0].Scored)
		assert.Zero(t, sigs[0].Score)
	})
}
