package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elonfeng/narradar/pkg/llm"
	"github.com/elonfeng/narradar/pkg/signal"
)

// stubClient returns a canned JSON reply for every structured call.
type stubClient struct {
	reply string
	err   error
	calls int
}

func (s *stubClient) GenerateStructured(ctx context.Context, req llm.Request, out any) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.reply), out)
}

// memBaselines is an in-memory BaselineStore.
type memBaselines struct {
	means map[string]float64
}

func (m *memBaselines) Baseline(ctx context.Context, slug string) (float64, bool, error) {
	v, ok := m.means[slug]
	return v, ok, nil
}

func (m *memBaselines) SaveBaseline(ctx context.Context, slug string, mean float64) error {
	if m.means == nil {
		m.means = make(map[string]float64)
	}
	m.means[slug] = mean
	return nil
}

var clusterNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func scoredSignal(id string, score, authority float64, age time.Duration) signal.Signal {
	return signal.Signal{
		ID:         id,
		Source:     signal.SourceOnChain,
		Type:       "program_activity_spike",
		Subject:    "jupiter",
		ObservedAt: clusterNow.Add(-age),
		RawMetric:  100,
		Authority:  authority,
		Score:      score,
		Scored:     true,
	}
}

func clusterReply(narratives ...map[string]any) string {
	b, _ := json.Marshal(map[string]any{"narratives": narratives})
	return string(b)
}

func TestCluster(t *testing.T) {
	logger := zap.NewNop()
	sigs := []signal.Signal{
		scoredSignal("onchain-1", 0.8, 0.9, time.Hour),
		scoredSignal("onchain-2", 0.6, 0.7, 2*time.Hour),
		scoredSignal("onchain-3", 0.4, 0.5, 3*time.Hour),
	}

	t.Run("hallucinated signal ids are dropped", func(t *testing.T) {
		client := &stubClient{reply: clusterReply(map[string]any{
			"id":         "defi-revival",
			"title":      "DeFi Revival",
			"summary":    "DeFi volume is returning.",
			"category":   "defi",
			"signal_ids": []string{"onchain-1", "onchain-2", "made-up-id"},
		})}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []string{"onchain-1", "onchain-2"}, out[0].SignalIDs)
	})

	t.Run("narrative reduced below min signals is dropped", func(t *testing.T) {
		client := &stubClient{reply: clusterReply(map[string]any{
			"id":         "ghost",
			"title":      "Ghost Narrative",
			"signal_ids": []string{"onchain-1", "fake-1", "fake-2"},
		})}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("strength is the authority weighted mean", func(t *testing.T) {
		client := &stubClient{reply: clusterReply(map[string]any{
			"id":         "defi-revival",
			"title":      "DeFi Revival",
			"signal_ids": []string{"onchain-1", "onchain-2"},
		})}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		require.Len(t, out, 1)
		want := (0.8*0.9 + 0.6*0.7) / (0.9 + 0.7)
		assert.InDelta(t, want, out[0].Strength, 1e-9)
	})

	t.Run("weak narrative is dropped", func(t *testing.T) {
		weak := []signal.Signal{
			scoredSignal("w1", 0.05, 0.5, time.Hour),
			scoredSignal("w2", 0.05, 0.5, time.Hour),
		}
		client := &stubClient{reply: clusterReply(map[string]any{
			"id":         "noise",
			"title":      "Noise",
			"signal_ids": []string{"w1", "w2"},
		})}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), weak)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("unscored signal is an error", func(t *testing.T) {
		raw := scoredSignal("raw", 0, 0.5, time.Hour)
		raw.Scored = false
		client := &stubClient{reply: clusterReply()}
		c := NewClusterer(client, nil, logger)

		_, err := c.Cluster(context.Background(), []signal.Signal{raw})
		assert.Error(t, err)
		assert.Zero(t, client.calls, "no model call for invalid input")
	})

	t.Run("model failure propagates", func(t *testing.T) {
		client := &stubClient{err: errors.New("rate limited")}
		c := NewClusterer(client, nil, logger)

		_, err := c.Cluster(context.Background(), sigs)
		assert.Error(t, err)
	})

	t.Run("duplicate slugs keep first occurrence", func(t *testing.T) {
		client := &stubClient{reply: clusterReply(
			map[string]any{
				"id":         "defi-revival",
				"title":      "DeFi Revival",
				"signal_ids": []string{"onchain-1", "onchain-2"},
			},
			map[string]any{
				"id":         "defi-revival",
				"title":      "DeFi Revival Again",
				"signal_ids": []string{"onchain-2", "onchain-3"},
			},
		)}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "DeFi Revival", out[0].Title)
	})

	t.Run("empty input skips the model", func(t *testing.T) {
		client := &stubClient{reply: clusterReply()}
		c := NewClusterer(client, nil, logger)

		out, err := c.Cluster(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, out)
		assert.Zero(t, client.calls)
	})
}

func TestClusterOrdering(t *testing.T) {
	logger := zap.NewNop()
	sigs := []signal.Signal{
		scoredSignal("a1", 0.9, 0.5, time.Hour),
		scoredSignal("a2", 0.9, 0.5, time.Hour),
		scoredSignal("b1", 0.5, 0.5, 2*time.Hour),
		scoredSignal("b2", 0.5, 0.5, 2*time.Hour),
	}
	reply := clusterReply(
		map[string]any{"id": "weaker", "title": "Weaker", "signal_ids": []string{"b1", "b2"}},
		map[string]any{"id": "stronger", "title": "Stronger", "signal_ids": []string{"a1", "a2"}},
	)

	t.Run("sorted by strength descending", func(t *testing.T) {
		c := NewClusterer(&stubClient{reply: reply}, nil, logger)
		out, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "stronger", out[0].ID)
		assert.Equal(t, "weaker", out[1].ID)
	})

	t.Run("repeat runs produce identical output", func(t *testing.T) {
		c := NewClusterer(&stubClient{reply: reply}, nil, logger)
		first, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		second, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("equal strength ties break on latest signal then title", func(t *testing.T) {
		tied := []signal.Signal{
			scoredSignal("t1", 0.6, 0.5, time.Hour),
			scoredSignal("t2", 0.6, 0.5, 5*time.Hour),
			scoredSignal("t3", 0.6, 0.5, 2*time.Hour),
			scoredSignal("t4", 0.6, 0.5, 5*time.Hour),
		}
		c := NewClusterer(&stubClient{reply: clusterReply(
			map[string]any{"id": "older", "title": "Older", "signal_ids": []string{"t2", "t4"}},
			map[string]any{"id": "newer", "title": "Newer", "signal_ids": []string{"t1", "t3"}},
		)}, nil, logger)

		out, err := c.Cluster(context.Background(), tied)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, "newer", out[0].ID, "more recent member signal wins the tie")
	})
}

func TestTrendDirection(t *testing.T) {
	logger := zap.NewNop()
	sigs := []signal.Signal{
		scoredSignal("s1", 0.6, 0.5, time.Hour),
		scoredSignal("s2", 0.6, 0.5, time.Hour),
	}
	reply := clusterReply(map[string]any{
		"id": "defi-revival", "title": "DeFi Revival", "signal_ids": []string{"s1", "s2"},
	})

	cases := []struct {
		name     string
		baseline float64
		seeded   bool
		want     TrendDirection
	}{
		{"no baseline means emerging", 0, false, TrendEmerging},
		{"more than ten percent above baseline accelerates", 0.5, true, TrendAccelerating},
		{"more than ten percent below baseline declines", 0.7, true, TrendDeclining},
		{"within ten percent is stable", 0.58, true, TrendStable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &memBaselines{}
			if tc.seeded {
				store.means = map[string]float64{"defi-revival": tc.baseline}
			}
			c := NewClusterer(&stubClient{reply: reply}, store, logger)

			out, err := c.Cluster(context.Background(), sigs)
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tc.want, out[0].TrendDirection)
		})
	}

	t.Run("baseline is updated after the run", func(t *testing.T) {
		store := &memBaselines{}
		c := NewClusterer(&stubClient{reply: reply}, store, logger)

		_, err := c.Cluster(context.Background(), sigs)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, store.means["defi-revival"], 1e-9)
	})
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "defi-revival", Slugify("DeFi Revival!"))
	assert.Equal(t, "ai-x-depin", Slugify("  AI x DePIN  "))
	assert.Equal(t, "", Slugify("!!!"))
}
