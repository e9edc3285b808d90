package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/narradar/pkg/signal"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSignals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	observed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	sigs := []signal.Signal{
		{
			ID: "oc-1", Source: signal.SourceOnChain, Type: "program_activity_spike",
			Subject: "jupiter", ObservedAt: observed, RawMetric: 120, Authority: 0.85,
			Score: 0.7, Scored: true, Data: map[string]any{"program": "JUP"},
		},
		{
			ID: "gh-1", Source: signal.SourceGitHub, Type: "trending_repo",
			Subject: "anchor", ObservedAt: observed.Add(-time.Hour), RawMetric: 50,
			Authority: 0.4, Score: 0.5, Scored: true,
		},
	}

	require.NoError(t, s.SaveSignals(ctx, "run-1", sigs))

	t.Run("list returns signals for the run", func(t *testing.T) {
		got, err := s.ListSignals(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		// Ordered by observed_at ascending.
		assert.Equal(t, "gh-1", got[0].ID)
		assert.Equal(t, "oc-1", got[1].ID)
		assert.Equal(t, 0.7, got[1].Score)
		assert.True(t, got[1].Scored)
		assert.Equal(t, "JUP", got[1].Data["program"])
	})

	t.Run("saving the same run twice is idempotent", func(t *testing.T) {
		require.NoError(t, s.SaveSignals(ctx, "run-1", sigs))
		got, err := s.ListSignals(ctx, "run-1")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("runs are isolated", func(t *testing.T) {
		got, err := s.ListSignals(ctx, "run-2")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestBaselines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing baseline reports not found", func(t *testing.T) {
		_, ok, err := s.Baseline(ctx, "defi-revival")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save and read back", func(t *testing.T) {
		require.NoError(t, s.SaveBaseline(ctx, "defi-revival", 0.62))
		mean, ok, err := s.Baseline(ctx, "defi-revival")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 0.62, mean, 1e-9)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, s.SaveBaseline(ctx, "defi-revival", 0.7))
		mean, ok, err := s.Baseline(ctx, "defi-revival")
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, 0.7, mean, 1e-9)
	})
}

func TestReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no report yet", func(t *testing.T) {
		doc, err := s.LatestReport(ctx)
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("latest wins", func(t *testing.T) {
		require.NoError(t, s.SaveReport(ctx, "run-1", base, 14, []byte(`{"n":1}`)))
		require.NoError(t, s.SaveReport(ctx, "run-2", base.Add(6*time.Hour), 14, []byte(`{"n":2}`)))

		doc, err := s.LatestReport(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(doc))
	})
}
