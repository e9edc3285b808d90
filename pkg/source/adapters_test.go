package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elonfeng/narradar/pkg/signal"
)

var adapterNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func adapterWindow() signal.Window {
	return signal.NewWindow(adapterNow, 14)
}

func TestOnChainCollect(t *testing.T) {
	logger := zap.NewNop()

	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "getRecentPerformanceSamples":
			// Recent TPS well above the trailing sample.
			fmt.Fprint(w, `{"result":[
				{"numTransactions":3000,"samplePeriodSecs":60},
				{"numTransactions":1000,"samplePeriodSecs":60}
			]}`)
		case "getSignaturesForAddress":
			sigs := make([]map[string]string, 100)
			for i := range sigs {
				sigs[i] = map[string]string{"signature": fmt.Sprintf("sig-%d", i)}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": sigs})
		default:
			t.Fatalf("unexpected rpc method %s", req.Method)
		}
	}))
	defer rpc.Close()

	llama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/chains":
			fmt.Fprint(w, `[{"name":"Ethereum","tvl":50000000000},{"name":"Solana","tvl":5000000000}]`)
		case "/v2/protocols":
			fmt.Fprint(w, `[
				{"name":"Kamino","slug":"kamino","chains":["Solana"],"tvl":1000000000,"change_1d":15.0},
				{"name":"Slowpool","slug":"slowpool","chains":["Solana"],"tvl":900000000,"change_1d":2.0},
				{"name":"EthOnly","slug":"ethonly","chains":["Ethereum"],"tvl":800000000,"change_1d":40.0}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer llama.Close()

	newAdapter := func() *OnChain {
		o := NewOnChain(rpc.URL, logger)
		o.llamaAPI = llama.URL
		o.programs = defaultPrograms[:1]
		o.limiter = rate.NewLimiter(rate.Inf, 1)
		o.now = func() time.Time { return adapterNow }
		return o
	}

	t.Run("collects network, program, and defi signals", func(t *testing.T) {
		res, err := newAdapter().Collect(context.Background(), adapterWindow())
		require.NoError(t, err)

		byID := make(map[string]signal.Signal)
		for _, s := range res.Signals {
			byID[s.ID] = s
		}

		network, ok := byID["onchain:network-activity"]
		require.True(t, ok, "TPS spike signal missing")
		assert.Equal(t, "network_activity", network.Type)
		assert.Equal(t, 0.85, network.Authority)

		spike, ok := byID["onchain:usage-spike:"+defaultPrograms[0].ID]
		require.True(t, ok, "program spike signal missing")
		assert.Equal(t, "Jupiter", spike.Subject)
		assert.Equal(t, 100.0, spike.RawMetric)

		tvl, ok := byID["onchain:defi-tvl"]
		require.True(t, ok, "chain TVL signal missing")
		assert.Equal(t, 0.7, tvl.Authority)

		_, hasGrowth := byID["onchain:defi-growth:kamino"]
		assert.True(t, hasGrowth, "growing protocol signal missing")
		_, hasSlow := byID["onchain:defi-growth:slowpool"]
		assert.False(t, hasSlow, "slow growth must not signal")
		_, hasEth := byID["onchain:defi-growth:ethonly"]
		assert.False(t, hasEth, "non-Solana protocol must not signal")

		for _, s := range res.Signals {
			require.NoError(t, s.Validate())
		}
	})

	t.Run("every upstream down is a source failure", func(t *testing.T) {
		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer dead.Close()

		o := newAdapter()
		o.rpcURL = dead.URL
		o.llamaAPI = dead.URL

		_, err := o.Collect(context.Background(), adapterWindow())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})
}

func TestGitHubCollect(t *testing.T) {
	logger := zap.NewNop()
	recent := adapterNow.Add(-24 * time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search/repositories":
			_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{{
				"name":             "hot-amm",
				"full_name":        "newdev/hot-amm",
				"html_url":         "https://github.com/newdev/hot-amm",
				"stargazers_count": 100,
				"forks_count":      10,
				"language":         "Rust",
				"created_at":       recent.Format(time.RFC3339),
			}}})
		case r.URL.Path == "/orgs/testorg/repos":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{
					"name": "core", "full_name": "testorg/core",
					"html_url": "https://github.com/testorg/core",
					"stargazers_count": 500,
					"pushed_at":        recent.Format(time.RFC3339),
				},
				{
					"name": "quiet", "full_name": "testorg/quiet",
					"html_url": "https://github.com/testorg/quiet",
					"pushed_at": recent.Format(time.RFC3339),
				},
			})
		case strings.HasPrefix(r.URL.Path, "/repos/testorg/core/commits"):
			commits := make([]map[string]string, 8)
			for i := range commits {
				commits[i] = map[string]string{"sha": fmt.Sprintf("sha-%d", i)}
			}
			_ = json.NewEncoder(w).Encode(commits)
		case strings.HasPrefix(r.URL.Path, "/repos/testorg/quiet/commits"):
			fmt.Fprint(w, `[{"sha":"only-one"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	newAdapter := func() *GitHub {
		g := NewGitHub("test-token", logger)
		g.api = srv.URL
		g.orgs = []string{"testorg"}
		g.limiter = rate.NewLimiter(rate.Inf, 1)
		g.now = func() time.Time { return adapterNow }
		return g
	}

	t.Run("collects trending and org activity", func(t *testing.T) {
		res, err := newAdapter().Collect(context.Background(), adapterWindow())
		require.NoError(t, err)
		require.Len(t, res.Signals, 2)

		trending := res.Signals[0]
		assert.Equal(t, "github:trending:newdev/hot-amm", trending.ID)
		assert.Equal(t, 120.0, trending.RawMetric, "stars + 2x forks")
		assert.InDelta(t, 0.3+0.4*(120.0/200), trending.Authority, 1e-9)

		activity := res.Signals[1]
		assert.Equal(t, "github:activity:testorg/core", activity.ID)
		assert.Equal(t, "activity_spike", activity.Type)
		assert.Equal(t, 8.0, activity.RawMetric)
		assert.Equal(t, 0.8, activity.Authority, "core org authority")
	})

	t.Run("rejected token aborts the adapter", func(t *testing.T) {
		denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer denied.Close()

		g := newAdapter()
		g.api = denied.URL

		_, err := g.Collect(context.Background(), adapterWindow())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuth)
	})
}

func TestTwitterCollect(t *testing.T) {
	logger := zap.NewNop()

	t.Run("bearer token path keeps only engaged tweets", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
			query := r.URL.Query().Get("query")
			if strings.HasPrefix(query, "from:") {
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{
					{
						"id": "1", "text": "new solana primitive dropping",
						"created_at":     adapterNow.Add(-2 * time.Hour).Format(time.RFC3339),
						"public_metrics": map[string]int{"like_count": 40, "retweet_count": 10, "reply_count": 4},
					},
					{
						"id": "2", "text": "gm",
						"created_at":     adapterNow.Add(-time.Hour).Format(time.RFC3339),
						"public_metrics": map[string]int{"like_count": 3},
					},
				}})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{
				"id": "3", "text": "this solana protocol is going wild",
				"created_at":     adapterNow.Add(-3 * time.Hour).Format(time.RFC3339),
				"public_metrics": map[string]int{"like_count": 400, "retweet_count": 80},
			}}})
		}))
		defer srv.Close()

		tw := NewTwitter("test-bearer", "", []string{"mert"}, logger)
		tw.api = srv.URL
		tw.limiter = rate.NewLimiter(rate.Inf, 1)
		tw.now = func() time.Time { return adapterNow }

		res, err := tw.Collect(context.Background(), adapterWindow())
		require.NoError(t, err)

		var kol, viral int
		for _, s := range res.Signals {
			switch s.Type {
			case "kol_mention":
				kol++
				// likes + 2x retweets + 1.5x replies
				assert.Equal(t, 40+2*10.0+1.5*4, s.RawMetric)
				assert.Equal(t, 0.8, s.Authority)
			case "viral_tweet":
				viral++
				assert.Equal(t, 0.4, s.Authority)
			}
		}
		assert.Equal(t, 1, kol, "low-engagement tweet filtered out")
		assert.Equal(t, len(trendingQueries), viral)
	})

	t.Run("nitter fallback without token", func(t *testing.T) {
		rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>mert / X</title>
<item>
  <title>shipping a new solana indexer</title>
  <link>NITTER/mert/status/100</link>
  <guid>NITTER/mert/status/100</guid>
  <pubDate>` + adapterNow.Add(-48*time.Hour).Format(time.RFC1123Z) + `</pubDate>
</item>
<item>
  <title>ancient take</title>
  <link>NITTER/mert/status/99</link>
  <guid>NITTER/mert/status/99</guid>
  <pubDate>` + adapterNow.AddDate(0, -2, 0).Format(time.RFC1123Z) + `</pubDate>
</item>
</channel></rss>`

		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/mert/rss", r.URL.Path)
			w.Header().Set("Content-Type", "application/rss+xml")
			fmt.Fprint(w, strings.ReplaceAll(rss, "NITTER", srv.URL))
		}))
		defer srv.Close()

		tw := NewTwitter("", srv.URL, []string{"mert"}, logger)
		tw.limiter = rate.NewLimiter(rate.Inf, 1)
		tw.now = func() time.Time { return adapterNow }

		res, err := tw.Collect(context.Background(), adapterWindow())
		require.NoError(t, err)

		require.Len(t, res.Signals, 1, "out-of-window item filtered")
		s := res.Signals[0]
		assert.Equal(t, "@mert", s.Subject)
		assert.Equal(t, 0.6, s.Authority)
		assert.Zero(t, s.RawMetric, "nitter carries no engagement metrics")
		assert.Contains(t, s.Data["url"], "https://x.com")
		require.NotEmpty(t, res.Warnings)
		assert.Contains(t, res.Warnings[0], "fallback")
	})

	t.Run("all feeds down is a source failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		tw := NewTwitter("", srv.URL, []string{"mert", "raj"}, logger)
		tw.limiter = rate.NewLimiter(rate.Inf, 1)
		tw.now = func() time.Time { return adapterNow }

		_, err := tw.Collect(context.Background(), adapterWindow())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSourceUnavailable)
	})
}
