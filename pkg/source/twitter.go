package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elonfeng/narradar/pkg/signal"
)

var defaultKOLs = []string{
	"0xMert_",
	"rajgokal",
	"armaniferrante",
	"solanafloor",
	"solana",
	"SuperteamDAO",
	"vibhu",
}

var trendingQueries = []string{
	"solana -is:retweet lang:en",
	"solana airdrop -is:retweet",
	"solana new protocol -is:retweet",
	"solana alpha -is:retweet",
}

const (
	twitterAPI        = "https://api.twitter.com/2"
	minKOLEngagement  = 50
	minViralEngage    = 500
	authorityKOL      = 0.8
	authoritySearch   = 0.4
	authorityNitter   = 0.6 // account identity known, engagement metrics are not
)

// Twitter collects social signals. With a bearer token it uses the official
// v2 search API; without one it degrades to per-account Nitter RSS feeds.
type Twitter struct {
	client      *http.Client
	parser      *gofeed.Parser
	limiter     *rate.Limiter
	logger      *zap.Logger
	bearerToken string
	nitterURL   string
	api         string
	kols        []string
	now         func() time.Time
}

// NewTwitter creates the social adapter.
func NewTwitter(bearerToken, nitterURL string, kols []string, logger *zap.Logger) *Twitter {
	if nitterURL == "" {
		nitterURL = "https://nitter.net"
	}
	if len(kols) == 0 {
		kols = defaultKOLs
	}
	return &Twitter{
		client:      &http.Client{Timeout: 30 * time.Second},
		parser:      gofeed.NewParser(),
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		logger:      logger.Named("twitter"),
		bearerToken: bearerToken,
		nitterURL:   strings.TrimRight(nitterURL, "/"),
		api:         twitterAPI,
		kols:        kols,
		now:         time.Now,
	}
}

func (t *Twitter) Name() signal.Source { return signal.SourceTwitter }

func (t *Twitter) Collect(ctx context.Context, window signal.Window) (Result, error) {
	if t.bearerToken == "" {
		return t.collectNitter(ctx, window)
	}
	return t.collectAPI(ctx, window)
}

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		Likes    int `json:"like_count"`
		Retweets int `json:"retweet_count"`
		Replies  int `json:"reply_count"`
	} `json:"public_metrics"`
}

func (t *Twitter) collectAPI(ctx context.Context, window signal.Window) (Result, error) {
	var res Result

	for _, kol := range t.kols {
		if err := t.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		query := fmt.Sprintf("from:%s (solana OR $SOL OR web3 OR defi OR nft)", kol)
		tweets, err := t.searchRecent(ctx, query)
		if err != nil {
			if retryable(err) || errors.Is(err, ErrAuth) {
				return Result{}, err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("kol @%s: %v", kol, err))
			continue
		}
		res.Signals = append(res.Signals, t.kolSignals(kol, tweets, window)...)
	}

	for _, query := range trendingQueries {
		if err := t.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		tweets, err := t.searchRecent(ctx, query)
		if err != nil {
			if retryable(err) || errors.Is(err, ErrAuth) {
				return Result{}, err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("query %q: %v", query, err))
			continue
		}
		res.Signals = append(res.Signals, t.viralSignals(query, tweets, window)...)
	}

	return res, nil
}

func (t *Twitter) searchRecent(ctx context.Context, query string) ([]tweet, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", "50")
	params.Set("tweet.fields", "public_metrics,created_at")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		t.api+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create twitter request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.bearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch twitter: %w: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(signal.SourceTwitter, resp.StatusCode)
	}

	var result struct {
		Data []tweet `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode twitter response: %w", err)
	}
	return result.Data, nil
}

func engagement(tw tweet) float64 {
	m := tw.PublicMetrics
	return float64(m.Likes) + float64(m.Retweets)*2 + float64(m.Replies)*1.5
}

func (t *Twitter) kolSignals(kol string, tweets []tweet, window signal.Window) []signal.Signal {
	var out []signal.Signal
	for _, tw := range tweets {
		eng := engagement(tw)
		if eng < minKOLEngagement {
			continue
		}
		out = append(out, signal.Signal{
			ID:          "twitter:kol:" + tw.ID,
			Source:      signal.SourceTwitter,
			Type:        "kol_mention",
			Subject:     "@" + kol,
			Description: fmt.Sprintf("@%s: %s", kol, truncateText(tw.Text, 100)),
			ObservedAt:  parseTweetTime(tw.CreatedAt, t.now),
			RawMetric:   eng,
			Authority:   authorityKOL,
			Data: map[string]any{
				"author":   kol,
				"text":     tw.Text,
				"tweet_id": tw.ID,
				"likes":    tw.PublicMetrics.Likes,
				"retweets": tw.PublicMetrics.Retweets,
				"replies":  tw.PublicMetrics.Replies,
			},
		})
	}
	return out
}

func (t *Twitter) viralSignals(query string, tweets []tweet, window signal.Window) []signal.Signal {
	var out []signal.Signal
	for _, tw := range tweets {
		eng := engagement(tw)
		if eng < minViralEngage {
			continue
		}
		out = append(out, signal.Signal{
			ID:          "twitter:viral:" + tw.ID,
			Source:      signal.SourceTwitter,
			Type:        "viral_tweet",
			Subject:     query,
			Description: fmt.Sprintf("Viral: %s", truncateText(tw.Text, 100)),
			ObservedAt:  parseTweetTime(tw.CreatedAt, t.now),
			RawMetric:   eng,
			Authority:   authoritySearch,
			Data: map[string]any{
				"text":     tw.Text,
				"tweet_id": tw.ID,
				"query":    query,
				"likes":    tw.PublicMetrics.Likes,
				"retweets": tw.PublicMetrics.Retweets,
			},
		})
	}
	return out
}

// collectNitter is the tokenless path: per-account RSS via a Nitter instance.
// Engagement metrics are unavailable there, so RawMetric stays zero and the
// scorer leans on recency and authority.
func (t *Twitter) collectNitter(ctx context.Context, window signal.Window) (Result, error) {
	var res Result
	res.Warnings = append(res.Warnings, "no bearer token configured, using nitter RSS fallback")

	failed := 0
	for _, account := range t.kols {
		if err := t.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		sigs, err := t.collectAccountFeed(ctx, account, window)
		if err != nil {
			failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("nitter @%s: %v", account, err))
			continue
		}
		res.Signals = append(res.Signals, sigs...)
	}

	if failed == len(t.kols) && failed > 0 {
		return Result{}, fmt.Errorf("all %d nitter feeds failed: %w", failed, ErrSourceUnavailable)
	}
	return res, nil
}

func (t *Twitter) collectAccountFeed(ctx context.Context, account string, window signal.Window) ([]signal.Signal, error) {
	feedURL := fmt.Sprintf("%s/%s/rss", t.nitterURL, account)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create nitter request: %w", err)
	}
	req.Header.Set("User-Agent", "narradar/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch nitter feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(signal.SourceTwitter, resp.StatusCode)
	}

	feed, err := t.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse nitter feed: %w", err)
	}

	var out []signal.Signal
	for _, entry := range feed.Items {
		published := t.now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}
		if !window.Contains(published) {
			continue
		}
		out = append(out, signal.Signal{
			ID:          fmt.Sprintf("twitter:rss:%s:%s", account, entry.GUID),
			Source:      signal.SourceTwitter,
			Type:        "kol_mention",
			Subject:     "@" + account,
			Description: fmt.Sprintf("@%s: %s", account, truncateText(entry.Title, 100)),
			ObservedAt:  published,
			RawMetric:   0,
			Authority:   authorityNitter,
			Data: map[string]any{
				"author": account,
				"text":   entry.Title,
				"url":    strings.Replace(entry.Link, t.nitterURL, "https://x.com", 1),
			},
		})
	}
	return out, nil
}

func parseTweetTime(s string, now func() time.Time) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return now().UTC()
	}
	return ts.UTC()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
