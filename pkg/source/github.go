package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elonfeng/narradar/pkg/signal"
)

var defaultOrgs = []string{
	"solana-labs",
	"coral-xyz",
	"metaplex-foundation",
	"jito-foundation",
	"marinade-finance",
	"drift-labs",
	"jupiter-exchange",
	"tensor-hq",
	"squads-protocol",
	"pyth-network",
}

const (
	githubAPI         = "https://api.github.com"
	minActiveCommits  = 5
	authorityCoreOrg  = 0.8
	trendingStarFloor = 10
)

// GitHub collects developer-activity signals: trending Solana repositories
// and commit activity across tracked ecosystem orgs.
type GitHub struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	token   string
	orgs    []string
	api     string
	now     func() time.Time
}

// NewGitHub creates the developer-activity adapter. An empty token works but
// runs against GitHub's restrictive anonymous rate limits.
func NewGitHub(token string, logger *zap.Logger) *GitHub {
	return &GitHub{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:  logger.Named("github"),
		token:   token,
		orgs:    defaultOrgs,
		api:     githubAPI,
		now:     time.Now,
	}
}

func (g *GitHub) Name() signal.Source { return signal.SourceGitHub }

func (g *GitHub) Collect(ctx context.Context, window signal.Window) (Result, error) {
	var res Result

	trending, err := g.collectTrending(ctx, window)
	if err != nil {
		// Search failures on auth or rate limits apply to the whole token,
		// so surface them for retry rather than degrading silently.
		if retryable(err) || len(g.orgs) == 0 {
			return Result{}, err
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("trending search: %v", err))
	}
	res.Signals = append(res.Signals, trending...)

	for _, org := range g.orgs {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		sigs, err := g.collectOrgActivity(ctx, org, window)
		if err != nil {
			if errorsIsFatal(err) {
				return Result{}, err
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("org %s: %v", org, err))
			continue
		}
		res.Signals = append(res.Signals, sigs...)
	}

	return res, nil
}

// errorsIsFatal reports whether an org-level failure should abort the whole
// adapter (credential rejection or rate limiting affects every further call).
func errorsIsFatal(err error) bool {
	return retryable(err) || errors.Is(err, ErrAuth)
}

func (g *GitHub) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch github: %w: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(signal.SourceGitHub, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type ghRepo struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	PushedAt    time.Time `json:"pushed_at"`
}

// collectTrending searches for recently created Solana repos with traction.
func (g *GitHub) collectTrending(ctx context.Context, window signal.Window) ([]signal.Signal, error) {
	query := fmt.Sprintf("solana created:>%s stars:>%d",
		window.From.Format("2006-01-02"), trendingStarFloor)

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", "30")

	var result struct {
		Items []ghRepo `json:"items"`
	}
	if err := g.getJSON(ctx, g.api+"/search/repositories?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	var out []signal.Signal
	for _, repo := range result.Items {
		engagement := float64(repo.Stars + repo.Forks*2)
		// New repos earn authority with traction, capped below core orgs.
		authority := 0.3 + 0.4*min1(engagement/200)

		out = append(out, signal.Signal{
			ID:          "github:trending:" + repo.FullName,
			Source:      signal.SourceGitHub,
			Type:        "trending",
			Subject:     repo.FullName,
			Description: fmt.Sprintf("Trending: %s (%d stars)", repo.FullName, repo.Stars),
			ObservedAt:  repo.CreatedAt.UTC(),
			RawMetric:   engagement,
			Authority:   authority,
			Data: map[string]any{
				"repo":        repo.FullName,
				"url":         repo.HTMLURL,
				"description": repo.Description,
				"stars":       repo.Stars,
				"forks":       repo.Forks,
				"language":    repo.Language,
				"topics":      repo.Topics,
			},
		})
	}
	return out, nil
}

// collectOrgActivity reports repos in a tracked org with sustained commit
// activity inside the window.
func (g *GitHub) collectOrgActivity(ctx context.Context, org string, window signal.Window) ([]signal.Signal, error) {
	var repos []ghRepo
	reqURL := fmt.Sprintf("%s/orgs/%s/repos?sort=pushed&direction=desc&per_page=10", g.api, org)
	if err := g.getJSON(ctx, reqURL, &repos); err != nil {
		return nil, err
	}

	var out []signal.Signal
	for _, repo := range repos {
		if len(out) >= 5 || repo.PushedAt.Before(window.From) {
			break
		}

		var commits []struct {
			SHA string `json:"sha"`
		}
		commitsURL := fmt.Sprintf("%s/repos/%s/commits?since=%s&per_page=30",
			g.api, repo.FullName, url.QueryEscape(window.From.Format(time.RFC3339)))
		if err := g.getJSON(ctx, commitsURL, &commits); err != nil {
			if errorsIsFatal(err) {
				return nil, err
			}
			g.logger.Debug("commit listing failed", zap.String("repo", repo.FullName), zap.Error(err))
			continue
		}

		if len(commits) < minActiveCommits {
			continue
		}

		out = append(out, signal.Signal{
			ID:          "github:activity:" + repo.FullName,
			Source:      signal.SourceGitHub,
			Type:        "activity_spike",
			Subject:     repo.FullName,
			Description: fmt.Sprintf("%s: %d commits recently", repo.FullName, len(commits)),
			ObservedAt:  repo.PushedAt.UTC(),
			RawMetric:   float64(len(commits)),
			Authority:   authorityCoreOrg,
			Data: map[string]any{
				"org":          org,
				"repo":         repo.Name,
				"url":          repo.HTMLURL,
				"commit_count": len(commits),
				"stars":        repo.Stars,
			},
		})
	}
	return out, nil
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
