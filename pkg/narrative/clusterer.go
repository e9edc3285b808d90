package narrative

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/elonfeng/narradar/pkg/llm"
	"github.com/elonfeng/narradar/pkg/signal"
)

const clusterSystemPrompt = `You are an expert crypto analyst specializing in the Solana ecosystem.
Your task is to analyze signals from on-chain data, developer activity, and social media to identify EMERGING NARRATIVES.

Focus on:
1. Novelty - What's NEW and hasn't been widely discussed yet
2. Signal quality - Strong signals from multiple sources
3. Explainability - Clear thesis for why this narrative is emerging
4. Actionability - Potential for building products around this narrative

Categories: defi, nft, gaming, infrastructure, social, ai, depin, payments, rwa, mobile.

Return your analysis as JSON with this structure:
{
  "narratives": [
    {
      "id": "short-slug-id",
      "title": "Clear, catchy title",
      "summary": "2-3 sentence explanation of the narrative",
      "category": "category from above",
      "keywords": ["keyword1", "keyword2"],
      "signal_ids": ["signal ids from the input that support this narrative"]
    }
  ]
}

Every entry in "signal_ids" MUST be copied verbatim from the signal list you were given. Identify 3-7 distinct narratives, prioritizing quality over quantity. Return ONLY the JSON object.`

const maxSignalsPerSource = 15

// BaselineStore provides trailing per-narrative score baselines from prior
// runs, used to derive trend direction.
type BaselineStore interface {
	Baseline(ctx context.Context, slug string) (mean float64, ok bool, err error)
	SaveBaseline(ctx context.Context, slug string, mean float64) error
}

// Clusterer groups scored signals into narratives.
type Clusterer struct {
	llm       llm.Client
	baselines BaselineStore
	logger    *zap.Logger

	// MinStrength and MinSignals drop noise narratives.
	MinStrength float64
	MinSignals  int
}

// NewClusterer creates a clusterer. baselines may be nil, in which case every
// narrative is reported as emerging.
func NewClusterer(client llm.Client, baselines BaselineStore, logger *zap.Logger) *Clusterer {
	return &Clusterer{
		llm:         client,
		baselines:   baselines,
		logger:      logger.Named("clusterer"),
		MinStrength: 0.15,
		MinSignals:  2,
	}
}

// llmNarrative is the candidate cluster shape requested from the model.
type llmNarrative struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Category  string   `json:"category"`
	Keywords  []string `json:"keywords"`
	SignalIDs []string `json:"signal_ids"`
}

// Cluster runs theme extraction over the scored batch and returns validated,
// deterministically ordered narratives.
func (c *Clusterer) Cluster(ctx context.Context, sigs []signal.Signal) ([]Narrative, error) {
	if len(sigs) == 0 {
		return nil, nil
	}
	byID := make(map[string]signal.Signal, len(sigs))
	for _, s := range sigs {
		if !s.Scored {
			return nil, fmt.Errorf("clusterer received unscored signal %s", s.ID)
		}
		byID[s.ID] = s
	}

	var reply struct {
		Narratives []llmNarrative `json:"narratives"`
	}
	req := llm.Request{
		System:    clusterSystemPrompt,
		Prompt:    buildSignalDigest(sigs),
		MaxTokens: 4096,
	}
	if err := c.llm.GenerateStructured(ctx, req, &reply); err != nil {
		return nil, fmt.Errorf("narrative detection: %w", err)
	}

	var out []Narrative
	seenSlugs := make(map[string]bool)
	for _, cand := range reply.Narratives {
		n, ok := c.validate(ctx, cand, byID)
		if !ok {
			continue
		}
		if seenSlugs[n.ID] {
			c.logger.Warn("duplicate narrative slug dropped", zap.String("id", n.ID))
			continue
		}
		seenSlugs[n.ID] = true
		out = append(out, n)
	}

	sortNarratives(out, byID)

	if c.baselines != nil {
		for _, n := range out {
			mean := meanScore(n.SignalIDs, byID)
			if err := c.baselines.SaveBaseline(ctx, n.ID, mean); err != nil {
				c.logger.Warn("baseline save failed", zap.String("narrative", n.ID), zap.Error(err))
			}
		}
	}

	return out, nil
}

// validate enforces the cluster contract over one candidate: hallucinated
// signal references are rejected, strength is recomputed from member scores,
// and noise narratives are dropped.
func (c *Clusterer) validate(ctx context.Context, cand llmNarrative, byID map[string]signal.Signal) (Narrative, bool) {
	title := strings.TrimSpace(cand.Title)
	if title == "" {
		c.logger.Warn("narrative candidate without title dropped")
		return Narrative{}, false
	}

	slug := Slugify(cand.ID)
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return Narrative{}, false
	}

	var members []string
	seen := make(map[string]bool)
	hallucinated := 0
	for _, id := range cand.SignalIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := byID[id]; !ok {
			hallucinated++
			continue
		}
		members = append(members, id)
	}
	if hallucinated > 0 {
		c.logger.Warn("dropped hallucinated signal references",
			zap.String("narrative", slug), zap.Int("count", hallucinated))
	}
	if len(members) < c.MinSignals {
		c.logger.Debug("narrative below minimum signal count",
			zap.String("narrative", slug), zap.Int("signals", len(members)))
		return Narrative{}, false
	}

	strength := weightedStrength(members, byID)
	if strength < c.MinStrength {
		c.logger.Debug("narrative below minimum strength",
			zap.String("narrative", slug), zap.Float64("strength", strength))
		return Narrative{}, false
	}

	latest := byID[members[0]].ObservedAt
	for _, id := range members[1:] {
		if ts := byID[id].ObservedAt; ts.After(latest) {
			latest = ts
		}
	}

	return Narrative{
		ID:             slug,
		Title:          title,
		Summary:        strings.TrimSpace(cand.Summary),
		Category:       strings.ToLower(strings.TrimSpace(cand.Category)),
		Keywords:       cand.Keywords,
		Strength:       strength,
		TrendDirection: c.trendDirection(ctx, slug, meanScore(members, byID)),
		SignalIDs:      members,
		LatestSignal:   latest,
	}, true
}

// weightedStrength is the authority-weighted mean of member signal scores, so
// a pile of low-authority signals cannot outrank fewer high-authority ones.
func weightedStrength(ids []string, byID map[string]signal.Signal) float64 {
	var num, den float64
	for _, id := range ids {
		s := byID[id]
		num += s.Score * s.Authority
		den += s.Authority
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func meanScore(ids []string, byID map[string]signal.Signal) float64 {
	if len(ids) == 0 {
		return 0
	}
	var sum float64
	for _, id := range ids {
		sum += byID[id].Score
	}
	return sum / float64(len(ids))
}

// trendDirection compares the current mean member score against the stored
// trailing baseline. ±10% movement separates accelerating/declining from
// stable; no baseline means the narrative is new.
func (c *Clusterer) trendDirection(ctx context.Context, slug string, mean float64) TrendDirection {
	if c.baselines == nil {
		return TrendEmerging
	}
	baseline, ok, err := c.baselines.Baseline(ctx, slug)
	if err != nil {
		c.logger.Warn("baseline lookup failed", zap.String("narrative", slug), zap.Error(err))
		return TrendEmerging
	}
	if !ok || baseline <= 0 {
		return TrendEmerging
	}
	switch {
	case mean > baseline*1.1:
		return TrendAccelerating
	case mean < baseline*0.9:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// sortNarratives orders by strength descending; ties break on most-recent
// member signal timestamp, then title, so output ordering is deterministic.
func sortNarratives(ns []Narrative, byID map[string]signal.Signal) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].Strength != ns[j].Strength {
			return ns[i].Strength > ns[j].Strength
		}
		ti, tj := ns[i].LatestSignal, ns[j].LatestSignal
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ns[i].Title < ns[j].Title
	})
}

// buildSignalDigest renders the scored batch as the prompt body: top signals
// per source, strongest first.
func buildSignalDigest(sigs []signal.Signal) string {
	bySource := map[signal.Source][]signal.Signal{}
	for _, s := range sigs {
		bySource[s.Source] = append(bySource[s.Source], s)
	}

	sections := []struct {
		src   signal.Source
		title string
	}{
		{signal.SourceOnChain, "On-Chain Signals"},
		{signal.SourceGitHub, "Developer Activity Signals"},
		{signal.SourceTwitter, "Social/Community Signals"},
	}

	var b strings.Builder
	b.WriteString("Analyze the following signals from the Solana ecosystem and identify emerging narratives.\n")
	for _, sec := range sections {
		group := bySource[sec.src]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			return group[i].ID < group[j].ID
		})
		if len(group) > maxSignalsPerSource {
			group = group[:maxSignalsPerSource]
		}
		fmt.Fprintf(&b, "\n## %s\n", sec.title)
		for _, s := range group {
			fmt.Fprintf(&b, "- ID: %s | [%s] %s (score: %.2f)\n", s.ID, s.Type, s.Description, s.Score)
		}
	}
	b.WriteString("\nReturn your analysis as JSON.")
	return b.String()
}
