package idea

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/elonfeng/narradar/pkg/llm"
	"github.com/elonfeng/narradar/pkg/narrative"
)

const (
	// MinIdeas and MaxIdeas bound the valid idea count per narrative.
	MinIdeas = 3
	MaxIdeas = 5

	defaultConcurrency = 3
)

const generatorSystemPrompt = `You are a product strategist and builder focused on the Solana ecosystem.
Your task is to generate CONCRETE, ACTIONABLE product ideas based on emerging narratives.

Focus on ideas that are:
- Buildable by a small team or solo developer
- Have clear value proposition
- Leverage Solana's strengths (speed, low fees, composability)
- Not already saturated in the market

Return JSON with this structure:
{
  "ideas": [
    {
      "title": "Product Name",
      "elevator_pitch": "One-sentence hook",
      "description": "2-3 sentence product description",
      "target_users": "Who would use this",
      "key_features": ["feature1", "feature2", "feature3"],
      "tech_stack": ["Anchor", "React", "etc"],
      "skills_required": ["Rust", "TypeScript"],
      "effort_level": "weekend|month|quarter",
      "revenue_model": "How to monetize",
      "competitive_advantage": "Why this would win",
      "build_guideline": "Where to start and what to ship first",
      "relevant_links": [{"title": "Docs", "url": "https://..."}],
      "bounty_links": [],
      "colosseum_analysis": {
        "similar_projects": ["existing project"],
        "differentiation": "What sets this apart",
        "hackathon_fit": "Which track this fits"
      }
    }
  ]
}`

const strictRetryInstruction = `

IMPORTANT: Your previous reply was not valid JSON. Respond with ONLY a single JSON object exactly matching the schema above. No prose, no markdown fences, no trailing text.`

// Generator produces validated product ideas per narrative.
type Generator struct {
	llm    llm.Client
	logger *zap.Logger

	// IdeasPerNarrative is the requested count, clamped to [MinIdeas, MaxIdeas].
	IdeasPerNarrative int
	// Concurrency bounds the generation fanout across narratives.
	Concurrency int64
}

// NewGenerator creates a generator with default fanout and idea count.
func NewGenerator(client llm.Client, logger *zap.Logger) *Generator {
	return &Generator{
		llm:               client,
		logger:            logger.Named("ideas"),
		IdeasPerNarrative: 4,
		Concurrency:       defaultConcurrency,
	}
}

// llmIdea is the raw idea shape requested from the model.
type llmIdea struct {
	Title                string             `json:"title"`
	ElevatorPitch        string             `json:"elevator_pitch"`
	Description          string             `json:"description"`
	TargetUsers          string             `json:"target_users"`
	KeyFeatures          []string           `json:"key_features"`
	TechStack            []string           `json:"tech_stack"`
	SkillsRequired       []string           `json:"skills_required"`
	EffortLevel          string             `json:"effort_level"`
	RevenueModel         string             `json:"revenue_model"`
	CompetitiveAdvantage string             `json:"competitive_advantage"`
	BuildGuideline       string             `json:"build_guideline"`
	BountyLinks          []Link             `json:"bounty_links"`
	RelevantLinks        []Link             `json:"relevant_links"`
	ColosseumAnalysis    *ColosseumAnalysis `json:"colosseum_analysis"`
}

// Generate produces 3-5 validated ideas for one narrative. A malformed reply
// is retried once with a stricter instruction; a second malformed reply is
// ErrGenerationFailed. Individually invalid ideas are discarded; if fewer
// than MinIdeas survive, the narrative fails with ErrValidationFailed.
func (g *Generator) Generate(ctx context.Context, n narrative.Narrative) ([]Idea, error) {
	count := g.IdeasPerNarrative
	if count < MinIdeas {
		count = MinIdeas
	}
	if count > MaxIdeas {
		count = MaxIdeas
	}

	prompt := buildIdeaPrompt(n, count)

	var reply struct {
		Ideas []llmIdea `json:"ideas"`
	}
	err := g.llm.GenerateStructured(ctx, llm.Request{
		System:    generatorSystemPrompt,
		Prompt:    prompt,
		MaxTokens: 4096,
	}, &reply)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("malformed generation reply, retrying with strict instruction",
			zap.String("narrative", n.ID), zap.Error(err))
		err = g.llm.GenerateStructured(ctx, llm.Request{
			System:    generatorSystemPrompt + strictRetryInstruction,
			Prompt:    prompt,
			MaxTokens: 4096,
		}, &reply)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("narrative %s: %w: %w", n.ID, ErrGenerationFailed, err)
		}
	}

	// Validate each idea independently; one bad idea never sinks the batch.
	var valid []Idea
	usedIDs := make(map[string]bool)
	for i, raw := range reply.Ideas {
		id, reason := g.validateIdea(raw, n.ID, usedIDs)
		if reason != "" {
			g.logger.Warn("discarding invalid idea",
				zap.String("narrative", n.ID), zap.Int("index", i), zap.String("reason", reason))
			continue
		}
		usedIDs[id.ID] = true
		valid = append(valid, id)
		if len(valid) == MaxIdeas {
			break
		}
	}

	if len(valid) < MinIdeas {
		return nil, fmt.Errorf("narrative %s: %d of %d ideas valid: %w",
			n.ID, len(valid), len(reply.Ideas), ErrValidationFailed)
	}
	return valid, nil
}

// validateIdea converts one raw idea, returning a non-empty reason when it
// must be discarded.
func (g *Generator) validateIdea(raw llmIdea, narrativeID string, used map[string]bool) (Idea, string) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return Idea{}, "empty title"
	}
	if strings.TrimSpace(raw.Description) == "" {
		return Idea{}, "empty description"
	}

	effort := EffortLevel(strings.ToLower(strings.TrimSpace(raw.EffortLevel)))
	if !ValidEffort(effort) {
		return Idea{}, fmt.Sprintf("invalid effort level %q", raw.EffortLevel)
	}

	for _, l := range append(append([]Link{}, raw.BountyLinks...), raw.RelevantLinks...) {
		if l.URL == "" {
			return Idea{}, "link with empty url"
		}
	}

	// IDs derive from title + narrative so repeated runs stay diff-friendly.
	base := narrative.Slugify(title)
	if base == "" {
		return Idea{}, "title produced empty slug"
	}
	id := base + "-" + narrativeID
	for suffix := 2; used[id]; suffix++ {
		id = fmt.Sprintf("%s-%d-%s", base, suffix, narrativeID)
	}

	return Idea{
		ID:                   id,
		NarrativeID:          narrativeID,
		Title:                title,
		ElevatorPitch:        strings.TrimSpace(raw.ElevatorPitch),
		Description:          strings.TrimSpace(raw.Description),
		TargetUsers:          strings.TrimSpace(raw.TargetUsers),
		KeyFeatures:          trimAll(raw.KeyFeatures),
		TechStack:            trimAll(raw.TechStack),
		SkillsRequired:       trimAll(raw.SkillsRequired),
		EffortLevel:          effort,
		RevenueModel:         strings.TrimSpace(raw.RevenueModel),
		CompetitiveAdvantage: strings.TrimSpace(raw.CompetitiveAdvantage),
		BuildGuideline:       strings.TrimSpace(raw.BuildGuideline),
		BountyLinks:          raw.BountyLinks,
		RelevantLinks:        raw.RelevantLinks,
		ColosseumAnalysis:    raw.ColosseumAnalysis,
	}, ""
}

// Batch is the outcome of generating ideas across a set of narratives.
type Batch struct {
	// Ideas holds all valid ideas in narrative order, generation order
	// within a narrative.
	Ideas []Idea
	// Failed maps narrative IDs that produced no valid idea set to the
	// error that excluded them.
	Failed map[string]error
}

// GenerateAll fans out across narratives with bounded concurrency. Each
// narrative's generation call is serialized; narrative order is preserved in
// the result regardless of completion order.
func (g *Generator) GenerateAll(ctx context.Context, narratives []narrative.Narrative) (Batch, error) {
	concurrency := g.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	sem := semaphore.NewWeighted(concurrency)

	results := make([][]Idea, len(narratives))
	errs := make([]error, len(narratives))
	var wg sync.WaitGroup

	for i, n := range narratives {
		if err := sem.Acquire(ctx, 1); err != nil {
			return Batch{}, err
		}
		wg.Add(1)
		go func(i int, n narrative.Narrative) {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = g.Generate(ctx, n)
		}(i, n)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	batch := Batch{Failed: make(map[string]error)}
	for i, n := range narratives {
		if errs[i] != nil {
			g.logger.Warn("narrative excluded from report",
				zap.String("narrative", n.ID), zap.Error(errs[i]))
			batch.Failed[n.ID] = errs[i]
			continue
		}
		batch.Ideas = append(batch.Ideas, results[i]...)
	}
	return batch, nil
}

func buildIdeaPrompt(n narrative.Narrative, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d product ideas for this emerging Solana narrative:\n\n", count)
	fmt.Fprintf(&b, "**Narrative: %s**\n", n.Title)
	fmt.Fprintf(&b, "Category: %s\n", n.Category)
	fmt.Fprintf(&b, "Summary: %s\n", n.Summary)
	fmt.Fprintf(&b, "Trend: %s\n", n.TrendDirection)
	fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(n.Keywords, ", "))
	fmt.Fprintf(&b, "\nGenerate %d distinct product ideas that capitalize on this narrative.\n", count)
	b.WriteString("Include at least one weekend project and one more ambitious idea.\n")
	b.WriteString("Focus on novel applications, not copies of existing products.")
	return b.String()
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
