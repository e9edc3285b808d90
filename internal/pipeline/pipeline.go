// Package pipeline orchestrates one signal-to-idea run: parallel collection,
// scoring, clustering, idea generation, and atomic report publication. At
// most one run is in flight at a time.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elonfeng/narradar/internal/store"
	"github.com/elonfeng/narradar/pkg/idea"
	"github.com/elonfeng/narradar/pkg/narrative"
	"github.com/elonfeng/narradar/pkg/scoring"
	"github.com/elonfeng/narradar/pkg/signal"
	"github.com/elonfeng/narradar/pkg/source"
)

var (
	// ErrAllSourcesFailed is fatal for a run: every adapter exhausted its
	// retries. The previous report stays current.
	ErrAllSourcesFailed = errors.New("all signal sources failed")

	// ErrRunInProgress rejects a run while another holds the lease.
	ErrRunInProgress = errors.New("a pipeline run is already in progress")
)

// Status is the externally polled pipeline state.
type Status struct {
	IsRunning bool       `json:"is_running"`
	LastRun   *time.Time `json:"last_run"`
	Report    *Report    `json:"report"`
	Error     string     `json:"error"`
}

// Pipeline wires the collection, analysis, and publication stages.
type Pipeline struct {
	collectors []source.Collector
	scorer     *scoring.Scorer
	clusterer  *narrative.Clusterer
	generator  *idea.Generator
	store      store.Store // optional, nil disables history/baselines
	reportPath string
	logger     *zap.Logger
	now        func() time.Time
	retry      source.RetryPolicy

	lease *lease
}

// New assembles a pipeline. store may be nil.
func New(
	collectors []source.Collector,
	scorer *scoring.Scorer,
	clusterer *narrative.Clusterer,
	generator *idea.Generator,
	st store.Store,
	reportPath string,
	logger *zap.Logger,
) (*Pipeline, error) {
	if len(collectors) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one collector")
	}
	if reportPath == "" {
		reportPath = "latest_report.json"
	}
	p := &Pipeline{
		collectors: collectors,
		scorer:     scorer,
		clusterer:  clusterer,
		generator:  generator,
		store:      st,
		reportPath: reportPath,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
		retry:      source.DefaultRetry,
	}
	p.lease = newLease()

	// Seed status with any report left by a previous process.
	if r, err := LoadReport(reportPath); err == nil {
		p.lease.setReport(r, nil)
	}
	return p, nil
}

// Status returns a snapshot of the current pipeline state.
func (p *Pipeline) Status() Status {
	return p.lease.status()
}

// ReportPath returns the location of the persisted report document.
func (p *Pipeline) ReportPath() string { return p.reportPath }

// Start accepts a run and executes it in the background, returning
// immediately. ErrRunInProgress is returned while another run holds the
// lease.
func (p *Pipeline) Start(ctx context.Context, days int) error {
	if err := p.lease.acquire(); err != nil {
		return err
	}
	go func() {
		defer p.lease.release()
		report, err := p.execute(ctx, days)
		p.lease.setReport(report, err)
	}()
	return nil
}

// Run executes a run synchronously.
func (p *Pipeline) Run(ctx context.Context, days int) (*Report, error) {
	if err := p.lease.acquire(); err != nil {
		return nil, err
	}
	defer p.lease.release()

	report, err := p.execute(ctx, days)
	p.lease.setReport(report, err)
	return report, err
}

// execute performs the stages of one run. On any fatal error the previously
// persisted report is left untouched.
func (p *Pipeline) execute(ctx context.Context, days int) (*Report, error) {
	runID := uuid.NewString()
	window := signal.NewWindow(p.now().UTC(), days)
	logger := p.logger.With(zap.String("run", runID))

	logger.Info("run started",
		zap.Int("period_days", days),
		zap.Time("window_from", window.From),
		zap.Time("window_to", window.To))

	set, warnings, err := p.collect(ctx, window, logger)
	if err != nil {
		return nil, err
	}

	scored, err := p.scorer.ScoreAll(set.Signals(), window)
	if err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}
	logger.Info("signals scored", zap.Int("count", len(scored)))

	if p.store != nil {
		if err := p.store.SaveSignals(ctx, runID, scored); err != nil {
			logger.Warn("signal history save failed", zap.Error(err))
		}
	}

	narratives, err := p.clusterer.Cluster(ctx, scored)
	if err != nil {
		return nil, fmt.Errorf("clustering: %w", err)
	}
	logger.Info("narratives detected", zap.Int("count", len(narratives)))

	batch, err := p.generator.GenerateAll(ctx, narratives)
	if err != nil {
		return nil, fmt.Errorf("idea generation: %w", err)
	}

	// Narratives whose idea sets failed are excluded entirely: a narrative
	// never appears in a report with zero ideas.
	kept := narratives[:0:0]
	for _, n := range narratives {
		if failure, failed := batch.Failed[n.ID]; failed {
			warnings = append(warnings, fmt.Sprintf("narrative %s excluded: %v", n.ID, failure))
			continue
		}
		kept = append(kept, n)
	}

	report := &Report{
		GeneratedAt:   p.now().UTC(),
		PeriodDays:    window.Days(),
		SignalSummary: set.Summary(),
		Narratives:    kept,
		Ideas:         batch.Ideas,
		Warnings:      warnings,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeReportAtomic(report, p.reportPath); err != nil {
		return nil, err
	}
	if p.store != nil {
		doc, _ := json.Marshal(report)
		if err := p.store.SaveReport(ctx, runID, report.GeneratedAt, report.PeriodDays, doc); err != nil {
			logger.Warn("report archive failed", zap.Error(err))
		}
	}

	logger.Info("run completed",
		zap.Int("narratives", len(kept)),
		zap.Int("ideas", len(batch.Ideas)),
		zap.Int("warnings", len(warnings)))
	return report, nil
}

// collect runs all adapters concurrently with per-adapter retry. A run
// survives any subset of adapter failures; it aborts only when every adapter
// fails.
func (p *Pipeline) collect(ctx context.Context, window signal.Window, logger *zap.Logger) (*signal.Set, []string, error) {
	results := make([]source.Result, len(p.collectors))
	failures := make([]error, len(p.collectors))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range p.collectors {
		g.Go(func() error {
			res, err := p.retry.Collect(gctx, c, window, logger)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("adapter failed, continuing without it",
					zap.String("source", string(c.Name())), zap.Error(err))
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	failed := 0
	set := signal.NewSet(window)
	for i, c := range p.collectors {
		if failures[i] != nil {
			failed++
			warnings = append(warnings, fmt.Sprintf("%s: %v", c.Name(), failures[i]))
			continue
		}
		for _, w := range results[i].Warnings {
			warnings = append(warnings, fmt.Sprintf("%s: %s", c.Name(), w))
		}
		if err := set.AddAll(results[i].Signals); err != nil {
			return nil, nil, fmt.Errorf("%s produced invalid signal: %w", c.Name(), err)
		}
		logger.Info("adapter collected",
			zap.String("source", string(c.Name())),
			zap.Int("signals", len(results[i].Signals)),
			zap.Int("warnings", len(results[i].Warnings)))
	}

	if failed == len(p.collectors) {
		return nil, nil, ErrAllSourcesFailed
	}
	return set, warnings, nil
}
