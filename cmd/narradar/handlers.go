package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/elonfeng/narradar/internal/config"
	"github.com/elonfeng/narradar/internal/pipeline"
	"github.com/elonfeng/narradar/internal/scheduler"
	"github.com/elonfeng/narradar/internal/store"
	"github.com/elonfeng/narradar/pkg/alert"
	"github.com/elonfeng/narradar/pkg/idea"
	"github.com/elonfeng/narradar/pkg/llm"
	"github.com/elonfeng/narradar/pkg/narrative"
	"github.com/elonfeng/narradar/pkg/scoring"
	"github.com/elonfeng/narradar/pkg/server"
	"github.com/elonfeng/narradar/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildCollectors(cfg *config.Config, logger *zap.Logger) []source.Collector {
	var collectors []source.Collector

	if cfg.Sources.OnChain.Enabled {
		collectors = append(collectors, source.NewOnChain(cfg.Sources.OnChain.ResolvedRPCURL(), logger))
	}
	if cfg.Sources.GitHub.Enabled {
		collectors = append(collectors, source.NewGitHub(cfg.Sources.GitHub.Token, logger))
	}
	if cfg.Sources.Twitter.Enabled {
		collectors = append(collectors, source.NewTwitter(
			cfg.Sources.Twitter.BearerToken,
			cfg.Sources.Twitter.NitterURL,
			cfg.Sources.Twitter.KOLs,
			logger,
		))
	}

	return collectors
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.URL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.URL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.URL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.URL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers, cfg.Alerts.MinStrength)
}

// buildPipeline wires every stage from config. The returned store must be
// closed by the caller.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, *store.SQLiteStore, error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("build llm client: %w", err)
	}

	scorer, err := scoring.NewScorer(
		cfg.Scoring.RecencyWeight,
		cfg.Scoring.AuthorityWeight,
		cfg.Scoring.EngagementWeight,
	)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("build scorer: %w", err)
	}

	clusterer := narrative.NewClusterer(client, db, logger)
	if cfg.Pipeline.MinStrength > 0 {
		clusterer.MinStrength = cfg.Pipeline.MinStrength
	}
	if cfg.Pipeline.MinSignals > 0 {
		clusterer.MinSignals = cfg.Pipeline.MinSignals
	}

	generator := idea.NewGenerator(client, logger)
	if cfg.Pipeline.IdeasPerNarrative > 0 {
		generator.IdeasPerNarrative = cfg.Pipeline.IdeasPerNarrative
	}
	if cfg.Pipeline.GenConcurrency > 0 {
		generator.Concurrency = cfg.Pipeline.GenConcurrency
	}

	pipe, err := pipeline.New(
		buildCollectors(cfg, logger),
		scorer,
		clusterer,
		generator,
		db,
		cfg.Report.Path,
		logger,
	)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return pipe, db, nil
}

func runOnce(days int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pipe, db, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if days == 0 {
		days = cfg.Pipeline.PeriodDays
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := pipe.Run(ctx, days)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if alertMgr := buildAlertManager(cfg); alertMgr.HasNotifiers() {
		if err := alertMgr.NotifyStrong(ctx, report.Narratives, report.Ideas); err != nil {
			logger.Error("alert broadcast failed", zap.Error(err))
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("report written to %s\n", pipe.ReportPath())
	fmt.Printf("  signals:    %d (onchain %d, github %d, twitter %d)\n",
		report.SignalSummary.Total,
		report.SignalSummary.OnChain.Count,
		report.SignalSummary.GitHub.Count,
		report.SignalSummary.Twitter.Count)
	fmt.Printf("  narratives: %d\n", len(report.Narratives))
	fmt.Printf("  ideas:      %d\n", len(report.Ideas))
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

func runServe(port int, schedule bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port == 0 {
		port = cfg.Server.Port
	}

	pipe, db, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if schedule {
		sched := scheduler.New(pipe, buildAlertManager(cfg),
			cfg.Schedule.ParseInterval(), cfg.Pipeline.PeriodDays, logger)
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	srv := server.New(pipe, port, logger)
	return srv.ListenAndServe()
}

func loadLatestReport() (*pipeline.Report, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	report, err := pipeline.LoadReport(cfg.Report.Path)
	if err != nil {
		return nil, fmt.Errorf("no report at %s (run `narradar run` first): %w", cfg.Report.Path, err)
	}
	return report, nil
}

func showNarratives(jsonOutput bool) error {
	report, err := loadLatestReport()
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Narratives)
	}

	if len(report.Narratives) == 0 {
		fmt.Println("no narratives in the latest report")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STRENGTH\tTREND\tCATEGORY\tSIGNALS\tTITLE")
	for _, n := range report.Narratives {
		fmt.Fprintf(w, "%.2f\t%s\t%s\t%d\t%s\n",
			n.Strength, n.TrendDirection, n.Category, len(n.SignalIDs), n.Title)
	}
	return w.Flush()
}

func showIdeas(jsonOutput bool, effort, narrativeID string) error {
	report, err := loadLatestReport()
	if err != nil {
		return err
	}

	ideas := report.Ideas
	if effort != "" {
		level := idea.EffortLevel(strings.ToLower(effort))
		if !idea.ValidEffort(level) {
			return fmt.Errorf("unknown effort level %q (want weekend, month, or quarter)", effort)
		}
		ideas = report.IdeasByEffort(level)
	}
	if narrativeID != "" {
		var filtered []idea.Idea
		for _, id := range ideas {
			if id.NarrativeID == narrativeID {
				filtered = append(filtered, id)
			}
		}
		ideas = filtered
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ideas)
	}

	if len(ideas) == 0 {
		fmt.Println("no matching ideas in the latest report")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EFFORT\tNARRATIVE\tTITLE\tPITCH")
	for _, id := range ideas {
		pitch := id.ElevatorPitch
		if len(pitch) > 60 {
			pitch = pitch[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id.EffortLevel, id.NarrativeID, id.Title, pitch)
	}
	return w.Flush()
}

func runValidate() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if err != nil {
		return err
	}

	fmt.Println("configuration ok")
	fmt.Printf("  llm:     %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("  db:      %s\n", cfg.Database.Path)
	fmt.Printf("  report:  %s\n", cfg.Report.Path)
	fmt.Printf("  sources: onchain=%t github=%t twitter=%t\n",
		cfg.Sources.OnChain.Enabled, cfg.Sources.GitHub.Enabled, cfg.Sources.Twitter.Enabled)
	return nil
}
