package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elonfeng/narradar/pkg/idea"
	"github.com/elonfeng/narradar/pkg/narrative"
	"github.com/elonfeng/narradar/pkg/signal"
)

// Report is the immutable snapshot one successful run produces. It is written
// atomically and fully replaces the previous report for consumers.
type Report struct {
	GeneratedAt   time.Time             `json:"generated_at"`
	PeriodDays    int                   `json:"period_days"`
	SignalSummary signal.Summary        `json:"signal_summary"`
	Narratives    []narrative.Narrative `json:"narratives"`
	Ideas         []idea.Idea           `json:"ideas"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// IdeasFor returns the report's ideas belonging to one narrative, in
// generation order.
func (r *Report) IdeasFor(narrativeID string) []idea.Idea {
	var out []idea.Idea
	for _, i := range r.Ideas {
		if i.NarrativeID == narrativeID {
			out = append(out, i)
		}
	}
	return out
}

// IdeasByEffort returns the report's ideas with the given effort level.
func (r *Report) IdeasByEffort(level idea.EffortLevel) []idea.Idea {
	var out []idea.Idea
	for _, i := range r.Ideas {
		if i.EffortLevel == level {
			out = append(out, i)
		}
	}
	return out
}

// writeReportAtomic marshals the report and swaps it into place via a temp
// file and rename, so a partially written document is never visible.
func writeReportAtomic(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("swap report into place: %w", err)
	}
	return nil
}

// LoadReport reads a previously persisted report document.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
