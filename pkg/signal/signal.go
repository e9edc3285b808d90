package signal

import (
	"fmt"
	"time"
)

// Source identifies which platform a signal came from.
type Source string

const (
	SourceOnChain Source = "onchain"
	SourceGitHub  Source = "github"
	SourceTwitter Source = "twitter"
)

// AllSources returns all known signal sources.
func AllSources() []Source {
	return []Source{SourceOnChain, SourceGitHub, SourceTwitter}
}

// Signal is the standardized data model for one observed activity event.
type Signal struct {
	ID          string         `json:"id" db:"id"`
	Source      Source         `json:"source" db:"source"`
	Type        string         `json:"signal_type" db:"signal_type"`
	Subject     string         `json:"subject" db:"subject"`
	Description string         `json:"description" db:"description"`
	ObservedAt  time.Time      `json:"observed_at" db:"observed_at"`
	RawMetric   float64        `json:"raw_metric" db:"raw_metric"`
	Authority   float64        `json:"authority" db:"authority"`
	Score       float64        `json:"score" db:"score"`
	Scored      bool           `json:"scored" db:"scored"`
	Data        map[string]any `json:"data,omitempty" db:"-"`
	DataJSON    string         `json:"-" db:"data"`
}

// Validate checks the structural invariants of a raw (unscored) signal.
func (s *Signal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("signal missing id")
	}
	switch s.Source {
	case SourceOnChain, SourceGitHub, SourceTwitter:
	default:
		return fmt.Errorf("signal %s: unknown source %q", s.ID, s.Source)
	}
	if s.Subject == "" {
		return fmt.Errorf("signal %s: missing subject", s.ID)
	}
	if s.RawMetric < 0 {
		return fmt.Errorf("signal %s: negative raw metric %f", s.ID, s.RawMetric)
	}
	if s.Authority < 0 || s.Authority > 1 {
		return fmt.Errorf("signal %s: authority %f outside [0,1]", s.ID, s.Authority)
	}
	return nil
}

// Summary counts collected signals per source.
type Summary struct {
	Total   int         `json:"total"`
	OnChain SourceCount `json:"onchain"`
	GitHub  SourceCount `json:"github"`
	Twitter SourceCount `json:"twitter"`
}

// SourceCount is the per-source slice of a Summary.
type SourceCount struct {
	Count int `json:"count"`
}
