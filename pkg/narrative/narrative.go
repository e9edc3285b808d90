// Package narrative groups scored signals into thematic clusters. Theme
// extraction is delegated to a language-model call; everything the model
// returns is validated and re-derived before it becomes part of a report.
package narrative

import (
	"strings"
	"time"
	"unicode"
)

// TrendDirection describes how a narrative is moving relative to its
// trailing baseline.
type TrendDirection string

const (
	TrendEmerging     TrendDirection = "emerging"
	TrendAccelerating TrendDirection = "accelerating"
	TrendStable       TrendDirection = "stable"
	TrendDeclining    TrendDirection = "declining"
)

// Narrative is a cluster of signals sharing a theme.
type Narrative struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Summary        string         `json:"summary"`
	Category       string         `json:"category"`
	Keywords       []string       `json:"keywords"`
	Strength       float64        `json:"strength"`
	TrendDirection TrendDirection `json:"trend_direction"`
	SignalIDs      []string       `json:"signal_ids"`
	LatestSignal   time.Time      `json:"latest_signal"`
}

// Slugify turns free text into a stable lowercase slug.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
