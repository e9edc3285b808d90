// Package idea turns detected narratives into concrete product concepts via
// structured language-model generation, validating and repairing the model's
// output before anything is persisted.
package idea

import "errors"

// Narrative-scoped generation failures. Both degrade the report by excluding
// that narrative; neither aborts the run.
var (
	// ErrGenerationFailed marks a narrative whose generation call returned
	// unusable output twice.
	ErrGenerationFailed = errors.New("idea generation failed")

	// ErrValidationFailed marks a narrative left with fewer than the minimum
	// valid ideas after per-idea filtering.
	ErrValidationFailed = errors.New("idea validation failed")
)

// EffortLevel is the coarse build-complexity classification for an idea.
type EffortLevel string

const (
	EffortWeekend EffortLevel = "weekend"
	EffortMonth   EffortLevel = "month"
	EffortQuarter EffortLevel = "quarter"
)

// ValidEffort reports whether the level is one of the enumerated values.
func ValidEffort(e EffortLevel) bool {
	switch e {
	case EffortWeekend, EffortMonth, EffortQuarter:
		return true
	}
	return false
}

// Link is a titled external reference attached to an idea.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ColosseumAnalysis compares an idea against the existing hackathon and
// grant landscape.
type ColosseumAnalysis struct {
	SimilarProjects []string `json:"similar_projects"`
	Differentiation string   `json:"differentiation"`
	HackathonFit    string   `json:"hackathon_fit"`
}

// Idea is a generated product concept tied to one narrative.
type Idea struct {
	ID                   string             `json:"id"`
	NarrativeID          string             `json:"narrative_id"`
	Title                string             `json:"title"`
	ElevatorPitch        string             `json:"elevator_pitch"`
	Description          string             `json:"description"`
	TargetUsers          string             `json:"target_users"`
	KeyFeatures          []string           `json:"key_features"`
	TechStack            []string           `json:"tech_stack"`
	SkillsRequired       []string           `json:"skills_required"`
	EffortLevel          EffortLevel        `json:"effort_level"`
	RevenueModel         string             `json:"revenue_model"`
	CompetitiveAdvantage string             `json:"competitive_advantage"`
	BuildGuideline       string             `json:"build_guideline"`
	BountyLinks          []Link             `json:"bounty_links"`
	RelevantLinks        []Link             `json:"relevant_links"`
	ColosseumAnalysis    *ColosseumAnalysis `json:"colosseum_analysis,omitempty"`
}
