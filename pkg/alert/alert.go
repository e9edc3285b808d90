// Package alert broadcasts high-strength narratives to configured
// destinations after a completed run.
package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/elonfeng/narradar/pkg/idea"
	"github.com/elonfeng/narradar/pkg/narrative"
)

// Notification is the data sent to alert destinations: one narrative and
// the ideas generated for it.
type Notification struct {
	Narrative narrative.Narrative `json:"narrative"`
	Ideas     []idea.Idea         `json:"ideas"`
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier

	// MinStrength gates which narratives are broadcast.
	MinStrength float64
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier, minStrength float64) *Manager {
	return &Manager{notifiers: notifiers, MinStrength: minStrength}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. Failures are
// joined, never short-circuited, so one dead webhook does not silence the
// rest.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyStrong broadcasts every narrative at or above MinStrength, pairing
// each with its generated ideas.
func (m *Manager) NotifyStrong(ctx context.Context, narratives []narrative.Narrative, ideas []idea.Idea) error {
	if !m.HasNotifiers() {
		return nil
	}
	byNarrative := make(map[string][]idea.Idea)
	for _, id := range ideas {
		byNarrative[id.NarrativeID] = append(byNarrative[id.NarrativeID], id)
	}
	var errs []error
	for _, n := range narratives {
		if n.Strength < m.MinStrength {
			continue
		}
		if err := m.Broadcast(ctx, &Notification{Narrative: n, Ideas: byNarrative[n.ID]}); err != nil {
			errs = append(errs, fmt.Errorf("narrative %s: %w", n.ID, err))
		}
	}
	return errors.Join(errs...)
}
