package signal

import (
	"time"
)

// Window is the trailing time range one collection run covers.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow returns a window covering the past days ending at now.
func NewWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = 14
	}
	return Window{From: now.AddDate(0, 0, -days), To: now}
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.To.Sub(w.From).Hours() / 24)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// Set is the append-only accumulator for one collection run. It dedups on
// signal ID, drops pre-window signals, and clamps timestamps past the window
// end. A Set is owned by exactly one pipeline run and is not safe for
// concurrent use.
type Set struct {
	window  Window
	signals []Signal
	seen    map[string]bool
}

// NewSet creates an empty accumulator for the given window.
func NewSet(window Window) *Set {
	return &Set{
		window: window,
		seen:   make(map[string]bool),
	}
}

// Window returns the collection window this set filters against.
func (s *Set) Window() Window { return s.window }

// Add appends a signal after validation. Duplicates and pre-window signals
// are skipped silently; structurally invalid signals return an error.
// Adapters stamp signals while collection is still running, which lands
// after the window end fixed at run start, so a future observed_at is
// clamped to the window end rather than rejected.
func (s *Set) Add(sig Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if sig.ObservedAt.After(s.window.To) {
		sig.ObservedAt = s.window.To
	}
	if s.seen[sig.ID] || sig.ObservedAt.Before(s.window.From) {
		return nil
	}
	s.seen[sig.ID] = true
	s.signals = append(s.signals, sig)
	return nil
}

// AddAll adds each signal, stopping at the first structural error.
func (s *Set) AddAll(sigs []Signal) error {
	for _, sig := range sigs {
		if err := s.Add(sig); err != nil {
			return err
		}
	}
	return nil
}

// Signals returns the accumulated signals in insertion order.
func (s *Set) Signals() []Signal { return s.signals }

// Len returns the number of accumulated signals.
func (s *Set) Len() int { return len(s.signals) }

// ByID returns the signal with the given ID, if present.
func (s *Set) ByID(id string) (Signal, bool) {
	if !s.seen[id] {
		return Signal{}, false
	}
	for _, sig := range s.signals {
		if sig.ID == id {
			return sig, true
		}
	}
	return Signal{}, false
}

// Summary counts the accumulated signals per source.
func (s *Set) Summary() Summary {
	var sum Summary
	sum.Total = len(s.signals)
	for _, sig := range s.signals {
		switch sig.Source {
		case SourceOnChain:
			sum.OnChain.Count++
		case SourceGitHub:
			sum.GitHub.Count++
		case SourceTwitter:
			sum.Twitter.Count++
		}
	}
	return sum
}
