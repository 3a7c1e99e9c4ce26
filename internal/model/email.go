package model

import "time"

// EmailMessage is a provider-agnostic, read-only view of a message.
// Provider adapters fill these fields from their native formats; the
// triage core never mutates a message directly, it only emits actions.
type EmailMessage struct {
	ID         string
	Sender     string
	Subject    string
	ReceivedAt time.Time
	Labels     []string
	IsRead     bool
	IsStarred  bool
	SizeBytes  int64
}

// Age returns how long ago the message was received, relative to now.
// Both timestamps are normalized to UTC before subtraction so that a
// provider handing back zoned times cannot skew the result.
func (m *EmailMessage) Age(now time.Time) time.Duration {
	if m.ReceivedAt.IsZero() {
		return 0
	}
	age := now.UTC().Sub(m.ReceivedAt.UTC())
	if age < 0 {
		return 0
	}
	return age
}

// HasLabel reports whether the message currently carries the given label.
func (m *EmailMessage) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}
