package model

import "time"

// ActionSet is the accumulated intent for a single message. Classification,
// tier routing and escalation each contribute to the same set before it is
// sent to the provider in one shot.
type ActionSet struct {
	MessageID    string
	AddLabels    []string
	RemoveLabels []string
	Archive      bool
	Star         bool
	TargetFolder string
	Category     string
	Color        string
	DueDate      *time.Time
}

// AddLabel appends a label to add, skipping duplicates.
func (a *ActionSet) AddLabel(label string) {
	if label == "" {
		return
	}
	for _, l := range a.AddLabels {
		if l == label {
			return
		}
	}
	a.AddLabels = append(a.AddLabels, label)
}

// RemoveLabel appends a label to remove, skipping duplicates. A label that
// is also queued for adding is never removed: the add wins.
func (a *ActionSet) RemoveLabel(label string) {
	if label == "" {
		return
	}
	for _, l := range a.AddLabels {
		if l == label {
			return
		}
	}
	for _, l := range a.RemoveLabels {
		if l == label {
			return
		}
	}
	a.RemoveLabels = append(a.RemoveLabels, label)
}

// Merge folds another action set for the same message into this one.
// Set unions for labels, OR for booleans; scalar directives such as the
// target folder resolve last-writer-wins.
func (a *ActionSet) Merge(other *ActionSet) {
	if other == nil {
		return
	}
	for _, l := range other.AddLabels {
		a.AddLabel(l)
	}
	for _, l := range other.RemoveLabels {
		a.RemoveLabel(l)
	}
	a.Archive = a.Archive || other.Archive
	a.Star = a.Star || other.Star
	if other.TargetFolder != "" {
		a.TargetFolder = other.TargetFolder
	}
	if other.Category != "" {
		a.Category = other.Category
		a.Color = other.Color
	}
	if other.DueDate != nil {
		a.DueDate = other.DueDate
	}
}

// IsEmpty reports whether the set carries no directives at all.
func (a *ActionSet) IsEmpty() bool {
	return len(a.AddLabels) == 0 &&
		len(a.RemoveLabels) == 0 &&
		!a.Archive && !a.Star &&
		a.TargetFolder == "" && a.Category == "" && a.DueDate == nil
}
