package model

// ProcessingResult summarizes one batch run: how many messages were seen,
// how many actions landed, how many failed or were skipped, and the
// per-label histogram accumulated along the way.
type ProcessingResult struct {
	Processed   int
	Succeeded   int
	Failed      int
	Skipped     int
	LabelCounts map[string]int
	Errors      []string
}

// NewProcessingResult returns an empty result ready for accumulation.
func NewProcessingResult() *ProcessingResult {
	return &ProcessingResult{LabelCounts: make(map[string]int)}
}

// CountLabel increments the histogram entry for a label.
func (r *ProcessingResult) CountLabel(label string) {
	r.LabelCounts[label]++
}

// AddError records a per-message failure without aborting the batch.
func (r *ProcessingResult) AddError(msg string) {
	r.Failed++
	r.Errors = append(r.Errors, msg)
}

// Absorb folds a per-page apply result into the run total.
func (r *ProcessingResult) Absorb(other *ProcessingResult) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	for label, n := range other.LabelCounts {
		r.LabelCounts[label] += n
	}
	r.Errors = append(r.Errors, other.Errors...)
}

// ApplyResult is what a provider reports back after submitting a page of
// action sets. Outcomes are independent per message; FailedIDs names the
// messages whose application failed so the runner can report them without
// blocking the rest of the page.
type ApplyResult struct {
	Succeeded int
	Failed    int
	FailedIDs []string
	Errors    []string
}

// RecordFailure notes one message's independent failure.
func (r *ApplyResult) RecordFailure(messageID string, err error) {
	r.Failed++
	r.FailedIDs = append(r.FailedIDs, messageID)
	r.Errors = append(r.Errors, messageID+": "+err.Error())
}
