package mq

import "time"

// Routing keys for triage events.
const (
	RoutingKeyTriageApplied = "triage.applied"
	RoutingKeyRunFinished   = "triage.run.finished"
)

// TriageAppliedPayload is emitted once per message whose actions were
// applied. Delivery is at-least-once; consumers dedupe on
// (provider, message_id, run_id).
type TriageAppliedPayload struct {
	RunID     string    `json:"run_id"`
	Provider  string    `json:"provider"`
	Job       string    `json:"job"`
	MessageID string    `json:"message_id"`
	Label     string    `json:"label"`
	Tier      int       `json:"tier"`
	VIP       bool      `json:"vip"`
	Starred   bool      `json:"starred"`
	Archived  bool      `json:"archived"`
	AppliedAt time.Time `json:"applied_at"`
}

// RunFinishedPayload is emitted once at the end of a batch run.
type RunFinishedPayload struct {
	RunID      string         `json:"run_id"`
	Provider   string         `json:"provider"`
	Job        string         `json:"job"`
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Labels     map[string]int `json:"labels"`
	FinishedAt time.Time      `json:"finished_at"`
	Outcome    string         `json:"outcome"` // done, failed
}
