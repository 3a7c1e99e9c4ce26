package runner

import (
	"time"

	"mailtriage/internal/model"
	"mailtriage/internal/rules"
	"mailtriage/pkg/mq"
)

const (
	routingKeyTriageApplied = mq.RoutingKeyTriageApplied
	routingKeyRunFinished   = mq.RoutingKeyRunFinished
)

func mqAppliedPayload(opts Options, providerName string, a *model.ActionSet, res rules.Result, now time.Time) mq.TriageAppliedPayload {
	return mq.TriageAppliedPayload{
		RunID:     opts.RunID,
		Provider:  providerName,
		Job:       opts.Job,
		MessageID: a.MessageID,
		Label:     res.Label,
		Tier:      res.Tier,
		VIP:       res.IsVIP,
		Starred:   a.Star,
		Archived:  a.Archive,
		AppliedAt: now.UTC(),
	}
}

func mqFinishedPayload(opts Options, providerName string, result *model.ProcessingResult, outcome string, now time.Time) mq.RunFinishedPayload {
	return mq.RunFinishedPayload{
		RunID:      opts.RunID,
		Provider:   providerName,
		Job:        opts.Job,
		Processed:  result.Processed,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Labels:     result.LabelCounts,
		FinishedAt: now.UTC(),
		Outcome:    outcome,
	}
}
