package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/metrics"
)

// SummaryReport is a read-only snapshot of how a slice of the mailbox
// would be triaged. Nothing is written back to the provider and no
// checkpoint is touched.
type SummaryReport struct {
	Provider     string
	Scanned      int
	VIPCount     int
	ByTier       map[int]int
	ByLabel      map[string]int
	TimeCritical int // messages escalated above their base tier
}

// Summarize fetches up to limit messages and classifies them without
// applying anything. It always starts from the provider's first page;
// summaries are repeatable and never consume the job's checkpoint.
func (r *Runner) Summarize(ctx context.Context, query string, limit, pageSize int) (*SummaryReport, error) {
	report := &SummaryReport{
		Provider: r.provider.Name(),
		ByTier:   make(map[int]int),
		ByLabel:  make(map[string]int),
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		size := pageSize
		if limit > 0 && limit-report.Scanned < size {
			size = limit - report.Scanned
		}
		if size <= 0 {
			return report, nil
		}

		page, err := r.fetchPage(ctx, cursor, query, size)
		if err != nil {
			return report, fmt.Errorf("summary fetch failed: %w", err)
		}
		metrics.PagesFetched.WithLabelValues(r.provider.Name()).Inc()

		for _, msg := range page.Messages {
			msg, err := r.hydrate(ctx, msg)
			if err != nil {
				r.logger.Warn("Skipping malformed message in summary", zap.Error(err))
				continue
			}
			res, err := r.classifyOne(msg)
			if err != nil {
				r.logger.Warn("Classification failed in summary",
					zap.String("message_id", msg.ID), zap.Error(err))
				continue
			}
			report.Scanned++
			report.ByTier[res.Tier]++
			report.ByLabel[res.Label]++
			if res.IsVIP {
				report.VIPCount++
			}
			base := r.classifier.Classify(msg.Sender, msg.Subject)
			if res.Tier < base.Tier {
				report.TimeCritical++
			}
		}

		cursor = page.NextCursor
		if cursor == "" || len(page.Messages) == 0 {
			return report, nil
		}
	}
}

// Render formats the report for terminal output, tiers first in
// ascending urgency, labels by descending count.
func (report *SummaryReport) Render(tiers map[int]model.TierConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Triage summary for %s (%d messages)\n", report.Provider, report.Scanned)
	fmt.Fprintf(&b, "  VIP senders:    %d\n", report.VIPCount)
	fmt.Fprintf(&b, "  Time-critical:  %d\n\n", report.TimeCritical)

	tierKeys := make([]int, 0, len(report.ByTier))
	for t := range report.ByTier {
		tierKeys = append(tierKeys, t)
	}
	sort.Ints(tierKeys)
	for _, t := range tierKeys {
		name := fmt.Sprintf("Tier %d", t)
		if tc, ok := tiers[t]; ok {
			name = fmt.Sprintf("Tier %d (%s)", t, tc.Name)
		}
		fmt.Fprintf(&b, "  %-24s %d\n", name, report.ByTier[t])
	}

	b.WriteString("\n")
	type labelCount struct {
		label string
		n     int
	}
	counts := make([]labelCount, 0, len(report.ByLabel))
	for label, n := range report.ByLabel {
		counts = append(counts, labelCount{label, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].label < counts[j].label
	})
	for _, c := range counts {
		fmt.Fprintf(&b, "  %-24s %d\n", c.label, c.n)
	}
	return b.String()
}
