// Package runner drives the crash-safe batch-processing loop: fetch a
// page from the provider, classify and escalate each message, apply the
// accumulated actions, then checkpoint. A checkpoint is written only
// after a page's actions are durably applied, so an interrupted run
// resumes by re-fetching the same unconfirmed page; action application is
// idempotent, which makes the overlap harmless.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/checkpoint"
	"mailtriage/internal/model"
	"mailtriage/internal/provider"
	"mailtriage/internal/rules"
	"mailtriage/pkg/circuitbreaker"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/retry"
	"mailtriage/pkg/util"
)

// EventPublisher is the narrow slice of the MQ publisher the runner
// needs. Nil disables event emission.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// AppliedDeduper remembers message ids whose actions were already
// committed, to skip redundant re-application after a crash. Nil disables
// deduplication.
type AppliedDeduper interface {
	AlreadyApplied(ctx context.Context, providerName, job, messageID string) bool
	MarkApplied(ctx context.Context, providerName, job, messageID string)
}

// Options tunes a single run.
type Options struct {
	Job         string
	RunID       string
	Query       string
	Limit       int // max messages this run; 0 means no limit
	PageSize    int
	DryRun      bool
	VIPOnly     bool
	RemoveLabel string
}

// Runner executes sequential batch runs for one provider. One logical
// worker owns each (provider, job) checkpoint, so nothing here is made
// goroutine-safe.
type Runner struct {
	provider   provider.Provider
	classifier *rules.Classifier
	escalator  *rules.Escalator
	tiers      map[int]model.TierConfig
	store      checkpoint.Store
	logger     *zap.Logger
	policy     retry.Policy
	breaker    *circuitbreaker.CircuitBreaker
	publisher  EventPublisher
	deduper    AppliedDeduper

	state State
	now   func() time.Time
}

// New wires a runner. store may be nil only for summary runs.
func New(
	p provider.Provider,
	classifier *rules.Classifier,
	escalator *rules.Escalator,
	tiers map[int]model.TierConfig,
	store checkpoint.Store,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		provider:   p,
		classifier: classifier,
		escalator:  escalator,
		tiers:      tiers,
		store:      store,
		logger:     logger,
		policy:     retry.DefaultPolicy(),
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		state:      StateIdle,
		now:        time.Now,
	}
}

// WithRetryPolicy overrides the provider-call retry policy.
func (r *Runner) WithRetryPolicy(p retry.Policy) *Runner {
	r.policy = p
	return r
}

// WithPublisher attaches the triage event publisher.
func (r *Runner) WithPublisher(pub EventPublisher) *Runner {
	r.publisher = pub
	return r
}

// WithDeduper attaches the applied-message deduper.
func (r *Runner) WithDeduper(d AppliedDeduper) *Runner {
	r.deduper = d
	return r
}

// State returns the runner's current loop state.
func (r *Runner) State() State { return r.state }

func (r *Runner) setState(s State) {
	r.state = s
	r.logger.Debug("Runner state change", zap.Stringer("state", s))
}

// Run executes the batch loop until the provider reports no further
// pages, the per-run limit is hit, the context is canceled, or the retry
// budget is exhausted. The returned result is valid even when err is
// non-nil: it covers everything processed before the failure.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.ProcessingResult, error) {
	result := model.NewProcessingResult()
	key := checkpoint.Key{Provider: r.provider.Name(), Job: opts.Job}

	cp, err := r.store.Load(ctx, key)
	if err != nil {
		return result, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp == nil {
		cp = &checkpoint.Checkpoint{
			Provider:    r.provider.Name(),
			LabelCounts: make(map[string]int),
		}
	} else {
		cp = cp.Clone()
		r.logger.Info("Resuming from checkpoint",
			zap.String("cursor", cp.Cursor),
			zap.Int("processed", cp.ProcessedCount),
		)
	}

	if !opts.DryRun {
		if err := r.ensureTierFolders(ctx); err != nil {
			r.setState(StateFailed)
			return result, err
		}
	}

	cursor := cp.Cursor
	processedThisRun := 0

	for {
		if err := ctx.Err(); err != nil {
			r.setState(StateFailed)
			return result, err
		}

		pageSize := opts.PageSize
		if opts.Limit > 0 && opts.Limit-processedThisRun < pageSize {
			pageSize = opts.Limit - processedThisRun
		}
		if pageSize <= 0 {
			r.setState(StateDone)
			break
		}

		// FETCHING
		r.setState(StateFetching)
		page, err := r.fetchPage(ctx, cursor, opts.Query, pageSize)
		if err != nil {
			r.setState(StateFailed)
			r.finish(opts, result, "failed")
			return result, fmt.Errorf("fetch failed, checkpoint preserved: %w", err)
		}
		if len(page.Messages) == 0 && page.NextCursor == "" {
			r.setState(StateDone)
			break
		}
		metrics.PagesFetched.WithLabelValues(r.provider.Name()).Inc()

		// CLASSIFYING
		r.setState(StateClassifying)
		actions, decisions, pageStats := r.classifyPage(ctx, page.Messages, opts)

		// APPLYING
		r.setState(StateApplying)
		applied, err := r.applyPage(ctx, actions, opts)
		if err != nil {
			r.setState(StateFailed)
			result.Absorb(pageStats)
			r.finish(opts, result, "failed")
			return result, fmt.Errorf("apply failed, checkpoint preserved: %w", err)
		}
		r.emitApplied(opts, actions, decisions, applied)
		pageStats.Succeeded += applied.Succeeded
		for _, msg := range applied.Errors {
			pageStats.AddError(msg)
		}
		result.Absorb(pageStats)
		for range applied.Errors {
			metrics.IncProcessed(r.provider.Name(), "failed")
		}

		processedThisRun += pageStats.Processed

		// CHECKPOINTING
		r.setState(StateCheckpointing)
		cursor = page.NextCursor
		if !opts.DryRun {
			cp.Cursor = cursor
			cp.ProcessedCount += pageStats.Processed
			for label, n := range pageStats.LabelCounts {
				cp.LabelCounts[label] += n
			}
			cp.LastRun = r.now().UTC()
			if err := r.store.Save(ctx, key, cp); err != nil {
				r.setState(StateFailed)
				r.finish(opts, result, "failed")
				return result, fmt.Errorf("checkpoint save failed: %w", err)
			}
			metrics.CheckpointSaves.WithLabelValues(key.Provider, key.Job).Inc()
		}

		r.logger.Info("Page committed",
			zap.Int("page_messages", pageStats.Processed),
			zap.Int("run_total", processedThisRun),
			zap.Bool("dry_run", opts.DryRun),
			zap.String("next_cursor", cursor),
		)

		if cursor == "" {
			r.setState(StateDone)
			break
		}
		if opts.Limit > 0 && processedThisRun >= opts.Limit {
			r.setState(StateDone)
			break
		}
	}

	r.finish(opts, result, "done")
	return result, nil
}

// ensureTierFolders provisions the routing folders up front so a page's
// apply never races folder creation.
func (r *Runner) ensureTierFolders(ctx context.Context) error {
	if !r.provider.Capabilities().Has(provider.CapFolders) {
		return nil
	}
	tiers := make([]int, 0, len(r.tiers))
	for t := range r.tiers {
		tiers = append(tiers, t)
	}
	sort.Ints(tiers)
	for _, t := range tiers {
		folder := r.tiers[t].Folder
		if folder == "" {
			continue
		}
		if err := r.provider.EnsureLabel(ctx, folder); err != nil {
			return fmt.Errorf("failed to provision folder %s: %w", folder, err)
		}
	}
	return nil
}

// fetchPage lists one page with bounded-backoff retries for transient
// errors. Permanent errors surface immediately.
func (r *Runner) fetchPage(ctx context.Context, cursor, query string, pageSize int) (*provider.ListResult, error) {
	var page *provider.ListResult
	err := r.policy.Do(ctx, r.logger, "list_messages", func() error {
		start := r.now()
		var listErr error
		page, listErr = r.provider.ListMessages(ctx, cursor, query, pageSize)
		status := "ok"
		if listErr != nil {
			status = "error"
			if retryable, class := util.IsRetryableError(listErr); retryable {
				metrics.RetriesPerformed.WithLabelValues(r.provider.Name(), class).Inc()
			}
		}
		metrics.ObserveProviderCall(r.provider.Name(), "list_messages", status, r.now().Sub(start))
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// decision pairs a message with its final classification, kept so event
// emission does not have to re-classify.
type decision struct {
	msg *model.EmailMessage
	res rules.Result
}

// classifyPage runs Classify then Escalate per message and builds the
// per-message action sets. Per-message defects are recovered, counted and
// skipped; they never abort the batch.
func (r *Runner) classifyPage(ctx context.Context, msgs []*model.EmailMessage, opts Options) ([]*model.ActionSet, map[string]decision, *model.ProcessingResult) {
	stats := model.NewProcessingResult()
	actions := make([]*model.ActionSet, 0, len(msgs))
	decisions := make(map[string]decision, len(msgs))

	for _, msg := range msgs {
		msg, err := r.hydrate(ctx, msg)
		if err != nil {
			stats.Processed++
			stats.AddError(err.Error())
			metrics.IncProcessed(r.provider.Name(), "failed")
			r.logger.Warn("Skipping malformed message", zap.Error(err))
			continue
		}

		if r.deduper != nil && !opts.DryRun &&
			r.deduper.AlreadyApplied(ctx, r.provider.Name(), opts.Job, msg.ID) {
			stats.Skipped++
			metrics.IncProcessed(r.provider.Name(), "skipped")
			continue
		}

		if opts.VIPOnly && !r.classifier.IsVIPSender(msg.Sender) {
			stats.Skipped++
			metrics.IncProcessed(r.provider.Name(), "skipped")
			continue
		}

		res, err := r.classifyOne(msg)
		if err != nil {
			stats.Processed++
			stats.AddError(err.Error())
			metrics.IncProcessed(r.provider.Name(), "failed")
			r.logger.Warn("Classification failed for message",
				zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}

		stats.Processed++
		stats.CountLabel(res.Label)
		metrics.IncClassified(res.Label)

		action := r.buildActions(msg, res, opts)
		actions = append(actions, action)
		decisions[msg.ID] = decision{msg: msg, res: res}

		r.logger.Debug("Classified message",
			zap.String("message_id", msg.ID),
			zap.String("label", res.Label),
			zap.Int("tier", res.Tier),
			zap.Bool("vip", res.IsVIP),
		)
	}
	return actions, decisions, stats
}

// hydrate fills in header fields for providers whose listing returns bare
// ids, and rejects messages the core cannot work with.
func (r *Runner) hydrate(ctx context.Context, msg *model.EmailMessage) (*model.EmailMessage, error) {
	if msg == nil {
		return nil, &provider.MessageError{MessageID: "", Err: fmt.Errorf("nil message in page")}
	}
	if msg.ID == "" {
		return nil, &provider.MessageError{MessageID: "", Err: fmt.Errorf("message without id")}
	}
	if msg.Sender != "" || msg.Subject != "" {
		return msg, nil
	}
	full, err := r.provider.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, &provider.MessageError{MessageID: msg.ID, Err: err}
	}
	if full == nil {
		return nil, &provider.MessageError{MessageID: msg.ID, Err: fmt.Errorf("message not found")}
	}
	return full, nil
}

// classifyOne isolates one message's classification and escalation so a
// panic in pattern matching or time handling downgrades to a per-message
// error.
func (r *Runner) classifyOne(msg *model.EmailMessage) (res rules.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &provider.MessageError{MessageID: msg.ID, Err: fmt.Errorf("panic during classification: %v", p)}
		}
	}()

	res = r.classifier.Classify(msg.Sender, msg.Subject)
	before := res.Tier
	res = r.escalator.Escalate(res, msg.Age(r.now()))
	if res.Tier != before {
		metrics.IncEscalated(strconv.Itoa(before), strconv.Itoa(res.Tier))
		r.logger.Debug("Escalated message",
			zap.String("message_id", msg.ID),
			zap.Int("from_tier", before),
			zap.Int("to_tier", res.Tier),
		)
	}
	return res, nil
}

// buildActions translates a classification into the full per-message
// action set, honoring provider capabilities and tier routing. The whole
// bundle is built in memory before any write-back is attempted.
func (r *Runner) buildActions(msg *model.EmailMessage, res rules.Result, opts Options) *model.ActionSet {
	action := &model.ActionSet{MessageID: msg.ID}
	action.AddLabel(res.Label)

	caps := r.provider.Capabilities()
	tc := r.tiers[res.Tier]

	if caps.Has(provider.CapColorCategories) {
		action.Category = tc.Name
		action.Color = tc.Color
	}
	if tc.Folder != "" && caps.Has(provider.CapFolders) {
		action.TargetFolder = tc.Folder
	}
	if (tc.Star || res.Star) && caps.Has(provider.CapStar) {
		action.Star = true
	}
	if !tc.KeepInInbox && caps.Has(provider.CapArchive) {
		action.Archive = true
	}
	// Sweep mode: retire the old label unless it is the one we just
	// assigned. AddLabel/RemoveLabel ordering makes a VIP label override
	// authoritative: a label queued for adding is never removed.
	if opts.RemoveLabel != "" && opts.RemoveLabel != res.Label {
		action.RemoveLabel(opts.RemoveLabel)
	}
	return action
}

// applyPage submits the page's action sets. In dry-run mode nothing is
// sent; the page is reported as if every action succeeded. Write-backs
// run under the circuit breaker and the retry policy.
func (r *Runner) applyPage(ctx context.Context, actions []*model.ActionSet, opts Options) (*model.ApplyResult, error) {
	if len(actions) == 0 {
		return &model.ApplyResult{}, nil
	}
	if opts.DryRun {
		for _, a := range actions {
			r.logger.Info("Dry run: would apply",
				zap.String("message_id", a.MessageID),
				zap.Strings("add_labels", a.AddLabels),
				zap.Strings("remove_labels", a.RemoveLabels),
				zap.Bool("archive", a.Archive),
				zap.Bool("star", a.Star),
				zap.String("folder", a.TargetFolder),
			)
		}
		return &model.ApplyResult{Succeeded: len(actions)}, nil
	}

	var applied *model.ApplyResult
	err := r.policy.Do(ctx, r.logger, "apply_actions", func() error {
		return r.breaker.Execute(func() error {
			start := r.now()
			var applyErr error
			applied, applyErr = r.provider.ApplyActions(ctx, actions)
			status := "ok"
			if applyErr != nil {
				status = "error"
				if retryable, class := util.IsRetryableError(applyErr); retryable {
					metrics.RetriesPerformed.WithLabelValues(r.provider.Name(), class).Inc()
				}
			}
			metrics.ObserveProviderCall(r.provider.Name(), "apply_actions", status, r.now().Sub(start))
			return applyErr
		})
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < applied.Succeeded; i++ {
		metrics.IncProcessed(r.provider.Name(), "applied")
	}
	return applied, nil
}

// emitApplied marks applied messages in the deduper and publishes one
// triage.applied event per committed message. Both are skipped entirely
// in dry-run mode.
func (r *Runner) emitApplied(opts Options, actions []*model.ActionSet, decisions map[string]decision, applied *model.ApplyResult) {
	if opts.DryRun {
		return
	}
	failed := make(map[string]bool, len(applied.FailedIDs))
	for _, id := range applied.FailedIDs {
		failed[id] = true
	}
	for _, a := range actions {
		if failed[a.MessageID] {
			continue
		}
		if r.deduper != nil {
			r.deduper.MarkApplied(context.Background(), r.provider.Name(), opts.Job, a.MessageID)
		}
		if r.publisher == nil {
			continue
		}
		d, ok := decisions[a.MessageID]
		if !ok {
			continue
		}
		payload := mqAppliedPayload(opts, r.provider.Name(), a, d.res, r.now())
		if err := r.publisher.Publish(routingKeyTriageApplied, payload); err != nil {
			// Event emission is best-effort; the mailbox state is already
			// committed.
			r.logger.Warn("Failed to publish triage event",
				zap.String("message_id", a.MessageID), zap.Error(err))
		}
	}
}

// finish logs the run summary and publishes the terminal event.
func (r *Runner) finish(opts Options, result *model.ProcessingResult, outcome string) {
	r.logger.Info("Run finished",
		zap.String("outcome", outcome),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Bool("dry_run", opts.DryRun),
	)
	if r.publisher == nil || opts.DryRun {
		return
	}
	payload := mqFinishedPayload(opts, r.provider.Name(), result, outcome, r.now())
	if err := r.publisher.Publish(routingKeyRunFinished, payload); err != nil {
		r.logger.Warn("Failed to publish run-finished event", zap.Error(err))
	}
}
