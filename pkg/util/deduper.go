package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers which message ids a job has already applied actions
// for, so a re-fetched page after a crash does not hit the provider again
// for messages that were committed. Action application is idempotent
// anyway; the deduper just saves the redundant round trips.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func (d *Deduper) key(providerName, job, messageID string) string {
	return fmt.Sprintf("triage:applied:%s:%s:%s", providerName, job, messageID)
}

// AlreadyApplied reports whether a message was marked applied earlier.
// When Redis is unavailable it fails open and returns false: processing a
// message twice is harmless, silently dropping one is not.
func (d *Deduper) AlreadyApplied(ctx context.Context, providerName, job, messageID string) bool {
	if d == nil || d.rdb == nil {
		return false
	}
	n, err := d.rdb.Exists(ctx, d.key(providerName, job, messageID)).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, treating as not applied",
				zap.String("provider", providerName),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
		return false
	}
	return n > 0
}

// MarkApplied records a message id as applied. Failures are logged and
// swallowed for the same fail-open reason.
func (d *Deduper) MarkApplied(ctx context.Context, providerName, job, messageID string) {
	if d == nil || d.rdb == nil {
		return
	}
	if err := d.rdb.Set(ctx, d.key(providerName, job, messageID), 1, d.ttl).Err(); err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup mark failed",
				zap.String("provider", providerName),
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
	}
}
