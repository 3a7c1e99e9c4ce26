// Package checkpoint persists batch-processing progress so an interrupted
// run can resume exactly where the last durably applied page left off.
package checkpoint

import (
	"context"
	"time"
)

// Key scopes a checkpoint to one (provider, job) pair. Jobs for different
// providers never share or clobber each other's state.
type Key struct {
	Provider string
	Job      string
}

// Checkpoint is the durable progress record. Unknown JSON fields are
// ignored on load so newer writers stay forward-readable by older readers.
type Checkpoint struct {
	Cursor         string         `json:"cursor"`
	ProcessedCount int            `json:"processed_count"`
	LabelCounts    map[string]int `json:"label_counts"`
	LastRun        time.Time      `json:"last_run"`
	Provider       string         `json:"provider"`
}

// Clone returns a deep copy, so a caller can mutate counters without
// aliasing the stored map.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	cp := *c
	cp.LabelCounts = make(map[string]int, len(c.LabelCounts))
	for k, v := range c.LabelCounts {
		cp.LabelCounts[k] = v
	}
	return &cp
}

// Resumable reports whether the checkpoint points at a further page.
func (c *Checkpoint) Resumable() bool {
	return c != nil && c.Cursor != ""
}

// Store is the checkpoint persistence contract. Save must be atomic from
// the caller's perspective: an interrupted save never leaves a state that
// parses as valid but wrong. Load returns (nil, nil) when no checkpoint
// exists for the key.
type Store interface {
	Load(ctx context.Context, key Key) (*Checkpoint, error)
	Save(ctx context.Context, key Key, cp *Checkpoint) error
	Clear(ctx context.Context, key Key) error
}
