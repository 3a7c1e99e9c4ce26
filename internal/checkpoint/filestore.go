package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore keeps one JSON document per (provider, job) under a state
// directory. Saves go to a temp file in the same directory followed by an
// atomic rename, so a crash mid-write leaves either the old checkpoint or
// the new one, never a torn file.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(key Key) string {
	name := fmt.Sprintf("%s_%s_state.json", sanitize(key.Provider), sanitize(key.Job))
	return filepath.Join(s.dir, name)
}

// sanitize keeps key parts filesystem-safe.
func sanitize(part string) string {
	if part == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, part)
}

// Load reads the checkpoint for key, or (nil, nil) when none exists. A
// file that exists but does not parse is an error, not an empty state:
// silently restarting from scratch would reprocess committed pages.
func (s *FileStore) Load(_ context.Context, key Key) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.path(key), err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %s: %w", s.path(key), err)
	}
	if cp.LabelCounts == nil {
		cp.LabelCounts = make(map[string]int)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically.
func (s *FileStore) Save(_ context.Context, key Key, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	final := s.path(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(final)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint %s: %w", final, err)
	}

	if s.logger != nil {
		s.logger.Debug("Checkpoint saved",
			zap.String("provider", key.Provider),
			zap.String("job", key.Job),
			zap.Int("processed", cp.ProcessedCount),
		)
	}
	return nil
}

// Clear removes the checkpoint file; clearing a non-existent key is a
// no-op.
func (s *FileStore) Clear(_ context.Context, key Key) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
