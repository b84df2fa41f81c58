// Package history persists the conversation between the user and the model
// as a JSON array of role/content pairs.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Store loads and saves a History to a single JSON file.
// Every Save rewrites the whole file; there is no locking.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store backed by the file at path.
// The logger is optional (can be nil).
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   path,
		logger: logger,
	}
}

// Path returns the file the store reads from and writes to.
func (s *Store) Path() string {
	return s.path
}

// record is the on-disk shape of a single message.
type record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Load reads the history file. A missing file yields an empty history.
// A file that exists but does not hold a JSON array of objects is an error.
func (s *Store) Load() (*History, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("no history file, starting fresh", zap.String("path", s.path))
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to read %s: %w", s.path, err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("history: malformed history file %s: %w", s.path, err)
	}

	h := New()
	for i, r := range records {
		role, err := ParseRole(r.Role)
		if err != nil {
			s.logger.Warn("skipping history entry with unknown role",
				zap.Int("index", i),
				zap.String("role", r.Role),
			)
			continue
		}
		h.Append(Message{Role: role, Content: r.Content})
	}

	s.logger.Debug("loaded history",
		zap.String("path", s.path),
		zap.Int("messages", h.Len()),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
	)
	return h, nil
}

// Save overwrites the history file with the full contents of h.
// The file is written next to the target and renamed into place. When the
// history path is a symlink the file it points to is replaced, and an
// existing file keeps its permissions.
func (s *Store) Save(h *History) error {
	messages := h.Messages()
	records := make([]record, len(messages))
	for i, m := range messages {
		records[i] = record{Role: m.Role.String(), Content: m.Content}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("history: failed to encode history: %w", err)
	}

	target, mode := s.target()
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("history: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("history: failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("history: failed to write history: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("history: failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("history: failed to replace %s: %w", target, err)
	}

	s.logger.Debug("saved history",
		zap.String("path", s.path),
		zap.Int("messages", len(records)),
		zap.String("size", humanize.Bytes(uint64(buf.Len()))),
	)
	return nil
}

// target resolves the file Save writes to and the mode it should have.
func (s *Store) target() (string, os.FileMode) {
	path := s.path
	if resolved, err := filepath.EvalSymlinks(s.path); err == nil {
		path = resolved
	}
	if info, err := os.Stat(path); err == nil {
		return path, info.Mode().Perm()
	}
	return path, 0644
}

// Reset removes the history file. Removing a file that does not exist is not
// an error.
func (s *Store) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("history: failed to reset %s: %w", s.path, err)
	}
	s.logger.Info("history reset", zap.String("path", s.path))
	return nil
}
