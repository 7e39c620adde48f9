// Package storage persists raw submitted files under the configured
// submissions root.
//
// Files are written before scoring so every scored submission has its exact
// uploaded bytes on disk; the content checksum is computed by the caller over
// the raw bytes, never from the stored copy.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Role directories under the submissions root.
const (
	studentsDir = "students"
	teachersDir = "teachers"
)

const timestampLayout = "20060102_150405"

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithClock overrides the time source used in stored file names.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// FileStore writes submission files under a base directory, keyed by sender,
// timestamp, sanitized submission name and original filename.
type FileStore struct {
	base string
	now  func() time.Time
}

// New creates a FileStore rooted at base.
func New(base string, opts ...Option) *FileStore {
	s := &FileStore{base: base, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes content and returns the stored path.
func (s *FileStore) Save(userID int64, isTeacher bool, submissionName, filename string, content []byte) (string, error) {
	role := studentsDir
	if isTeacher {
		role = teachersDir
	}
	dir := filepath.Join(s.base, role, strconv.FormatInt(userID, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create submission directory: %w", err)
	}

	name := s.now().Format(timestampLayout) + "_" + SafeName(submissionName) + "_" + filepath.Base(filename)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write submission file: %w", err)
	}
	return path, nil
}

// SafeName reduces a submission name to letters, digits, spaces, dashes and
// underscores, with trailing spaces trimmed.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
