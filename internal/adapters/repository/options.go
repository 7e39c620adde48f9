// Package repository persists submissions, badges and fake leaderboard
// entries, and is the single source of truth for scores and selection.
package repository

import "time"

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithBusyTimeout sets how long SQLite waits on a locked database before
// failing a statement.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}
