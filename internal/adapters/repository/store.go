// Package repository persists submissions, badges and fake leaderboard
// entries, and is the single source of truth for scores and selection.
package repository

import (
	"context"
	"time"

	"github.com/okian/oraculus/internal/domain/model"
)

// Store provides durable read/write access to competition state.
type Store interface {
	// RecordSubmission appends a new submission row and returns its id.
	// Ids are assigned by the store, unique and monotonically increasing.
	RecordSubmission(ctx context.Context, sub *model.Submission) (int64, error)

	// ListByUser returns the user's submissions, newest first.
	ListByUser(ctx context.Context, userID int64) ([]model.Submission, error)

	// CountByUser returns the user's total submission count.
	CountByUser(ctx context.Context, userID int64) (int64, error)

	// Select marks submissionID as the user's selected submission and clears
	// every other selection of that user as a single atomic unit.
	// Returns ErrNotFound when the submission is absent or owned by another
	// user.
	Select(ctx context.Context, userID, submissionID int64) error

	// FindDuplicates returns checksum groups spanning more than one distinct
	// user.
	FindDuplicates(ctx context.Context) ([]model.DuplicateGroup, error)

	// LeaderboardFull returns per-user aggregates ordered by final score
	// descending. A user's final score is their selected submission's private
	// score, falling back to their best private score.
	LeaderboardFull(ctx context.Context) ([]model.LeaderboardRow, error)

	// LeaderboardPublic merges per-user best public scores with fake entries,
	// ordered by public score descending. Real rows are re-classified against
	// the current thresholds; fake rows keep their stored category.
	LeaderboardPublic(ctx context.Context) ([]model.PublicLeaderboardRow, error)

	// AddFake inserts a fake leaderboard entry, classifying the score at
	// insertion time. Returns ErrDuplicateName on a name collision.
	AddFake(ctx context.Context, name string, publicScore float64) error

	// RemoveFake deletes a fake entry. Returns ErrNotFound when absent.
	RemoveFake(ctx context.Context, name string) error

	// ListBadges returns the user's badges, newest first.
	ListBadges(ctx context.Context, userID int64) ([]model.Badge, error)

	// HasBadge reports whether the user already holds the named badge.
	HasBadge(ctx context.Context, userID int64, name string) (bool, error)

	// AwardBadge inserts the badge if absent; true means newly created.
	AwardBadge(ctx context.Context, userID int64, name string, earnedAt time.Time) (bool, error)

	// CountSelectedAbove counts selected submissions with a public score
	// strictly greater than publicScore, across all users.
	CountSelectedAbove(ctx context.Context, publicScore float64) (int64, error)

	// CountUserAtOrAbove counts the user's submissions with a public score at
	// or above bound.
	CountUserAtOrAbove(ctx context.Context, userID int64, bound float64) (int64, error)

	// Close releases the underlying database handle.
	Close() error
}
