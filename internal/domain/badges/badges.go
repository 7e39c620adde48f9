// Package badges awards achievement badges from submission activity.
//
// A user's badge state only grows: there is no revocation, and awarding is
// idempotent because the store inserts keyed on (user, badge) and reports
// whether the row was new. Only newly created badges are reported back.
package badges

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/oraculus/internal/domain/threshold"
)

// Badge names. These are storage keys; display names live in configuration.
const (
	FirstSubmission     = "first_submission"
	FirstModelSelection = "first_model_selection"
	Submissions10       = "submissions_10"
	Submissions50       = "submissions_50"
	Submissions100      = "submissions_100"
	Top5Public          = "top_5_public"
	HighThresholdFirst  = "high_threshold_first"
)

// top5Limit is the worst rank that still earns the top-5 badge.
const top5Limit = 5

// countBadges maps exact submission counts to their badge. Exact match is
// deliberate: processing is one submission at a time, so counts are never
// skipped.
var countBadges = map[int]string{
	10:  Submissions10,
	50:  Submissions50,
	100: Submissions100,
}

// Store is the persistence surface the engine needs.
type Store interface {
	// AwardBadge inserts the badge if absent. It returns true only when the
	// row was newly created; an existing badge is not an error.
	AwardBadge(ctx context.Context, userID int64, name string, earnedAt time.Time) (bool, error)

	// CountSelectedAbove counts selected submissions, across all users, whose
	// public score is strictly greater than publicScore.
	CountSelectedAbove(ctx context.Context, publicScore float64) (int64, error)

	// CountUserAtOrAbove counts the user's submissions with public score at or
	// above bound, including the one just persisted.
	CountUserAtOrAbove(ctx context.Context, userID int64, bound float64) (int64, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock overrides the time source used for earned_at stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine evaluates badge rules against the store.
type Engine struct {
	store      Store
	classifier *threshold.Classifier
	now        func() time.Time
}

// NewEngine creates a badge engine.
func NewEngine(store Store, classifier *threshold.Classifier, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		classifier: classifier,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every rule and returns the names of badges that were newly
// awarded on this call. submissionCount is the caller's count for the user
// including the submission that triggered the evaluation; isFirstSelection is
// passed only by the selection path when no prior selection badge exists, and
// the insert-if-absent store guard protects against a racing double award.
func (e *Engine) Evaluate(ctx context.Context, userID int64, submissionCount int, publicScore float64, isFirstSelection bool) ([]string, error) {
	var candidates []string

	if submissionCount == 1 {
		candidates = append(candidates, FirstSubmission)
	}
	if isFirstSelection {
		candidates = append(candidates, FirstModelSelection)
	}
	if name, ok := countBadges[submissionCount]; ok {
		candidates = append(candidates, name)
	}

	higher, err := e.store.CountSelectedAbove(ctx, publicScore)
	if err != nil {
		return nil, fmt.Errorf("rank selected submissions: %w", err)
	}
	if higher+1 <= top5Limit {
		candidates = append(candidates, Top5Public)
	}

	if bound, ok := e.classifier.SecondHighestMin(); ok && publicScore >= bound {
		reached, err := e.store.CountUserAtOrAbove(ctx, userID, bound)
		if err != nil {
			return nil, fmt.Errorf("count threshold submissions: %w", err)
		}
		if reached == 1 {
			candidates = append(candidates, HighThresholdFirst)
		}
	}

	earnedAt := e.now()
	var awarded []string
	for _, name := range candidates {
		created, err := e.store.AwardBadge(ctx, userID, name, earnedAt)
		if err != nil {
			return nil, fmt.Errorf("award badge %s: %w", name, err)
		}
		if created {
			awarded = append(awarded, name)
		}
	}
	return awarded, nil
}
