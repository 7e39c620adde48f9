// Package threshold maps numeric scores to configured category labels via
// ordered minimum-score lookup.
package threshold

import (
	"errors"
	"sort"
)

// ErrNoLevels is returned when a classifier is built without any levels.
var ErrNoLevels = errors.New("threshold list must not be empty")

// Level is one configured threshold entry. Levels need not arrive sorted.
type Level struct {
	MinScore float64
	Category string
	Message  string
	Emoji    string
}

// Classifier resolves scores to categories. It is immutable after creation
// and safe for concurrent use.
type Classifier struct {
	// levels sorted by MinScore descending; ties keep configured order.
	levels []Level
}

// NewClassifier builds a classifier from the configured levels.
func NewClassifier(levels []Level) (*Classifier, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	sorted := make([]Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinScore > sorted[j].MinScore
	})
	return &Classifier{levels: sorted}, nil
}

// Classify returns the category of the first level (highest MinScore first)
// whose MinScore does not exceed score. Scores below every level fall to the
// lowest level's category.
func (c *Classifier) Classify(score float64) string {
	for _, l := range c.levels {
		if score >= l.MinScore {
			return l.Category
		}
	}
	return c.levels[len(c.levels)-1].Category
}

// Level returns the configured entry for a category.
func (c *Classifier) Level(category string) (Level, bool) {
	for _, l := range c.levels {
		if l.Category == category {
			return l, true
		}
	}
	return Level{}, false
}

// SecondHighestMin returns the MinScore of the second-highest level, used as
// the high-threshold badge bound. ok is false when fewer than two levels are
// configured.
func (c *Classifier) SecondHighestMin() (float64, bool) {
	if len(c.levels) < 2 {
		return 0, false
	}
	return c.levels[1].MinScore, true
}
