package badges_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/oraculus/internal/domain/badges"
	"github.com/okian/oraculus/internal/domain/threshold"
	. "github.com/smartystreets/goconvey/convey"
)

type badgeKey struct {
	userID int64
	name   string
}

// fakeStore is an in-memory badges.Store with tunable rank counters.
type fakeStore struct {
	held          map[badgeKey]bool
	selectedAbove int64
	userAtOrAbove int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{held: map[badgeKey]bool{}}
}

func (f *fakeStore) AwardBadge(_ context.Context, userID int64, name string, _ time.Time) (bool, error) {
	k := badgeKey{userID: userID, name: name}
	if f.held[k] {
		return false, nil
	}
	f.held[k] = true
	return true, nil
}

func (f *fakeStore) CountSelectedAbove(_ context.Context, _ float64) (int64, error) {
	return f.selectedAbove, nil
}

func (f *fakeStore) CountUserAtOrAbove(_ context.Context, _ int64, _ float64) (int64, error) {
	return f.userAtOrAbove, nil
}

func newClassifier(t *testing.T) *threshold.Classifier {
	t.Helper()
	c, err := threshold.NewClassifier([]threshold.Level{
		{MinScore: 100, Category: "excellent"},
		{MinScore: 50, Category: "good"},
		{MinScore: 0, Category: "basic"},
	})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	return c
}

func TestEngine_Evaluate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh user far down the board", t, func() {
		store := newFakeStore()
		store.selectedAbove = 10 // outside top 5
		engine := badges.NewEngine(store, newClassifier(t))

		Convey("When their first submission scores low", func() {
			awarded, err := engine.Evaluate(ctx, 1, 1, 5, false)
			So(err, ShouldBeNil)

			Convey("Then only the first-submission badge is awarded", func() {
				So(awarded, ShouldResemble, []string{badges.FirstSubmission})
			})

			Convey("And evaluating the same state again awards nothing", func() {
				again, err := engine.Evaluate(ctx, 1, 1, 5, false)
				So(err, ShouldBeNil)
				So(again, ShouldBeEmpty)
			})
		})
	})

	Convey("Given the count badges trigger on exact counts only", t, func() {
		store := newFakeStore()
		store.selectedAbove = 10
		engine := badges.NewEngine(store, newClassifier(t))

		awarded, err := engine.Evaluate(ctx, 1, 10, 5, false)
		So(err, ShouldBeNil)
		So(awarded, ShouldResemble, []string{badges.Submissions10})

		Convey("Then the eleventh submission earns no count badge", func() {
			awarded, err := engine.Evaluate(ctx, 1, 11, 5, false)
			So(err, ShouldBeNil)
			So(awarded, ShouldBeEmpty)
		})
	})

	Convey("Given fewer than five selected submissions rank higher", t, func() {
		store := newFakeStore()
		store.selectedAbove = 4
		engine := badges.NewEngine(store, newClassifier(t))

		awarded, err := engine.Evaluate(ctx, 1, 2, 20, false)
		So(err, ShouldBeNil)
		So(awarded, ShouldResemble, []string{badges.Top5Public})

		Convey("But a fifth-or-worse rank earns nothing", func() {
			store2 := newFakeStore()
			store2.selectedAbove = 5
			engine2 := badges.NewEngine(store2, newClassifier(t))

			awarded, err := engine2.Evaluate(ctx, 2, 2, 20, false)
			So(err, ShouldBeNil)
			So(awarded, ShouldBeEmpty)
		})
	})

	Convey("Given a score at the second-highest threshold", t, func() {
		store := newFakeStore()
		store.selectedAbove = 10
		store.userAtOrAbove = 1 // this submission is the user's first at the bound
		engine := badges.NewEngine(store, newClassifier(t))

		awarded, err := engine.Evaluate(ctx, 1, 2, 50, false)
		So(err, ShouldBeNil)
		So(awarded, ShouldResemble, []string{badges.HighThresholdFirst})

		Convey("But a repeat crossing earns nothing even for a new user", func() {
			store2 := newFakeStore()
			store2.selectedAbove = 10
			store2.userAtOrAbove = 2
			engine2 := badges.NewEngine(store2, newClassifier(t))

			awarded, err := engine2.Evaluate(ctx, 2, 2, 80, false)
			So(err, ShouldBeNil)
			So(awarded, ShouldBeEmpty)
		})
	})

	Convey("Given a first model selection", t, func() {
		store := newFakeStore()
		store.selectedAbove = 10
		engine := badges.NewEngine(store, newClassifier(t))

		awarded, err := engine.Evaluate(ctx, 1, 0, 0, true)
		So(err, ShouldBeNil)
		So(awarded, ShouldResemble, []string{badges.FirstModelSelection})

		Convey("Then a second selection awards it only once", func() {
			again, err := engine.Evaluate(ctx, 1, 0, 0, true)
			So(err, ShouldBeNil)
			So(again, ShouldBeEmpty)
		})
	})

	Convey("Given a fixed clock", t, func() {
		stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		store := newFakeStore()
		store.selectedAbove = 10
		engine := badges.NewEngine(store, newClassifier(t), badges.WithClock(func() time.Time { return stamp }))

		awarded, err := engine.Evaluate(ctx, 1, 1, 5, false)
		So(err, ShouldBeNil)
		So(awarded, ShouldResemble, []string{badges.FirstSubmission})
	})
}
