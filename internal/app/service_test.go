package app_test

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/okian/oraculus/internal/adapters/repository"
	"github.com/okian/oraculus/internal/adapters/storage"
	"github.com/okian/oraculus/internal/adapters/zulip"
	"github.com/okian/oraculus/internal/app"
	"github.com/okian/oraculus/internal/domain/badges"
	"github.com/okian/oraculus/internal/domain/masterdata"
	"github.com/okian/oraculus/internal/domain/model"
	"github.com/okian/oraculus/internal/domain/scoring"
	"github.com/okian/oraculus/internal/domain/threshold"
	"github.com/okian/oraculus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithLevelString("error")); err != nil {
		panic(err)
	}
	m.Run()
}

// fakeResolver plays the transport attachment lookup.
type fakeResolver struct {
	filename string
	content  []byte
	err      error
}

func (f *fakeResolver) ResolveAttachment(_ context.Context, _ string) (string, []byte, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	return f.filename, f.content, nil
}

var (
	testDeadline = time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	testNow      = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

// Public partition: ids 1..4 labeled 1,0,1,0. Private: 5 labeled 1, 6 labeled 0.
const testMasterCSV = `id,label,partition
1,1,public
2,0,public
3,1,public
4,0,public
5,1,private
6,0,private
`

func newTestService(t *testing.T, resolver app.FileResolver, now func() time.Time) (*app.Service, repository.Store) {
	t.Helper()

	dataset, err := masterdata.Read(strings.NewReader(testMasterCSV))
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}

	classifier, err := threshold.NewClassifier([]threshold.Level{
		{MinScore: 3, Category: "excellent", Message: "Outstanding", Emoji: "🏆"},
		{MinScore: 1, Category: "good", Message: "Nice work", Emoji: "👍"},
		{MinScore: 0, Category: "basic", Message: "Keep trying", Emoji: "💪"},
	})
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}

	store, err := repository.Open(filepath.Join(t.TempDir(), "test.db"), classifier)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if now == nil {
		now = func() time.Time { return testNow }
	}

	svc := app.NewService(app.Deps{
		Store:      store,
		Dataset:    dataset,
		Scorer:     scoring.New(dataset, scoring.GainMatrix{TP: 1, TN: 1, FP: -1, FN: -1}),
		Classifier: classifier,
		Badges:     badges.NewEngine(store, classifier, badges.WithClock(now)),
		Files:      storage.New(t.TempDir(), storage.WithClock(now)),
		Resolver:   resolver,
		Teachers:   map[string]struct{}{"prof@example.com": {}},
		Competition: app.Competition{
			Name:        "Churn Cup",
			Description: "Predict churners",
			Deadline:    testDeadline,
		},
		BadgeMeta: map[string]app.BadgeDisplay{
			"first_submission":      {Name: "First Submission", Emoji: "🎯"},
			"first_model_selection": {Name: "First Model Selection", Emoji: "✅"},
			"top_5_public":          {Name: "Top 5 Public", Emoji: "🏆"},
			"high_threshold_first":  {Name: "High Flyer", Emoji: "🚀"},
		},
	}, app.WithClock(now))

	return svc, store
}

func studentMsg(content string) model.InboundMessage {
	return model.InboundMessage{
		SenderID:       11,
		SenderEmail:    "ana@example.com",
		SenderFullName: "Ana Student",
		Content:        content,
	}
}

func teacherMsg(content string) model.InboundMessage {
	return model.InboundMessage{
		SenderID:       99,
		SenderEmail:    "prof@example.com",
		SenderFullName: "Prof Teacher",
		Content:        content,
	}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a student with a perfect public prediction", t, func() {
		resolver := &fakeResolver{filename: "preds.csv", content: []byte("1\n3\n")}
		svc, store := newTestService(t, resolver, nil)

		Convey("When they submit", func() {
			reply := svc.Handle(ctx, studentMsg("submit my model\n[preds.csv](/user_uploads/x)"))

			Convey("Then the reply carries the threshold message and score", func() {
				// public: tp=2 tn=2 -> 4; category excellent
				So(reply, ShouldContainSubstring, "Outstanding")
				So(reply, ShouldContainSubstring, "🏆")
				So(reply, ShouldContainSubstring, "**Public Score:** 4.0000")
				So(reply, ShouldContainSubstring, "**Positives Predicted:** 2")
				So(reply, ShouldNotContainSubstring, "Private")
			})

			Convey("Then new badges are announced with display names", func() {
				So(reply, ShouldContainSubstring, "New Badges")
				So(reply, ShouldContainSubstring, "First Submission")
				So(reply, ShouldContainSubstring, "High Flyer")
			})

			Convey("Then the submission is persisted with private confusion counts", func() {
				subs, err := store.ListByUser(ctx, 11)
				So(err, ShouldBeNil)
				So(len(subs), ShouldEqual, 1)
				So(subs[0].Name, ShouldEqual, "my model")
				So(subs[0].PublicScore, ShouldEqual, 4)
				// private: 5 missed (fn), 6 correct negative (tn) -> 0
				So(subs[0].PrivateScore, ShouldEqual, 0)
				So(subs[0].FN, ShouldEqual, 1)
				So(subs[0].TN, ShouldEqual, 1)
				So(subs[0].FileChecksum, ShouldNotBeEmpty)
				So(subs[0].FilePath, ShouldNotBeEmpty)
			})
		})
	})

	Convey("Given a teacher probing a file", t, func() {
		resolver := &fakeResolver{filename: "probe.csv", content: []byte("1\n3\n")}
		svc, store := newTestService(t, resolver, nil)

		Convey("When they submit", func() {
			reply := svc.Handle(ctx, teacherMsg("submit probe run"))

			Convey("Then they see both scores and the private confusion matrix", func() {
				So(reply, ShouldContainSubstring, "Results for probe run")
				So(reply, ShouldContainSubstring, "**Public:** 4.0000")
				So(reply, ShouldContainSubstring, "**Private:** 0.0000")
				So(reply, ShouldContainSubstring, "TP=0, TN=1, FP=0, FN=1")
			})

			Convey("Then nothing is persisted", func() {
				n, err := store.CountByUser(ctx, 99)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})
	})

	Convey("Given the deadline has passed", t, func() {
		resolver := &fakeResolver{filename: "preds.csv", content: []byte("1\n")}
		after := func() time.Time { return testDeadline.Add(time.Hour) }
		svc, store := newTestService(t, resolver, after)

		Convey("Then a student submission is refused", func() {
			reply := svc.Handle(ctx, studentMsg("submit late"))
			So(reply, ShouldContainSubstring, "deadline")

			n, err := store.CountByUser(ctx, 11)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("But a teacher can still probe", func() {
			reply := svc.Handle(ctx, teacherMsg("submit still probing"))
			So(reply, ShouldContainSubstring, "Results for")
		})
	})

	Convey("Given malformed uploads", t, func() {
		Convey("When no file is attached", func() {
			resolver := &fakeResolver{err: zulip.ErrNoAttachment}
			svc, _ := newTestService(t, resolver, nil)
			reply := svc.Handle(ctx, studentMsg("submit forgot"))
			So(reply, ShouldContainSubstring, "attach a CSV")
		})

		Convey("When the file is not a CSV", func() {
			resolver := &fakeResolver{filename: "preds.txt", content: []byte("1\n")}
			svc, _ := newTestService(t, resolver, nil)
			reply := svc.Handle(ctx, studentMsg("submit wrong type"))
			So(reply, ShouldContainSubstring, "must be a CSV")
		})

		Convey("When the CSV has two columns", func() {
			resolver := &fakeResolver{filename: "preds.csv", content: []byte("1,0\n3,1\n")}
			svc, _ := newTestService(t, resolver, nil)
			reply := svc.Handle(ctx, studentMsg("submit two cols"))
			So(reply, ShouldContainSubstring, "exactly 1 column")
		})

		Convey("When ids are not integers", func() {
			resolver := &fakeResolver{filename: "preds.csv", content: []byte("abc\n")}
			svc, _ := newTestService(t, resolver, nil)
			reply := svc.Handle(ctx, studentMsg("submit bad ids"))
			So(reply, ShouldContainSubstring, "integers")
		})

		Convey("When ids are unknown to the dataset", func() {
			resolver := &fakeResolver{filename: "preds.csv", content: []byte("1\n98\n99\n")}
			svc, _ := newTestService(t, resolver, nil)
			reply := svc.Handle(ctx, studentMsg("submit unknown ids"))
			So(reply, ShouldContainSubstring, "2 ids do not exist")
		})
	})
}

func TestService_SelectAndLists(t *testing.T) {
	ctx := context.Background()

	Convey("Given a student with one scored submission", t, func() {
		resolver := &fakeResolver{filename: "preds.csv", content: []byte("1\n3\n")}
		svc, store := newTestService(t, resolver, nil)
		So(svc.Handle(ctx, studentMsg("submit first try")), ShouldContainSubstring, "Submission ID")

		subs, err := store.ListByUser(ctx, 11)
		So(err, ShouldBeNil)
		So(len(subs), ShouldEqual, 1)
		id := subs[0].ID

		Convey("When they select it for the first time", func() {
			reply := svc.Handle(ctx, studentMsg("select "+itoa(id)))
			So(reply, ShouldContainSubstring, "selected")
			So(reply, ShouldContainSubstring, "First Model Selection")

			Convey("Then a second selection is quiet about the badge", func() {
				again := svc.Handle(ctx, studentMsg("select "+itoa(id)))
				So(again, ShouldContainSubstring, "selected for the leaderboard")
				So(again, ShouldNotContainSubstring, "Badge unlocked")
			})

			Convey("Then list submits marks the selected entry", func() {
				listing := svc.Handle(ctx, studentMsg("list submits"))
				So(listing, ShouldContainSubstring, "first try")
				So(listing, ShouldContainSubstring, "⭐")
			})
		})

		Convey("When they select a submission they do not own", func() {
			reply := svc.Handle(ctx, studentMsg("select 424242"))
			So(reply, ShouldContainSubstring, "not found")
		})

		Convey("When they check their badges", func() {
			reply := svc.Handle(ctx, studentMsg("badges"))
			So(reply, ShouldContainSubstring, "Your Badges")
			So(reply, ShouldContainSubstring, "First Submission")
			So(reply, ShouldContainSubstring, testNow.Format("02/01/2006"))
		})
	})

	Convey("Given a student with no activity", t, func() {
		svc, _ := newTestService(t, &fakeResolver{err: zulip.ErrNoAttachment}, nil)

		So(svc.Handle(ctx, studentMsg("badges")), ShouldContainSubstring, "no badges yet")
		So(svc.Handle(ctx, studentMsg("list submits")), ShouldContainSubstring, "no recorded submissions")
	})
}

func TestService_TeacherCommands(t *testing.T) {
	ctx := context.Background()

	Convey("Given submissions from two students with identical files", t, func() {
		resolver := &fakeResolver{filename: "preds.csv", content: []byte("1\n3\n")}
		svc, _ := newTestService(t, resolver, nil)

		So(svc.Handle(ctx, studentMsg("submit ana model")), ShouldContainSubstring, "Submission ID")

		bob := model.InboundMessage{SenderID: 22, SenderEmail: "bob@example.com", SenderFullName: "Bob Student", Content: "submit bob model"}
		So(svc.Handle(ctx, bob), ShouldContainSubstring, "Submission ID")

		Convey("Then duplicates reports the shared checksum", func() {
			reply := svc.Handle(ctx, teacherMsg("duplicates"))
			So(reply, ShouldContainSubstring, "Duplicate Submissions")
			So(reply, ShouldContainSubstring, "ana@example.com")
			So(reply, ShouldContainSubstring, "bob@example.com")
		})

		Convey("Then the full leaderboard lists both students", func() {
			reply := svc.Handle(ctx, teacherMsg("leaderboard full"))
			So(reply, ShouldContainSubstring, "Full Leaderboard - Churn Cup")
			So(reply, ShouldContainSubstring, "Ana Student")
			So(reply, ShouldContainSubstring, "Bob Student")
		})

		Convey("Then the public leaderboard can carry fake entries", func() {
			So(svc.Handle(ctx, teacherMsg("fake_submit add Phantom 2.5")), ShouldContainSubstring, "added")

			reply := svc.Handle(ctx, teacherMsg("leaderboard public"))
			So(reply, ShouldContainSubstring, "Public Leaderboard - Churn Cup")
			So(reply, ShouldContainSubstring, "Phantom")
			So(reply, ShouldContainSubstring, "Good") // title-cased category

			Convey("And the HTTP view matches", func() {
				rows, err := svc.PublicLeaderboard(ctx)
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
			})

			Convey("And duplicate fake names are refused", func() {
				So(svc.Handle(ctx, teacherMsg("fake_submit add Phantom 9")), ShouldContainSubstring, "already exists")
			})

			Convey("And removal works once", func() {
				So(svc.Handle(ctx, teacherMsg("fake_submit remove Phantom")), ShouldContainSubstring, "removed")
				So(svc.Handle(ctx, teacherMsg("fake_submit remove Phantom")), ShouldContainSubstring, "No fake submission")
			})
		})
	})

	Convey("Given no data yet", t, func() {
		svc, _ := newTestService(t, &fakeResolver{err: zulip.ErrNoAttachment}, nil)

		So(svc.Handle(ctx, teacherMsg("leaderboard full")), ShouldContainSubstring, "no submissions")
		So(svc.Handle(ctx, teacherMsg("duplicates")), ShouldContainSubstring, "No duplicate")
	})
}

func TestService_Routing(t *testing.T) {
	ctx := context.Background()

	Convey("Given the role split", t, func() {
		svc, _ := newTestService(t, &fakeResolver{err: zulip.ErrNoAttachment}, nil)

		Convey("Then students asking for teacher commands get student help", func() {
			reply := svc.Handle(ctx, studentMsg("duplicates"))
			So(reply, ShouldContainSubstring, "Help for Students")
			So(reply, ShouldContainSubstring, "`select <id>`")
			So(reply, ShouldNotContainSubstring, "fake_submit")
		})

		Convey("Then teachers asking for student commands get teacher help", func() {
			reply := svc.Handle(ctx, teacherMsg("badges"))
			So(reply, ShouldContainSubstring, "Help for Teachers")
			So(reply, ShouldContainSubstring, "fake_submit")
		})

		Convey("Then unknown chatter gets help with competition metadata", func() {
			reply := svc.Handle(ctx, studentMsg("good morning bot"))
			So(reply, ShouldContainSubstring, "Churn Cup")
			So(reply, ShouldContainSubstring, "Predict churners")
		})

		Convey("Then help is explicit too", func() {
			So(svc.Handle(ctx, studentMsg("help")), ShouldContainSubstring, "Available commands")
		})
	})
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
