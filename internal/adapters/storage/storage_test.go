package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/oraculus/internal/adapters/storage"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSafeName(t *testing.T) {
	Convey("Given submission names with awkward characters", t, func() {
		So(storage.SafeName("my model v2"), ShouldEqual, "my model v2")
		So(storage.SafeName("model/../../etc"), ShouldEqual, "modeletc")
		So(storage.SafeName("snake_case-name"), ShouldEqual, "snake_case-name")
		So(storage.SafeName("trailing   "), ShouldEqual, "trailing")
		So(storage.SafeName("acentuación"), ShouldEqual, "acentuacin")
	})
}

func TestFileStore_Save(t *testing.T) {
	Convey("Given a file store with a fixed clock", t, func() {
		base := t.TempDir()
		stamp := time.Date(2026, 5, 4, 15, 30, 45, 0, time.UTC)
		store := storage.New(base, storage.WithClock(func() time.Time { return stamp }))

		Convey("When saving a student submission", func() {
			path, err := store.Save(42, false, "my model", "preds.csv", []byte("1\n2\n"))
			So(err, ShouldBeNil)

			Convey("Then the path encodes role, user, timestamp and names", func() {
				expected := filepath.Join(base, "students", "42", "20260504_153045_my model_preds.csv")
				So(path, ShouldEqual, expected)
			})

			Convey("Then the exact bytes are on disk", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, "1\n2\n")
			})
		})

		Convey("When saving a teacher submission", func() {
			path, err := store.Save(7, true, "probe", "probe.csv", []byte("9\n"))
			So(err, ShouldBeNil)
			So(path, ShouldStartWith, filepath.Join(base, "teachers", "7"))
		})

		Convey("When the filename tries to escape the directory", func() {
			path, err := store.Save(1, false, "m", "../../evil.csv", []byte("1\n"))
			So(err, ShouldBeNil)
			So(path, ShouldStartWith, filepath.Join(base, "students", "1"))
			So(filepath.Base(path), ShouldEqual, "20260504_153045_m_evil.csv")
		})
	})
}
