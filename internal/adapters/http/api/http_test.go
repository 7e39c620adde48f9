package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/oraculus/internal/adapters/http/api"
	"github.com/okian/oraculus/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeDeps serves a canned public leaderboard.
type fakeDeps struct {
	rows []model.PublicLeaderboardRow
	err  error
}

func (f *fakeDeps) PublicLeaderboard(_ context.Context) ([]model.PublicLeaderboardRow, error) {
	return f.rows, f.err
}

func newTestMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func TestHandleGetLeaderboard(t *testing.T) {
	Convey("Given a server with leaderboard rows", t, func() {
		deps := &fakeDeps{rows: []model.PublicLeaderboardRow{
			{Name: "Ana", PublicScore: 120, Category: "excellent"},
			{Name: "Phantom", PublicScore: 60, Category: "good"},
		}}
		mux := newTestMux(deps)

		Convey("When GET /leaderboard is requested", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))

			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

			var rows []model.PublicLeaderboardRow
			So(json.Unmarshal(rec.Body.Bytes(), &rows), ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0].Name, ShouldEqual, "Ana")
			So(rows[1].Category, ShouldEqual, "good")
		})

		Convey("When the method is not GET", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/leaderboard", nil))
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a failing store", t, func() {
		mux := newTestMux(&fakeDeps{err: errors.New("disk on fire")})

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
		So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		So(rec.Body.String(), ShouldNotContainSubstring, "disk on fire")
	})
}

func TestHandleHealth(t *testing.T) {
	Convey("Given the registered routes", t, func() {
		mux := newTestMux(&fakeDeps{})

		Convey("Then /healthz serves the metrics exposition", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}
