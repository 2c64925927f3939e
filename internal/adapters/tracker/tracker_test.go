package tracker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/workloop/internal/adapters/tracker"
	"github.com/okian/workloop/internal/domain/attribution"
	"github.com/okian/workloop/internal/domain/model"
)

func newServer(t *testing.T, routes map[string]string) (*tracker.Client, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return tracker.New(srv.URL, tracker.WithToken("secret"), tracker.WithRateLimit(0)), &seen
}

func TestFindClosingSubmission(t *testing.T) {
	ctx := context.Background()

	Convey("Given an issue closed by a merged pull request", t, func() {
		c, seen := newServer(t, map[string]string{
			"/repos/acme/api/issues/12/timeline": `[
				{"event":"labeled"},
				{"event":"closed","commit_id":"abc123","created_at":"2026-03-01T10:00:00Z"}
			]`,
			"/repos/acme/api/commits/abc123/pulls": `[
				{"number":40,"html_url":"https://github.com/acme/api/pull/40","merged_at":"2026-03-01T09:59:00Z"}
			]`,
		})

		ref, err := c.FindClosingSubmission(ctx, "acme/api#12")

		Convey("Then the pull is returned as owner/repo#N", func() {
			So(err, ShouldBeNil)
			So(ref, ShouldNotBeNil)
			So(ref.ID, ShouldEqual, "acme/api#40")
			So(ref.URL, ShouldEqual, "https://github.com/acme/api/pull/40")
			So(ref.ClosedAt, ShouldEqual, time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC))
		})

		Convey("Then requests carry the token", func() {
			So((*seen)[0].Header.Get("Authorization"), ShouldEqual, "Bearer secret")
		})
	})

	Convey("Given a commit contained in several pulls", t, func() {
		c, _ := newServer(t, map[string]string{
			"/repos/acme/api/issues/12/timeline": `[{"event":"closed","commit_id":"abc"}]`,
			"/repos/acme/api/commits/abc/pulls":  `[{"number":1},{"number":2}]`,
		})
		_, err := c.FindClosingSubmission(ctx, "acme/api#12")
		So(errors.Is(err, attribution.ErrAmbiguousLinkage), ShouldBeTrue)
	})

	Convey("Given an issue closed by hand", t, func() {
		c, _ := newServer(t, map[string]string{
			"/repos/acme/api/issues/12/timeline": `[{"event":"closed"}]`,
		})
		ref, err := c.FindClosingSubmission(ctx, "acme/api#12")
		So(err, ShouldBeNil)
		So(ref, ShouldBeNil)
	})

	Convey("Given an unknown issue", t, func() {
		c, _ := newServer(t, map[string]string{})
		ref, err := c.FindClosingSubmission(ctx, "acme/api#12")
		So(err, ShouldBeNil)
		So(ref, ShouldBeNil)
	})

	Convey("Given an id in the wrong shape", t, func() {
		c, _ := newServer(t, map[string]string{})
		_, err := c.FindClosingSubmission(ctx, "item-1")
		So(errors.Is(err, tracker.ErrInvalidID), ShouldBeTrue)
	})
}

func TestSearchSubmissionsReferencing(t *testing.T) {
	ctx := context.Background()

	Convey("Given search results with an open pull", t, func() {
		c, seen := newServer(t, map[string]string{
			"/search/issues": `{"items":[
				{"number":41,"closed_at":"2026-03-02T00:00:00Z","pull_request":{"merged_at":null}},
				{"number":42,"closed_at":null},
				{"number":43,"closed_at":"2026-03-01T00:00:00Z","pull_request":{"merged_at":"2026-02-28T00:00:00Z"}}
			]}`,
		})

		refs, err := c.SearchSubmissionsReferencing(ctx, "acme/api#12")

		Convey("Then only closed pulls are candidates", func() {
			So(err, ShouldBeNil)
			So(len(refs), ShouldEqual, 2)
			So(refs[0].ID, ShouldEqual, "acme/api#41")
			So(refs[1].ClosedAt, ShouldEqual, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC))
		})

		Convey("Then the query is scoped to the repository", func() {
			So((*seen)[0].URL.Query().Get("q"), ShouldEqual, `type:pr "#12" repo:acme/api`)
		})
	})
}

func TestGetSubmissionText(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pull with comments", t, func() {
		c, _ := newServer(t, map[string]string{
			"/repos/acme/api/pulls/40":           `{"number":40,"title":"Fix deploy","body":"Closes #12"}`,
			"/repos/acme/api/issues/40/comments": `[{"body":"thanks @cloud-specialist"},{"body":"lgtm"}]`,
		})

		text, err := c.GetSubmissionText(ctx, model.SubmissionRef{ID: "acme/api#40"})
		So(err, ShouldBeNil)
		So(text.Title, ShouldEqual, "Fix deploy")
		So(text.Description, ShouldEqual, "Closes #12")
		So(text.Comments, ShouldResemble, []string{"thanks @cloud-specialist", "lgtm"})
	})
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tracker that is failing", t, func() {
		status := http.StatusBadGateway
		remaining := ""
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if remaining != "" {
				w.Header().Set("X-RateLimit-Remaining", remaining)
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"upstream"}`))
		}))
		defer srv.Close()
		c := tracker.New(srv.URL, tracker.WithRateLimit(0))

		Convey("Server errors are transient", func() {
			_, err := c.SearchSubmissionsReferencing(ctx, "acme/api#1")
			var apiErr *tracker.APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.StatusCode, ShouldEqual, http.StatusBadGateway)
			So(apiErr.Message, ShouldEqual, "upstream")
			So(tracker.IsTransient(err), ShouldBeTrue)
			So(tracker.IsNotFound(err), ShouldBeFalse)
		})

		Convey("An exhausted quota is transient", func() {
			status, remaining = http.StatusForbidden, "0"
			_, err := c.SearchSubmissionsReferencing(ctx, "acme/api#1")
			So(tracker.IsTransient(err), ShouldBeTrue)
		})

		Convey("A plain forbidden is not", func() {
			status = http.StatusForbidden
			_, err := c.SearchSubmissionsReferencing(ctx, "acme/api#1")
			So(tracker.IsTransient(err), ShouldBeFalse)
		})
	})
}

func TestResolverClassification(t *testing.T) {
	ctx := context.Background()
	asg := model.Assignment{ItemID: "acme/api#1", WorkerID: "cloud-specialist"}

	Convey("Given a tracker that rejects the credentials", t, func() {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		}))
		defer srv.Close()
		c := tracker.New(srv.URL, tracker.WithRateLimit(0))
		r := attribution.New(c, attribution.WithRetryBackoff(0), attribution.WithTransient(tracker.IsTransient))

		v, err := r.Resolve(ctx, model.WorkItem{ID: asg.ItemID}, asg)

		Convey("Then the item fails without a retry", func() {
			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeFailed)
			So(hits, ShouldEqual, 1)
			var apiErr *tracker.APIError
			So(errors.As(v.Err, &apiErr), ShouldBeTrue)
			So(apiErr.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})
	})

	Convey("Given an item id the tracker cannot address", t, func() {
		c, seen := newServer(t, map[string]string{})
		r := attribution.New(c, attribution.WithRetryBackoff(0), attribution.WithTransient(tracker.IsTransient))

		v, err := r.Resolve(ctx, model.WorkItem{ID: "item-1"}, model.Assignment{ItemID: "item-1", WorkerID: "w"})

		Convey("Then it fails as an input error and nothing is requested", func() {
			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeFailed)
			So(errors.Is(v.Err, tracker.ErrInvalidID), ShouldBeTrue)
			So(len(*seen), ShouldEqual, 0)
		})
	})

	Convey("Given a tracker returning server errors", t, func() {
		hits := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		c := tracker.New(srv.URL, tracker.WithRateLimit(0))
		r := attribution.New(c, attribution.WithRetryBackoff(0), attribution.WithTransient(tracker.IsTransient))

		v, err := r.Resolve(ctx, model.WorkItem{ID: asg.ItemID}, asg)

		Convey("Then the item is retried once and deferred", func() {
			So(err, ShouldBeNil)
			So(v.Outcome, ShouldEqual, attribution.OutcomeDeferred)
			So(hits, ShouldEqual, 2)
		})
	})

	Convey("Transport failures are transient and malformed ids are not", t, func() {
		So(tracker.IsTransient(errors.New("connection refused")), ShouldBeTrue)
		So(tracker.IsTransient(tracker.ErrInvalidID), ShouldBeFalse)
		So(tracker.IsTransient(nil), ShouldBeFalse)
	})
}
