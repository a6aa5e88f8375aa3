package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/adapters/http/api"
	engine "github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/app"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/types"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var adminCaller = engine.Caller{ID: "admin-1", Role: model.RoleAdmin}

// newTestMux wires the full API against a real engine so handler tests
// cover the same paths the binary serves.
func newTestMux(ctx context.Context, opts ...engine.Option) (*engine.Engine, *http.ServeMux) {
	eng := engine.New(opts...)
	if err := eng.Start(ctx); err != nil {
		panic(err)
	}
	server := api.NewServer(eng, eng)
	mux := http.NewServeMux()
	server.Register(ctx, mux)
	return eng, mux
}

func doRequest(mux *http.ServeMux, method, path string, caller engine.Caller, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if caller.ID != "" {
		req.Header.Set("X-Caller-Id", caller.ID)
		req.Header.Set("X-Caller-Role", string(caller.Role))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](w *httptest.ResponseRecorder) T {
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		panic(err)
	}
	return v
}

func createAnnotator(mux *http.ServeMux, username string) engine.Caller {
	w := doRequest(mux, http.MethodPost, "/api/admin/users", adminCaller, map[string]string{
		"username": username,
		"role":     "annotator",
	})
	if w.Code != http.StatusCreated {
		panic("createAnnotator: " + w.Body.String())
	}
	user := decodeBody[map[string]string](w)
	return engine.Caller{ID: user["id"], Role: model.RoleAnnotator}
}

func createTask(mux *http.ServeMux, imageRef string) types.TaskView {
	w := doRequest(mux, http.MethodPost, "/api/tasks", adminCaller, map[string]any{
		"image_ref":  imageRef,
		"categories": "Cat,Dog",
		"bounty":     0.5,
	})
	if w.Code != http.StatusCreated {
		panic("createTask: " + w.Body.String())
	}
	return decodeBody[types.TaskView](w)
}

func TestServerRegister(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx)
		Reset(eng.Stop)

		Convey("Then the health endpoint should respond", func() {
			w := doRequest(mux, http.MethodGet, "/healthz", engine.Caller{}, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the engine stats endpoint should report running state", func() {
			w := doRequest(mux, http.MethodGet, "/stats", engine.Caller{}, nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			stats := decodeBody[map[string]any](w)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then wrong methods should fall through to 404", func() {
			w := doRequest(mux, http.MethodDelete, "/api/tasks", adminCaller, nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestUserEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx)
		Reset(eng.Stop)

		Convey("When an admin creates an annotator", func() {
			w := doRequest(mux, http.MethodPost, "/api/admin/users", adminCaller, map[string]string{
				"username": "alice",
				"role":     "annotator",
			})

			Convey("Then the account should be returned with 201", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				user := decodeBody[map[string]string](w)
				So(user["id"], ShouldNotBeEmpty)
				So(user["username"], ShouldEqual, "alice")
				So(user["role"], ShouldEqual, "annotator")
			})

			Convey("And reusing the username should conflict", func() {
				again := doRequest(mux, http.MethodPost, "/api/admin/users", adminCaller, map[string]string{
					"username": "alice",
					"role":     "annotator",
				})
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(again.Body.String(), ShouldContainSubstring, "username_taken")
			})
		})

		Convey("When the role is not recognised", func() {
			w := doRequest(mux, http.MethodPost, "/api/admin/users", adminCaller, map[string]string{
				"username": "bob",
				"role":     "reviewer",
			})

			Convey("Then the request should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the caller headers are missing", func() {
			w := doRequest(mux, http.MethodPost, "/api/admin/users", engine.Caller{}, map[string]string{
				"username": "carol",
				"role":     "annotator",
			})

			Convey("Then the request should be forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
				So(w.Body.String(), ShouldContainSubstring, "forbidden")
			})
		})

		Convey("When the body is not valid JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/users", strings.NewReader("{not json"))
			req.Header.Set("X-Caller-Id", adminCaller.ID)
			req.Header.Set("X-Caller-Role", string(adminCaller.Role))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			Convey("Then the request should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestTaskEndpoints(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx, engine.WithRedundancy(2))
		Reset(eng.Stop)

		alice := createAnnotator(mux, "alice")

		Convey("When an admin adds a task", func() {
			w := doRequest(mux, http.MethodPost, "/api/tasks", adminCaller, map[string]any{
				"image_ref":  "img-001.jpg",
				"categories": "Cat,Dog,Bird",
				"bounty":     1.25,
			})

			Convey("Then the task view should be returned with 201", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				view := decodeBody[types.TaskView](w)
				So(view.ID, ShouldNotBeEmpty)
				So(view.ImageRef, ShouldEqual, "img-001.jpg")
				So(view.Options, ShouldResemble, []string{"Cat", "Dog", "Bird"})
				So(view.Bounty, ShouldEqual, 1.25)
				So(view.Status, ShouldEqual, "active")
			})

			Convey("And the active list should include it", func() {
				list := doRequest(mux, http.MethodGet, "/api/tasks/active", adminCaller, nil)
				So(list.Code, ShouldEqual, http.StatusOK)
				views := decodeBody[[]types.TaskView](list)
				So(len(views), ShouldEqual, 1)
			})
		})

		Convey("When an annotator tries to add a task", func() {
			w := doRequest(mux, http.MethodPost, "/api/tasks", alice, map[string]any{
				"image_ref":  "img-002.jpg",
				"categories": "Cat,Dog",
			})

			Convey("Then the request should be forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When the image reference is missing", func() {
			w := doRequest(mux, http.MethodPost, "/api/tasks", adminCaller, map[string]any{
				"categories": "Cat,Dog",
			})

			Convey("Then the request should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an annotator polls for work with no tasks", func() {
			w := doRequest(mux, http.MethodGet, "/api/tasks/next", alice, nil)

			Convey("Then the response should be 204", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
			})
		})

		Convey("When an annotator polls for work with a task available", func() {
			task := createTask(mux, "img-003.jpg")
			w := doRequest(mux, http.MethodGet, "/api/tasks/next", alice, nil)

			Convey("Then the task should be reserved and returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				view := decodeBody[types.TaskView](w)
				So(view.ID, ShouldEqual, task.ID)
				So(view.AssignedCount, ShouldEqual, 1)
			})
		})

		Convey("When an admin polls for work", func() {
			w := doRequest(mux, http.MethodGet, "/api/tasks/next", adminCaller, nil)

			Convey("Then the request should be forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})
		})
	})
}

func TestAnnotationEndpoint(t *testing.T) {
	Convey("Given an annotator holding a reservation", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx, engine.WithRedundancy(2))
		Reset(eng.Stop)

		alice := createAnnotator(mux, "alice")
		task := createTask(mux, "img-001.jpg")
		next := doRequest(mux, http.MethodGet, "/api/tasks/next", alice, nil)
		So(next.Code, ShouldEqual, http.StatusOK)

		Convey("When the annotator submits a valid label", func() {
			w := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
				"task_id": task.ID,
				"label":   "Cat",
			})

			Convey("Then the annotation should be created", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				ann := decodeBody[map[string]any](w)
				So(ann["task_id"], ShouldEqual, task.ID)
				So(ann["label"], ShouldEqual, "Cat")
				So(ann["is_correct"], ShouldBeNil)
			})

			Convey("And submitting again should conflict", func() {
				dup := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
					"task_id": task.ID,
					"label":   "Dog",
				})
				So(dup.Code, ShouldEqual, http.StatusConflict)
				So(dup.Body.String(), ShouldContainSubstring, "duplicate_submission")
			})
		})

		Convey("When the label is outside the task options", func() {
			w := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
				"task_id": task.ID,
				"label":   "Horse",
			})

			Convey("Then the request should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "invalid_label")
			})
		})

		Convey("When submitting without a reservation", func() {
			other := createTask(mux, "img-002.jpg")
			w := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
				"task_id": other.ID,
				"label":   "Cat",
			})

			Convey("Then the request should conflict", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(w.Body.String(), ShouldContainSubstring, "not_assigned")
			})
		})

		Convey("When the task does not exist", func() {
			w := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
				"task_id": "no-such-task",
				"label":   "Cat",
			})

			Convey("Then the response should be 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestReviewAndPayrollEndpoints(t *testing.T) {
	Convey("Given a task driven into conflict over HTTP", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx, engine.WithRedundancy(2), engine.WithBountyLimits(0.5, 10))
		Reset(eng.Stop)

		alice := createAnnotator(mux, "alice")
		bob := createAnnotator(mux, "bob")
		task := createTask(mux, "img-001.jpg")

		for _, step := range []struct {
			caller engine.Caller
			label  string
		}{
			{alice, "Cat"},
			{bob, "Dog"},
		} {
			next := doRequest(mux, http.MethodGet, "/api/tasks/next", step.caller, nil)
			So(next.Code, ShouldEqual, http.StatusOK)
			sub := doRequest(mux, http.MethodPost, "/api/annotations", step.caller, map[string]string{
				"task_id": task.ID,
				"label":   step.label,
			})
			So(sub.Code, ShouldEqual, http.StatusCreated)
		}

		Convey("When the admin reads the review queue", func() {
			w := doRequest(mux, http.MethodGet, "/api/admin/reviews", adminCaller, nil)

			Convey("Then the disputed task should be listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				queue := decodeBody[[]types.TaskView](w)
				So(len(queue), ShouldEqual, 1)
				So(queue[0].ID, ShouldEqual, task.ID)
			})
		})

		Convey("When an annotator reads the review queue", func() {
			w := doRequest(mux, http.MethodGet, "/api/admin/reviews", alice, nil)

			Convey("Then the request should be forbidden", func() {
				So(w.Code, ShouldEqual, http.StatusForbidden)
			})
		})

		Convey("When the admin resolves the conflict", func() {
			w := doRequest(mux, http.MethodPost, "/api/admin/resolve", adminCaller, map[string]string{
				"task_id":     task.ID,
				"truth_label": "Cat",
			})

			Convey("Then the resolution should be confirmed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				res := decodeBody[map[string]string](w)
				So(res["task_id"], ShouldEqual, task.ID)
				So(res["final_label"], ShouldEqual, "Cat")
				So(res["status"], ShouldEqual, "resolved")
			})

			Convey("And resolving again should conflict", func() {
				again := doRequest(mux, http.MethodPost, "/api/admin/resolve", adminCaller, map[string]string{
					"task_id":     task.ID,
					"truth_label": "Dog",
				})
				So(again.Code, ShouldEqual, http.StatusConflict)
				So(again.Body.String(), ShouldContainSubstring, "not_in_conflict")
			})

			Convey("And the unpaid preview should show the correct annotator", func() {
				unpaid := doRequest(mux, http.MethodGet, "/api/admin/unpaid", adminCaller, nil)
				So(unpaid.Code, ShouldEqual, http.StatusOK)
				rows := decodeBody[[]types.UnpaidUser](unpaid)
				So(len(rows), ShouldEqual, 1)
				So(rows[0].Username, ShouldEqual, "alice")
				So(rows[0].Amount, ShouldEqual, 0.5)
			})

			Convey("And payroll should settle then go idle", func() {
				first := doRequest(mux, http.MethodPost, "/api/admin/payroll", adminCaller, nil)
				So(first.Code, ShouldEqual, http.StatusOK)
				paid := decodeBody[map[string]float64](first)
				So(paid["total_paid"], ShouldEqual, 0.5)

				second := doRequest(mux, http.MethodPost, "/api/admin/payroll", adminCaller, nil)
				So(second.Code, ShouldEqual, http.StatusOK)
				idle := decodeBody[map[string]float64](second)
				So(idle["total_paid"], ShouldEqual, 0.0)
			})
		})

		Convey("When the resolve payload is incomplete", func() {
			w := doRequest(mux, http.MethodPost, "/api/admin/resolve", adminCaller, map[string]string{
				"task_id": task.ID,
			})

			Convey("Then the request should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestStatsAndHistoryEndpoints(t *testing.T) {
	Convey("Given an annotator with a settled submission", t, func() {
		ctx := context.Background()
		eng, mux := newTestMux(ctx, engine.WithRedundancy(1), engine.WithBountyLimits(0.5, 10))
		Reset(eng.Stop)

		alice := createAnnotator(mux, "alice")
		task := createTask(mux, "img-001.jpg")
		next := doRequest(mux, http.MethodGet, "/api/tasks/next", alice, nil)
		So(next.Code, ShouldEqual, http.StatusOK)
		sub := doRequest(mux, http.MethodPost, "/api/annotations", alice, map[string]string{
			"task_id": task.ID,
			"label":   "Cat",
		})
		So(sub.Code, ShouldEqual, http.StatusCreated)

		Convey("When the annotator reads their stats", func() {
			w := doRequest(mux, http.MethodGet, "/api/stats", alice, nil)

			Convey("Then the accepted annotation should be reflected", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decodeBody[types.Stats](w)
				So(stats.TotalAnnotated, ShouldEqual, 1)
				So(stats.CorrectCount, ShouldEqual, 1)
				So(stats.Accuracy, ShouldEqual, 1.0)
				So(stats.PendingBalance, ShouldEqual, 0.5)
			})
		})

		Convey("When the annotator reads their history", func() {
			w := doRequest(mux, http.MethodGet, "/api/history", alice, nil)

			Convey("Then the accepted entry should be listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				entries := decodeBody[[]types.HistoryEntry](w)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].TaskID, ShouldEqual, task.ID)
				So(entries[0].State, ShouldEqual, types.HistoryAccepted)
				So(entries[0].SettledAt, ShouldBeNil)
			})

			Convey("And settlement should stamp the entry", func() {
				run := doRequest(mux, http.MethodPost, "/api/admin/payroll", adminCaller, nil)
				So(run.Code, ShouldEqual, http.StatusOK)

				after := doRequest(mux, http.MethodGet, "/api/history", alice, nil)
				So(after.Code, ShouldEqual, http.StatusOK)
				entries := decodeBody[[]types.HistoryEntry](after)
				So(len(entries), ShouldEqual, 1)
				So(entries[0].SettledAt, ShouldNotBeNil)
			})
		})

		Convey("When an unknown annotator reads stats", func() {
			ghost := engine.Caller{ID: "ghost", Role: model.RoleAnnotator}
			w := doRequest(mux, http.MethodGet, "/api/stats", ghost, nil)

			Convey("Then the response should be 404", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}
