package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hgsolve/internal/model"
	"hgsolve/internal/opt"
)

const testInstance = "toy\n10 3\n0 50 50 0\n1 60 50 4\n2 40 50 3\n3 50 60 5\n"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.Defaults = opt.Config{
		TimeLimit:        2 * time.Second,
		MaxIterNoImprove: 200,
		MinPopSize:       8,
		GenerationSize:   12,
		NElite:           2,
		NClose:           3,
		Granularity:      10,
		PRepair:          0.5,
		AdaptInterval:    50,
		DivInterval:      500,
		Seed:             7,
	}
	return s
}

func solveBody(t *testing.T) []byte {
	t.Helper()
	req := model.SolveRequest{Instance: testInstance}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func submitJob(t *testing.T, s *Server) model.Job {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t)))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("solve: got %d: %s", rr.Code, rr.Body.String())
	}
	var job model.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	return job
}

func waitForJob(t *testing.T, s *Server, id, status string) model.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := httptest.NewRecorder()
		s.JobByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil))
		if rr.Code != 200 {
			t.Fatalf("get job: %d: %s", rr.Code, rr.Body.String())
		}
		var job model.Job
		_ = json.Unmarshal(rr.Body.Bytes(), &job)
		if job.Status == status {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s", id, status)
	return model.Job{}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
}

func TestSolveToCompletion(t *testing.T) {
	s := newTestServer(t)
	job := submitJob(t, s)
	if job.Status != model.JobQueued {
		t.Fatalf("new job status: %s", job.Status)
	}
	done := waitForJob(t, s, job.ID, model.JobCompleted)
	if done.BestCost <= 0 {
		t.Fatalf("completed job has no cost: %+v", done)
	}
	if !done.Feasible {
		t.Fatalf("toy instance should be feasible: %+v", done)
	}

	rr := httptest.NewRecorder()
	s.JobByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/solution", nil))
	if rr.Code != 200 {
		t.Fatalf("solution: %d: %s", rr.Code, rr.Body.String())
	}
	var sol model.SolutionOut
	if err := json.Unmarshal(rr.Body.Bytes(), &sol); err != nil {
		t.Fatalf("decode solution: %v", err)
	}
	if len(sol.Routes) == 0 || sol.Cost != done.BestCost {
		t.Fatalf("bad solution: %+v", sol)
	}
	for _, r := range sol.Routes {
		if r.Load > 10 {
			t.Fatalf("route exceeds capacity: %+v", r)
		}
	}
}

func TestSolutionAsPlainText(t *testing.T) {
	s := newTestServer(t)
	job := submitJob(t, s)
	waitForJob(t, s, job.ID, model.JobCompleted)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/solution", nil)
	req.Header.Set("Accept", "text/plain")
	s.JobByIDHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solution text: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type: %s", ct)
	}
	if !strings.Contains(rr.Body.String(), "Cost") {
		t.Fatalf("text form missing cost line: %q", rr.Body.String())
	}
}

func TestSolutionBeforeDoneConflicts(t *testing.T) {
	s := newTestServer(t)
	job := newJob("t_demo", "pending")
	if err := s.Store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	rr := httptest.NewRecorder()
	s.JobByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID+"/solution", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestSolveRejectsBadInstance(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"instance":"bad\n10\n0 50 50 0\n"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body))
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("problem content type: %s", ct)
	}
}

func TestSolveRejectsViewer(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t)))
	req.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestSolveRateLimited(t *testing.T) {
	s := newTestServer(t)
	limited := false
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t)))
		s.SolveHandler(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("burst of submissions was never rate limited")
	}
}

func TestJobsListAdminOnly(t *testing.T) {
	s := newTestServer(t)
	submitJob(t, s)

	rr := httptest.NewRecorder()
	s.JobsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	if rr.Code != 200 {
		t.Fatalf("jobs list: %d", rr.Code)
	}
	var out struct {
		Items []model.Job `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if len(out.Items) == 0 {
		t.Fatalf("expected at least one job")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("X-Role", "submitter")
	s.JobsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for submitter, got %d", rr.Code)
	}
}

func TestJobTenantIsolation(t *testing.T) {
	s := newTestServer(t)
	job := submitJob(t, s)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+job.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_other")
	s.JobByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across tenants, got %d", rr.Code)
	}
}

func TestCancelJob(t *testing.T) {
	s := newTestServer(t)
	job := submitJob(t, s)

	rr := httptest.NewRecorder()
	s.JobByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/jobs/"+job.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("cancel: %d: %s", rr.Code, rr.Body.String())
	}
	// Either the cancel landed while running or the job had already finished.
	var out map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if _, ok := out["cancelled"]; !ok {
		t.Fatalf("cancel response missing field: %v", out)
	}
}

func TestSubscriptionsLifecycle(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"url":"https://example.com/hook","events":["job.completed"],"secret":"s1"}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d: %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.ID == "" || sub.Secret != "" {
		t.Fatalf("secret must not echo back: %+v", sub)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list subs: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete sub: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete should 404, got %d", rr.Code)
	}
}

func TestSubscriptionRequiresURLAndEvents(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader([]byte(`{"url":""}`)))
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSolveWithInlineNodes(t *testing.T) {
	s := newTestServer(t)
	req := model.SolveRequest{
		Name:     "inline",
		Capacity: 10,
		Nodes: []model.NodeIn{
			{ID: 0, X: 50, Y: 50, Demand: 0},
			{ID: 1, X: 60, Y: 50, Demand: 4},
			{ID: 2, X: 40, Y: 50, Demand: 3},
		},
	}
	b, _ := json.Marshal(req)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(b)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("inline solve: %d: %s", rr.Code, rr.Body.String())
	}
	var job model.Job
	_ = json.Unmarshal(rr.Body.Bytes(), &job)
	waitForJob(t, s, job.ID, model.JobCompleted)
}

func TestJobWebSocketStreamsEvents(t *testing.T) {
	s := newTestServer(t)
	job := newJob("t_demo", "ws")
	if err := s.Store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(s.JobByIDHandler))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + job.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(job.ID, JobEvent{Type: "solve.incumbent", Data: map[string]any{"bestCost": 12.0}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt JobEvent
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Type != "solve.incumbent" {
		t.Fatalf("got %+v", evt)
	}
}

func TestEventStreamUnknownJob(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.JobByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/jobs/nope/events", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
