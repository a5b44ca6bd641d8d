package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"hgsolve/internal/model"
)

func seedJob(t *testing.T, m *Memory, tenant, id, status string) model.Job {
	t.Helper()
	job := model.Job{
		ID:        id,
		TenantID:  tenant,
		Name:      "inst-" + id,
		Status:    status,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create job %s: %v", id, err)
	}
	return job
}

func TestMemoryJobCRUD(t *testing.T) {
	m := NewMemory()
	job := seedJob(t, m, "t1", "j1", model.JobQueued)

	got, err := m.GetJob(context.Background(), "t1", "j1")
	if err != nil || got.ID != job.ID {
		t.Fatalf("get: %v %+v", err, got)
	}

	job.Status = model.JobCompleted
	job.BestCost = 99.5
	if err := m.UpdateJob(context.Background(), job); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = m.GetJob(context.Background(), "t1", "j1")
	if got.Status != model.JobCompleted || got.BestCost != 99.5 {
		t.Fatalf("update not applied: %+v", got)
	}

	if _, err := m.GetJob(context.Background(), "t2", "j1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get should be not found, got %v", err)
	}
	if _, err := m.GetJob(context.Background(), "t1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}
}

func TestMemoryListJobsFilterAndPaging(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 5; i++ {
		status := model.JobQueued
		if i%2 == 0 {
			status = model.JobCompleted
		}
		seedJob(t, m, "t1", fmt.Sprintf("j%d", i), status)
	}
	seedJob(t, m, "t2", "other", model.JobQueued)

	items, _, err := m.ListJobs(context.Background(), "t1", model.JobCompleted, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("completed filter: got %d", len(items))
	}
	for _, j := range items {
		if j.TenantID != "t1" {
			t.Fatalf("tenant leak: %+v", j)
		}
	}

	var seen []string
	cursor := ""
	for {
		page, next, err := m.ListJobs(context.Background(), "t1", "", cursor, 2)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		for _, j := range page {
			seen = append(seen, j.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 {
		t.Fatalf("paging saw %d jobs: %v", len(seen), seen)
	}
}

func TestMemorySolutionRoundTrip(t *testing.T) {
	m := NewMemory()
	seedJob(t, m, "t1", "j1", model.JobCompleted)

	sol := model.SolutionOut{
		JobID:    "j1",
		Cost:     123.4,
		Feasible: true,
		Routes:   []model.RouteOut{{Nodes: []int{1, 2}, Load: 7, Distance: 60}},
		Text:     "Route #1: 1 2\nCost 123.40\n",
	}
	if err := m.SaveSolution(context.Background(), "t1", sol); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := m.GetSolution(context.Background(), "t1", "j1")
	if err != nil || got.Cost != sol.Cost || len(got.Routes) != 1 || got.Text == "" {
		t.Fatalf("get solution: %v %+v", err, got)
	}
	if _, err := m.GetSolution(context.Background(), "t2", "j1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant solution should be not found")
	}

	// Overwrite with a better incumbent.
	sol.Cost = 100
	if err := m.SaveSolution(context.Background(), "t1", sol); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = m.GetSolution(context.Background(), "t1", "j1")
	if got.Cost != 100 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestMemorySubscriptionsMatchEvents(t *testing.T) {
	m := NewMemory()
	mk := func(events ...string) model.Subscription {
		sub, err := m.CreateSubscription(context.Background(), model.SubscriptionRequest{
			TenantID: "t1", URL: "https://example.com/h", Events: events, Secret: "s",
		})
		if err != nil {
			t.Fatalf("create sub: %v", err)
		}
		return sub
	}
	mk("job.completed")
	mk("*")
	mk("job.failed")

	subs, err := m.GetSubscriptionsForEvent(context.Background(), "t1", "job.completed")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected exact + wildcard match, got %d", len(subs))
	}
	if subs, _ := m.GetSubscriptionsForEvent(context.Background(), "t2", "job.completed"); len(subs) != 0 {
		t.Fatalf("cross-tenant match: %+v", subs)
	}
}

func TestMemoryDeleteSubscription(t *testing.T) {
	m := NewMemory()
	sub, _ := m.CreateSubscription(context.Background(), model.SubscriptionRequest{
		TenantID: "t1", URL: "https://example.com/h", Events: []string{"*"},
	})
	if err := m.DeleteSubscription(context.Background(), "t1", sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.DeleteSubscription(context.Background(), "t1", sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if err := m.DeleteSubscription(context.Background(), "t2", "whatever"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant delete: %v", err)
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	id, err := m.EnqueueWebhook(context.Background(), "t1", "sub1", "job.completed", "https://example.com/h", "s", []byte(`{}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue: %v", err)
	}

	due, err := m.FetchDueWebhookDeliveries(context.Background(), 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("fetch due: %v %d", err, len(due))
	}
	if due[0].EventType != "job.completed" || due[0].Attempts != 0 {
		t.Fatalf("delivery shape: %+v", due[0])
	}

	next := time.Now().Add(time.Minute)
	if err := m.MarkWebhookDelivery(context.Background(), id, false, &next, "boom", 500, 12); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(context.Background(), 10); len(due) != 0 {
		t.Fatalf("retry should not be due yet: %+v", due)
	}

	if err := m.MarkWebhookDelivery(context.Background(), id, true, nil, "", 200, 8); err != nil {
		t.Fatalf("mark success: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(context.Background(), 10); len(due) != 0 {
		t.Fatalf("delivered should not be fetched: %+v", due)
	}
}

func TestMemoryWebhookFailTerminal(t *testing.T) {
	m := NewMemory()
	id, _ := m.EnqueueWebhook(context.Background(), "t1", "sub1", "job.failed", "https://example.com/h", "", []byte(`{}`))
	if err := m.FailWebhookDelivery(context.Background(), id, "gave up", 500, 40); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if due, _ := m.FetchDueWebhookDeliveries(context.Background(), 10); len(due) != 0 {
		t.Fatalf("failed delivery should not be fetched: %+v", due)
	}
}
