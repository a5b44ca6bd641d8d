package store

import (
	"context"
	"errors"
	"time"

	"hgsolve/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job model.Job) error
	GetJob(ctx context.Context, tenantID, jobID string) (model.Job, error)
	UpdateJob(ctx context.Context, job model.Job) error
	ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error)

	// Solutions
	SaveSolution(ctx context.Context, tenantID string, sol model.SolutionOut) error
	GetSolution(ctx context.Context, tenantID, jobID string) (model.SolutionOut, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
