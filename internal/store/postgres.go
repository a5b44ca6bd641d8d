package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hgsolve/internal/model"
)

// Postgres persists jobs, solutions and webhook state when DATABASE_URL is set.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if it does not exist yet. Dev helper; production
// deployments run migrations out of band.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS solve_jobs (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT,
			status TEXT NOT NULL,
			best_cost DOUBLE PRECISION,
			iterations INT NOT NULL DEFAULT 0,
			feasible BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS solve_jobs_tenant_idx ON solve_jobs (tenant_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS solve_solutions (
			job_id UUID PRIMARY KEY REFERENCES solve_jobs(id),
			tenant_id TEXT NOT NULL,
			routes JSONB NOT NULL,
			cost DOUBLE PRECISION NOT NULL,
			feasible BOOLEAN NOT NULL,
			iteration INT NOT NULL DEFAULT 0,
			text_form TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			events TEXT[] NOT NULL,
			secret TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			subscription_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			payload BYTEA NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL,
			last_error TEXT,
			response_code INT,
			latency_ms INT
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_due_idx ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateJob(ctx context.Context, job model.Job) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO solve_jobs (id, tenant_id, name, status, feasible, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		job.ID, job.TenantID, nullIfEmpty(job.Name), job.Status, job.Feasible, job.CreatedAt)
	return err
}

func (p *Postgres) GetJob(ctx context.Context, tenantID, jobID string) (model.Job, error) {
	var j model.Job
	var name, jobErr, finished sql.NullString
	var best sql.NullFloat64
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, tenant_id, name, status, best_cost, iterations, feasible, error,
		        created_at::text, finished_at::text
		 FROM solve_jobs WHERE tenant_id=$1 AND id=$2`, tenantID, jobID)
	if err := row.Scan(&j.ID, &j.TenantID, &name, &j.Status, &best, &j.Iterations,
		&j.Feasible, &jobErr, &j.CreatedAt, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return j, ErrNotFound
		}
		return j, err
	}
	j.Name = name.String
	j.BestCost = best.Float64
	j.Error = jobErr.String
	j.FinishedAt = finished.String
	return j, nil
}

func (p *Postgres) UpdateJob(ctx context.Context, job model.Job) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE solve_jobs SET status=$1, best_cost=$2, iterations=$3, feasible=$4,
		        error=$5, finished_at=$6
		 WHERE id=$7`,
		job.Status, job.BestCost, job.Iterations, job.Feasible,
		nullIfEmpty(job.Error), nullIfEmpty(job.FinishedAt), job.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListJobs(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Job, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, tenant_id, name, status, best_cost, iterations, feasible, error,
	             created_at::text, finished_at::text
	      FROM solve_jobs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += ` AND status=$2`
	}
	if cursor != "" {
		args = append(args, cursor)
		q += ` AND id::text > $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	q += ` ORDER BY id LIMIT $` + strconv.Itoa(len(args))

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Job{}
	var last string
	for rows.Next() {
		var j model.Job
		var name, jobErr, finished sql.NullString
		var best sql.NullFloat64
		if err := rows.Scan(&j.ID, &j.TenantID, &name, &j.Status, &best, &j.Iterations,
			&j.Feasible, &jobErr, &j.CreatedAt, &finished); err != nil {
			return nil, "", err
		}
		j.Name = name.String
		j.BestCost = best.Float64
		j.Error = jobErr.String
		j.FinishedAt = finished.String
		out = append(out, j)
		last = j.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (p *Postgres) SaveSolution(ctx context.Context, tenantID string, sol model.SolutionOut) error {
	routes, err := json.Marshal(sol.Routes)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO solve_solutions (job_id, tenant_id, routes, cost, feasible, iteration, text_form)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (job_id) DO UPDATE SET routes=$3, cost=$4, feasible=$5, iteration=$6, text_form=$7`,
		sol.JobID, tenantID, routes, sol.Cost, sol.Feasible, sol.Iteration, nullIfEmpty(sol.Text))
	return err
}

func (p *Postgres) GetSolution(ctx context.Context, tenantID, jobID string) (model.SolutionOut, error) {
	var sol model.SolutionOut
	var routes []byte
	var text sql.NullString
	row := p.db.QueryRowContext(ctx,
		`SELECT job_id::text, routes, cost, feasible, iteration, text_form
		 FROM solve_solutions WHERE tenant_id=$1 AND job_id=$2`, tenantID, jobID)
	if err := row.Scan(&sol.JobID, &routes, &sol.Cost, &sol.Feasible, &sol.Iteration, &text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sol, ErrNotFound
		}
		return sol, err
	}
	if err := json.Unmarshal(routes, &sol.Routes); err != nil {
		return sol, err
	}
	sol.Text = text.String
	return sol, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{
		ID:       uuid.New().String(),
		TenantID: req.TenantID,
		URL:      req.URL,
		Events:   append([]string(nil), req.Events...),
		Secret:   req.Secret,
	}
	events, err := json.Marshal(sub.Events)
	if err != nil {
		return model.Subscription{}, err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, tenant_id, url, events, secret)
		 VALUES ($1,$2,$3, (SELECT array_agg(e) FROM jsonb_array_elements_text($4::jsonb) e), $5)`,
		sub.ID, sub.TenantID, sub.URL, events, sub.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, tenant_id, url, to_jsonb(events), secret
		 FROM subscriptions WHERE tenant_id=$1 AND ($2 = ANY(events) OR '*' = ANY(events))`,
		tenantID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, tenant_id, url, to_jsonb(events), secret
			 FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`,
			tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, tenant_id, url, to_jsonb(events), secret
			 FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`,
			tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out, err := scanSubscriptions(rows)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var events []byte
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.URL, &events, &sub.Secret); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(events, &sub.Events); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, next_attempt_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7, now())`,
		id, tenantID, subscriptionID, eventType, url, secret, payload)
	return id, err
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, tenant_id, subscription_id::text, event_type, url, secret, payload, status, attempts
		 FROM webhook_deliveries
		 WHERE status='pending' AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType,
			&d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode, latencyMs int) error {
	status := "pending"
	if success {
		status = "delivered"
	}
	var next any
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		 SET status=$1, attempts=attempts+1, next_attempt_at=COALESCE($2, next_attempt_at),
		     last_error=$3, response_code=$4, latency_ms=$5
		 WHERE id=$6`,
		status, next, nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id, lastError string, responseCode, latencyMs int) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		 SET status='failed', attempts=attempts+1, last_error=$1, response_code=$2, latency_ms=$3
		 WHERE id=$4`,
		nullIfEmpty(lastError), responseCode, latencyMs, id)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
