package api

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hgsolve/internal/auth"
	"hgsolve/internal/cvrp"
	"hgsolve/internal/metrics"
	"hgsolve/internal/model"
	"hgsolve/internal/opt"
	"hgsolve/internal/store"
	"hgsolve/internal/webhooks"
)

type Server struct {
	Store    store.Store
	Pub      *webhooks.Publisher
	Auth     *auth.Verifier
	Broker   EventBroker
	Defaults opt.Config

	limiter *submitLimiter

	mu     sync.Mutex
	cancel map[string]context.CancelFunc // running job id -> cancel
}

// NewServer wires the store, broker, auth and solver defaults from the
// environment. Without DATABASE_URL the store is in-memory; without REDIS_URL
// the broker is in-process.
func NewServer() (*Server, error) {
	var s store.Store
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.Migrate(context.Background()); err != nil {
				return nil, err
			}
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	cfg := opt.DefaultConfig()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := opt.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	metrics.RegisterDefault()
	return &Server{
		Store:    s,
		Pub:      webhooks.NewPublisher(s),
		Auth:     auth.NewVerifierFromEnv(),
		Broker:   broker,
		Defaults: cfg,
		limiter:  newSubmitLimiter(),
		cancel:   map[string]context.CancelFunc{},
	}, nil
}

// NewWebhookWorker creates the background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

// startJob launches one solve on its own goroutine. Progress flows to the
// broker; the terminal state lands in the store and fires webhooks.
func (s *Server) startJob(job model.Job, p *cvrp.Problem, cfg opt.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel[job.ID] = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancel, job.ID)
			s.mu.Unlock()
		}()
		metrics.JobsRunning.Inc()
		defer metrics.JobsRunning.Dec()

		job.Status = model.JobRunning
		_ = s.Store.UpdateJob(ctx, job)
		s.Broker.Publish(job.ID, JobEvent{Type: "job.started", Data: map[string]any{
			"jobId": job.ID, "ts": time.Now().UTC().Format(time.RFC3339),
		}})

		res, err := opt.Solve(ctx, p, cfg, func(ev opt.Progress) {
			s.publishProgress(job.ID, ev)
		})
		job.FinishedAt = time.Now().UTC().Format(time.RFC3339)
		if err != nil {
			job.Status = model.JobFailed
			job.Error = err.Error()
			_ = s.Store.UpdateJob(context.Background(), job)
			metrics.SolveJobs.WithLabelValues(model.JobFailed).Inc()
			s.Pub.Emit(context.Background(), job.TenantID, "job.failed", map[string]any{
				"jobId": job.ID, "error": job.Error,
			})
			return
		}

		job.Status = model.JobCompleted
		job.BestCost = res.Solution.Distance
		job.Iterations = res.Iterations
		job.Feasible = res.Feasible
		_ = s.Store.UpdateJob(context.Background(), job)
		_ = s.Store.SaveSolution(context.Background(), job.TenantID, solutionOut(job.ID, p, res))
		metrics.SolveJobs.WithLabelValues(model.JobCompleted).Inc()
		metrics.SolveRuntime.Observe(res.Runtime.Seconds())
		metrics.SolveIterations.Observe(float64(res.Iterations))
		s.Pub.Emit(context.Background(), job.TenantID, "job.completed", map[string]any{
			"jobId":      job.ID,
			"cost":       res.Solution.Distance,
			"feasible":   res.Feasible,
			"iterations": res.Iterations,
		})
	}()
}

// cancelJob stops a running job, if any. The solve loop notices at the next
// iteration boundary and finishes with its best-so-far.
func (s *Server) cancelJob(jobID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancel[jobID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Server) publishProgress(jobID string, ev opt.Progress) {
	data := map[string]any{
		"jobId":     jobID,
		"iteration": ev.Iteration,
		"ts":        ev.At.UTC().Format(time.RFC3339),
	}
	switch ev.Kind {
	case opt.ProgressIncumbent:
		data["bestCost"] = ev.BestCost
		data["feasible"] = ev.Feasible
	case opt.ProgressPenalty, opt.ProgressDiversify:
		data["penalty"] = ev.Penalty
	case opt.ProgressDone:
		data["bestCost"] = ev.BestCost
		data["feasible"] = ev.Feasible
	}
	s.Broker.Publish(jobID, JobEvent{Type: "solve." + ev.Kind, Data: data})
}

// solutionOut converts a solver result into the API representation, with
// routes in external node IDs and the plain-text form attached.
func solutionOut(jobID string, p *cvrp.Problem, res *opt.Result) model.SolutionOut {
	out := model.SolutionOut{
		JobID:     jobID,
		Routes:    make([]model.RouteOut, 0, len(res.Solution.Routes)),
		Cost:      res.Solution.Distance,
		Feasible:  res.Feasible,
		Iteration: res.Iterations,
	}
	for _, r := range res.Solution.Routes {
		ids := make([]int, len(r))
		for i, c := range r {
			ids[i] = p.Nodes[c].ID
		}
		out.Routes = append(out.Routes, model.RouteOut{
			Nodes:    ids,
			Load:     p.RouteLoad(r),
			Distance: p.RouteDistance(r),
		})
	}
	var sb strings.Builder
	if err := cvrp.WriteSolution(&sb, p, res.Solution); err == nil {
		out.Text = sb.String()
	}
	return out
}

// newJob builds the queued job record for a solve request.
func newJob(tenantID, name string) model.Job {
	return model.Job{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Status:    model.JobQueued,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// problemFromRequest builds the CVRP instance from either representation.
func problemFromRequest(req model.SolveRequest) (*cvrp.Problem, error) {
	if req.Instance != "" {
		return cvrp.Parse(strings.NewReader(req.Instance))
	}
	if len(req.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no instance or nodes given", cvrp.ErrInvalidInstance)
	}
	var depot *cvrp.Node
	var customers []cvrp.Node
	for _, n := range req.Nodes {
		node := cvrp.Node{ID: n.ID, X: n.X, Y: n.Y, Demand: n.Demand}
		if n.Demand == 0 {
			if depot != nil {
				return nil, fmt.Errorf("%w: duplicated depot (node %d)", cvrp.ErrInvalidInstance, n.ID)
			}
			d := node
			depot = &d
			continue
		}
		customers = append(customers, node)
	}
	if depot == nil {
		return nil, fmt.Errorf("%w: depot missing (no node with demand 0)", cvrp.ErrInvalidInstance)
	}
	nodes := append([]cvrp.Node{*depot}, customers...)
	name := req.Name
	if name == "" {
		name = "instance"
	}
	return cvrp.NewProblem(name, nodes, req.Capacity, req.MaxVehicles)
}

// mergeConfig overlays non-zero request fields on the server defaults.
func (s *Server) mergeConfig(req *opt.Config) opt.Config {
	cfg := s.Defaults
	if req == nil {
		return cfg
	}
	if req.TimeLimit != 0 {
		cfg.TimeLimit = req.TimeLimit
	}
	if req.MaxIterNoImprove != 0 {
		cfg.MaxIterNoImprove = req.MaxIterNoImprove
	}
	if req.MinPopSize != 0 {
		cfg.MinPopSize = req.MinPopSize
	}
	if req.GenerationSize != 0 {
		cfg.GenerationSize = req.GenerationSize
	}
	if req.NElite != 0 {
		cfg.NElite = req.NElite
	}
	if req.NClose != 0 {
		cfg.NClose = req.NClose
	}
	if req.Granularity != 0 {
		cfg.Granularity = req.Granularity
	}
	if req.PRepair != 0 {
		cfg.PRepair = req.PRepair
	}
	if req.AdaptInterval != 0 {
		cfg.AdaptInterval = req.AdaptInterval
	}
	if req.DivInterval != 0 {
		cfg.DivInterval = req.DivInterval
	}
	if req.InitialPenalty != 0 {
		cfg.InitialPenalty = req.InitialPenalty
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	return cfg
}
