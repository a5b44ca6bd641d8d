package opt

import (
	"context"
	"math/rand"
	"time"

	"hgsolve/internal/cvrp"
)

// Progress event kinds reported to the callback.
const (
	ProgressIncumbent = "incumbent"
	ProgressPenalty   = "penalty"
	ProgressDiversify = "diversify"
	ProgressDone      = "done"
)

// Progress is a solver event: a new best feasible solution, a penalty
// adaptation, a diversification restart, or completion.
type Progress struct {
	Kind      string    `json:"kind"`
	Iteration int       `json:"iteration"`
	BestCost  float64   `json:"bestCost,omitempty"`
	Feasible  bool      `json:"feasible"`
	Penalty   float64   `json:"penalty,omitempty"`
	Routes    [][]int   `json:"routes,omitempty"`
	At        time.Time `json:"at"`
}

// ProgressFunc receives solver events. It runs on the solver goroutine, so it
// must not block.
type ProgressFunc func(Progress)

// Result is the outcome of a solver run. Feasible is false only when no
// capacity-respecting solution was ever found, in which case Solution holds
// the lowest penalized-cost individual instead.
type Result struct {
	Solution   cvrp.Solution
	Tour       []int
	Feasible   bool
	Iterations int
	Runtime    time.Duration
	Penalty    float64
}

// Solve runs the hybrid genetic search on the problem until the time limit,
// the stagnation limit, or ctx cancellation. All randomness flows through one
// PRNG seeded from the config, so a fixed seed gives a fixed result.
func Solve(ctx context.Context, p *cvrp.Problem, cfg Config, progress ProgressFunc) (*Result, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	penalty := cfg.InitialPenalty
	if penalty == 0 {
		penalty = p.Capacity / 10
	}
	penalty = clampPenalty(penalty)

	s := &search{
		p:        p,
		cfg:      cfg,
		rng:      rng,
		pop:      newPopulation(cfg),
		ls:       newLocalSearch(p, cfg.Granularity),
		sp:       newSplitter(p.NumCustomers()),
		penalty:  penalty,
		progress: progress,
	}

	start := time.Now()
	deadline := start.Add(cfg.TimeLimit)
	s.seedPopulation()

	sinceImprove := 0
	sinceDiversify := 0
	recentFeasible, recentTotal := 0, 0
	iter := 0
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if sinceImprove >= cfg.MaxIterNoImprove {
			break
		}
		iter++

		p1 := s.pop.tournament(rng)
		p2 := s.pop.tournament(rng)
		child := newIndividual(crossoverOX(rng, p1.Tour, p2.Tour, p.NumCustomers()))
		child.decode(p, s.sp, s.penalty, p.MaxVehicles)
		s.ls.educate(child, s.penalty, p.MaxVehicles, rng)

		recentTotal++
		if child.Feasible {
			recentFeasible++
		}

		improved := false
		if child.Feasible {
			improved = s.observe(child, iter)
			s.insert(child)
		} else {
			if rng.Float64() < cfg.PRepair {
				repaired := child.clone()
				s.ls.educate(repaired, s.penalty*10, p.MaxVehicles, rng)
				repaired.evaluate(p, s.penalty, p.MaxVehicles)
				if repaired.Feasible {
					improved = s.observe(repaired, iter)
					s.insert(repaired)
				}
			}
			s.observeInfeasible(child)
			s.insert(child)
		}

		if improved {
			sinceImprove = 0
			sinceDiversify = 0
		} else {
			sinceImprove++
			sinceDiversify++
		}

		if iter%cfg.AdaptInterval == 0 {
			f := float64(recentFeasible) / float64(recentTotal)
			switch {
			case f < 0.05:
				s.penalty = clampPenalty(s.penalty * 1.2)
			case f > 0.25:
				s.penalty = clampPenalty(s.penalty / 1.2)
			}
			recentFeasible, recentTotal = 0, 0
			progress(Progress{Kind: ProgressPenalty, Iteration: iter, Penalty: s.penalty, At: time.Now()})
		}

		if sinceDiversify >= cfg.DivInterval {
			s.diversify()
			sinceDiversify = 0
			progress(Progress{Kind: ProgressDiversify, Iteration: iter, Penalty: s.penalty, At: time.Now()})
		}
	}

	res := &Result{
		Iterations: iter,
		Runtime:    time.Since(start),
		Penalty:    s.penalty,
	}
	best := s.best
	if best == nil {
		best = s.bestInfeasible
	}
	if best == nil {
		best = s.pop.bestPenalized()
	}
	res.Feasible = best != nil && best.Feasible
	if best != nil {
		res.Solution = best.Solution(p)
		res.Tour = append([]int(nil), best.Tour...)
	}
	progress(Progress{
		Kind:      ProgressDone,
		Iteration: iter,
		BestCost:  res.Solution.Distance,
		Feasible:  res.Feasible,
		Routes:    res.Solution.Routes,
		At:        time.Now(),
	})
	return res, nil
}

func clampPenalty(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 100000 {
		return 100000
	}
	return v
}

// search bundles the mutable state of one run.
type search struct {
	p        *cvrp.Problem
	cfg      Config
	rng      *rand.Rand
	pop      *Population
	ls       *LocalSearch
	sp       *splitter
	penalty  float64
	progress ProgressFunc

	best           *Individual // best feasible ever, cloned
	bestInfeasible *Individual // lowest penalized cost seen, kept until a feasible appears
}

// seedPopulation fills both subpopulations with educated random individuals,
// four times the minimum size.
func (s *search) seedPopulation() {
	n := s.p.NumCustomers()
	for i := 0; i < 4*s.cfg.MinPopSize; i++ {
		ind := newIndividual(randomTour(s.rng, n))
		ind.decode(s.p, s.sp, s.penalty, s.p.MaxVehicles)
		s.ls.educate(ind, s.penalty, s.p.MaxVehicles, s.rng)
		if ind.Feasible {
			s.observe(ind, 0)
		} else {
			s.observeInfeasible(ind)
		}
		s.insert(ind)
	}
	s.pop.updateBiasedFitness(s.pop.feasible)
	s.pop.updateBiasedFitness(s.pop.infeasible)
}

// insert adds the individual with a provisional cost-rank fitness so
// tournaments see it before the next full rank refresh at survivor selection.
func (s *search) insert(ind *Individual) {
	sub := s.pop.infeasible
	if ind.Feasible {
		sub = s.pop.feasible
	}
	rank := 0
	for _, other := range sub {
		if other.CostPenalized < ind.CostPenalized {
			rank++
		}
	}
	ind.biasedFitness = float64(rank)
	s.pop.insert(ind)
}

// observe tracks a feasible candidate, reporting and cloning it when it
// strictly improves the incumbent.
func (s *search) observe(ind *Individual, iter int) bool {
	if s.best != nil && ind.CostFeasible >= s.best.CostFeasible {
		return false
	}
	s.best = ind.clone()
	s.bestInfeasible = nil
	s.progress(Progress{
		Kind:      ProgressIncumbent,
		Iteration: iter,
		BestCost:  ind.CostFeasible,
		Feasible:  true,
		Penalty:   s.penalty,
		Routes:    append([][]int(nil), ind.Routes...),
		At:        time.Now(),
	})
	return true
}

func (s *search) observeInfeasible(ind *Individual) {
	if s.best != nil {
		return
	}
	if s.bestInfeasible == nil || ind.CostPenalized < s.bestInfeasible.CostPenalized {
		s.bestInfeasible = ind.clone()
	}
}

// diversify keeps the MinPopSize/3 best of each subpopulation and refills with
// fresh educated random individuals.
func (s *search) diversify() {
	s.pop.shrinkToElite()
	n := s.p.NumCustomers()
	for i := 0; i < 4*s.cfg.MinPopSize; i++ {
		ind := newIndividual(randomTour(s.rng, n))
		ind.decode(s.p, s.sp, s.penalty, s.p.MaxVehicles)
		s.ls.educate(ind, s.penalty, s.p.MaxVehicles, s.rng)
		if ind.Feasible {
			s.observe(ind, 0)
		} else {
			s.observeInfeasible(ind)
		}
		s.insert(ind)
	}
	s.pop.updateBiasedFitness(s.pop.feasible)
	s.pop.updateBiasedFitness(s.pop.infeasible)
}
