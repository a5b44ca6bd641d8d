package opt

import (
	"math"
	"math/rand"
	"testing"

	"hgsolve/internal/cvrp"
)

func educated(t *testing.T, p *cvrp.Problem, routes [][]int, penalty float64, seed int64) *Individual {
	t.Helper()
	ind := &Individual{}
	ind.setRoutes(routes)
	ind.evaluate(p, penalty, 0)
	ls := newLocalSearch(p, 20)
	ls.educate(ind, penalty, 0, rand.New(rand.NewSource(seed)))
	return ind
}

func TestEducateUncrossesClusters(t *testing.T) {
	p := mustProblem(t, []cvrp.Node{
		{ID: 0},
		{ID: 1, X: 10, Demand: 1},
		{ID: 2, X: 11, Demand: 1},
		{ID: 3, X: -10, Demand: 1},
		{ID: 4, X: -11, Demand: 1},
	}, 2)

	// One customer of each cluster per route: every route crosses the plane.
	ind := educated(t, p, [][]int{{1, 3}, {2, 4}}, p.Capacity/10, 5)

	if !ind.Feasible {
		t.Fatalf("educated solution infeasible")
	}
	if math.Abs(ind.CostFeasible-44) > 1e-9 {
		t.Fatalf("cost %g, want 44", ind.CostFeasible)
	}
}

func TestEducateNeverWorsens(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(10)
		p := randomProblem(t, rng, n)
		penalty := p.Capacity / 10

		sp := newSplitter(n)
		ind := newIndividual(randomTour(rng, n))
		ind.decode(p, sp, penalty, 0)
		before := ind.CostPenalized

		ls := newLocalSearch(p, 20)
		ls.educate(ind, penalty, 0, rng)
		if ind.CostPenalized > before+1e-9 {
			t.Fatalf("trial %d: education worsened cost from %g to %g", trial, before, ind.CostPenalized)
		}
	}
}

func TestEducateKeepsRouteInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	for trial := 0; trial < 20; trial++ {
		n := 4 + rng.Intn(12)
		p := randomProblem(t, rng, n)
		penalty := p.Capacity / 10

		sp := newSplitter(n)
		ind := newIndividual(randomTour(rng, n))
		ind.decode(p, sp, penalty, 0)
		ls := newLocalSearch(p, 20)
		ls.educate(ind, penalty, 0, rng)

		seen := make([]bool, n+1)
		count := 0
		for _, r := range ind.Routes {
			for _, c := range r {
				if seen[c] {
					t.Fatalf("customer %d appears twice", c)
				}
				seen[c] = true
				count++
			}
		}
		if count != n {
			t.Fatalf("routes cover %d customers, want %d", count, n)
		}

		fresh := 0.0
		for _, r := range ind.Routes {
			fresh += p.RouteDistance(r)
		}
		if math.Abs(fresh-ind.CostFeasible) > 1e-9 {
			t.Fatalf("stored distance %g, recomputed %g", ind.CostFeasible, fresh)
		}
	}
}

// TestEducateReachesLocalOptimum replays single-node relocate and swap on the
// educated solution with a from-scratch evaluator; none may improve.
func TestEducateReachesLocalOptimum(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	for trial := 0; trial < 10; trial++ {
		n := 5 + rng.Intn(5)
		p := randomProblem(t, rng, n)
		penalty := p.Capacity / 10

		sp := newSplitter(n)
		ind := newIndividual(randomTour(rng, n))
		ind.decode(p, sp, penalty, 0)
		ls := newLocalSearch(p, 20)
		ls.educate(ind, penalty, 0, rng)

		base := penalizedCost(p, ind.Routes, penalty)
		forEachRelocation(ind.Routes, func(cand [][]int) {
			if c := penalizedCost(p, cand, penalty); c < base-1e-7 {
				t.Fatalf("trial %d: relocate improves %g -> %g on %v", trial, base, c, cand)
			}
		})
		forEachSwap(ind.Routes, func(cand [][]int) {
			if c := penalizedCost(p, cand, penalty); c < base-1e-7 {
				t.Fatalf("trial %d: swap improves %g -> %g on %v", trial, base, c, cand)
			}
		})
	}
}

func penalizedCost(p *cvrp.Problem, routes [][]int, penalty float64) float64 {
	total := 0.0
	for _, r := range routes {
		if len(r) == 0 {
			continue
		}
		total += p.RouteDistance(r)
		if load := p.RouteLoad(r); load > p.Capacity {
			total += penalty * (load - p.Capacity)
		}
	}
	return total
}

func copyRoutes(routes [][]int) [][]int {
	out := make([][]int, len(routes))
	for i, r := range routes {
		out[i] = append([]int(nil), r...)
	}
	return out
}

// forEachRelocation yields every solution reachable by moving one customer
// directly after another.
func forEachRelocation(routes [][]int, fn func([][]int)) {
	for ri, r := range routes {
		for i := range r {
			for rj, r2 := range routes {
				for j := range r2 {
					if ri == rj && (i == j || j == i-1) {
						continue
					}
					cand := copyRoutes(routes)
					c := cand[ri][i]
					cand[ri] = append(cand[ri][:i], cand[ri][i+1:]...)
					target := cand[rj]
					at := j + 1
					if ri == rj && i < at {
						at--
					}
					target = append(target[:at], append([]int{c}, target[at:]...)...)
					cand[rj] = target
					fn(cand)
				}
			}
		}
	}
}

// forEachSwap yields every solution reachable by exchanging two customers.
func forEachSwap(routes [][]int, fn func([][]int)) {
	for ri, r := range routes {
		for i := range r {
			for rj, r2 := range routes {
				for j := range r2 {
					if ri == rj && i >= j {
						continue
					}
					if ri > rj {
						continue
					}
					cand := copyRoutes(routes)
					cand[ri][i], cand[rj][j] = cand[rj][j], cand[ri][i]
					fn(cand)
				}
			}
		}
	}
}
