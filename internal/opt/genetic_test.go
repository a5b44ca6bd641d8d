package opt

import (
	"math"
	"math/rand"
	"testing"

	"hgsolve/internal/cvrp"
)

func TestCrossoverOXProducesPermutations(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	for trial := 0; trial < 100; trial++ {
		n := 2 + rng.Intn(15)
		p1 := randomTour(rng, n)
		p2 := randomTour(rng, n)
		child := crossoverOX(rng, p1, p2, n)

		if len(child) != n {
			t.Fatalf("child length %d, want %d", len(child), n)
		}
		seen := make([]bool, n+1)
		for _, c := range child {
			if c < 1 || c > n {
				t.Fatalf("child %v contains %d outside 1..%d", child, c, n)
			}
			if seen[c] {
				t.Fatalf("child %v repeats customer %d", child, c)
			}
			seen[c] = true
		}
	}
}

func TestCrossoverOXKeepsParentSegment(t *testing.T) {
	// With identical parents the child must equal them regardless of the cuts.
	rng := rand.New(rand.NewSource(47))
	for trial := 0; trial < 20; trial++ {
		n := 3 + rng.Intn(10)
		p1 := randomTour(rng, n)
		child := crossoverOX(rng, p1, p1, n)
		if !equalTours(child, p1) {
			t.Fatalf("identical parents gave child %v, want %v", child, p1)
		}
	}
}

func TestRandomTourIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	tour := randomTour(rng, 30)
	seen := make([]bool, 31)
	for _, c := range tour {
		if c < 1 || c > 30 || seen[c] {
			t.Fatalf("tour %v is not a permutation of 1..30", tour)
		}
		seen[c] = true
	}
}

func TestBrokenPairsDistance(t *testing.T) {
	mk := func(tour []int) *Individual {
		ind := newIndividual(tour)
		ind.refreshDescriptor(4)
		return ind
	}

	a := mk([]int{1, 2, 3, 4})
	if d := a.brokenPairs(mk([]int{1, 2, 3, 4})); d != 0 {
		t.Fatalf("identical tours have distance %g", d)
	}
	// Swapping the last two customers breaks the successors of 2, 3 and 4.
	if d := a.brokenPairs(mk([]int{1, 2, 4, 3})); math.Abs(d-0.75) > 1e-12 {
		t.Fatalf("distance %g, want 0.75", d)
	}
	if d := a.brokenPairs(mk([]int{4, 3, 2, 1})); d != 1 {
		t.Fatalf("reversed tour has distance %g, want 1", d)
	}
}

func TestEvaluatePenalizesOverload(t *testing.T) {
	p := mustProblem(t, []cvrp.Node{
		{ID: 0},
		{ID: 1, X: 3, Y: 4, Demand: 2},
		{ID: 2, X: 3, Y: -4, Demand: 2},
	}, 3)

	ind := &Individual{}
	ind.setRoutes([][]int{{1, 2}})
	ind.evaluate(p, 100, 0)
	if ind.Feasible {
		t.Fatalf("overloaded route reported feasible")
	}
	wantDist := 5 + 8 + 5.0
	if math.Abs(ind.CostFeasible-wantDist) > 1e-9 {
		t.Fatalf("distance %g, want %g", ind.CostFeasible, wantDist)
	}
	if math.Abs(ind.CostPenalized-(wantDist+100)) > 1e-9 {
		t.Fatalf("penalized cost %g, want %g", ind.CostPenalized, wantDist+100)
	}

	ind.setRoutes([][]int{{1}, {2}})
	ind.evaluate(p, 100, 0)
	if !ind.Feasible {
		t.Fatalf("split routes reported infeasible")
	}
	if ind.CostPenalized != ind.CostFeasible {
		t.Fatalf("feasible individual has penalty: %g vs %g", ind.CostPenalized, ind.CostFeasible)
	}
}

func TestEvaluateVehicleCap(t *testing.T) {
	p := mustProblem(t, []cvrp.Node{
		{ID: 0},
		{ID: 1, X: 1, Demand: 1},
		{ID: 2, X: 2, Demand: 1},
	}, 1)

	ind := &Individual{}
	ind.setRoutes([][]int{{1}, {2}})
	ind.evaluate(p, 50, 1)
	if ind.Feasible {
		t.Fatalf("two routes under a one-vehicle cap reported feasible")
	}
	if math.Abs(ind.CostPenalized-(ind.CostFeasible+50)) > 1e-9 {
		t.Fatalf("penalized cost %g, want %g", ind.CostPenalized, ind.CostFeasible+50)
	}
}
