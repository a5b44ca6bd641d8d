package opt

import (
	"math/rand"
	"testing"

	"hgsolve/internal/cvrp"
)

func popConfig() Config {
	cfg := Config{
		MinPopSize:     6,
		GenerationSize: 8,
		NElite:         2,
		NClose:         3,
	}
	return cfg
}

func decoded(t *testing.T, p *cvrp.Problem, rng *rand.Rand, penalty float64) *Individual {
	t.Helper()
	ind := newIndividual(randomTour(rng, p.NumCustomers()))
	sp := newSplitter(p.NumCustomers())
	ind.decode(p, sp, penalty, 0)
	return ind
}

func TestPopulationTrimsOnOverflow(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	p := randomProblem(t, rng, 10)
	cfg := popConfig()
	pop := newPopulation(cfg)

	for i := 0; i < 60; i++ {
		pop.insert(decoded(t, p, rng, p.Capacity/10))
		if len(pop.feasible) > cfg.MinPopSize+cfg.GenerationSize {
			t.Fatalf("feasible subpopulation grew to %d", len(pop.feasible))
		}
		if len(pop.infeasible) > cfg.MinPopSize+cfg.GenerationSize {
			t.Fatalf("infeasible subpopulation grew to %d", len(pop.infeasible))
		}
	}
	if pop.size() == 0 {
		t.Fatalf("population empty after 60 inserts")
	}
}

func TestSurvivorSelectionDropsClonesFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p := randomProblem(t, rng, 8)
	cfg := popConfig()
	pop := newPopulation(cfg)
	sp := newSplitter(8)

	// A full generation of clones of one tour plus a handful of distinct,
	// worse individuals: selection trims back to MinPopSize and drops clones
	// before any distinct individual, so the four distinct ones stay and only
	// MinPopSize-4 clones survive.
	base := randomTour(rng, 8)
	for i := 0; i < cfg.MinPopSize+cfg.GenerationSize-3; i++ {
		ind := newIndividual(append([]int(nil), base...))
		ind.decode(p, sp, p.Capacity/10, 0)
		pop.insert(ind)
	}
	for i := 0; i < 4; i++ {
		ind := decoded(t, p, rng, p.Capacity/10)
		for equalTours(ind.Tour, base) {
			ind = decoded(t, p, rng, p.Capacity/10)
		}
		pop.insert(ind)
	}

	clones := 0
	for _, sub := range [][]*Individual{pop.feasible, pop.infeasible} {
		for _, ind := range sub {
			if equalTours(ind.Tour, base) {
				clones++
			}
		}
	}
	if clones > cfg.MinPopSize-4 {
		t.Fatalf("%d clones survived selection", clones)
	}
}

func equalTours(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBiasedFitnessRanksEliteLow(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	p := randomProblem(t, rng, 10)
	cfg := popConfig()
	pop := newPopulation(cfg)

	for i := 0; i < 12; i++ {
		pop.insert(decoded(t, p, rng, p.Capacity/10))
	}
	sub := pop.feasible
	if len(pop.infeasible) > len(sub) {
		sub = pop.infeasible
	}
	if len(sub) < 3 {
		t.Skipf("subpopulation too small: %d", len(sub))
	}
	pop.updateBiasedFitness(sub)

	var best, cheapest *Individual
	for _, ind := range sub {
		if best == nil || ind.biasedFitness < best.biasedFitness {
			best = ind
		}
		if cheapest == nil || ind.CostPenalized < cheapest.CostPenalized {
			cheapest = ind
		}
	}
	if cheapest.rankCost != 0 {
		t.Fatalf("cheapest individual has cost rank %d", cheapest.rankCost)
	}
	if best.biasedFitness > float64(len(sub)) {
		t.Fatalf("best biased fitness %g out of range for %d individuals", best.biasedFitness, len(sub))
	}
}

func TestTournamentPrefersFitter(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	p := randomProblem(t, rng, 8)
	pop := newPopulation(popConfig())
	for i := 0; i < 10; i++ {
		pop.insert(decoded(t, p, rng, p.Capacity/10))
	}
	pop.updateBiasedFitness(pop.feasible)
	pop.updateBiasedFitness(pop.infeasible)

	// Over many draws the tournament winner's fitness must average below a
	// uniform draw's fitness.
	winner, uniform := 0.0, 0.0
	const draws = 500
	for i := 0; i < draws; i++ {
		winner += pop.tournament(rng).biasedFitness
		uniform += pop.draw(rng).biasedFitness
	}
	if winner/draws >= uniform/draws {
		t.Fatalf("tournament mean fitness %g not below uniform mean %g", winner/draws, uniform/draws)
	}
}

func TestShrinkToEliteKeepsBest(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	p := randomProblem(t, rng, 10)
	cfg := popConfig()
	pop := newPopulation(cfg)
	for i := 0; i < 20; i++ {
		pop.insert(decoded(t, p, rng, p.Capacity/10))
	}

	bestBefore := pop.bestPenalized().CostPenalized
	pop.shrinkToElite()
	keep := cfg.MinPopSize / 3
	if len(pop.feasible) > keep || len(pop.infeasible) > keep {
		t.Fatalf("shrink kept %d feasible and %d infeasible, limit %d",
			len(pop.feasible), len(pop.infeasible), keep)
	}
	if pop.size() > 0 && pop.bestPenalized().CostPenalized > bestBefore {
		t.Fatalf("shrink lost the best individual: %g -> %g",
			bestBefore, pop.bestPenalized().CostPenalized)
	}
}
