package opt

import (
	"math/rand"
	"sort"
)

// Population keeps feasible and infeasible individuals apart. Each
// subpopulation grows to minSize+genSize before survivor selection trims it
// back to minSize, removing duplicate chromosomes before anything else.
type Population struct {
	feasible   []*Individual
	infeasible []*Individual

	minSize int
	genSize int
	nElite  int
	nClose  int
}

func newPopulation(cfg Config) *Population {
	return &Population{
		feasible:   make([]*Individual, 0, cfg.MinPopSize+cfg.GenerationSize+1),
		infeasible: make([]*Individual, 0, cfg.MinPopSize+cfg.GenerationSize+1),
		minSize:    cfg.MinPopSize,
		genSize:    cfg.GenerationSize,
		nElite:     cfg.NElite,
		nClose:     cfg.NClose,
	}
}

// insert places the individual in the matching subpopulation and runs
// survivor selection when the subpopulation overflows.
func (pop *Population) insert(ind *Individual) {
	sub := &pop.infeasible
	if ind.Feasible {
		sub = &pop.feasible
	}
	*sub = append(*sub, ind)
	if len(*sub) > pop.minSize+pop.genSize {
		pop.updateBiasedFitness(*sub)
		*sub = pop.selectSurvivors(*sub)
	}
}

// updateBiasedFitness recomputes cost ranks, diversity ranks and the combined
// fitness r_c + (1 - nElite/|subpop|) * r_d for one subpopulation.
func (pop *Population) updateBiasedFitness(sub []*Individual) {
	if len(sub) == 0 {
		return
	}
	sort.SliceStable(sub, func(i, j int) bool {
		return sub[i].CostPenalized < sub[j].CostPenalized
	})
	for i, ind := range sub {
		ind.rankCost = i
		ind.divScore = pop.diversityScore(sub, i)
	}

	byDiv := make([]int, len(sub))
	for i := range byDiv {
		byDiv[i] = i
	}
	sort.SliceStable(byDiv, func(a, b int) bool {
		return sub[byDiv[a]].divScore > sub[byDiv[b]].divScore
	})
	for rank, idx := range byDiv {
		sub[idx].rankDiversity = rank
	}

	eliteFactor := 1 - float64(pop.nElite)/float64(len(sub))
	if eliteFactor < 0 {
		eliteFactor = 0
	}
	for _, ind := range sub {
		ind.biasedFitness = float64(ind.rankCost) + eliteFactor*float64(ind.rankDiversity)
	}
}

// diversityScore is the mean broken-pairs distance from sub[i] to its nClose
// closest neighbors in the subpopulation.
func (pop *Population) diversityScore(sub []*Individual, i int) float64 {
	if len(sub) < 2 {
		return 0
	}
	dists := make([]float64, 0, len(sub)-1)
	for j, other := range sub {
		if j != i {
			dists = append(dists, sub[i].brokenPairs(other))
		}
	}
	sort.Float64s(dists)
	k := pop.nClose
	if k > len(dists) {
		k = len(dists)
	}
	sum := 0.0
	for _, d := range dists[:k] {
		sum += d
	}
	return sum / float64(k)
}

// selectSurvivors trims the subpopulation back to minSize, dropping clones
// first and then the worst biased fitness.
func (pop *Population) selectSurvivors(sub []*Individual) []*Individual {
	sort.SliceStable(sub, func(i, j int) bool {
		return sub[i].biasedFitness < sub[j].biasedFitness
	})

	removed := make([]bool, len(sub))
	remaining := len(sub)
	for i := 0; i < len(sub) && remaining > pop.minSize; i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(sub) && remaining > pop.minSize; j++ {
			if !removed[j] && sub[i].sameTour(sub[j]) {
				removed[j] = true
				remaining--
			}
		}
	}
	for i := len(sub) - 1; i >= 0 && remaining > pop.minSize; i-- {
		if !removed[i] {
			removed[i] = true
			remaining--
		}
	}

	out := sub[:0]
	for i, ind := range sub {
		if !removed[i] {
			out = append(out, ind)
		}
	}
	return out
}

// tournament returns the better of two uniform draws from the union of both
// subpopulations.
func (pop *Population) tournament(rng *rand.Rand) *Individual {
	a := pop.draw(rng)
	b := pop.draw(rng)
	if a.biasedFitness <= b.biasedFitness {
		return a
	}
	return b
}

func (pop *Population) draw(rng *rand.Rand) *Individual {
	total := len(pop.feasible) + len(pop.infeasible)
	i := rng.Intn(total)
	if i < len(pop.feasible) {
		return pop.feasible[i]
	}
	return pop.infeasible[i-len(pop.feasible)]
}

func (pop *Population) size() int {
	return len(pop.feasible) + len(pop.infeasible)
}

// bestFeasible returns the lowest-cost feasible individual, or nil.
func (pop *Population) bestFeasible() *Individual {
	var best *Individual
	for _, ind := range pop.feasible {
		if best == nil || ind.CostFeasible < best.CostFeasible {
			best = ind
		}
	}
	return best
}

// bestPenalized returns the lowest penalized-cost individual overall, or nil.
func (pop *Population) bestPenalized() *Individual {
	var best *Individual
	for _, ind := range pop.feasible {
		if best == nil || ind.CostPenalized < best.CostPenalized {
			best = ind
		}
	}
	for _, ind := range pop.infeasible {
		if best == nil || ind.CostPenalized < best.CostPenalized {
			best = ind
		}
	}
	return best
}

// shrinkToElite keeps only the minSize/3 best individuals of each
// subpopulation by penalized cost, making room for the diversification restart to refill with fresh
// random individuals.
func (pop *Population) shrinkToElite() {
	keep := pop.minSize / 3
	pop.feasible = keepBest(pop.feasible, keep)
	pop.infeasible = keepBest(pop.infeasible, keep)
}

func keepBest(sub []*Individual, keep int) []*Individual {
	if len(sub) <= keep {
		return sub
	}
	sort.SliceStable(sub, func(i, j int) bool {
		return sub[i].CostPenalized < sub[j].CostPenalized
	})
	return sub[:keep]
}
