package opt

import (
	"fmt"

	"hgsolve/internal/cvrp"
)

// splitter decodes a giant tour into an optimal contiguous route partition.
// Buffers are reused across calls to keep the hot path allocation free.
type splitter struct {
	sumDist   []float64 // sumDist[k] = intra-tour distance from s[0] to s[k]
	cumLoad   []float64 // cumLoad[k] = demand of s[0..k-1]
	potential []float64
	pred      []int
	deque     []int
}

func newSplitter(n int) *splitter {
	return &splitter{
		sumDist:   make([]float64, n),
		cumLoad:   make([]float64, n+1),
		potential: make([]float64, n+1),
		pred:      make([]int, n+1),
		deque:     make([]int, 0, n+1),
	}
}

// split solves the shortest-path recurrence
//
//	P[j] = min{ P[i] + c(i,j) : cumLoad[j]-cumLoad[i] <= Q }
//
// with a monotone deque over candidate predecessors, amortized O(n).
// It fails only when some single demand exceeds the capacity, which
// instance validation rules out up front.
func (sp *splitter) split(p *cvrp.Problem, tour []int) ([][]int, error) {
	n := len(tour)
	if n == 0 {
		return nil, nil
	}

	sp.sumDist[0] = 0
	for k := 1; k < n; k++ {
		sp.sumDist[k] = sp.sumDist[k-1] + p.Dist(tour[k-1], tour[k])
	}
	sp.cumLoad[0] = 0
	for k := 1; k <= n; k++ {
		sp.cumLoad[k] = sp.cumLoad[k-1] + p.Demand(tour[k-1])
	}

	// f(i) = P[i] + dist(depot, s[i]) - sumDist[i]; deque keeps f non-decreasing.
	f := func(i int) float64 {
		return sp.potential[i] + p.Dist(0, tour[i]) - sp.sumDist[i]
	}

	sp.potential[0] = 0
	sp.deque = sp.deque[:0]
	sp.deque = append(sp.deque, 0)

	for j := 1; j <= n; j++ {
		for len(sp.deque) > 0 && sp.cumLoad[j]-sp.cumLoad[sp.deque[0]] > p.Capacity {
			sp.deque = sp.deque[1:]
		}
		if len(sp.deque) == 0 {
			return nil, fmt.Errorf("split: no feasible predecessor at position %d (demand exceeds capacity)", j)
		}
		i := sp.deque[0]
		sp.potential[j] = f(i) + sp.sumDist[j-1] + p.Dist(tour[j-1], 0)
		sp.pred[j] = i

		if j < n {
			fj := f(j)
			for len(sp.deque) > 0 && f(sp.deque[len(sp.deque)-1]) >= fj {
				sp.deque = sp.deque[:len(sp.deque)-1]
			}
			sp.deque = append(sp.deque, j)
		}
	}

	return sp.rebuild(tour, n), nil
}

// splitSoft is the penalized fallback: the same recurrence with overload
// priced at penalty per unit, predecessor window widened by the largest
// demand so overloaded segments stay reachable. Quadratic in the window
// width; only used when the hard decode cannot.
func (sp *splitter) splitSoft(p *cvrp.Problem, tour []int, penalty float64) [][]int {
	n := len(tour)
	if n == 0 {
		return nil
	}

	sp.sumDist[0] = 0
	for k := 1; k < n; k++ {
		sp.sumDist[k] = sp.sumDist[k-1] + p.Dist(tour[k-1], tour[k])
	}
	maxDemand := 0.0
	sp.cumLoad[0] = 0
	for k := 1; k <= n; k++ {
		d := p.Demand(tour[k-1])
		sp.cumLoad[k] = sp.cumLoad[k-1] + d
		if d > maxDemand {
			maxDemand = d
		}
	}

	window := p.Capacity + maxDemand
	sp.potential[0] = 0
	for j := 1; j <= n; j++ {
		best := -1
		bestCost := 0.0
		for i := j - 1; i >= 0; i-- {
			load := sp.cumLoad[j] - sp.cumLoad[i]
			if load > window && best >= 0 {
				break
			}
			cost := sp.potential[i] + p.Dist(0, tour[i]) + (sp.sumDist[j-1] - sp.sumDist[i]) + p.Dist(tour[j-1], 0)
			if load > p.Capacity {
				cost += penalty * (load - p.Capacity)
			}
			if best < 0 || cost < bestCost {
				best = i
				bestCost = cost
			}
		}
		sp.potential[j] = bestCost
		sp.pred[j] = best
	}

	return sp.rebuild(tour, n)
}

func (sp *splitter) rebuild(tour []int, n int) [][]int {
	var cuts []int
	for j := n; j > 0; j = sp.pred[j] {
		cuts = append(cuts, j)
	}
	routes := make([][]int, 0, len(cuts))
	start := 0
	for k := len(cuts) - 1; k >= 0; k-- {
		end := cuts[k]
		routes = append(routes, append([]int(nil), tour[start:end]...))
		start = end
	}
	return routes
}
