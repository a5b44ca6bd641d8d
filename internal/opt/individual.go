package opt

import (
	"encoding/binary"
	"hash/fnv"

	"hgsolve/internal/cvrp"
)

// Individual is one member of the genetic population: a giant tour plus its
// Split decoding into routes, the plain and penalized costs, and the
// successor array used for broken-pairs diversity.
type Individual struct {
	Tour          []int
	Routes        [][]int
	CostFeasible  float64
	CostPenalized float64
	Feasible      bool

	successor []int // successor[c] in the giant tour, 0 after the last customer
	hash      uint64

	rankCost      int
	rankDiversity int
	divScore      float64
	biasedFitness float64
}

func newIndividual(tour []int) *Individual {
	return &Individual{Tour: tour}
}

// decode runs Split on the tour and evaluates the result under the given
// penalty. The hard decode cannot fail once the instance passed validation;
// the soft variant is kept as a fallback for callers that bypass it.
func (ind *Individual) decode(p *cvrp.Problem, sp *splitter, penalty float64, maxVehicles int) {
	routes, err := sp.split(p, ind.Tour)
	if err != nil {
		routes = sp.splitSoft(p, ind.Tour, penalty)
	}
	ind.Routes = routes
	ind.evaluate(p, penalty, maxVehicles)
}

// evaluate recomputes both costs, the feasibility flag, and the diversity
// descriptor from the current routes. Exceeding an advisory vehicle cap is
// priced at one penalty unit per extra route and marks the individual
// infeasible.
func (ind *Individual) evaluate(p *cvrp.Problem, penalty float64, maxVehicles int) {
	dist := 0.0
	excess := 0.0
	for _, r := range ind.Routes {
		dist += p.RouteDistance(r)
		if load := p.RouteLoad(r); load > p.Capacity {
			excess += load - p.Capacity
		}
	}
	ind.CostFeasible = dist
	ind.CostPenalized = dist + penalty*excess
	ind.Feasible = excess == 0
	if maxVehicles > 0 && len(ind.Routes) > maxVehicles {
		ind.CostPenalized += penalty * float64(len(ind.Routes)-maxVehicles)
		ind.Feasible = false
	}
	ind.refreshDescriptor(p.NumCustomers())
}

// setRoutes replaces the routes and rebuilds the tour as their concatenation.
func (ind *Individual) setRoutes(routes [][]int) {
	ind.Routes = routes
	ind.Tour = ind.Tour[:0]
	for _, r := range routes {
		ind.Tour = append(ind.Tour, r...)
	}
}

func (ind *Individual) refreshDescriptor(n int) {
	if cap(ind.successor) < n+1 {
		ind.successor = make([]int, n+1)
	}
	ind.successor = ind.successor[:n+1]
	for i, c := range ind.Tour {
		if i+1 < len(ind.Tour) {
			ind.successor[c] = ind.Tour[i+1]
		} else {
			ind.successor[c] = 0
		}
	}

	h := fnv.New64a()
	var buf [8]byte
	for _, c := range ind.Tour {
		binary.LittleEndian.PutUint64(buf[:], uint64(c))
		h.Write(buf[:])
	}
	ind.hash = h.Sum64()
}

// brokenPairs returns the fraction of giant-tour successor relations that
// differ between the two individuals.
func (ind *Individual) brokenPairs(other *Individual) float64 {
	n := len(ind.Tour)
	if n == 0 {
		return 0
	}
	broken := 0
	for _, c := range ind.Tour {
		if ind.successor[c] != other.successor[c] {
			broken++
		}
	}
	return float64(broken) / float64(n)
}

// sameTour reports chromosome equality, used for clone removal.
func (ind *Individual) sameTour(other *Individual) bool {
	if ind.hash != other.hash || len(ind.Tour) != len(other.Tour) {
		return false
	}
	for i := range ind.Tour {
		if ind.Tour[i] != other.Tour[i] {
			return false
		}
	}
	return true
}

func (ind *Individual) clone() *Individual {
	cp := &Individual{
		Tour:          append([]int(nil), ind.Tour...),
		Routes:        make([][]int, len(ind.Routes)),
		CostFeasible:  ind.CostFeasible,
		CostPenalized: ind.CostPenalized,
		Feasible:      ind.Feasible,
		successor:     append([]int(nil), ind.successor...),
		hash:          ind.hash,
	}
	for i, r := range ind.Routes {
		cp.Routes[i] = append([]int(nil), r...)
	}
	return cp
}

// Solution converts the individual into the public solution form.
func (ind *Individual) Solution(p *cvrp.Problem) cvrp.Solution {
	s := cvrp.Solution{Routes: make([][]int, 0, len(ind.Routes))}
	for _, r := range ind.Routes {
		if len(r) > 0 {
			s.Routes = append(s.Routes, append([]int(nil), r...))
		}
	}
	s.Evaluate(p)
	return s
}
