package cvrp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidInstance marks instances that fail validation before any search
// starts: missing or duplicated depot, negative demand, or a single demand
// larger than the vehicle capacity.
var ErrInvalidInstance = errors.New("invalid instance")

// Node is a single location. Index 0 in a Problem is always the depot.
type Node struct {
	ID     int
	X, Y   float64
	Demand float64
}

// Problem is an immutable CVRP instance: depot plus n customers, a fleet of
// identical vehicles with capacity Q, and precomputed geometry (distance
// matrix, polar angles, proximity lists).
type Problem struct {
	Name        string
	Nodes       []Node // Nodes[0] is the depot
	Capacity    float64
	MaxVehicles int // 0 means unlimited

	dist  [][]float64
	angle []float64 // polar angle to the depot, in turns [0,1)
	prox  [][]int   // other customers by ascending distance, per customer
}

// NewProblem validates the node set and precomputes geometry.
// nodes[0] must be the depot (demand 0); all other nodes are customers.
func NewProblem(name string, nodes []Node, capacity float64, maxVehicles int) (*Problem, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: need a depot and at least one customer, got %d nodes", ErrInvalidInstance, len(nodes))
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %g", ErrInvalidInstance, capacity)
	}
	if nodes[0].Demand != 0 {
		return nil, fmt.Errorf("%w: depot missing (node 0 has demand %g)", ErrInvalidInstance, nodes[0].Demand)
	}
	for i := 1; i < len(nodes); i++ {
		d := nodes[i].Demand
		if d == 0 {
			return nil, fmt.Errorf("%w: duplicated depot (node %d has demand 0)", ErrInvalidInstance, nodes[i].ID)
		}
		if d < 0 {
			return nil, fmt.Errorf("%w: negative demand %g at node %d", ErrInvalidInstance, d, nodes[i].ID)
		}
		if d > capacity {
			return nil, fmt.Errorf("%w: demand %g at node %d exceeds capacity %g", ErrInvalidInstance, d, nodes[i].ID, capacity)
		}
	}

	p := &Problem{
		Name:        name,
		Nodes:       append([]Node(nil), nodes...),
		Capacity:    capacity,
		MaxVehicles: maxVehicles,
	}
	p.precompute()
	return p, nil
}

func (p *Problem) precompute() {
	n := len(p.Nodes)
	p.dist = make([][]float64, n)
	for i := range p.dist {
		p.dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := p.Nodes[i].X - p.Nodes[j].X
			dy := p.Nodes[i].Y - p.Nodes[j].Y
			d := math.Sqrt(dx*dx + dy*dy)
			p.dist[i][j] = d
			p.dist[j][i] = d
		}
	}

	p.angle = make([]float64, n)
	for i := 1; i < n; i++ {
		a := math.Atan2(p.Nodes[i].Y-p.Nodes[0].Y, p.Nodes[i].X-p.Nodes[0].X)
		if a < 0 {
			a += 2 * math.Pi
		}
		p.angle[i] = a / (2 * math.Pi)
	}

	p.prox = make([][]int, n)
	for i := 1; i < n; i++ {
		others := make([]int, 0, n-2)
		for j := 1; j < n; j++ {
			if j != i {
				others = append(others, j)
			}
		}
		sort.Slice(others, func(a, b int) bool {
			return p.dist[i][others[a]] < p.dist[i][others[b]]
		})
		p.prox[i] = others
	}
}

// NumCustomers returns n, the customer count excluding the depot.
func (p *Problem) NumCustomers() int { return len(p.Nodes) - 1 }

// Dist returns the Euclidean distance between nodes i and j.
func (p *Problem) Dist(i, j int) float64 { return p.dist[i][j] }

// Angle returns the polar angle of customer i relative to the depot,
// in turns within [0,1).
func (p *Problem) Angle(i int) float64 { return p.angle[i] }

// Proximity returns the other customers sorted by ascending distance from i.
// Callers interested in granular neighborhoods take a prefix of the slice.
func (p *Problem) Proximity(i int) []int { return p.prox[i] }

// Demand returns the demand of node i (0 for the depot).
func (p *Problem) Demand(i int) float64 { return p.Nodes[i].Demand }

// TotalDemand returns the sum of all customer demands.
func (p *Problem) TotalDemand() float64 {
	total := 0.0
	for i := 1; i < len(p.Nodes); i++ {
		total += p.Nodes[i].Demand
	}
	return total
}
