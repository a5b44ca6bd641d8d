package opt

import (
	"math"
	"math/rand"

	"hgsolve/internal/cvrp"
)

// Moves must beat this margin to be accepted, so float noise cannot cycle.
const improveEps = 1e-10

// LocalSearch educates individuals to a local optimum of the penalized cost
// under the relocate, swap, 2-opt, 2-opt* and SWAP* neighborhoods. It owns
// all scratch state (arena links, caches, scan order) and resets it between
// individuals instead of reallocating.
type LocalSearch struct {
	p           *cvrp.Problem
	granularity int
	penalty     float64

	// Arena representation: customers are nodes addressed by index, the
	// depot is the shared sentinel 0 on both ends of every route.
	pred, succ []int
	routeOf    []int
	pos        []int
	cumLoad    []float64 // route load from the first customer through this one
	lastTested []uint64
	routes     []lsRoute
	now        uint64

	order    []int
	segBuf   []int
	insCache [][]insertCache
}

type lsRoute struct {
	first, last int
	size        int
	load        float64
	dist        float64
	stamp       uint64
	angleMean   float64 // circular mean of customer angles, in turns
	angleSpan   float64 // widest deviation from the mean, in turns
}

func newLocalSearch(p *cvrp.Problem, granularity int) *LocalSearch {
	n := p.NumCustomers()
	ls := &LocalSearch{
		p:           p,
		granularity: granularity,
		pred:        make([]int, n+1),
		succ:        make([]int, n+1),
		routeOf:     make([]int, n+1),
		pos:         make([]int, n+1),
		cumLoad:     make([]float64, n+1),
		lastTested:  make([]uint64, n+1),
		order:       make([]int, n),
		segBuf:      make([]int, 0, n),
	}
	for i := range ls.order {
		ls.order[i] = i + 1
	}
	return ls
}

// educate runs the move loop on the individual's routes and writes the local
// optimum back, re-evaluating both costs under the given penalty.
func (ls *LocalSearch) educate(ind *Individual, penalty float64, maxVehicles int, rng *rand.Rand) {
	ls.penalty = penalty
	ls.build(ind.Routes)
	rng.Shuffle(len(ls.order), func(i, j int) {
		ls.order[i], ls.order[j] = ls.order[j], ls.order[i]
	})
	ls.run()
	ind.setRoutes(ls.collect())
	ind.evaluate(ls.p, penalty, maxVehicles)
}

func (ls *LocalSearch) build(routes [][]int) {
	ls.routes = ls.routes[:0]
	ls.now = 1
	for i := range ls.lastTested {
		ls.lastTested[i] = 0
	}
	for _, route := range routes {
		if len(route) == 0 {
			continue
		}
		r := len(ls.routes)
		ls.routes = append(ls.routes, lsRoute{})
		prev := 0
		for _, c := range route {
			ls.pred[c] = prev
			ls.routeOf[c] = r
			if prev != 0 {
				ls.succ[prev] = c
			} else {
				ls.routes[r].first = c
			}
			prev = c
		}
		ls.succ[prev] = 0
		ls.routes[r].last = prev
		ls.recompute(r)
		ls.routes[r].stamp = 1
	}

	if len(ls.insCache) < len(ls.routes) {
		grow := make([][]insertCache, len(ls.routes)-len(ls.insCache))
		ls.insCache = append(ls.insCache, grow...)
	}
	n := ls.p.NumCustomers()
	for r := range ls.routes {
		if len(ls.insCache[r]) < n+1 {
			ls.insCache[r] = make([]insertCache, n+1)
		} else {
			for i := range ls.insCache[r] {
				ls.insCache[r][i].stamp = 0
			}
		}
	}
}

// run is the outer loop: granular first-improvement scans until a full pass
// over every (u,v) pair and the inter-route SWAP* sweep find nothing.
func (ls *LocalSearch) run() {
	improved := true
	for improved {
		improved = false
		ls.now++
		for _, u := range ls.order {
			uImproved := false
			prox := ls.p.Proximity(u)
			if len(prox) > ls.granularity {
				prox = prox[:ls.granularity]
			}
			for _, v := range prox {
				tested := ls.lastTested[u]
				if ls.lastTested[v] > tested {
					tested = ls.lastTested[v]
				}
				changed := ls.routes[ls.routeOf[u]].stamp
				if s := ls.routes[ls.routeOf[v]].stamp; s > changed {
					changed = s
				}
				if tested >= changed {
					continue
				}
				if ls.tryMoves(u, v) {
					improved = true
					uImproved = true
					break
				}
			}
			if !uImproved {
				ls.lastTested[u] = ls.now
			}
		}
		if ls.swapStarPass() {
			improved = true
		}
	}
}

func (ls *LocalSearch) collect() [][]int {
	out := make([][]int, 0, len(ls.routes))
	for r := range ls.routes {
		if ls.routes[r].size == 0 {
			continue
		}
		route := make([]int, 0, ls.routes[r].size)
		for c := ls.routes[r].first; c != 0; c = ls.succ[c] {
			route = append(route, c)
		}
		out = append(out, route)
	}
	return out
}

func (ls *LocalSearch) d(i, j int) float64 { return ls.p.Dist(i, j) }

func (ls *LocalSearch) overload(load float64) float64 {
	if load > ls.p.Capacity {
		return ls.penalty * (load - ls.p.Capacity)
	}
	return 0
}

// loadDelta prices changing route r's load by delta.
func (ls *LocalSearch) loadDelta(r int, delta float64) float64 {
	old := ls.routes[r].load
	return ls.overload(old+delta) - ls.overload(old)
}

// recompute rebuilds positions, cumulative loads, distance and the polar
// sector of route r by one walk. Every accepted move funnels through refresh,
// which keeps invariant data and the freshness stamps in lockstep.
func (ls *LocalSearch) recompute(r int) {
	rt := &ls.routes[r]
	load, dist := 0.0, 0.0
	size := 0
	prev := 0
	sumX, sumY := 0.0, 0.0
	for c := rt.first; c != 0; c = ls.succ[c] {
		size++
		ls.routeOf[c] = r
		ls.pos[c] = size
		dist += ls.d(prev, c)
		load += ls.p.Demand(c)
		ls.cumLoad[c] = load
		a := ls.p.Angle(c) * 2 * math.Pi
		sumX += math.Cos(a)
		sumY += math.Sin(a)
		prev = c
	}
	dist += ls.d(prev, 0)
	rt.size = size
	rt.load = load
	rt.dist = dist
	if size == 0 {
		rt.dist = 0
		rt.angleMean, rt.angleSpan = 0, 0
		return
	}
	mean := math.Atan2(sumY, sumX) / (2 * math.Pi)
	if mean < 0 {
		mean++
	}
	rt.angleMean = mean
	span := 0.0
	for c := rt.first; c != 0; c = ls.succ[c] {
		if dev := circDist(ls.p.Angle(c), mean); dev > span {
			span = dev
		}
	}
	rt.angleSpan = span
}

// refresh recomputes the given routes and advances their timestamps.
func (ls *LocalSearch) refresh(rs ...int) {
	ls.now++
	for i, r := range rs {
		if i > 0 && r == rs[0] {
			continue
		}
		ls.recompute(r)
		ls.routes[r].stamp = ls.now
	}
}

// circDist is the circular distance between two angles in turns.
func circDist(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 0.5 {
		d = 1 - d
	}
	return d
}

func (ls *LocalSearch) unlink(u int) {
	r := ls.routeOf[u]
	p, s := ls.pred[u], ls.succ[u]
	if p != 0 {
		ls.succ[p] = s
	} else {
		ls.routes[r].first = s
	}
	if s != 0 {
		ls.pred[s] = p
	} else {
		ls.routes[r].last = p
	}
}

// linkAfter inserts u after w in route r; w == 0 inserts at the front.
func (ls *LocalSearch) linkAfter(u, w, r int) {
	if w == 0 {
		s := ls.routes[r].first
		ls.pred[u], ls.succ[u] = 0, s
		if s != 0 {
			ls.pred[s] = u
		} else {
			ls.routes[r].last = u
		}
		ls.routes[r].first = u
	} else {
		s := ls.succ[w]
		ls.pred[u], ls.succ[u] = w, s
		ls.succ[w] = u
		if s != 0 {
			ls.pred[s] = u
		} else {
			ls.routes[r].last = u
		}
	}
	ls.routeOf[u] = r
}

// reverseSegment reverses the chain a..b (inclusive) in place.
func (ls *LocalSearch) reverseSegment(a, b int) {
	r := ls.routeOf[a]
	before, after := ls.pred[a], ls.succ[b]

	ls.segBuf = ls.segBuf[:0]
	for c := a; ; c = ls.succ[c] {
		ls.segBuf = append(ls.segBuf, c)
		if c == b {
			break
		}
	}

	prev := before
	for i := len(ls.segBuf) - 1; i >= 0; i-- {
		c := ls.segBuf[i]
		ls.pred[c] = prev
		if prev != 0 {
			ls.succ[prev] = c
		} else {
			ls.routes[r].first = c
		}
		prev = c
	}
	ls.succ[a] = after
	if after != 0 {
		ls.pred[after] = a
	} else {
		ls.routes[r].last = a
	}
}
