package opt

// insertCache holds the three cheapest insertion positions of one customer in
// one route, keyed to the route's timestamp. Three suffice: a SWAP* exchange
// removes at most one customer from the target route, which can invalidate at
// most two of the cached positions.
type insertCache struct {
	stamp uint64
	n     int
	after [3]int
	cost  [3]float64
}

func (c *insertCache) push(after int, cost float64) {
	i := c.n
	if i < len(c.after) {
		c.n++
	} else {
		i--
		if cost >= c.cost[i] {
			return
		}
	}
	for i > 0 && cost < c.cost[i-1] {
		c.after[i], c.cost[i] = c.after[i-1], c.cost[i-1]
		i--
	}
	c.after[i], c.cost[i] = after, cost
}

// swapStarPass sweeps every ordered pair of distinct routes whose polar
// sectors intersect and applies, for each pair, the first improving SWAP*
// exchange found.
func (ls *LocalSearch) swapStarPass() bool {
	improved := false
	for r1 := range ls.routes {
		if ls.routes[r1].size == 0 {
			continue
		}
		for r2 := range ls.routes {
			if r2 == r1 || ls.routes[r2].size == 0 {
				continue
			}
			if circDist(ls.routes[r1].angleMean, ls.routes[r2].angleMean) >
				ls.routes[r1].angleSpan+ls.routes[r2].angleSpan {
				continue
			}
			if ls.swapStarRoutes(r1, r2) {
				improved = true
			}
		}
	}
	return improved
}

// swapStarRoutes tries exchanging each u of r1 with each v of r2, each
// re-inserted at its best position in the other route (not necessarily where
// its counterpart left). First improvement applies and returns.
func (ls *LocalSearch) swapStarRoutes(r1, r2 int) bool {
	for u := ls.routes[r1].first; u != 0; u = ls.succ[u] {
		gainU := ls.d(ls.pred[u], ls.succ[u]) - ls.d(ls.pred[u], u) - ls.d(u, ls.succ[u])
		for v := ls.routes[r2].first; v != 0; v = ls.succ[v] {
			gainV := ls.d(ls.pred[v], ls.succ[v]) - ls.d(ls.pred[v], v) - ls.d(v, ls.succ[v])

			insU, afterU := ls.bestInsertExcluding(r2, u, v)
			insV, afterV := ls.bestInsertExcluding(r1, v, u)

			diff := ls.p.Demand(u) - ls.p.Demand(v)
			delta := gainU + gainV + insU + insV +
				ls.loadDelta(r1, -diff) + ls.loadDelta(r2, diff)
			if delta >= -improveEps {
				continue
			}

			ls.unlink(u)
			ls.unlink(v)
			ls.linkAfter(u, afterU, r2)
			ls.linkAfter(v, afterV, r1)
			ls.refresh(r1, r2)
			return true
		}
	}
	return false
}

// bestInsertExcluding returns the cheapest insertion of x into route r given
// that excl is about to leave it, as (cost delta, predecessor handle). It
// combines the surviving cached positions with the slot vacated by excl.
func (ls *LocalSearch) bestInsertExcluding(r, x, excl int) (float64, int) {
	c := ls.insertions(r, x)
	bestAfter := -1
	bestCost := 0.0
	for i := 0; i < c.n; i++ {
		w := c.after[i]
		if w == excl {
			continue
		}
		next := ls.routes[r].first
		if w != 0 {
			next = ls.succ[w]
		}
		if next == excl {
			continue
		}
		if bestAfter < 0 || c.cost[i] < bestCost {
			bestAfter, bestCost = w, c.cost[i]
		}
	}

	pe, se := ls.pred[excl], ls.succ[excl]
	vacated := ls.d(pe, x) + ls.d(x, se) - ls.d(pe, se)
	if bestAfter < 0 || vacated < bestCost {
		return vacated, pe
	}
	return bestCost, bestAfter
}

// insertions returns the top-3 insertion positions of x in route r, reusing
// the cache while the route's timestamp is unchanged.
func (ls *LocalSearch) insertions(r, x int) *insertCache {
	c := &ls.insCache[r][x]
	if c.stamp == ls.routes[r].stamp {
		return c
	}
	c.stamp = ls.routes[r].stamp
	c.n = 0
	first := ls.routes[r].first
	c.push(0, ls.d(0, x)+ls.d(x, first)-ls.d(0, first))
	for w := first; w != 0; w = ls.succ[w] {
		sw := ls.succ[w]
		c.push(w, ls.d(w, x)+ls.d(x, sw)-ls.d(w, sw))
	}
	return c
}
