package opt

// tryMoves evaluates the move catalog for the pair (u,v) in fixed order and
// applies the first strict improvement of the penalized cost.
func (ls *LocalSearch) tryMoves(u, v int) bool {
	if ls.tryRelocate(u, v) {
		return true
	}
	if ls.tryRelocatePair(u, v, false) {
		return true
	}
	if ls.tryRelocatePair(u, v, true) {
		return true
	}
	if ls.trySwap(u, v) {
		return true
	}
	if ls.trySwapPairSingle(u, v) {
		return true
	}
	if ls.trySwapPairPair(u, v) {
		return true
	}
	if ls.tryTwoOpt(u, v) {
		return true
	}
	if ls.tryTwoOptStar(u, v) {
		return true
	}
	return false
}

// tryRelocate moves u to be v's successor.
func (ls *LocalSearch) tryRelocate(u, v int) bool {
	if u == v || ls.succ[v] == u {
		return false
	}
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	pu, su := ls.pred[u], ls.succ[u]
	sv := ls.succ[v]
	delta := ls.d(pu, su) - ls.d(pu, u) - ls.d(u, su) +
		ls.d(v, u) + ls.d(u, sv) - ls.d(v, sv)
	if ru != rv {
		du := ls.p.Demand(u)
		delta += ls.loadDelta(ru, -du) + ls.loadDelta(rv, du)
	}
	if delta >= -improveEps {
		return false
	}
	ls.unlink(u)
	ls.linkAfter(u, v, rv)
	ls.refresh(ru, rv)
	return true
}

// tryRelocatePair moves the pair (u, succ(u)) after v, optionally reversed.
func (ls *LocalSearch) tryRelocatePair(u, v int, reversed bool) bool {
	x := ls.succ[u]
	if x == 0 || u == v || x == v || ls.succ[v] == u {
		return false
	}
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	pu, sx := ls.pred[u], ls.succ[x]
	sv := ls.succ[v]
	delta := ls.d(pu, sx) - ls.d(pu, u) - ls.d(x, sx)
	if reversed {
		delta += ls.d(v, x) + ls.d(u, sv) - ls.d(v, sv)
	} else {
		delta += ls.d(v, u) + ls.d(x, sv) - ls.d(v, sv)
	}
	if ru != rv {
		dd := ls.p.Demand(u) + ls.p.Demand(x)
		delta += ls.loadDelta(ru, -dd) + ls.loadDelta(rv, dd)
	}
	if delta >= -improveEps {
		return false
	}
	ls.unlink(x)
	ls.unlink(u)
	if reversed {
		ls.linkAfter(x, v, rv)
		ls.linkAfter(u, x, rv)
	} else {
		ls.linkAfter(u, v, rv)
		ls.linkAfter(x, u, rv)
	}
	ls.refresh(ru, rv)
	return true
}

// trySwap exchanges the single nodes u and v.
func (ls *LocalSearch) trySwap(u, v int) bool {
	if u == v {
		return false
	}
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	pu, su := ls.pred[u], ls.succ[u]
	pv, sv := ls.pred[v], ls.succ[v]
	var delta float64
	switch {
	case su == v:
		delta = ls.d(pu, v) + ls.d(u, sv) - ls.d(pu, u) - ls.d(v, sv)
	case sv == u:
		delta = ls.d(pv, u) + ls.d(v, su) - ls.d(pv, v) - ls.d(u, su)
	default:
		delta = ls.d(pu, v) + ls.d(v, su) - ls.d(pu, u) - ls.d(u, su) +
			ls.d(pv, u) + ls.d(u, sv) - ls.d(pv, v) - ls.d(v, sv)
	}
	if ru != rv {
		diff := ls.p.Demand(v) - ls.p.Demand(u)
		delta += ls.loadDelta(ru, diff) + ls.loadDelta(rv, -diff)
	}
	if delta >= -improveEps {
		return false
	}
	switch {
	case su == v:
		ls.unlink(u)
		ls.linkAfter(u, v, rv)
	case sv == u:
		ls.unlink(v)
		ls.linkAfter(v, u, ru)
	default:
		ls.unlink(u)
		ls.unlink(v)
		ls.linkAfter(u, pv, rv)
		ls.linkAfter(v, pu, ru)
	}
	ls.refresh(ru, rv)
	return true
}

// trySwapPairSingle exchanges the pair (u, succ(u)) with the single node v.
func (ls *LocalSearch) trySwapPairSingle(u, v int) bool {
	x := ls.succ[u]
	if x == 0 || v == u || v == x {
		return false
	}
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	pu, sx := ls.pred[u], ls.succ[x]
	pv, sv := ls.pred[v], ls.succ[v]
	var delta float64
	switch {
	case sx == v:
		delta = ls.d(pu, v) + ls.d(v, u) + ls.d(x, sv) -
			ls.d(pu, u) - ls.d(x, v) - ls.d(v, sv)
	case sv == u:
		delta = ls.d(pv, u) + ls.d(x, v) + ls.d(v, sx) -
			ls.d(pv, v) - ls.d(v, u) - ls.d(x, sx)
	default:
		delta = ls.d(pu, v) + ls.d(v, sx) - ls.d(pu, u) - ls.d(x, sx) +
			ls.d(pv, u) + ls.d(x, sv) - ls.d(pv, v) - ls.d(v, sv)
	}
	if ru != rv {
		diff := ls.p.Demand(u) + ls.p.Demand(x) - ls.p.Demand(v)
		delta += ls.loadDelta(ru, -diff) + ls.loadDelta(rv, diff)
	}
	if delta >= -improveEps {
		return false
	}
	switch {
	case sx == v:
		ls.unlink(v)
		ls.linkAfter(v, pu, ru)
	case sv == u:
		ls.unlink(v)
		ls.linkAfter(v, x, ru)
	default:
		ls.unlink(u)
		ls.unlink(x)
		ls.unlink(v)
		ls.linkAfter(v, pu, ru)
		ls.linkAfter(u, pv, rv)
		ls.linkAfter(x, u, rv)
	}
	ls.refresh(ru, rv)
	return true
}

// trySwapPairPair exchanges the pairs (u, succ(u)) and (v, succ(v)).
func (ls *LocalSearch) trySwapPairPair(u, v int) bool {
	x, y := ls.succ[u], ls.succ[v]
	if x == 0 || y == 0 || v == u || v == x || y == u {
		return false
	}
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	pu, sx := ls.pred[u], ls.succ[x]
	pv, sy := ls.pred[v], ls.succ[y]
	var delta float64
	switch {
	case sx == v:
		delta = ls.d(pu, v) + ls.d(y, u) + ls.d(x, sy) -
			ls.d(pu, u) - ls.d(x, v) - ls.d(y, sy)
	case sy == u:
		delta = ls.d(pv, u) + ls.d(x, v) + ls.d(y, sx) -
			ls.d(pv, v) - ls.d(y, u) - ls.d(x, sx)
	default:
		delta = ls.d(pu, v) + ls.d(y, sx) - ls.d(pu, u) - ls.d(x, sx) +
			ls.d(pv, u) + ls.d(x, sy) - ls.d(pv, v) - ls.d(y, sy)
	}
	if ru != rv {
		diff := ls.p.Demand(u) + ls.p.Demand(x) - ls.p.Demand(v) - ls.p.Demand(y)
		delta += ls.loadDelta(ru, -diff) + ls.loadDelta(rv, diff)
	}
	if delta >= -improveEps {
		return false
	}
	switch {
	case sx == v:
		ls.unlink(v)
		ls.unlink(y)
		ls.linkAfter(v, pu, ru)
		ls.linkAfter(y, v, ru)
	case sy == u:
		ls.unlink(u)
		ls.unlink(x)
		ls.linkAfter(u, pv, rv)
		ls.linkAfter(x, u, rv)
	default:
		ls.unlink(u)
		ls.unlink(x)
		ls.unlink(v)
		ls.unlink(y)
		ls.linkAfter(v, pu, ru)
		ls.linkAfter(y, v, ru)
		ls.linkAfter(u, pv, rv)
		ls.linkAfter(x, u, rv)
	}
	ls.refresh(ru, rv)
	return true
}

// tryTwoOpt reverses the intra-route segment succ(u)..v, replacing the edges
// (u, succ(u)) and (v, succ(v)) with (u, v) and (succ(u), succ(v)).
func (ls *LocalSearch) tryTwoOpt(u, v int) bool {
	r := ls.routeOf[u]
	if ls.routeOf[v] != r || ls.pos[u] >= ls.pos[v] {
		return false
	}
	su, sv := ls.succ[u], ls.succ[v]
	if su == v {
		return false
	}
	delta := ls.d(u, v) + ls.d(su, sv) - ls.d(u, su) - ls.d(v, sv)
	if delta >= -improveEps {
		return false
	}
	ls.reverseSegment(su, v)
	ls.refresh(r)
	return true
}

// tryTwoOptStar exchanges route tails: u keeps its head and adopts v's tail,
// and vice versa.
func (ls *LocalSearch) tryTwoOptStar(u, v int) bool {
	ru, rv := ls.routeOf[u], ls.routeOf[v]
	if ru == rv {
		return false
	}
	su, sv := ls.succ[u], ls.succ[v]
	newLoadU := ls.cumLoad[u] + ls.routes[rv].load - ls.cumLoad[v]
	newLoadV := ls.cumLoad[v] + ls.routes[ru].load - ls.cumLoad[u]
	delta := ls.d(u, sv) + ls.d(v, su) - ls.d(u, su) - ls.d(v, sv) +
		ls.overload(newLoadU) - ls.overload(ls.routes[ru].load) +
		ls.overload(newLoadV) - ls.overload(ls.routes[rv].load)
	if delta >= -improveEps {
		return false
	}
	lastU, lastV := ls.routes[ru].last, ls.routes[rv].last
	ls.succ[u] = sv
	if sv != 0 {
		ls.pred[sv] = u
		ls.routes[ru].last = lastV
	} else {
		ls.routes[ru].last = u
	}
	ls.succ[v] = su
	if su != 0 {
		ls.pred[su] = v
		ls.routes[rv].last = lastU
	} else {
		ls.routes[rv].last = v
	}
	ls.refresh(ru, rv)
	return true
}
