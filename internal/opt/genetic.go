package opt

import "math/rand"

// crossoverOX is the ordered crossover: the child inherits the segment
// p1[i..j] in place, and the remaining customers fill the other positions in
// the order they appear in p2, scanning from j+1 with wraparound.
func crossoverOX(rng *rand.Rand, p1, p2 []int, n int) []int {
	i := rng.Intn(len(p1))
	j := rng.Intn(len(p1))
	if i > j {
		i, j = j, i
	}

	child := make([]int, len(p1))
	used := make([]bool, n+1)
	for k := i; k <= j; k++ {
		child[k] = p1[k]
		used[p1[k]] = true
	}

	at := (j + 1) % len(child)
	for k := 0; k < len(p2); k++ {
		c := p2[(j+1+k)%len(p2)]
		if used[c] {
			continue
		}
		child[at] = c
		used[c] = true
		at = (at + 1) % len(child)
	}
	return child
}

// randomTour draws a uniform customer permutation.
func randomTour(rng *rand.Rand, n int) []int {
	tour := make([]int, n)
	for i := range tour {
		tour[i] = i + 1
	}
	rng.Shuffle(n, func(i, j int) {
		tour[i], tour[j] = tour[j], tour[i]
	})
	return tour
}
