package cvrp

import (
	"fmt"
	"io"
)

var routeSymbols = []byte{'*', '+', 'x', '#', '@', '&', '%', '=', '^', '$'}

// Visualize renders the solution as an 80x25 character grid with the depot
// marked D and each route drawn with its own symbol, followed by a legend.
func Visualize(w io.Writer, p *Problem, s Solution) {
	const width, height = 80, 25

	minX, minY := p.Nodes[0].X, p.Nodes[0].Y
	maxX, maxY := minX, minY
	for _, n := range p.Nodes {
		if n.X < minX {
			minX = n.X
		}
		if n.X > maxX {
			maxX = n.X
		}
		if n.Y < minY {
			minY = n.Y
		}
		if n.Y > maxY {
			maxY = n.Y
		}
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}
	plot := func(x, y float64) (int, int) {
		gx := int((x - minX) / spanX * (width - 1))
		gy := int((y - minY) / spanY * (height - 1))
		return gx, gy
	}

	grid := make([][]byte, height)
	for i := range grid {
		grid[i] = make([]byte, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	for rIdx, route := range s.Routes {
		sym := routeSymbols[rIdx%len(routeSymbols)]
		for _, c := range route {
			gx, gy := plot(p.Nodes[c].X, p.Nodes[c].Y)
			grid[gy][gx] = sym
		}
	}
	gx, gy := plot(p.Nodes[0].X, p.Nodes[0].Y)
	grid[gy][gx] = 'D'

	fmt.Fprintf(w, "Solution for %s\n", p.Name)
	fmt.Fprintf(w, "Total Distance: %.2f\n", s.Distance)
	fmt.Fprintf(w, "Number of Routes: %d\n\n", len(s.Routes))
	for _, row := range grid {
		fmt.Fprintln(w, string(row))
	}
	fmt.Fprintln(w, "\nLegend:")
	fmt.Fprintln(w, "D - Depot")
	for rIdx := range s.Routes {
		if rIdx >= len(routeSymbols) {
			break
		}
		fmt.Fprintf(w, "%c - Route #%d\n", routeSymbols[rIdx], rIdx+1)
	}
}
