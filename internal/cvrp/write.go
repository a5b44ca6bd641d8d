package cvrp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WriteProblem serializes an instance in the same format Parse accepts,
// depot row first.
func WriteProblem(w io.Writer, p *Problem) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, p.Name)
	if p.MaxVehicles > 0 {
		fmt.Fprintf(bw, "%s %d\n", formatFloat(p.Capacity), p.MaxVehicles)
	} else {
		fmt.Fprintln(bw, formatFloat(p.Capacity))
	}
	for _, n := range p.Nodes {
		fmt.Fprintf(bw, "%d %s %s %s\n", n.ID, formatFloat(n.X), formatFloat(n.Y), formatFloat(n.Demand))
	}
	return bw.Flush()
}

// WriteSolution writes one route per line as space-separated node IDs,
// followed by a "Cost <total>" line with the distance rounded to 2 places.
func WriteSolution(w io.Writer, p *Problem, s Solution) error {
	bw := bufio.NewWriter(w)
	for _, route := range s.Routes {
		ids := make([]string, len(route))
		for i, c := range route {
			ids[i] = strconv.Itoa(p.Nodes[c].ID)
		}
		fmt.Fprintln(bw, strings.Join(ids, " "))
	}
	fmt.Fprintf(bw, "Cost %.2f\n", s.Distance)
	return bw.Flush()
}

// WriteSolutionFile writes a solution to the given path.
func WriteSolutionFile(path string, p *Problem, s Solution) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSolution(f, p, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSolution parses the WriteSolution format back into a Solution,
// mapping node IDs to internal indices via the Problem.
func ReadSolution(r io.Reader, p *Problem) (Solution, error) {
	byID := make(map[int]int, len(p.Nodes))
	for i, n := range p.Nodes {
		byID[n.ID] = i
	}

	var sol Solution
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Cost ") {
			cost, err := strconv.ParseFloat(strings.TrimPrefix(line, "Cost "), 64)
			if err != nil {
				return Solution{}, fmt.Errorf("cost line: %w", err)
			}
			sol.Distance = cost
			continue
		}
		var route []int
		for _, f := range strings.Fields(line) {
			id, err := strconv.Atoi(f)
			if err != nil {
				return Solution{}, fmt.Errorf("route line: %w", err)
			}
			idx, ok := byID[id]
			if !ok {
				return Solution{}, fmt.Errorf("route line: unknown node id %d", id)
			}
			route = append(route, idx)
		}
		sol.Routes = append(sol.Routes, route)
	}
	if err := sc.Err(); err != nil {
		return Solution{}, err
	}
	sol.Feasible = true
	for _, route := range sol.Routes {
		if p.RouteLoad(route) > p.Capacity {
			sol.Feasible = false
		}
	}
	return sol, nil
}

// formatFloat prints integral values without a decimal point so that
// serialized instances stay byte-stable through a parse/write round trip.
func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
