package cvrp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parse reads an instance in the plain text format:
//
//	<name>
//	<capacity> [<maxVehicles>]
//	<id> <x> <y> <demand>
//	...
//
// The depot is the unique row with demand 0. Node IDs are informational;
// internally the depot gets index 0 and customers 1..n in file order.
func Parse(r io.Reader) (*Problem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line, err := nextLine(sc)
	if err != nil {
		return nil, fmt.Errorf("instance header: %w", err)
	}
	name := line

	line, err = nextLine(sc)
	if err != nil {
		return nil, fmt.Errorf("capacity line: %w", err)
	}
	fields := strings.Fields(line)
	if len(fields) < 1 || len(fields) > 2 {
		return nil, fmt.Errorf("capacity line: want 1 or 2 fields, got %q", line)
	}
	capacity, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("capacity: %w", err)
	}
	maxVehicles := 0
	if len(fields) == 2 {
		maxVehicles, err = strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("max vehicles: %w", err)
		}
	}

	var depot *Node
	var customers []Node
	lineNo := 2
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		f := strings.Fields(text)
		if len(f) != 4 {
			return nil, fmt.Errorf("line %d: want 4 fields, got %q", lineNo, text)
		}
		id, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: id: %w", lineNo, err)
		}
		x, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: x: %w", lineNo, err)
		}
		y, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: y: %w", lineNo, err)
		}
		demand, err := strconv.ParseFloat(f[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: demand: %w", lineNo, err)
		}
		n := Node{ID: id, X: x, Y: y, Demand: demand}
		if demand == 0 {
			if depot != nil {
				return nil, fmt.Errorf("%w: duplicated depot (node %d)", ErrInvalidInstance, id)
			}
			d := n
			depot = &d
			continue
		}
		customers = append(customers, n)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if depot == nil {
		return nil, fmt.Errorf("%w: depot missing (no row with demand 0)", ErrInvalidInstance)
	}

	nodes := make([]Node, 0, len(customers)+1)
	nodes = append(nodes, *depot)
	nodes = append(nodes, customers...)
	return NewProblem(name, nodes, capacity, maxVehicles)
}

// ParseFile opens and parses an instance file.
func ParseFile(path string) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func nextLine(sc *bufio.Scanner) (string, error) {
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text != "" {
			return text, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", io.ErrUnexpectedEOF
}
