package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hgsolve/internal/cvrp"
	"hgsolve/internal/opt"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		input      = flag.String("i", "", "instance file (default: stdin)")
		output     = flag.String("o", "", "solution file (default: stdout)")
		timeLimit  = flag.Duration("t", 0, "time limit, e.g. 30s or 5m")
		iterations = flag.Int("iterations", 0, "stop after this many iterations without improvement")
		minPop     = flag.Int("min_pop_size", 0, "minimum population size per subpopulation")
		genSize    = flag.Int("generation_size", 0, "offspring per generation before survivor selection")
		nElite     = flag.Int("n_elite", 0, "elite count in the biased fitness")
		granular   = flag.Int("granularity", 0, "neighborhood size for local search")
		seed       = flag.Int64("seed", 0, "PRNG seed (0 picks one from the clock)")
		configPath = flag.String("config", "", "YAML config file applied before flags")
		visualize  = flag.Bool("v", false, "print an ASCII visualization of the best solution")
		verbose    = flag.Bool("verbose", false, "log every improvement")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("hgsolve: ")

	cfg := opt.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = opt.LoadConfig(*configPath)
		if err != nil {
			log.Printf("config: %v", err)
			return 1
		}
	}
	if *timeLimit > 0 {
		cfg.TimeLimit = *timeLimit
	}
	if *iterations > 0 {
		cfg.MaxIterNoImprove = *iterations
	}
	if *minPop > 0 {
		cfg.MinPopSize = *minPop
	}
	if *genSize > 0 {
		cfg.GenerationSize = *genSize
	}
	if *nElite > 0 {
		cfg.NElite = *nElite
	}
	if *granular > 0 {
		cfg.Granularity = *granular
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	cfg.Verbose = cfg.Verbose || *verbose

	p, err := readInstance(*input)
	if err != nil {
		log.Printf("parse: %v", err)
		if errors.Is(err, cvrp.ErrInvalidInstance) {
			return 2
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress opt.ProgressFunc
	if cfg.Verbose {
		start := time.Now()
		progress = func(ev opt.Progress) {
			switch ev.Kind {
			case opt.ProgressIncumbent:
				log.Printf("iter %d: new best %.2f (%.1fs)", ev.Iteration, ev.BestCost, time.Since(start).Seconds())
			case opt.ProgressPenalty:
				log.Printf("iter %d: penalty now %.3f", ev.Iteration, ev.Penalty)
			case opt.ProgressDiversify:
				log.Printf("iter %d: diversification restart", ev.Iteration)
			case opt.ProgressDone:
				log.Printf("done after %d iterations, best %.2f", ev.Iteration, ev.BestCost)
			}
		}
	}

	res, err := opt.Solve(ctx, p, cfg, progress)
	if err != nil {
		log.Printf("solve: %v", err)
		return 1
	}
	if !res.Feasible {
		log.Printf("warning: no feasible solution found for %s, writing best attempt (%d routes)",
			p.Name, len(res.Solution.Routes))
	}

	if err := writeSolution(*output, p, res.Solution); err != nil {
		log.Printf("write: %v", err)
		return 1
	}
	if *visualize {
		cvrp.Visualize(os.Stderr, p, res.Solution)
	}
	if cfg.Verbose {
		log.Printf("%s: cost %.2f, %d routes, %d iterations in %v",
			p.Name, res.Solution.Distance, len(res.Solution.Routes), res.Iterations, res.Runtime.Round(time.Millisecond))
	}
	return 0
}

func readInstance(path string) (*cvrp.Problem, error) {
	if path == "" || path == "-" {
		return cvrp.Parse(os.Stdin)
	}
	return cvrp.ParseFile(path)
}

func writeSolution(path string, p *cvrp.Problem, s cvrp.Solution) error {
	if path == "" || path == "-" {
		return cvrp.WriteSolution(os.Stdout, p, s)
	}
	return cvrp.WriteSolutionFile(path, p, s)
}
