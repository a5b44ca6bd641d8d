package opt

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the hybrid genetic search. Zero values are
// replaced by defaults in Normalize, so a partially filled struct (from
// flags, YAML, or an API request) is always usable.
type Config struct {
	TimeLimit        time.Duration `yaml:"timeLimit" json:"timeLimit,omitempty"`
	MaxIterNoImprove int           `yaml:"maxIterNoImprove" json:"maxIterNoImprove,omitempty"`
	MinPopSize       int           `yaml:"minPopSize" json:"minPopSize,omitempty"`
	GenerationSize   int           `yaml:"generationSize" json:"generationSize,omitempty"`
	NElite           int           `yaml:"nElite" json:"nElite,omitempty"`
	NClose           int           `yaml:"nClose" json:"nClose,omitempty"`
	Granularity      int           `yaml:"granularity" json:"granularity,omitempty"`
	PRepair          float64       `yaml:"pRepair" json:"pRepair,omitempty"`
	AdaptInterval    int           `yaml:"adaptInterval" json:"adaptInterval,omitempty"`
	DivInterval      int           `yaml:"divInterval" json:"divInterval,omitempty"`
	InitialPenalty   float64       `yaml:"initialPenalty" json:"initialPenalty,omitempty"` // 0 means capacity/10
	Seed             int64         `yaml:"seed" json:"seed,omitempty"`
	Verbose          bool          `yaml:"verbose" json:"verbose,omitempty"`
}

// DefaultConfig returns the standard parameterization.
func DefaultConfig() Config {
	return Config{
		TimeLimit:        60 * time.Second,
		MaxIterNoImprove: 20000,
		MinPopSize:       25,
		GenerationSize:   40,
		NElite:           4,
		NClose:           5,
		Granularity:      20,
		PRepair:          0.5,
		AdaptInterval:    100,
		DivInterval:      4000,
	}
}

// Normalize fills zero fields from DefaultConfig and rejects negatives.
func (c *Config) Normalize() error {
	def := DefaultConfig()
	if c.TimeLimit < 0 || c.MaxIterNoImprove < 0 || c.MinPopSize < 0 || c.GenerationSize < 0 ||
		c.NElite < 0 || c.NClose < 0 || c.Granularity < 0 || c.PRepair < 0 ||
		c.AdaptInterval < 0 || c.DivInterval < 0 || c.InitialPenalty < 0 {
		return fmt.Errorf("config: negative parameter")
	}
	if c.PRepair > 1 {
		return fmt.Errorf("config: pRepair %g out of [0,1]", c.PRepair)
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = def.TimeLimit
	}
	if c.MaxIterNoImprove == 0 {
		c.MaxIterNoImprove = def.MaxIterNoImprove
	}
	if c.MinPopSize == 0 {
		c.MinPopSize = def.MinPopSize
	}
	if c.GenerationSize == 0 {
		c.GenerationSize = def.GenerationSize
	}
	if c.NElite == 0 {
		c.NElite = def.NElite
	}
	if c.NClose == 0 {
		c.NClose = def.NClose
	}
	if c.Granularity == 0 {
		c.Granularity = def.Granularity
	}
	if c.PRepair == 0 {
		c.PRepair = def.PRepair
	}
	if c.AdaptInterval == 0 {
		c.AdaptInterval = def.AdaptInterval
	}
	if c.DivInterval == 0 {
		c.DivInterval = def.DivInterval
	}
	return nil
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
