// Package config loads run configuration from YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stirps/internal/model"
)

// SubpopConfig declares one subpopulation of the run.
type SubpopConfig struct {
	ID   string `yaml:"id"`
	Size int    `yaml:"size"`
}

// RunConfig describes one simulation run. The genetic rates are passed to
// the engine opaquely; the driver never interprets them.
type RunConfig struct {
	RunID       string         `yaml:"run_id,omitempty"`
	Model       string         `yaml:"model"`
	Seed        int64          `yaml:"seed"`
	Generations int            `yaml:"generations"`
	Subpops     []SubpopConfig `yaml:"subpopulations"`
	MaxAge      int            `yaml:"max_age,omitempty"`

	PedigreeLog        string `yaml:"pedigree_log"`
	CheckpointPath     string `yaml:"checkpoint_path,omitempty"`
	CheckpointInterval int    `yaml:"checkpoint_interval,omitempty"`

	MutationRate      float64 `yaml:"mutation_rate,omitempty"`
	RecombinationRate float64 `yaml:"recombination_rate,omitempty"`
	SequenceLength    int     `yaml:"sequence_length,omitempty"`

	Store  string `yaml:"store,omitempty"`
	DBPath string `yaml:"db_path,omitempty"`
}

// Default returns a RunConfig with the defaults applied.
func Default() RunConfig {
	return RunConfig{
		Model:       string(model.ModelWF),
		Generations: 10,
		Subpops:     []SubpopConfig{{ID: "p1", Size: 100}},
		PedigreeLog: "pedigree.log",
		Store:       "memory",
		DBPath:      "stirps.db",
	}
}

// Load reads and validates a RunConfig from a YAML file. Missing fields keep
// their defaults.
func Load(path string) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration and rejects anything the driver or
// engine would refuse later, so failures surface at load time.
func (c RunConfig) Validate() error {
	if !model.ModelType(c.Model).Valid() {
		return fmt.Errorf("model must be %q or %q, got %q", model.ModelWF, model.ModelNonWF, c.Model)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("generations must be > 0, got %d", c.Generations)
	}
	if len(c.Subpops) == 0 {
		return fmt.Errorf("at least one subpopulation is required")
	}
	seen := make(map[string]struct{}, len(c.Subpops))
	for i, subpop := range c.Subpops {
		if subpop.ID == "" {
			return fmt.Errorf("subpopulation id is required at index %d", i)
		}
		if subpop.Size <= 0 {
			return fmt.Errorf("subpopulation %s size must be > 0", subpop.ID)
		}
		if _, dup := seen[subpop.ID]; dup {
			return fmt.Errorf("duplicate subpopulation: %s", subpop.ID)
		}
		seen[subpop.ID] = struct{}{}
	}
	if c.PedigreeLog == "" {
		return fmt.Errorf("pedigree_log is required")
	}
	if c.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval must be >= 0, got %d", c.CheckpointInterval)
	}
	if c.CheckpointInterval > 0 && c.CheckpointPath == "" {
		return fmt.Errorf("checkpoint_path is required when checkpoint_interval is set")
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("mutation_rate must be in [0, 1], got %g", c.MutationRate)
	}
	if c.RecombinationRate < 0 || c.RecombinationRate > 1 {
		return fmt.Errorf("recombination_rate must be in [0, 1], got %g", c.RecombinationRate)
	}
	if c.SequenceLength < 0 {
		return fmt.Errorf("sequence_length must be >= 0, got %d", c.SequenceLength)
	}
	switch c.Store {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("store must be memory or sqlite, got %q", c.Store)
	}
	return nil
}
