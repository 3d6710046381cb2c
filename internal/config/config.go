package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pertforest/internal/models"
)

type Config struct {
	Log        Log        `yaml:"log"`
	Data       Data       `yaml:"data"`
	Model      Model      `yaml:"model"`
	Experiment Experiment `yaml:"experiment"`
}

type Log struct {
	Level string `yaml:"level"`
	// Path is the log directory. Empty logs to stderr.
	Path string `yaml:"path"`
}

type Data struct {
	File        string             `yaml:"file"`
	Target      string             `yaml:"target"`
	Features    []string           `yaml:"features"`
	Categorical []string           `yaml:"categorical"`
	Fill        map[string]float64 `yaml:"fill"`
}

type Model struct {
	Algorithm          string `yaml:"algorithm"`
	Bags               int    `yaml:"bags"`
	MaxSplitTries      int    `yaml:"max_split_tries"`
	IncludeLastFeature bool   `yaml:"include_last_feature"`
	Seed               uint64 `yaml:"seed"`
	Parallel           bool   `yaml:"parallel"`
	MaxWorkers         int    `yaml:"max_workers"`
}

type Experiment struct {
	Bags    BagRange `yaml:"bags"`
	Folds   int      `yaml:"folds"`
	Shuffle bool     `yaml:"shuffle"`
	Seed    uint64   `yaml:"seed"`
	Output  string   `yaml:"output"`
}

// BagRange is the half-open range [Start, Stop) walked in Step increments.
type BagRange struct {
	Start int `yaml:"start"`
	Stop  int `yaml:"stop"`
	Step  int `yaml:"step"`
}

func Default() *Config {
	return &Config{
		Log: Log{Level: "info"},
		Model: Model{
			Algorithm:     "bag",
			Bags:          models.DefaultBags,
			MaxSplitTries: models.DefaultMaxSplitTries,
			MaxWorkers:    4,
		},
		Experiment: Experiment{
			Bags:    BagRange{Start: 1, Stop: 50, Step: 5},
			Folds:   5,
			Shuffle: true,
			Output:  "experiments",
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	conf := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Model.Algorithm {
	case "pert", "tree", "bag", "bagging":
	default:
		return fmt.Errorf("model.algorithm: unknown algorithm %q", c.Model.Algorithm)
	}

	if c.Model.Bags < 0 {
		return fmt.Errorf("model.bags must not be negative")
	}

	if c.Model.MaxSplitTries < 0 {
		return fmt.Errorf("model.max_split_tries must not be negative")
	}

	if c.Experiment.Folds < 2 {
		return fmt.Errorf("experiment.folds must be at least 2")
	}

	if len(c.Experiment.Bags.Values()) == 0 {
		return fmt.Errorf("experiment.bags is an empty range")
	}

	return nil
}

func (m Model) ModelConfig() models.ModelConfig {
	return models.ModelConfig{
		Algorithm:          m.Algorithm,
		Bags:               m.Bags,
		MaxSplitTries:      m.MaxSplitTries,
		IncludeLastFeature: m.IncludeLastFeature,
		Seed:               m.Seed,
		Parallel:           m.Parallel,
		MaxWorkers:         m.MaxWorkers,
	}
}

func (b BagRange) Values() []int {
	if b.Step <= 0 || b.Start <= 0 {
		return nil
	}

	var values []int
	for n := b.Start; n < b.Stop; n += b.Step {
		values = append(values, n)
	}
	return values
}
