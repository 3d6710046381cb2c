package models

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

type ModelConfig struct {
	Algorithm          string
	Bags               int
	MaxSplitTries      int
	IncludeLastFeature bool
	// Seed 0 means seed from the clock.
	Seed       uint64
	Parallel   bool
	MaxWorkers int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]LearnerFactory{
		"pert": NewPERTLearner,
	}
)

// RegisterLearner makes a base learner available to ensembles by name.
func RegisterLearner(name string, factory LearnerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

func LookupLearner(name string) (LearnerFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: learner %q", ErrUnknownAlgorithm, name)
	}
	return factory, nil
}

func Learners() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPERTLearner is the LearnerFactory for RandomSplitTree.
func NewPERTLearner(params map[string]any, src rand.Source) (Regressor, error) {
	treeParams, err := treeParamsFrom(params)
	if err != nil {
		return nil, err
	}
	return NewRandomSplitTree(treeParams, src), nil
}

func treeParamsFrom(params map[string]any) (TreeParams, error) {
	var tp TreeParams

	if v, ok := params["max_split_tries"]; ok {
		n, err := intParam("max_split_tries", v)
		if err != nil {
			return tp, err
		}
		tp.MaxSplitTries = n
	}

	if v, ok := params["include_last_feature"]; ok {
		b, ok := v.(bool)
		if !ok {
			return tp, fmt.Errorf("%w: include_last_feature must be a bool, got %T", ErrInvalidParam, v)
		}
		tp.IncludeLastFeature = b
	}

	return tp, nil
}

func intParam(name string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParam, name, v)
}

func CreateModel(config ModelConfig) (Regressor, error) {
	if config.MaxSplitTries <= 0 {
		config.MaxSplitTries = DefaultMaxSplitTries
	}

	switch config.Algorithm {
	case "pert", "tree":
		return NewRandomSplitTree(TreeParams{
			MaxSplitTries:      config.MaxSplitTries,
			IncludeLastFeature: config.IncludeLastFeature,
		}, sourceFor(config.Seed)), nil

	case "bag", "bagging":
		if config.Bags <= 0 {
			config.Bags = DefaultBags
		}
		ensemble := NewBaggedEnsemble("pert", NewPERTLearner, map[string]any{
			"max_split_tries":      config.MaxSplitTries,
			"include_last_feature": config.IncludeLastFeature,
		}, config.Bags)
		ensemble.Parallel = config.Parallel
		if config.MaxWorkers > 0 {
			ensemble.MaxWorkers = config.MaxWorkers
		}
		ensemble.SetSeed(sourceFor(config.Seed).Uint64())
		return ensemble, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, config.Algorithm)
	}
}

func DefaultConfig(algorithm string) ModelConfig {
	config := ModelConfig{Algorithm: algorithm, MaxSplitTries: DefaultMaxSplitTries}

	switch algorithm {
	case "bag", "bagging":
		config.Bags = DefaultBags
		config.MaxWorkers = 4
	}

	return config
}

func sourceFor(seed uint64) rand.Source {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.NewSource(seed)
}

// ConfigFromModel recovers the ModelConfig that rebuilds an untrained copy
// of model. The seed is left at 0.
func ConfigFromModel(model Regressor) (ModelConfig, error) {
	switch m := model.(type) {
	case *RandomSplitTree:
		return ModelConfig{
			Algorithm:          "pert",
			MaxSplitTries:      m.MaxSplitTries,
			IncludeLastFeature: m.IncludeLastFeature,
		}, nil

	case *BaggedEnsemble:
		if m.Learner != "pert" {
			return ModelConfig{}, fmt.Errorf("%w: learner %q has no model config", ErrUnknownAlgorithm, m.Learner)
		}
		tp, err := treeParamsFrom(m.LearnerParams)
		if err != nil {
			return ModelConfig{}, err
		}
		return ModelConfig{
			Algorithm:          "bag",
			Bags:               m.Bags,
			MaxSplitTries:      tp.MaxSplitTries,
			IncludeLastFeature: tp.IncludeLastFeature,
			Parallel:           m.Parallel,
			MaxWorkers:         m.MaxWorkers,
		}, nil

	default:
		return ModelConfig{}, fmt.Errorf("%w: %T", ErrUnknownAlgorithm, model)
	}
}
