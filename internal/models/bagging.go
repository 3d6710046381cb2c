package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// DefaultBags is the bag count used when none is configured.
const DefaultBags = 20

var logger = logrus.WithField("module", "models")

// LearnerFactory builds an untrained base learner. Each learner gets its
// own random source.
type LearnerFactory func(params map[string]any, src rand.Source) (Regressor, error)

// BaggedEnsemble trains Bags base learners on bootstrap resamples of the
// training set and predicts the per-row mean of their outputs.
type BaggedEnsemble struct {
	BaseModel
	Learner       string
	LearnerParams map[string]any
	Bags          int
	Learners      []Regressor
	NumFeatures   int
	Parallel      bool
	MaxWorkers    int

	factory LearnerFactory
	rng     *rand.Rand
}

// NewBaggedEnsemble configures an ensemble without training it. A nil
// factory is resolved by learner name from the registry at Fit time.
func NewBaggedEnsemble(learner string, factory LearnerFactory, params map[string]any, bags int) *BaggedEnsemble {
	if bags <= 0 {
		bags = DefaultBags
	}

	return &BaggedEnsemble{
		Learner:       learner,
		LearnerParams: copyParams(params),
		Bags:          bags,
		Learners:      make([]Regressor, 0, bags),
		MaxWorkers:    4,
		factory:       factory,
		BaseModel: BaseModel{
			Name: "BaggedEnsemble",
			Params: map[string]any{
				"learner": learner,
				"bags":    bags,
			},
		},
	}
}

// SetSeed scopes the ensemble's random source. Every Fit draws fresh
// per-bag seeds from it, so repeated Fit calls differ while the whole
// sequence is reproducible.
func (e *BaggedEnsemble) SetSeed(seed uint64) {
	e.rng = rand.New(rand.NewSource(seed))
}

func (e *BaggedEnsemble) Fit(X [][]float64, y []float64) error {
	nFeatures, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}

	factory, err := e.learnerFactory()
	if err != nil {
		return err
	}

	e.Reset()

	if e.rng == nil {
		e.SetSeed(uint64(time.Now().UnixNano()))
	}

	seeds := make([]uint64, e.Bags)
	for i := range seeds {
		seeds[i] = e.rng.Uint64()
	}

	start := time.Now()
	var learners []Regressor
	if e.Parallel && e.Bags > 1 {
		learners, err = e.trainParallel(X, y, factory, seeds)
	} else {
		learners, err = e.trainSequential(X, y, factory, seeds)
	}
	if err != nil {
		return err
	}

	e.Learners = learners
	e.NumFeatures = nFeatures

	logger.WithFields(logrus.Fields{
		"bags":     e.Bags,
		"learner":  e.Learner,
		"samples":  len(X),
		"features": nFeatures,
		"elapsed":  time.Since(start),
	}).Debug("bagged ensemble trained")

	return nil
}

func (e *BaggedEnsemble) learnerFactory() (LearnerFactory, error) {
	if e.factory != nil {
		return e.factory, nil
	}

	factory, err := LookupLearner(e.Learner)
	if err != nil {
		return nil, err
	}
	e.factory = factory
	return factory, nil
}

func (e *BaggedEnsemble) trainParallel(X [][]float64, y []float64, factory LearnerFactory, seeds []uint64) ([]Regressor, error) {
	var wg sync.WaitGroup
	learners := make([]Regressor, e.Bags)
	errors := make([]error, e.Bags)

	workers := e.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > e.Bags {
		workers = e.Bags
	}

	jobs := make(chan int, e.Bags)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				learners[i], errors[i] = e.trainBag(X, y, factory, seeds[i])
			}
		}()
	}

	for i := 0; i < e.Bags; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	for i, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("bag %d training failed: %w", i, err)
		}
	}

	return learners, nil
}

func (e *BaggedEnsemble) trainSequential(X [][]float64, y []float64, factory LearnerFactory, seeds []uint64) ([]Regressor, error) {
	learners := make([]Regressor, e.Bags)
	for i := 0; i < e.Bags; i++ {
		learner, err := e.trainBag(X, y, factory, seeds[i])
		if err != nil {
			return nil, fmt.Errorf("bag %d training failed: %w", i, err)
		}
		learners[i] = learner
	}
	return learners, nil
}

// trainBag draws a bootstrap sample of len(X) rows with replacement and
// trains one fresh learner on it. The sample shares row slices with X.
func (e *BaggedEnsemble) trainBag(X [][]float64, y []float64, factory LearnerFactory, seed uint64) (Regressor, error) {
	r := rand.New(rand.NewSource(seed))

	n := len(X)
	XBoot := make([][]float64, n)
	yBoot := make([]float64, n)

	for i := 0; i < n; i++ {
		idx := r.Intn(n)
		XBoot[i] = X[idx]
		yBoot[i] = y[idx]
	}

	learner, err := factory(copyParams(e.LearnerParams), rand.NewSource(r.Uint64()))
	if err != nil {
		return nil, err
	}

	if err := learner.Fit(XBoot, yBoot); err != nil {
		return nil, err
	}

	return learner, nil
}

func (e *BaggedEnsemble) Predict(X [][]float64) ([]float64, error) {
	if !e.IsFitted() {
		return nil, ErrNotFitted
	}

	if err := checkPredictRows(X, e.NumFeatures); err != nil {
		return nil, err
	}

	var votes [][]float64
	var err error
	if e.Parallel && len(e.Learners) > 1 {
		votes, err = e.predictParallel(X)
	} else {
		votes, err = e.predictSequential(X)
	}
	if err != nil {
		return nil, err
	}

	predictions := make([]float64, len(X))
	column := make([]float64, len(votes))
	for i := range X {
		for j := range votes {
			column[j] = votes[j][i]
		}
		predictions[i] = stat.Mean(column, nil)
	}

	return predictions, nil
}

func (e *BaggedEnsemble) predictSequential(X [][]float64) ([][]float64, error) {
	votes := make([][]float64, len(e.Learners))
	for j, learner := range e.Learners {
		p, err := learner.Predict(X)
		if err != nil {
			return nil, fmt.Errorf("bag %d prediction failed: %w", j, err)
		}
		votes[j] = p
	}
	return votes, nil
}

func (e *BaggedEnsemble) predictParallel(X [][]float64) ([][]float64, error) {
	var wg sync.WaitGroup
	votes := make([][]float64, len(e.Learners))
	errors := make([]error, len(e.Learners))

	workers := e.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(e.Learners) {
		workers = len(e.Learners)
	}

	jobs := make(chan int, len(e.Learners))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				votes[j], errors[j] = e.Learners[j].Predict(X)
			}
		}()
	}

	for j := range e.Learners {
		jobs <- j
	}
	close(jobs)

	wg.Wait()

	for j, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("bag %d prediction failed: %w", j, err)
		}
	}

	return votes, nil
}

func (e *BaggedEnsemble) IsFitted() bool {
	return len(e.Learners) == e.Bags && e.Bags > 0
}

func (e *BaggedEnsemble) Reset() {
	e.Learners = make([]Regressor, 0, e.Bags)
	e.NumFeatures = 0
}
