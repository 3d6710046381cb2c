package models

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

var errBrokenLearner = errors.New("broken learner")

type brokenLearner struct {
	BaseModel
}

func (b *brokenLearner) Fit(X [][]float64, y []float64) error     { return errBrokenLearner }
func (b *brokenLearner) Predict(X [][]float64) ([]float64, error) { return nil, ErrNotFitted }
func (b *brokenLearner) IsFitted() bool                           { return false }
func (b *brokenLearner) Reset()                                   {}

func newSeededEnsemble(bags int, seed uint64) *BaggedEnsemble {
	e := NewBaggedEnsemble("pert", NewPERTLearner, nil, bags)
	e.SetSeed(seed)
	return e
}

func TestBaggedEnsembleConstantTargets(t *testing.T) {
	X := [][]float64{{1.0}, {2.0}, {3.0}, {4.0}}
	y := []float64{10.0, 10.0, 10.0, 10.0}

	for _, bags := range []int{1, 5, 20} {
		e := newSeededEnsemble(bags, uint64(bags))
		require.NoError(t, e.Fit(X, y))
		require.Len(t, e.Learners, bags)

		predictions, err := e.Predict([][]float64{{1.0}, {4.0}, {0.0}, {42.0}})
		require.NoError(t, err)
		require.Equal(t, []float64{10.0, 10.0, 10.0, 10.0}, predictions)
	}
}

func TestBaggedEnsembleSingleRow(t *testing.T) {
	e := newSeededEnsemble(20, 1)
	require.NoError(t, e.Fit([][]float64{{5.0}}, []float64{7.0}))

	predictions, err := e.Predict([][]float64{{5.0}, {999.0}})
	require.NoError(t, err)
	require.Equal(t, []float64{7.0, 7.0}, predictions)
}

func TestBaggedEnsembleIdenticalRows(t *testing.T) {
	X := [][]float64{{2, 2}, {2, 2}, {2, 2}, {2, 2}, {2, 2}}
	y := []float64{1, 2, 3, 4, 5}

	e := newSeededEnsemble(10, 3)
	require.NoError(t, e.Fit(X, y))

	for _, learner := range e.Learners {
		tree := learner.(*RandomSplitTree)
		require.True(t, tree.Root.IsLeaf)
	}

	predictions, err := e.Predict([][]float64{{2, 2}, {0, 0}, {9, -9}})
	require.NoError(t, err)
	require.Equal(t, predictions[0], predictions[1])
	require.Equal(t, predictions[0], predictions[2])
	require.GreaterOrEqual(t, predictions[0], 1.0)
	require.LessOrEqual(t, predictions[0], 5.0)
}

func TestBaggedEnsemblePredictLengthAndIdempotence(t *testing.T) {
	X, y := randomDataset(41, 150, 4)
	queries, _ := randomDataset(42, 37, 4)

	e := newSeededEnsemble(15, 99)
	require.NoError(t, e.Fit(X, y))

	first, err := e.Predict(queries)
	require.NoError(t, err)
	require.Len(t, first, len(queries))

	second, err := e.Predict(queries)
	require.NoError(t, err)
	require.Equal(t, first, second)

	for _, p := range first {
		require.False(t, math.IsNaN(p))
		require.False(t, math.IsInf(p, 0))
	}
}

func TestBaggedEnsembleParallelMatchesSequential(t *testing.T) {
	X, y := randomDataset(51, 120, 3)

	sequential := newSeededEnsemble(12, 7)
	require.NoError(t, sequential.Fit(X, y))

	parallel := newSeededEnsemble(12, 7)
	parallel.Parallel = true
	parallel.MaxWorkers = 3
	require.NoError(t, parallel.Fit(X, y))

	for i := range sequential.Learners {
		require.Equal(t,
			sequential.Learners[i].(*RandomSplitTree).String(),
			parallel.Learners[i].(*RandomSplitTree).String())
	}

	want, err := sequential.Predict(X)
	require.NoError(t, err)
	got, err := parallel.Predict(X)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBaggedEnsembleSeedsChangeStructure(t *testing.T) {
	X, y := randomDataset(61, 100, 3)

	e1 := newSeededEnsemble(1, 1)
	e2 := newSeededEnsemble(1, 2)
	require.NoError(t, e1.Fit(X, y))
	require.NoError(t, e2.Fit(X, y))

	require.NotEqual(t,
		e1.Learners[0].(*RandomSplitTree).String(),
		e2.Learners[0].(*RandomSplitTree).String())

	for _, e := range []*BaggedEnsemble{e1, e2} {
		predictions, err := e.Predict(X)
		require.NoError(t, err)
		for _, p := range predictions {
			require.False(t, math.IsNaN(p))
		}
	}
}

func TestBaggedEnsembleRefitDiscardsLearners(t *testing.T) {
	X, y := randomDataset(71, 60, 3)

	e := newSeededEnsemble(4, 5)
	require.NoError(t, e.Fit(X, y))
	before := e.Learners[0].(*RandomSplitTree).String()

	require.NoError(t, e.Fit(X, y))
	require.Len(t, e.Learners, 4)
	require.NotEqual(t, before, e.Learners[0].(*RandomSplitTree).String())
}

func TestBaggedEnsembleLearnerFailurePropagates(t *testing.T) {
	X, y := randomDataset(81, 10, 2)

	broken := func(params map[string]any, src rand.Source) (Regressor, error) {
		return &brokenLearner{}, nil
	}
	e := NewBaggedEnsemble("broken", broken, nil, 3)
	err := e.Fit(X, y)
	require.ErrorIs(t, err, errBrokenLearner)
	require.Contains(t, err.Error(), "bag 0 training failed")
	require.False(t, e.IsFitted())

	e.Parallel = true
	require.ErrorIs(t, e.Fit(X, y), errBrokenLearner)
	require.False(t, e.IsFitted())

	e = NewBaggedEnsemble("pert", nil, map[string]any{"max_split_tries": "ten"}, 2)
	require.ErrorIs(t, e.Fit(X, y), ErrInvalidParam)
}

func TestBaggedEnsembleResolvesLearnerByName(t *testing.T) {
	X, y := randomDataset(91, 30, 2)

	e := NewBaggedEnsemble("pert", nil, map[string]any{"max_split_tries": 3}, 2)
	e.SetSeed(1)
	require.NoError(t, e.Fit(X, y))
	require.Equal(t, 3, e.Learners[0].(*RandomSplitTree).MaxSplitTries)

	e = NewBaggedEnsemble("missing", nil, nil, 2)
	require.ErrorIs(t, e.Fit(X, y), ErrUnknownAlgorithm)
}

func TestBaggedEnsembleErrors(t *testing.T) {
	e := NewBaggedEnsemble("pert", NewPERTLearner, nil, 0)
	require.Equal(t, DefaultBags, e.Bags)
	require.Empty(t, e.Learners)

	_, err := e.Predict([][]float64{{1}})
	require.ErrorIs(t, err, ErrNotFitted)

	require.ErrorIs(t, e.Fit(nil, nil), ErrEmptyDataset)
	require.ErrorIs(t, e.Fit([][]float64{{1}}, []float64{1, 2}), ErrLengthMismatch)

	require.NoError(t, e.Fit([][]float64{{1, 2}, {3, 4}}, []float64{1, 2}))
	_, err = e.Predict([][]float64{{1, 2, 3}})
	require.ErrorIs(t, err, ErrFeatureCount)
}
