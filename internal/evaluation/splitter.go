package evaluation

import (
	"fmt"

	"golang.org/x/exp/rand"
)

type TrainTestSplitter struct {
	testSize   float64
	randomSeed uint64
	shuffle    bool
}

func NewTrainTestSplitter(testSize float64, randomSeed uint64, shuffle bool) *TrainTestSplitter {
	return &TrainTestSplitter{
		testSize:   testSize,
		randomSeed: randomSeed,
		shuffle:    shuffle,
	}
}

func (tts *TrainTestSplitter) Split(X [][]float64, y []float64) ([][]float64, [][]float64, []float64, []float64, error) {
	if err := checkXY(X, y); err != nil {
		return nil, nil, nil, nil, err
	}

	if tts.testSize <= 0 || tts.testSize >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("test size must be between 0 and 1")
	}

	n := len(X)
	indices := seq(n)
	if tts.shuffle {
		shuffleIndices(indices, tts.randomSeed)
	}

	testCount := int(float64(n) * tts.testSize)
	if testCount == 0 {
		testCount = 1
	}
	trainCount := n - testCount
	if trainCount == 0 {
		return nil, nil, nil, nil, fmt.Errorf("dataset of %d samples is too small to split", n)
	}

	XTrain, yTrain := selectRows(X, y, indices[:trainCount])
	XTest, yTest := selectRows(X, y, indices[trainCount:])

	return XTrain, XTest, yTrain, yTest, nil
}

// Fold holds the row indices of one k-fold partition.
type Fold struct {
	Train []int
	Test  []int
}

type KFoldSplitter struct {
	nFolds     int
	shuffle    bool
	randomSeed uint64
}

func NewKFoldSplitter(nFolds int, shuffle bool, randomSeed uint64) *KFoldSplitter {
	return &KFoldSplitter{
		nFolds:     nFolds,
		shuffle:    shuffle,
		randomSeed: randomSeed,
	}
}

// Folds partitions n row indices into nFolds test sets; the last fold
// absorbs the remainder.
func (kfs *KFoldSplitter) Folds(n int) ([]Fold, error) {
	if n == 0 {
		return nil, fmt.Errorf("cannot split empty dataset")
	}

	if kfs.nFolds <= 1 || kfs.nFolds > n {
		return nil, fmt.Errorf("number of folds must be between 2 and %d", n)
	}

	indices := seq(n)
	if kfs.shuffle {
		shuffleIndices(indices, kfs.randomSeed)
	}

	folds := make([]Fold, kfs.nFolds)
	foldSize := n / kfs.nFolds

	for fold := 0; fold < kfs.nFolds; fold++ {
		testStart := fold * foldSize
		testEnd := testStart + foldSize
		if fold == kfs.nFolds-1 {
			testEnd = n
		}

		test := make([]int, testEnd-testStart)
		copy(test, indices[testStart:testEnd])

		train := make([]int, 0, n-len(test))
		train = append(train, indices[:testStart]...)
		train = append(train, indices[testEnd:]...)

		folds[fold] = Fold{Train: train, Test: test}
	}

	return folds, nil
}

func checkXY(X [][]float64, y []float64) error {
	if len(X) != len(y) {
		return fmt.Errorf("x and y must have the same length")
	}

	if len(X) == 0 {
		return fmt.Errorf("cannot split empty dataset")
	}

	return nil
}

func seq(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func shuffleIndices(indices []int, seed uint64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(indices), func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})
}

// selectRows gathers the given rows. Row slices are shared with X.
func selectRows(X [][]float64, y []float64, indices []int) ([][]float64, []float64) {
	selectedX := make([][]float64, len(indices))
	selectedY := make([]float64, len(indices))

	for i, idx := range indices {
		selectedX[i] = X[idx]
		selectedY[i] = y[idx]
	}

	return selectedX, selectedY
}
