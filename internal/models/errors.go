package models

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyDataset     = errors.New("dataset is empty")
	ErrNoFeatures       = errors.New("features cannot be empty")
	ErrLengthMismatch   = errors.New("feature matrix and targets have different lengths")
	ErrRaggedRows       = errors.New("inconsistent feature count")
	ErrFeatureCount     = errors.New("row width does not match training data")
	ErrNonFinite        = errors.New("non-finite value")
	ErrNotFitted        = errors.New("model must be fitted before predict")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	ErrInvalidParam     = errors.New("invalid parameter")
)

// checkTrainingSet returns the column count of X, or an error describing
// why X and y cannot be trained on.
func checkTrainingSet(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyDataset
	}

	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(X), len(y))
	}

	nFeatures, err := checkMatrix(X)
	if err != nil {
		return 0, err
	}

	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: target at sample %d", ErrNonFinite, i)
		}
	}

	return nFeatures, nil
}

func checkMatrix(X [][]float64) (int, error) {
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return 0, ErrNoFeatures
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return 0, fmt.Errorf("%w at sample %d: expected %d, got %d", ErrRaggedRows, i, nFeatures, len(sample))
		}
		for j, v := range sample {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w at sample %d, feature %d", ErrNonFinite, i, j)
			}
		}
	}

	return nFeatures, nil
}

// checkPredictRows validates the rows handed to Predict against the width
// seen during training.
func checkPredictRows(X [][]float64, nFeatures int) error {
	for i, sample := range X {
		if len(sample) != nFeatures {
			return fmt.Errorf("%w at sample %d: expected %d, got %d", ErrFeatureCount, i, nFeatures, len(sample))
		}
	}
	return nil
}
