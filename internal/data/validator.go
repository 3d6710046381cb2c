package data

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

func (dv *DataValidator) ValidateDataset(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("dataset is empty")
	}

	if len(X) != len(y) {
		return fmt.Errorf("feature matrix and targets have different lengths: %d vs %d", len(X), len(y))
	}

	if err := dv.ValidateMatrix(X); err != nil {
		return err
	}

	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite target at sample %d", i)
		}
	}

	return nil
}

// ValidateMatrix checks that X is rectangular, non-empty and finite.
func (dv *DataValidator) ValidateMatrix(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("dataset is empty")
	}

	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("features cannot be empty")
	}

	for i, sample := range X {
		if len(sample) != nFeatures {
			return fmt.Errorf("inconsistent feature count at sample %d: expected %d, got %d", i, nFeatures, len(sample))
		}
		for j, value := range sample {
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return fmt.Errorf("missing value (NaN) at sample %d, feature %d", i, j)
			}
		}
	}

	return nil
}

type FeatureStats struct {
	Min  float64
	Max  float64
	Mean float64
}

type DatasetStats struct {
	Samples    int
	Features   int
	TargetMin  float64
	TargetMax  float64
	TargetMean float64
	Columns    []FeatureStats
}

func (dv *DataValidator) GetDatasetStats(X [][]float64, y []float64) *DatasetStats {
	if len(X) == 0 {
		return &DatasetStats{}
	}

	nFeatures := len(X[0])
	stats := &DatasetStats{
		Samples:  len(X),
		Features: nFeatures,
		Columns:  make([]FeatureStats, nFeatures),
	}

	if len(y) > 0 {
		stats.TargetMin = floats.Min(y)
		stats.TargetMax = floats.Max(y)
		stats.TargetMean = stat.Mean(y, nil)
	}

	column := make([]float64, len(X))
	for j := 0; j < nFeatures; j++ {
		for i := range X {
			column[i] = X[i][j]
		}

		stats.Columns[j] = FeatureStats{
			Min:  floats.Min(column),
			Max:  floats.Max(column),
			Mean: stat.Mean(column, nil),
		}
	}

	return stats
}
