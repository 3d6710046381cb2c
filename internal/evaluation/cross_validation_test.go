package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"pertforest/internal/models"
)

func TestCrossValidate(t *testing.T) {
	X, y := linearDataset(60)
	config := models.ModelConfig{Algorithm: "bag", Bags: 5, Seed: 3}

	cv := NewCrossValidator(5, 11)
	result, err := cv.CrossValidate(X, y, config)
	require.NoError(t, err)
	require.Len(t, result.Folds, 5)

	for i, fold := range result.Folds {
		require.Equal(t, i, fold.Fold)
		require.False(t, math.IsNaN(fold.OutSampleRMSE))
		require.GreaterOrEqual(t, fold.OutSampleRMSE, 0.0)
		require.LessOrEqual(t, fold.InSampleCorrelation, 1.0)
	}
	require.Greater(t, result.MeanInSampleCorrelation, 0.5)

	cv.Parallel = false
	serial, err := cv.CrossValidate(X, y, config)
	require.NoError(t, err)
	for i := range serial.Folds {
		require.Equal(t, result.Folds[i].OutSampleRMSE, serial.Folds[i].OutSampleRMSE)
		require.Equal(t, result.Folds[i].InSampleRMSE, serial.Folds[i].InSampleRMSE)
	}
	require.Equal(t, result.MeanOutSampleRMSE, serial.MeanOutSampleRMSE)
}

func TestCrossValidateErrors(t *testing.T) {
	X, y := linearDataset(4)

	_, err := NewCrossValidator(5, 1).CrossValidate(X, y, models.DefaultConfig("bag"))
	require.Error(t, err)

	_, err = NewCrossValidator(2, 1).CrossValidate(X, y, models.ModelConfig{Algorithm: "svm"})
	require.ErrorIs(t, err, models.ErrUnknownAlgorithm)

	_, err = NewCrossValidator(2, 1).CrossValidate(X, y[:2], models.DefaultConfig("pert"))
	require.Error(t, err)
}
