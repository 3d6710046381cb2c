package evaluation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"pertforest/internal/models"
)

func signalDataset(n int) ([][]float64, []float64) {
	r := rand.New(rand.NewSource(17))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{r.Float64() * 10, r.Float64() * 10, r.Float64() * 10, r.Float64() * 10}
		y[i] = 5*X[i][0] + 0.1*r.NormFloat64()
	}
	return X, y
}

func TestPermutationImportance(t *testing.T) {
	X, y := signalDataset(200)
	before := X[0][0]
	config := models.ModelConfig{Algorithm: "bag", Bags: 5, Seed: 21}

	results, err := PermutationImportance(X, y, config, 4)
	require.NoError(t, err)
	require.Len(t, results, 5)
	require.Equal(t, before, X[0][0])

	baseline := results[4]
	require.Equal(t, BaselineFeature, baseline.Feature)
	require.Zero(t, baseline.OutSampleDrop)
	require.Greater(t, baseline.OutSampleR2, 0.8)

	for j := 0; j < 4; j++ {
		require.Equal(t, j, results[j].Feature)
	}
	for j := 1; j < 4; j++ {
		require.Greater(t, results[0].OutSampleDrop, results[j].OutSampleDrop)
		require.Greater(t, results[0].InSampleDrop, results[j].InSampleDrop)
	}
	require.Greater(t, results[0].OutSampleDrop, 0.5)

	// The last column is never split on, so shuffling it changes nothing.
	require.Zero(t, results[3].OutSampleDrop)
	require.Zero(t, results[3].InSampleDrop)

	again, err := PermutationImportance(X, y, config, 4)
	require.NoError(t, err)
	require.Equal(t, results, again)
}

func TestPermutationImportanceErrors(t *testing.T) {
	_, err := PermutationImportance(nil, nil, models.DefaultConfig("bag"), 1)
	require.Error(t, err)

	X, y := signalDataset(10)
	_, err = PermutationImportance(X, y, models.ModelConfig{Algorithm: "svm"}, 1)
	require.ErrorIs(t, err, models.ErrUnknownAlgorithm)
}
