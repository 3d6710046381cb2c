package evaluation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"pertforest/internal/models"
)

// BaselineFeature marks the importance row scored on unshuffled data.
const BaselineFeature = -1

const importanceTestSize = 0.2

// FeatureImportance scores a model retrained with one feature column
// shuffled. Drops are baseline R² minus shuffled R², so a larger drop
// means the model leaned harder on that feature.
type FeatureImportance struct {
	Feature       int     `json:"feature"`
	InSampleR2    float64 `json:"in_sample_r2"`
	OutSampleR2   float64 `json:"out_sample_r2"`
	InSampleDrop  float64 `json:"in_sample_drop"`
	OutSampleDrop float64 `json:"out_sample_drop"`
}

// PermutationImportance retrains a model from config once per feature
// with that column permuted, then once on the original data. Every run
// uses the same hold-out rows and the same model seed, so only the
// permuted column differs. It returns one row per feature followed by
// the baseline row.
func PermutationImportance(X [][]float64, y []float64, config models.ModelConfig, seed uint64) ([]FeatureImportance, error) {
	if err := checkXY(X, y); err != nil {
		return nil, err
	}

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if config.Seed == 0 {
		config.Seed = seed
	}

	nFeatures := len(X[0])
	results := make([]FeatureImportance, 0, nFeatures+1)

	for j := 0; j < nFeatures; j++ {
		shuffled := permuteColumn(X, j, seed+uint64(j+1)*seedStride)
		result, err := scoreHoldOut(shuffled, y, config, seed)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", j, err)
		}
		result.Feature = j
		results = append(results, result)
	}

	baseline, err := scoreHoldOut(X, y, config, seed)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	baseline.Feature = BaselineFeature

	for i := range results {
		results[i].InSampleDrop = baseline.InSampleR2 - results[i].InSampleR2
		results[i].OutSampleDrop = baseline.OutSampleR2 - results[i].OutSampleR2
	}
	results = append(results, baseline)

	logger.WithFields(logrus.Fields{
		"features":    nFeatures,
		"algorithm":   config.Algorithm,
		"baseline_r2": baseline.OutSampleR2,
		"samples":     len(X),
	}).Debug("permutation importance finished")

	return results, nil
}

// permuteColumn copies X with column j shuffled. X is left untouched.
func permuteColumn(X [][]float64, j int, seed uint64) [][]float64 {
	perm := rand.New(rand.NewSource(seed)).Perm(len(X))

	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), row...)
		out[i][j] = X[perm[i]][j]
	}
	return out
}

func scoreHoldOut(X [][]float64, y []float64, config models.ModelConfig, seed uint64) (FeatureImportance, error) {
	var result FeatureImportance

	XTrain, XTest, yTrain, yTest, err := NewTrainTestSplitter(importanceTestSize, seed, true).Split(X, y)
	if err != nil {
		return result, err
	}

	model, err := models.CreateModel(config)
	if err != nil {
		return result, err
	}
	if err := model.Fit(XTrain, yTrain); err != nil {
		return result, err
	}

	inSample, err := scoreModel(model, XTrain, yTrain)
	if err != nil {
		return result, err
	}
	outSample, err := scoreModel(model, XTest, yTest)
	if err != nil {
		return result, err
	}

	result.InSampleR2 = inSample.R2
	result.OutSampleR2 = outSample.R2
	return result, nil
}
