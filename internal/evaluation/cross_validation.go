package evaluation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"pertforest/internal/models"
)

var logger = logrus.WithField("module", "evaluation")

// seedStride spreads per-fold seeds apart so folds never share a stream.
const seedStride = 0x9E3779B97F4A7C15

type CrossValidator struct {
	NFolds     int
	Shuffle    bool
	RandomSeed uint64
	Parallel   bool
	MaxWorkers int
}

type FoldResult struct {
	Fold                 int           `json:"fold"`
	InSampleRMSE         float64       `json:"in_sample_rmse"`
	InSampleCorrelation  float64       `json:"in_sample_correlation"`
	OutSampleRMSE        float64       `json:"out_sample_rmse"`
	OutSampleCorrelation float64       `json:"out_sample_correlation"`
	TrainingTime         time.Duration `json:"training_time"`
}

type CVResult struct {
	Folds                    []FoldResult `json:"folds"`
	MeanInSampleRMSE         float64      `json:"mean_in_sample_rmse"`
	MeanInSampleCorrelation  float64      `json:"mean_in_sample_correlation"`
	MeanOutSampleRMSE        float64      `json:"mean_out_sample_rmse"`
	MeanOutSampleCorrelation float64      `json:"mean_out_sample_correlation"`
	StdOutSampleRMSE         float64      `json:"std_out_sample_rmse"`
}

func NewCrossValidator(nFolds int, randomSeed uint64) *CrossValidator {
	return &CrossValidator{
		NFolds:     nFolds,
		Shuffle:    true,
		RandomSeed: randomSeed,
		Parallel:   true,
		MaxWorkers: 4,
	}
}

// CrossValidate trains a fresh model per fold from config and scores it on
// both its training rows and its held-out rows.
func (cv *CrossValidator) CrossValidate(X [][]float64, y []float64, config models.ModelConfig) (*CVResult, error) {
	if err := checkXY(X, y); err != nil {
		return nil, err
	}

	folds, err := NewKFoldSplitter(cv.NFolds, cv.Shuffle, cv.RandomSeed).Folds(len(X))
	if err != nil {
		return nil, err
	}

	baseSeed := config.Seed
	if baseSeed == 0 {
		baseSeed = uint64(time.Now().UnixNano())
	}

	results := make([]FoldResult, len(folds))
	errors := make([]error, len(folds))

	evaluate := func(i int) {
		foldConfig := config
		foldConfig.Seed = baseSeed + uint64(i)*seedStride
		results[i], errors[i] = cv.evaluateFold(X, y, foldConfig, folds[i])
		results[i].Fold = i
	}

	if cv.Parallel {
		cv.runParallel(len(folds), evaluate)
	} else {
		for i := range folds {
			evaluate(i)
		}
	}

	for i, err := range errors {
		if err != nil {
			return nil, fmt.Errorf("fold %d failed: %w", i, err)
		}
	}

	result := summarize(results)
	logger.WithFields(logrus.Fields{
		"folds":     len(folds),
		"algorithm": config.Algorithm,
		"os_rmse":   result.MeanOutSampleRMSE,
		"os_corr":   result.MeanOutSampleCorrelation,
	}).Debug("cross-validation finished")

	return result, nil
}

func (cv *CrossValidator) runParallel(n int, evaluate func(int)) {
	workers := cv.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				evaluate(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
}

func (cv *CrossValidator) evaluateFold(X [][]float64, y []float64, config models.ModelConfig, fold Fold) (FoldResult, error) {
	var result FoldResult

	XTrain, yTrain := selectRows(X, y, fold.Train)
	XTest, yTest := selectRows(X, y, fold.Test)

	model, err := models.CreateModel(config)
	if err != nil {
		return result, err
	}

	start := time.Now()
	if err := model.Fit(XTrain, yTrain); err != nil {
		return result, err
	}
	result.TrainingTime = time.Since(start)

	inSample, err := scoreModel(model, XTrain, yTrain)
	if err != nil {
		return result, err
	}

	outSample, err := scoreModel(model, XTest, yTest)
	if err != nil {
		return result, err
	}

	result.InSampleRMSE = inSample.RMSE
	result.InSampleCorrelation = inSample.Correlation
	result.OutSampleRMSE = outSample.RMSE
	result.OutSampleCorrelation = outSample.Correlation
	return result, nil
}

func scoreModel(model models.Regressor, X [][]float64, y []float64) (*RegressionMetrics, error) {
	predictions, err := model.Predict(X)
	if err != nil {
		return nil, err
	}
	return CalculateMetrics(y, predictions)
}

func summarize(folds []FoldResult) *CVResult {
	n := len(folds)
	isRMSE := make([]float64, n)
	isCorr := make([]float64, n)
	osRMSE := make([]float64, n)
	osCorr := make([]float64, n)

	for i, f := range folds {
		isRMSE[i] = f.InSampleRMSE
		isCorr[i] = f.InSampleCorrelation
		osRMSE[i] = f.OutSampleRMSE
		osCorr[i] = f.OutSampleCorrelation
	}

	std := 0.0
	if n > 1 {
		std = stat.StdDev(osRMSE, nil)
	}

	return &CVResult{
		Folds:                    folds,
		MeanInSampleRMSE:         stat.Mean(isRMSE, nil),
		MeanInSampleCorrelation:  stat.Mean(isCorr, nil),
		MeanOutSampleRMSE:        stat.Mean(osRMSE, nil),
		MeanOutSampleCorrelation: stat.Mean(osCorr, nil),
		StdOutSampleRMSE:         safeStd(std),
	}
}

func safeStd(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}
