package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pertforest/internal/config"
	"pertforest/internal/data"
	"pertforest/internal/evaluation"
	"pertforest/internal/jobs"
)

var logger = logrus.WithField("module", "experiment")

// ExperimentRunner sweeps the bag count of a bagged PERT ensemble and
// cross-validates each setting.
type ExperimentRunner struct {
	Config *config.Config
	Jobs   *jobs.Manager
}

// ExperimentResult is one row of the sweep.
type ExperimentResult struct {
	Dataset             string
	Bags                int
	InSampleRMSE        float64
	InSampleCorrelation float64
	OutSampleRMSE       float64
	OutSampleCorr       float64
	OutSampleRMSEStd    float64
	TrainingTimeMs      int64
}

func NewRunner(conf *config.Config, manager *jobs.Manager) *ExperimentRunner {
	if manager == nil {
		manager = jobs.NewManager()
	}
	return &ExperimentRunner{Config: conf, Jobs: manager}
}

// NewRunnerFromFile loads a YAML config and builds a runner around it.
func NewRunnerFromFile(configFile string) (*ExperimentRunner, error) {
	conf, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return NewRunner(conf, nil), nil
}

// Run loads the configured CSV and sweeps it.
func (r *ExperimentRunner) Run(ctx context.Context) ([]ExperimentResult, error) {
	dc := r.Config.Data
	if dc.File == "" {
		return nil, fmt.Errorf("data.file is not set")
	}
	if dc.Target == "" {
		return nil, fmt.Errorf("data.target is not set")
	}

	ds, err := data.NewCSVReader(dc.File).LoadData(data.LoadOptions{
		Target:      dc.Target,
		Features:    dc.Features,
		Categorical: dc.Categorical,
		Fill:        dc.Fill,
	})
	if err != nil {
		return nil, err
	}

	if err := data.NewDataValidator().ValidateDataset(ds.X, ds.Y); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"file":     dc.File,
		"samples":  len(ds.X),
		"features": len(ds.Features),
		"dropped":  ds.Dropped,
	}).Info("dataset loaded")

	name := strings.TrimSuffix(filepath.Base(dc.File), filepath.Ext(dc.File))
	return r.RunDataset(ctx, name, ds.X, ds.Y)
}

// RunDataset cross-validates one bagged ensemble per bag count. It stops
// between bag counts when ctx is cancelled and returns the rows finished
// so far.
func (r *ExperimentRunner) RunDataset(ctx context.Context, name string, X [][]float64, y []float64) ([]ExperimentResult, error) {
	exp := r.Config.Experiment
	bagCounts := exp.Bags.Values()
	if len(bagCounts) == 0 {
		return nil, fmt.Errorf("experiment.bags is an empty range")
	}

	job := r.Jobs.CreateJob("experiment", fmt.Sprintf("bag sweep on %s", name))
	ctx = r.Jobs.Start(ctx, job)

	seed := exp.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	results := make([]ExperimentResult, 0, len(bagCounts))
	for i, bags := range bagCounts {
		if err := ctx.Err(); err != nil {
			job.SetError(err)
			return results, err
		}

		modelConfig := r.Config.Model.ModelConfig()
		modelConfig.Algorithm = "bag"
		modelConfig.Bags = bags

		cv := evaluation.NewCrossValidator(exp.Folds, seed)
		cv.Shuffle = exp.Shuffle
		if r.Config.Model.MaxWorkers > 0 {
			cv.MaxWorkers = r.Config.Model.MaxWorkers
		}

		start := time.Now()
		cvResult, err := cv.CrossValidate(X, y, modelConfig)
		if err != nil {
			err = fmt.Errorf("bags=%d: %w", bags, err)
			job.SetError(err)
			return results, err
		}

		result := ExperimentResult{
			Dataset:             name,
			Bags:                bags,
			InSampleRMSE:        cvResult.MeanInSampleRMSE,
			InSampleCorrelation: cvResult.MeanInSampleCorrelation,
			OutSampleRMSE:       cvResult.MeanOutSampleRMSE,
			OutSampleCorr:       cvResult.MeanOutSampleCorrelation,
			OutSampleRMSEStd:    cvResult.StdOutSampleRMSE,
			TrainingTimeMs:      time.Since(start).Milliseconds(),
		}
		results = append(results, result)

		job.SetProgress(float64(i+1) / float64(len(bagCounts)))
		job.AddLog(fmt.Sprintf("bags=%d os_rmse=%.4f os_corr=%.4f", bags, result.OutSampleRMSE, result.OutSampleCorr))

		logger.WithFields(logrus.Fields{
			"job":     job.ID,
			"bags":    bags,
			"is_rmse": result.InSampleRMSE,
			"os_rmse": result.OutSampleRMSE,
			"os_corr": result.OutSampleCorr,
		}).Info("bag count evaluated")
	}

	job.SetResult(results)
	job.SetStatus(jobs.JobCompleted)
	return results, nil
}

// OutputFile names the CSV a sweep of dataset is written to.
func (r *ExperimentRunner) OutputFile(dataset string) string {
	dir := r.Config.Experiment.Output
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s_bagging_%s.csv", dataset, time.Now().Format("20060102_150405")))
}

func (r *ExperimentRunner) ExportResults(results []ExperimentResult, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	writer.Write([]string{
		"Dataset", "Bags", "IS RMSE", "IS Correlation",
		"OS RMSE", "OS Correlation", "OS RMSE Std", "TrainingTimeMs",
	})

	for _, result := range results {
		writer.Write([]string{
			result.Dataset,
			fmt.Sprintf("%d", result.Bags),
			fmt.Sprintf("%.6f", result.InSampleRMSE),
			fmt.Sprintf("%.6f", result.InSampleCorrelation),
			fmt.Sprintf("%.6f", result.OutSampleRMSE),
			fmt.Sprintf("%.6f", result.OutSampleCorr),
			fmt.Sprintf("%.6f", result.OutSampleRMSEStd),
			fmt.Sprintf("%d", result.TrainingTimeMs),
		})
	}

	writer.Flush()
	return writer.Error()
}
