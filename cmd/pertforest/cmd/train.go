package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pertforest/internal/config"
	"pertforest/internal/data"
	"pertforest/internal/evaluation"
	"pertforest/internal/models"
	"pertforest/internal/persistence"
)

type trainOptions struct {
	data        string
	target      string
	features    []string
	categorical []string
	algorithm   string
	bags        int
	seed        uint64
	parallel    bool
	testSize    float64
	folds       int
	output      string
}

func (c *cli) trainCmd() *cobra.Command {
	opts := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "fit a model on a CSV file and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyDataFlags(cmd, opts.data, opts.target, opts.features, opts.categorical)
			c.applyModelFlags(cmd, opts.algorithm, opts.bags, opts.seed, opts.parallel)
			_, err := c.runTrain(opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.data, "data", "d", "", "training CSV, overrides data.file")
	flags.StringVarP(&opts.target, "target", "t", "", "target column, overrides data.target")
	flags.StringSliceVar(&opts.features, "features", nil, "feature columns, overrides data.features")
	flags.StringSliceVar(&opts.categorical, "categorical", nil, "categorical columns, overrides data.categorical")
	flags.StringVarP(&opts.algorithm, "algorithm", "a", "", "pert or bag, overrides model.algorithm")
	flags.IntVarP(&opts.bags, "bags", "b", 0, "number of bags, overrides model.bags")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed, overrides model.seed")
	flags.BoolVar(&opts.parallel, "parallel", false, "train bags concurrently, overrides model.parallel")
	flags.Float64Var(&opts.testSize, "test-size", 0.2, "hold-out fraction")
	flags.IntVar(&opts.folds, "cv", 0, "cross-validation folds, 0 disables")
	flags.StringVarP(&opts.output, "output", "o", "models", "directory for the saved model")

	return cmd
}

// applyDataFlags copies explicitly set data flags over the config.
func (c *cli) applyDataFlags(cmd *cobra.Command, file, target string, features, categorical []string) {
	flags := cmd.Flags()
	if flags.Changed("data") {
		c.conf.Data.File = file
	}
	if flags.Changed("target") {
		c.conf.Data.Target = target
	}
	if flags.Changed("features") {
		c.conf.Data.Features = features
	}
	if flags.Changed("categorical") {
		c.conf.Data.Categorical = categorical
	}
}

func (c *cli) applyModelFlags(cmd *cobra.Command, algorithm string, bags int, seed uint64, parallel bool) {
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		c.conf.Model.Algorithm = algorithm
	}
	if flags.Changed("bags") {
		c.conf.Model.Bags = bags
	}
	if flags.Changed("seed") {
		c.conf.Model.Seed = seed
	}
	if flags.Changed("parallel") {
		c.conf.Model.Parallel = parallel
	}
}

func loadTrainingData(dc config.Data) (*data.Dataset, error) {
	if dc.File == "" {
		return nil, fmt.Errorf("no data file given")
	}
	if dc.Target == "" {
		return nil, fmt.Errorf("no target column given")
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
		return nil, fmt.Errorf("data validation failed: %w", err)
	}

	return ds, nil
}

// runTrain returns the path of the saved model bundle.
func (c *cli) runTrain(opts *trainOptions) (string, error) {
	dc := c.conf.Data
	ds, err := loadTrainingData(dc)
	if err != nil {
		return "", err
	}

	stats := data.NewDataValidator().GetDatasetStats(ds.X, ds.Y)
	fmt.Printf("Loaded %s samples with %d features (%d rows dropped)\n",
		cyan(stats.Samples), stats.Features, ds.Dropped)
	fmt.Printf("Target %s: min %.4f, mean %.4f, max %.4f\n",
		ds.Target, stats.TargetMin, stats.TargetMean, stats.TargetMax)

	modelConfig := c.conf.Model.ModelConfig()
	splitSeed := modelConfig.Seed
	if splitSeed == 0 {
		splitSeed = uint64(time.Now().UnixNano())
	}
	splitter := evaluation.NewTrainTestSplitter(opts.testSize, splitSeed, true)
	XTrain, XTest, yTrain, yTest, err := splitter.Split(ds.X, ds.Y)
	if err != nil {
		return "", fmt.Errorf("failed to split data: %w", err)
	}

	model, err := models.CreateModel(modelConfig)
	if err != nil {
		return "", err
	}

	fmt.Printf("Training %s on %d samples...\n", model.GetName(), len(XTrain))
	start := time.Now()
	if err := model.Fit(XTrain, yTrain); err != nil {
		return "", fmt.Errorf("training failed: %w", err)
	}
	trainingTime := time.Since(start)

	predictions, err := model.Predict(XTest)
	if err != nil {
		return "", err
	}
	metrics, err := evaluation.CalculateMetrics(yTest, predictions)
	if err != nil {
		return "", err
	}

	fmt.Printf("\n%s\n", green("Hold-out results"))
	fmt.Printf("Training time: %v\n", trainingTime)
	fmt.Println(metrics.FormatMetrics())

	var cvRMSE float64
	if opts.folds > 1 {
		cv := evaluation.NewCrossValidator(opts.folds, splitSeed)
		result, err := cv.CrossValidate(ds.X, ds.Y, modelConfig)
		if err != nil {
			fmt.Printf("%s cross-validation failed: %v\n", yellow("warning:"), err)
		} else {
			cvRMSE = result.MeanOutSampleRMSE
			fmt.Printf("CV RMSE: %.4f ± %.4f, CV correlation: %.4f\n",
				result.MeanOutSampleRMSE, result.StdOutSampleRMSE, result.MeanOutSampleCorrelation)
		}
	}

	if err := os.MkdirAll(opts.output, 0755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(dc.File), filepath.Ext(dc.File))
	timestamp := time.Now().Format("20060102_150405")
	modelPath := filepath.Join(opts.output, fmt.Sprintf("%s_%s_%s.model", modelConfig.Algorithm, base, timestamp))

	bundle := persistence.NewModelBundle(model)
	bundle.Features = ds.Features
	bundle.Target = ds.Target
	bundle.Encoders = ds.Encoders
	bundle.Categorical = dc.Categorical
	bundle.Fill = dc.Fill
	bundle.Metadata.Dataset = dc.File
	bundle.Metadata.Samples = len(ds.X)
	bundle.Metadata.RMSE = metrics.RMSE
	bundle.Metadata.MAE = metrics.MAE
	bundle.Metadata.R2 = metrics.R2
	bundle.Metadata.Correlation = metrics.Correlation
	bundle.Metadata.CVRMSE = cvRMSE
	bundle.Metadata.TrainingTime = trainingTime

	if err := bundle.Save(modelPath); err != nil {
		return "", fmt.Errorf("failed to save model: %w", err)
	}
	if err := bundle.SaveMetadata(strings.TrimSuffix(modelPath, ".model") + ".txt"); err != nil {
		logrus.WithError(err).Warn("failed to write model metadata")
	}

	logrus.WithFields(logrus.Fields{
		"model": modelPath,
		"rmse":  metrics.RMSE,
	}).Info("model saved")
	fmt.Printf("Model saved to: %s\n", green(modelPath))

	return modelPath, nil
}
