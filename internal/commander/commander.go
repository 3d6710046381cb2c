package commander

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pertforest/internal/data"
	"pertforest/internal/evaluation"
	"pertforest/internal/jobs"
	"pertforest/internal/models"
	"pertforest/internal/persistence"
	"pertforest/internal/preprocessing"
)

var logger = logrus.WithField("module", "commander")

// Commander is an interactive shell around one loaded dataset and one
// current model. Commands hold mu while they run so background jobs can
// publish a trained model safely.
type Commander struct {
	mu               sync.Mutex
	currentModel     models.Regressor
	modelBundle      *persistence.ModelBundle
	currentModelPath string
	loadedData       *DataSet
	jobManager       *jobs.Manager
	out              io.Writer

	green  func(a ...any) string
	red    func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	blue   func(a ...any) string
}

type DataSet struct {
	*data.Dataset
	SourceFile  string
	Categorical []string
	Fill        map[string]float64
	XTest       [][]float64
	yTest       []float64
}

func NewCommander(out io.Writer) *Commander {
	return &Commander{
		jobManager: jobs.NewManager(),
		out:        out,
		green:      color.New(color.FgGreen).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
		blue:       color.New(color.FgBlue).SprintFunc(),
	}
}

// Start reads commands from in until quit or end of input.
func (c *Commander) Start(in io.Reader) error {
	c.printWelcome()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(c.out, c.yellow("\npert> "))
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		if !c.ExecuteCommand(strings.ToLower(parts[0]), parts[1:]) {
			return nil
		}
	}
}

// ExecuteCommand runs one command and reports whether the shell should
// keep reading.
func (c *Commander) ExecuteCommand(command string, args []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch command {
	case "help", "h":
		c.showHelp()
	case "load":
		if len(args) >= 2 {
			c.loadData(args[0], args[1], args[2:])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: load <file> <target> [categorical columns...] [column=fill...]"))
		}
	case "info":
		c.showDataInfo()
	case "train":
		c.trainModel(args)
	case "train-bg":
		c.trainModelBackground(args)
	case "evaluate":
		c.evaluate()
	case "cv":
		c.crossValidate(args)
	case "importance":
		c.featureImportance()
	case "predict":
		c.predict(args)
	case "save":
		if len(args) > 0 {
			c.saveModel(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: save <filename>"))
		}
	case "loadmodel":
		if len(args) > 0 {
			c.loadModel(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: loadmodel <filename>"))
		}
	case "current":
		c.showCurrentModel()
	case "jobs", "job-status":
		if len(args) > 0 {
			c.showJobStatus(args[0])
		} else {
			c.listAllJobs()
		}
	case "job-cancel":
		if len(args) > 0 {
			c.cancelJob(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: job-cancel <job-id>"))
		}
	case "job-logs":
		if len(args) > 0 {
			c.showJobLogs(args[0])
		} else {
			fmt.Fprintln(c.out, c.red("Usage: job-logs <job-id>"))
		}
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Goodbye!")
		return false
	default:
		fmt.Fprintf(c.out, "%s Unknown command: %s\n", c.red("✗"), command)
		fmt.Fprintln(c.out, "Type 'help' for available commands")
	}
	return true
}

func (c *Commander) printWelcome() {
	fmt.Fprintln(c.out, c.cyan("pertforest shell"))
	fmt.Fprintln(c.out, "Type 'help' for available commands")
}

func (c *Commander) showHelp() {
	fmt.Fprintln(c.out, c.blue("\nAvailable Commands:"))

	fmt.Fprintln(c.out, "\n"+c.cyan("Data:"))
	fmt.Fprintln(c.out, "  load <file> <target> [args...] - Load a CSV; args name categorical columns or set col=fill")
	fmt.Fprintln(c.out, "  info                           - Show loaded data information")

	fmt.Fprintln(c.out, "\n"+c.cyan("Models:"))
	fmt.Fprintln(c.out, "  train <pert|bag> [bags] [seed] - Train on 80% of the data")
	fmt.Fprintln(c.out, "  train-bg <pert|bag> [bags]     - Train as a background job")
	fmt.Fprintln(c.out, "  evaluate                       - Score the current model on the hold-out rows")
	fmt.Fprintln(c.out, "  cv [folds]                     - Cross-validate the current configuration")
	fmt.Fprintln(c.out, "  importance                     - Permutation importance of each feature")
	fmt.Fprintln(c.out, "  predict <v1> <v2> ...          - Predict one row")
	fmt.Fprintln(c.out, "  save <file> / loadmodel <file> - Persist or restore a model bundle")
	fmt.Fprintln(c.out, "  current                        - Show the current model")

	fmt.Fprintln(c.out, "\n"+c.cyan("Jobs:"))
	fmt.Fprintln(c.out, "  jobs [id]                      - List jobs or show one")
	fmt.Fprintln(c.out, "  job-logs <id>                  - Show job logs")
	fmt.Fprintln(c.out, "  job-cancel <id>                - Cancel a running job")

	fmt.Fprintln(c.out, "\n  quit                           - Exit")
}

// parseLoadArgs splits load arguments into categorical column names and
// column=value fill constants.
func parseLoadArgs(args []string) ([]string, map[string]float64, error) {
	var categorical []string
	var fill map[string]float64
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok {
			categorical = append(categorical, arg)
			continue
		}
		if name == "" {
			return nil, nil, fmt.Errorf("fill %q has no column name", arg)
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("fill value for %s: %w", name, err)
		}
		if fill == nil {
			fill = make(map[string]float64)
		}
		fill[name] = value.InexactFloat64()
	}
	return categorical, fill, nil
}

func (c *Commander) loadData(filename, target string, args []string) {
	categorical, fill, err := parseLoadArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	ds, err := data.NewCSVReader(filename).LoadData(data.LoadOptions{
		Target:      target,
		Categorical: categorical,
		Fill:        fill,
	})
	if err != nil {
		fmt.Fprintf(c.out, "%s Failed to load data: %v\n", c.red("✗"), err)
		return
	}

	if err := data.NewDataValidator().ValidateDataset(ds.X, ds.Y); err != nil {
		fmt.Fprintf(c.out, "%s Invalid data: %v\n", c.red("✗"), err)
		return
	}

	c.loadedData = &DataSet{Dataset: ds, SourceFile: filename, Categorical: categorical, Fill: fill}
	fmt.Fprintf(c.out, "%s Loaded %d samples with %d features (%d rows dropped)\n",
		c.green("✓"), len(ds.X), len(ds.Features), ds.Dropped)
}

func (c *Commander) showDataInfo() {
	if c.loadedData == nil {
		fmt.Fprintln(c.out, c.red("No data loaded"))
		return
	}

	stats := data.NewDataValidator().GetDatasetStats(c.loadedData.X, c.loadedData.Y)
	fmt.Fprintf(c.out, "File:     %s\n", c.loadedData.SourceFile)
	fmt.Fprintf(c.out, "Samples:  %d\n", stats.Samples)
	fmt.Fprintf(c.out, "Target:   %s (min %.4f, mean %.4f, max %.4f)\n",
		c.loadedData.Target, stats.TargetMin, stats.TargetMean, stats.TargetMax)
	for i, name := range c.loadedData.Features {
		col := stats.Columns[i]
		if enc, ok := c.loadedData.Encoders[name]; ok {
			fmt.Fprintf(c.out, "  %-20s %d categories, most common %s\n",
				name, len(enc.Classes()), mostCommonLabel(enc, c.loadedData.X, i))
			continue
		}
		fmt.Fprintf(c.out, "  %-20s min %.4f  mean %.4f  max %.4f\n", name, col.Min, col.Mean, col.Max)
	}
}

// mostCommonLabel returns the label of the most frequent code in column
// j. Ties go to the smaller code.
func mostCommonLabel(enc *preprocessing.LabelEncoder, X [][]float64, j int) string {
	counts := make(map[int]int)
	best, bestCount := preprocessing.MissingCode, 0
	for _, row := range X {
		code := int(row[j])
		counts[code]++
		if n := counts[code]; n > bestCount || (n == bestCount && code < best) {
			best, bestCount = code, n
		}
	}
	if best == preprocessing.MissingCode {
		return "(missing)"
	}
	labels, err := enc.InverseTransform([]int{best})
	if err != nil {
		return "(unknown)"
	}
	return labels[0]
}

// parseModelArgs reads "<algorithm> [bags] [seed]".
func parseModelArgs(args []string) (models.ModelConfig, error) {
	algorithm := "bag"
	if len(args) > 0 {
		algorithm = args[0]
	}
	config := models.DefaultConfig(algorithm)

	if len(args) > 1 {
		bags, err := strconv.Atoi(args[1])
		if err != nil || bags <= 0 {
			return config, fmt.Errorf("invalid bag count %q", args[1])
		}
		config.Bags = bags
	}
	if len(args) > 2 {
		seed, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return config, fmt.Errorf("invalid seed %q", args[2])
		}
		config.Seed = seed
	}
	return config, nil
}

func (c *Commander) trainModel(args []string) {
	if c.loadedData == nil {
		fmt.Fprintln(c.out, c.red("No data loaded. Use 'load <file> <target>' first"))
		return
	}

	config, err := parseModelArgs(args)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	result, err := fitAndScore(c.loadedData, config)
	if err != nil {
		fmt.Fprintf(c.out, "%s Training failed: %v\n", c.red("✗"), err)
		return
	}

	c.setCurrentModel(c.loadedData, result)
	fmt.Fprintf(c.out, "%s Trained %s in %v\n", c.green("✓"), result.model.GetName(), result.elapsed)
	fmt.Fprint(c.out, result.metrics.FormatMetrics())
}

type fitResult struct {
	model   models.Regressor
	metrics *evaluation.RegressionMetrics
	elapsed time.Duration
	XTest   [][]float64
	yTest   []float64
}

// fitAndScore trains on a hold-out split of ds. It only reads ds.
func fitAndScore(ds *DataSet, config models.ModelConfig) (*fitResult, error) {
	model, err := models.CreateModel(config)
	if err != nil {
		return nil, err
	}

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	XTrain, XTest, yTrain, yTest, err := evaluation.NewTrainTestSplitter(0.2, seed, true).Split(ds.X, ds.Y)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := model.Fit(XTrain, yTrain); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	predictions, err := model.Predict(XTest)
	if err != nil {
		return nil, err
	}
	metrics, err := evaluation.CalculateMetrics(yTest, predictions)
	if err != nil {
		return nil, err
	}

	return &fitResult{model: model, metrics: metrics, elapsed: elapsed, XTest: XTest, yTest: yTest}, nil
}

// setCurrentModel must be called with mu held.
func (c *Commander) setCurrentModel(ds *DataSet, result *fitResult) {
	bundle := persistence.NewModelBundle(result.model)
	bundle.Features = ds.Features
	bundle.Target = ds.Target
	bundle.Encoders = ds.Encoders
	bundle.Categorical = ds.Categorical
	bundle.Fill = ds.Fill
	bundle.Metadata.Dataset = ds.SourceFile
	bundle.Metadata.Samples = len(ds.X)
	bundle.Metadata.RMSE = result.metrics.RMSE
	bundle.Metadata.MAE = result.metrics.MAE
	bundle.Metadata.R2 = result.metrics.R2
	bundle.Metadata.Correlation = result.metrics.Correlation
	bundle.Metadata.TrainingTime = result.elapsed

	ds.XTest = result.XTest
	ds.yTest = result.yTest
	c.currentModel = result.model
	c.modelBundle = bundle
	c.currentModelPath = ""
}

func (c *Commander) evaluate() {
	if c.currentModel == nil {
		fmt.Fprintln(c.out, c.red("No model loaded. Train or load a model first"))
		return
	}
	if c.loadedData == nil || len(c.loadedData.XTest) == 0 {
		fmt.Fprintln(c.out, c.red("No hold-out rows. Train a model on loaded data first"))
		return
	}

	predictions, err := c.currentModel.Predict(c.loadedData.XTest)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	metrics, err := evaluation.CalculateMetrics(c.loadedData.yTest, predictions)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	fmt.Fprintf(c.out, "%s\n", c.cyan(fmt.Sprintf("Hold-out (%d rows):", len(predictions))))
	fmt.Fprint(c.out, metrics.FormatMetrics())
}

func (c *Commander) featureImportance() {
	if c.loadedData == nil {
		fmt.Fprintln(c.out, c.red("No data loaded"))
		return
	}

	config, err := c.crossValidationConfig()
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	rows, err := evaluation.PermutationImportance(c.loadedData.X, c.loadedData.Y, config, uint64(time.Now().UnixNano()))
	if err != nil {
		fmt.Fprintf(c.out, "%s Importance failed: %v\n", c.red("✗"), err)
		return
	}

	fmt.Fprintf(c.out, "%s\n", c.cyan("Permutation importance (R² drop):"))
	fmt.Fprintf(c.out, "  %-20s %10s %10s\n", "Feature", "In Sample", "Out Sample")
	for _, row := range rows {
		name := "(baseline)"
		if row.Feature != evaluation.BaselineFeature {
			name = c.loadedData.Features[row.Feature]
		}
		fmt.Fprintf(c.out, "  %-20s %10.4f %10.4f\n", name, row.InSampleDrop, row.OutSampleDrop)
	}
}

// crossValidationConfig rebuilds the current model's configuration, or
// the default ensemble when no model is loaded. The seed is left to the
// cross validator.
func (c *Commander) crossValidationConfig() (models.ModelConfig, error) {
	if c.currentModel == nil {
		return models.DefaultConfig("bag"), nil
	}
	return models.ConfigFromModel(c.currentModel)
}

func (c *Commander) crossValidate(args []string) {
	if c.loadedData == nil {
		fmt.Fprintln(c.out, c.red("No data loaded"))
		return
	}

	folds := 5
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 1 {
			folds = n
		}
	}

	config, err := c.crossValidationConfig()
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	result, err := evaluation.NewCrossValidator(folds, uint64(time.Now().UnixNano())).
		CrossValidate(c.loadedData.X, c.loadedData.Y, config)
	if err != nil {
		fmt.Fprintf(c.out, "%s Cross-validation failed: %v\n", c.red("✗"), err)
		return
	}

	fmt.Fprintf(c.out, "%s\n", c.cyan(fmt.Sprintf("%d-fold cross-validation:", folds)))
	fmt.Fprintf(c.out, "  %-6s %10s %10s %10s %10s\n", "Fold", "IS RMSE", "IS Corr", "OS RMSE", "OS Corr")
	for _, f := range result.Folds {
		fmt.Fprintf(c.out, "  %-6d %10.4f %10.4f %10.4f %10.4f\n",
			f.Fold+1, f.InSampleRMSE, f.InSampleCorrelation, f.OutSampleRMSE, f.OutSampleCorrelation)
	}
	fmt.Fprintf(c.out, "  Mean OS RMSE: %.4f ± %.4f\n", result.MeanOutSampleRMSE, result.StdOutSampleRMSE)
}

func (c *Commander) predict(args []string) {
	if c.currentModel == nil || c.modelBundle == nil {
		fmt.Fprintln(c.out, c.red("No model loaded. Train or load a model first"))
		return
	}

	features := c.modelBundle.Features
	if len(args) != len(features) {
		fmt.Fprintf(c.out, "%s Expected %d values for features: %v\n", c.red("✗"), len(features), features)
		return
	}

	sample, err := encodeRow(args, features, c.modelBundle.Encoders)
	if err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}

	predictions, err := c.currentModel.Predict([][]float64{sample})
	if err != nil {
		fmt.Fprintf(c.out, "%s Prediction failed: %v\n", c.red("✗"), err)
		return
	}

	target := c.modelBundle.Target
	if target == "" {
		target = "prediction"
	}
	fmt.Fprintf(c.out, "%s %s = %s\n", c.green("✓"), target, c.cyan(strconv.FormatFloat(predictions[0], 'f', 4, 64)))
}

// encodeRow turns typed-in values into a feature row, encoding
// categorical columns with the training encoders.
func encodeRow(values, features []string, encoders map[string]*preprocessing.LabelEncoder) ([]float64, error) {
	sample := make([]float64, len(features))
	for i, name := range features {
		if enc, ok := encoders[name]; ok {
			code, _ := enc.Code(values[i])
			sample[i] = float64(code)
			continue
		}

		d, err := decimal.NewFromString(values[i])
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %s", name, values[i])
		}
		v, _ := d.Float64()
		if math.IsInf(v, 0) {
			return nil, fmt.Errorf("value for %s is out of range", name)
		}
		sample[i] = v
	}
	return sample, nil
}

func (c *Commander) saveModel(filename string) {
	if c.modelBundle == nil {
		fmt.Fprintln(c.out, c.red("No model to save"))
		return
	}

	if err := c.modelBundle.Save(filename); err != nil {
		fmt.Fprintf(c.out, "%s %v\n", c.red("✗"), err)
		return
	}
	c.currentModelPath = filename
	fmt.Fprintf(c.out, "%s Model saved to: %s\n", c.green("✓"), filename)
}

func (c *Commander) loadModel(filename string) {
	bundle, err := persistence.LoadModelBundle(filename)
	if err != nil {
		fmt.Fprintf(c.out, "%s Failed to load model: %v\n", c.red("✗"), err)
		return
	}

	c.currentModel = bundle.Model
	c.modelBundle = bundle
	c.currentModelPath = filename
	// The hold-out rows belonged to the replaced model.
	if c.loadedData != nil {
		c.loadedData.XTest = nil
		c.loadedData.yTest = nil
	}
	fmt.Fprintf(c.out, "%s Loaded %s trained on %s\n", c.green("✓"), bundle.Metadata.ModelName, bundle.Metadata.Dataset)
}

func (c *Commander) showCurrentModel() {
	if c.currentModel == nil {
		fmt.Fprintln(c.out, "No model loaded")
		return
	}

	fmt.Fprintf(c.out, "Model:    %s\n", c.currentModel.GetName())
	fmt.Fprintf(c.out, "Params:   %v\n", c.currentModel.GetParams())
	if c.currentModelPath != "" {
		fmt.Fprintf(c.out, "File:     %s\n", c.currentModelPath)
	}
	if c.modelBundle != nil {
		fmt.Fprintf(c.out, "Features: %v\n", c.modelBundle.Features)
		fmt.Fprintf(c.out, "RMSE:     %.4f\n", c.modelBundle.Metadata.RMSE)
	}
	if tree, ok := c.currentModel.(*models.RandomSplitTree); ok {
		fmt.Fprintf(c.out, "Depth:    %d, leaves: %d\n", tree.Depth(), len(tree.Leaves()))
	}
}
