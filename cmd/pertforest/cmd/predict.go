package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pertforest/internal/data"
	"pertforest/internal/persistence"
)

type predictOptions struct {
	model  string
	data   string
	output string
}

func (c *cli) predictCmd() *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "predict a CSV file with a saved model",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runPredict(opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "saved model bundle")
	flags.StringVarP(&opts.data, "data", "d", "", "CSV with the model's feature columns")
	flags.StringVarP(&opts.output, "output", "o", "predictions.csv", "predictions CSV")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("data")

	return cmd
}

// runPredict writes one prediction per usable input row and returns how
// many rows were predicted.
func runPredict(opts *predictOptions) (int, error) {
	bundle, err := persistence.LoadModelBundle(opts.model)
	if err != nil {
		return 0, err
	}

	ds, err := data.NewCSVReader(opts.data).LoadData(data.LoadOptions{
		Features:    bundle.Features,
		Categorical: bundle.Categorical,
		Fill:        bundle.Fill,
		Encoders:    bundle.Encoders,
	})
	if err != nil {
		return 0, err
	}

	if err := data.NewDataValidator().ValidateMatrix(ds.X); err != nil {
		return 0, fmt.Errorf("data validation failed: %w", err)
	}

	predictions, err := bundle.Model.Predict(ds.X)
	if err != nil {
		return 0, fmt.Errorf("prediction failed: %w", err)
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, err
		}
	}
	file, err := os.Create(opts.output)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	target := bundle.Target
	if target == "" {
		target = "prediction"
	}

	writer := csv.NewWriter(file)
	writer.Write([]string{"row", target})
	for i, p := range predictions {
		writer.Write([]string{
			strconv.Itoa(ds.Rows[i]),
			strconv.FormatFloat(p, 'g', -1, 64),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, err
	}

	if ds.Dropped > 0 {
		fmt.Printf("%s %d rows with missing values were skipped\n", yellow("warning:"), ds.Dropped)
	}
	logrus.WithFields(logrus.Fields{
		"model":  opts.model,
		"rows":   len(predictions),
		"output": opts.output,
	}).Info("predictions written")
	fmt.Printf("Wrote %s predictions to %s\n", cyan(len(predictions)), green(opts.output))

	return len(predictions), nil
}
