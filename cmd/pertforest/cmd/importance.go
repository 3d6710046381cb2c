package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pertforest/internal/evaluation"
)

type importanceOptions struct {
	data        string
	target      string
	features    []string
	categorical []string
	algorithm   string
	bags        int
	seed        uint64
	parallel    bool
	output      string
}

func (c *cli) importanceCmd() *cobra.Command {
	opts := &importanceOptions{}

	cmd := &cobra.Command{
		Use:   "importance",
		Short: "rank features by the R² lost when each one is shuffled",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyDataFlags(cmd, opts.data, opts.target, opts.features, opts.categorical)
			c.applyModelFlags(cmd, opts.algorithm, opts.bags, opts.seed, opts.parallel)
			_, err := c.runImportance(opts)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.data, "data", "d", "", "CSV file, overrides data.file")
	flags.StringVarP(&opts.target, "target", "t", "", "target column, overrides data.target")
	flags.StringSliceVar(&opts.features, "features", nil, "feature columns, overrides data.features")
	flags.StringSliceVar(&opts.categorical, "categorical", nil, "categorical columns, overrides data.categorical")
	flags.StringVarP(&opts.algorithm, "algorithm", "a", "", "pert or bag, overrides model.algorithm")
	flags.IntVarP(&opts.bags, "bags", "b", 0, "number of bags, overrides model.bags")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed, overrides model.seed")
	flags.BoolVar(&opts.parallel, "parallel", false, "train bags concurrently, overrides model.parallel")
	flags.StringVarP(&opts.output, "output", "o", "", "optional CSV for the importance table")

	return cmd
}

func (c *cli) runImportance(opts *importanceOptions) ([]evaluation.FeatureImportance, error) {
	ds, err := loadTrainingData(c.conf.Data)
	if err != nil {
		return nil, err
	}

	modelConfig := c.conf.Model.ModelConfig()
	results, err := evaluation.PermutationImportance(ds.X, ds.Y, modelConfig, modelConfig.Seed)
	if err != nil {
		return nil, err
	}

	name := func(feature int) string {
		if feature == evaluation.BaselineFeature {
			return "(baseline)"
		}
		return ds.Features[feature]
	}

	fmt.Printf("\n%s\n", green("Permutation importance"))
	fmt.Printf("%-20s %10s %10s %10s %10s\n", "Feature", "IS R2", "OS R2", "IS Drop", "OS Drop")
	for _, r := range results {
		fmt.Printf("%-20s %10.4f %10.4f %10.4f %10.4f\n",
			name(r.Feature), r.InSampleR2, r.OutSampleR2, r.InSampleDrop, r.OutSampleDrop)
	}

	if opts.output == "" {
		return results, nil
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(opts.output)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Write([]string{"Feature", "R2_IS", "R2_OS", "In Sample", "Out of Sample"})
	for _, r := range results {
		writer.Write([]string{
			name(r.Feature),
			strconv.FormatFloat(r.InSampleR2, 'f', 6, 64),
			strconv.FormatFloat(r.OutSampleR2, 'f', 6, 64),
			strconv.FormatFloat(r.InSampleDrop, 'f', 6, 64),
			strconv.FormatFloat(r.OutSampleDrop, 'f', 6, 64),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	logrus.WithField("output", opts.output).Info("importance table written")
	fmt.Printf("Results saved to: %s\n", green(opts.output))
	return results, nil
}
