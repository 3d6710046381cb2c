package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pertforest/internal/experiment"
)

type experimentOptions struct {
	data   string
	target string
	output string
	seed   uint64
}

func (c *cli) experimentCmd() *cobra.Command {
	opts := &experimentOptions{}

	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "cross-validate a bagged ensemble over a range of bag counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.applyDataFlags(cmd, opts.data, opts.target, nil, nil)
			if cmd.Flags().Changed("output") {
				c.conf.Experiment.Output = opts.output
			}
			if cmd.Flags().Changed("seed") {
				c.conf.Experiment.Seed = opts.seed
				c.conf.Model.Seed = opts.seed
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			_, err := c.runExperiment(ctx)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.data, "data", "d", "", "CSV file, overrides data.file")
	flags.StringVarP(&opts.target, "target", "t", "", "target column, overrides data.target")
	flags.StringVarP(&opts.output, "output", "o", "", "results directory, overrides experiment.output")
	flags.Uint64Var(&opts.seed, "seed", 0, "random seed for folds and models")

	return cmd
}

// runExperiment returns the path of the exported results CSV.
func (c *cli) runExperiment(ctx context.Context) (string, error) {
	runner := experiment.NewRunner(c.conf, nil)

	results, err := runner.Run(ctx)
	if len(results) == 0 {
		if err == nil {
			err = fmt.Errorf("experiment produced no results")
		}
		return "", err
	}

	name := strings.TrimSuffix(filepath.Base(c.conf.Data.File), filepath.Ext(c.conf.Data.File))
	resultsFile := runner.OutputFile(name)
	if exportErr := runner.ExportResults(results, resultsFile); exportErr != nil {
		return "", fmt.Errorf("failed to export results: %w", exportErr)
	}

	fmt.Printf("\n%s\n", green("Bag count sweep"))
	fmt.Printf("%6s %10s %10s %10s %10s\n", "Bags", "IS RMSE", "IS Corr", "OS RMSE", "OS Corr")
	best := results[0]
	for _, r := range results {
		fmt.Printf("%6d %10.4f %10.4f %10.4f %10.4f\n",
			r.Bags, r.InSampleRMSE, r.InSampleCorrelation, r.OutSampleRMSE, r.OutSampleCorr)
		if r.OutSampleRMSE < best.OutSampleRMSE {
			best = r
		}
	}
	fmt.Printf("Best out-of-sample RMSE: %s with %d bags\n", cyan(fmt.Sprintf("%.4f", best.OutSampleRMSE)), best.Bags)
	fmt.Printf("Results saved to: %s\n", green(resultsFile))

	// A cancelled sweep still exports the finished rows.
	return resultsFile, err
}
