package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pertforest/internal/config"
	"pertforest/internal/logging"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// cli holds the state shared by every subcommand of one invocation.
type cli struct {
	configFile string
	logLevel   string
	conf       *config.Config
}

// NewRootCmd builds the pertforest command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "pertforest",
		Short:         "train and evaluate bagged random-split regression trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&c.configFile, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level, overrides log.level")

	rootCmd.AddCommand(c.trainCmd())
	rootCmd.AddCommand(c.predictCmd())
	rootCmd.AddCommand(c.experimentCmd())
	rootCmd.AddCommand(c.importanceCmd())
	rootCmd.AddCommand(c.shellCmd())

	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command) error {
	conf := config.Default()
	if c.configFile != "" {
		loaded, err := config.Load(c.configFile)
		if err != nil {
			return err
		}
		conf = loaded
	}
	if c.logLevel != "" {
		conf.Log.Level = c.logLevel
	}
	c.conf = conf

	l, err := logging.InitLog(conf.Log, "pertforest.log")
	if err != nil {
		return fmt.Errorf("failed to init log: %w", err)
	}
	l.Apply()

	logrus.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"config":  c.configFile,
	}).Debug("configuration loaded")

	return nil
}
