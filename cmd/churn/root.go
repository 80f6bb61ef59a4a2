package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/pkg/log"
)

// cfg is loaded by the root command before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "churn",
	Short: "Customer churn prediction pipeline",
	Long: `churn runs the churn prediction pipeline.

Stages are selected with flags and always run in the order
prepare, train, evaluate, save. Intermediate results are kept in the
working directory so a later stage can run on its own:

  churn --prepare --train
  churn --evaluate --save`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := selectedStages(cmd)
		if err != nil {
			return err
		}
		if !s.any() {
			return cmd.Help()
		}
		return runStages(cmd.Context(), cfg, s, cmd.OutOrStdout())
	},
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a churn.yaml configuration file")
	pf.String("log-level", "", "Log level: debug, info, warn or error (overrides logging.level)")
	pf.String("workdir", "", "Directory for intermediate results (overrides workdir)")

	f := rootCmd.Flags()
	f.Bool("prepare", false, "Prepare the data")
	f.Bool("train", false, "Train the model")
	f.Bool("evaluate", false, "Evaluate the model on the held-out split")
	f.Bool("save", false, "Publish the model and preprocessing artifacts as a bundle")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(frontendCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		c.Logging.Level = lvl
	}
	if wd, _ := cmd.Flags().GetString("workdir"); wd != "" {
		c.Workdir = wd
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if err := log.SetupLogger(c.Logging.Level, cmd.ErrOrStderr()); err != nil {
		return err
	}
	cfg = c
	return nil
}

func selectedStages(cmd *cobra.Command) (stages, error) {
	var s stages
	for name, dst := range map[string]*bool{
		"prepare":  &s.prepare,
		"train":    &s.train,
		"evaluate": &s.evaluate,
		"save":     &s.save,
	} {
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return s, err
		}
		*dst = v
	}
	return s, nil
}
