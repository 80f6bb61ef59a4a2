package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ezoic/churn/tracking"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent tracked runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tracker, err := tracking.Open(cfg.Tracking.DSN)
		if err != nil {
			return err
		}
		defer tracker.Close()
		return listRuns(cmd, tracker, limit, cmd.OutOrStdout())
	},
}

func init() {
	runsCmd.Flags().Int("limit", 10, "Number of runs to show")
}

func listRuns(cmd *cobra.Command, tracker *tracking.Store, limit int, w io.Writer) error {
	ctx := cmd.Context()
	expID, err := tracker.Experiment(ctx, cfg.Tracking.Experiment)
	if err != nil {
		return err
	}
	runs, err := tracker.Runs(ctx, expID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tACCURACY\tBUNDLE")
	for _, r := range runs {
		metrics, err := tracker.Metrics(ctx, r.ID)
		if err != nil {
			return err
		}
		acc := "-"
		if v, ok := metrics["accuracy"]; ok {
			acc = fmt.Sprintf("%.4f", v)
		}
		bundle := r.Tags["bundle_id"]
		if bundle == "" {
			bundle = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.StartTime.Local().Format(time.DateTime), acc, bundle)
	}
	return tw.Flush()
}
