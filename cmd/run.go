package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runItemID  string
	runRefresh bool
	runFlags   overrideFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run enrichment for a single catalog item",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := env.Pipeline.Run(ctx, runItemID, runRefresh, runFlags.build(cmd.Flags()))

		if err := writeJSON(os.Stdout, out); err != nil {
			return eris.Wrap(err, "encode output")
		}
		if !out.Success {
			return eris.Errorf("enrichment failed for %s: %s", runItemID, out.Error)
		}

		zap.L().Info("enrichment complete",
			zap.String("item_id", runItemID),
			zap.String("confidence", string(out.Report.OverallConfidence)),
			zap.Bool("all_gates_passed", out.Report.AllGatesPassed),
		)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runItemID, "item", "", "catalog item ID (required)")
	runCmd.Flags().BoolVar(&runRefresh, "refresh", false, "ignore the cached vision result")
	runFlags.register(runCmd.Flags())
	_ = runCmd.MarkFlagRequired("item")
	rootCmd.AddCommand(runCmd)
}
