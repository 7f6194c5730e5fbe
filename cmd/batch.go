package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

var (
	batchItems []string
	batchJSON  bool
	batchFlags overrideFlags

	pendingJSON  bool
	pendingFlags overrideFlags
)

var batchCmd = &cobra.Command{
	Use:   "batch [item-id...]",
	Short: "Enrich several catalog items sequentially",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ids := append(append([]string{}, batchItems...), args...)
		if len(ids) == 0 {
			return eris.New("batch: at least one item ID is required")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Pipeline.RunBatch(ctx, ids, batchFlags.build(cmd.Flags()), logProgress)
		return reportBatch(os.Stdout, results, batchJSON)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Enrich items with a missing or short description",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Pipeline.RunForPendingItems(ctx, pendingFlags.build(cmd.Flags()), logProgress)
		if err != nil {
			return err
		}
		return reportBatch(os.Stdout, results, pendingJSON)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchItems, "items", nil, "comma-separated item IDs")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print full outputs as JSON")
	batchFlags.register(batchCmd.Flags())
	rootCmd.AddCommand(batchCmd)

	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "print full outputs as JSON")
	pendingFlags.register(pendingCmd.Flags())
	rootCmd.AddCommand(pendingCmd)
}

func logProgress(done, total int, out model.EnrichmentOutput) {
	fields := []zap.Field{
		zap.Int("done", done),
		zap.Int("total", total),
		zap.String("item_id", out.ItemID),
		zap.Bool("success", out.Success),
	}
	if out.Report != nil {
		fields = append(fields, zap.String("confidence", string(out.Report.OverallConfidence)))
	}
	zap.L().Info("batch progress", fields...)
}

// reportBatch prints batch results and fails when any item failed.
func reportBatch(w io.Writer, results map[string]model.EnrichmentOutput, asJSON bool) error {
	if asJSON {
		if err := writeJSON(w, results); err != nil {
			return eris.Wrap(err, "encode results")
		}
	} else {
		formatBatch(w, results)
	}

	failed := 0
	for _, out := range results {
		if !out.Success {
			failed++
		}
	}
	if failed > 0 {
		return eris.Errorf("batch: %d of %d items failed", failed, len(results))
	}
	return nil
}

func formatBatch(out io.Writer, results map[string]model.EnrichmentOutput) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ITEM\tSUCCESS\tCONFIDENCE\tGATES\tADAPTATIONS\tERROR")
	_, _ = fmt.Fprintln(w, "----\t-------\t----------\t-----\t-----------\t-----")
	for _, id := range ids {
		r := results[id]
		confidence, gates, adaptations := "", "", 0
		if r.Report != nil {
			confidence = string(r.Report.OverallConfidence)
			gates = "partial"
			if r.Report.AllGatesPassed {
				gates = "all"
			}
			adaptations = len(r.Report.Adaptations)
		}
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%d\t%s\n", id, r.Success, confidence, gates, adaptations, r.Error)
	}
	_ = w.Flush()
}
