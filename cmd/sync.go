package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass",
	Long:  "Fetches the external dataset once and merges it into the store. A fetch failure is logged and exits 0; a store failure exits non-zero.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, _ := newMetrics()
		res, err := newEngine(cfg, st, m).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
	},
}

var syncStatusLimit int

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent reconciliation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListSyncs(ctx, syncStatusLimit)
		if err != nil {
			return eris.Wrap(err, "sync status")
		}
		if len(entries) == 0 {
			zap.L().Info("no sync entries found, run 'countrysync sync' first")
			return nil
		}
		formatSyncEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	syncStatusCmd.Flags().IntVar(&syncStatusLimit, "limit", 20, "number of runs to show")
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}

// formatSyncEntries writes a tabular representation of sync entries to out.
func formatSyncEntries(out io.Writer, entries []model.SyncEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tPROCESSED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t---------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			e.Status,
			e.StartedAt.UTC().Format("2006-01-02 15:04"),
			dur,
			e.Processed,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
