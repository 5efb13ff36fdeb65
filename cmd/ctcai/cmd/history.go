package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctc-ai/ctc_ai_ui/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent login attempts",
	Long: `Show recent login attempts, newest first.

Tokens are never stored; the FINGERPRINT column identifies the token of a
successful attempt.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count stored attempts by outcome",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest attempts",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

var (
	historyLimit int
	historyKeep  int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyPruneCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of attempts to show")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 100, "number of newest attempts to keep")
}

func openHistoryStore() (*db.DB, error) {
	h, err := db.Open()
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return h, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	h, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer h.Close()

	records, err := h.RecentAttempts(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No login attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tSTATUS\tPORT\tDURATION\tFINGERPRINT\tERROR")
	for _, r := range records {
		port := "-"
		if r.Port > 0 {
			port = fmt.Sprintf("%d", r.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.EndedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			port,
			formatAttemptDuration(r.Duration),
			orDash(r.TokenFingerprint),
			orDash(r.Error),
		)
	}
	return w.Flush()
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	h, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer h.Close()

	counts, err := h.StatusCounts(cmd.Context())
	if err != nil {
		return err
	}

	statuses := make([]string, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Strings(statuses)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	fmt.Fprintf(w, "TOTAL\t%d\n", total)
	return w.Flush()
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if historyKeep < 0 {
		return fmt.Errorf("--keep must not be negative")
	}
	h, err := openHistoryStore()
	if err != nil {
		return err
	}
	defer h.Close()

	n, err := h.Prune(cmd.Context(), historyKeep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d attempt(s).\n", n)
	return nil
}

// formatAttemptDuration renders sub-minute durations with one decimal.
func formatAttemptDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
