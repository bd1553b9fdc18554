package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List recent recognition attempts from the audit log",
	Args:  cobra.NoArgs,
	RunE:  runAttempts,
}

func init() {
	rootCmd.AddCommand(attemptsCmd)

	attemptsCmd.Flags().Int("limit", constants.DefaultAttemptsLimit, "Number of attempts to show")
	attemptsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttempts(cmd *cobra.Command, args []string) error {
	limit := mustGetInt(cmd, "limit")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	attempts, err := a.attempts.ListAttempts(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(attempts)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMODE\tSTATUS\tCLAIMED\tMATCHED\tCONFIDENCE\tSIMILARITIES")
	for _, at := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4f\t%s\n",
			at.CreatedAt.Format("2006-01-02 15:04:05"), at.Mode, at.Status,
			orDash(at.ClaimedIdentity), orDash(at.MatchedIdentity), at.Confidence, formatSimilarities(at.Similarities))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatSimilarities(sims map[string]float64) string {
	names := make([]string, 0, len(sims))
	for name := range sims {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%.3f", name, sims[name])
	}
	return strings.Join(parts, " ")
}
