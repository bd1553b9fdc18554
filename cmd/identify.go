package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image>...",
	Short: "Find who is in one or more captures",
	Long: `Match each capture against every completely enrolled identity and report
the best match above the confidence threshold. Captures are processed in
parallel; each one is appended to the audit log.

Examples:
  # Identify a single capture
  face-attendance identify ./gate/frame.jpg

  # Identify a batch with 8 workers
  face-attendance identify ./gate/*.jpg --concurrency 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Int("concurrency", 0, "Number of parallel workers (0 = WORKER_POOL_SIZE)")
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
}

// IdentifyOutput is one line of identify output.
type IdentifyOutput struct {
	Image   string               `json:"image"`
	Verdict *recognition.Verdict `json:"verdict,omitempty"`
	Error   string               `json:"error,omitempty"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if concurrency <= 0 {
		concurrency = a.cfg.Workers
	}

	population, err := a.reader.ListCompleteProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load enrolled profiles: %w", err)
	}
	if !jsonOutput {
		fmt.Printf("Enrolled identities: %d\n", len(population))
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput && len(args) > 1 {
		bar = progressbar.NewOptions(len(args),
			progressbar.OptionSetDescription("Identifying"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	results := make([]IdentifyOutput, len(args))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, path := range args {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if bar != nil {
				defer bar.Add(1)
			}

			results[i] = identifyOne(ctx, a, population, path)
		}(i, path)
	}
	wg.Wait()
	if bar != nil {
		fmt.Println()
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tIDENTITY\tCONFIDENCE\tSTATUS")
	var recognized int
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\terror: %s\n", r.Image, r.Error)
			continue
		}
		who := "-"
		if r.Verdict.Recognized {
			who = r.Verdict.IdentityID
			recognized++
		}
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\n", r.Image, who, r.Verdict.Confidence, r.Verdict.Status)
	}
	w.Flush()

	fmt.Printf("\nRecognized %d of %d captures\n", recognized, len(results))
	return nil
}

func identifyOne(ctx context.Context, a *app, population []database.FacialProfile, path string) IdentifyOutput {
	out := IdentifyOutput{Image: path}

	data, ref, err := readImage(path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	verdict, err := a.engine.Identify(ctx, data, population)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	a.logAttempt(ctx, verdict, database.ModeIdentify, "", ref)
	out.Verdict = verdict
	return out
}
