package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Manage face enrollment",
	Long:  `Capture the nine head poses of an identity, inspect progress and reset profiles.`,
}

var enrollCaptureCmd = &cobra.Command{
	Use:   "capture <identity> [angle image]",
	Short: "Capture one angle, or all angles from a directory",
	Long: `Validate a capture and store it against one of the nine enrollment angles:
center, up, down, left, right, up_left, up_right, down_left, down_right.

Re-capturing an angle replaces the previous capture. The center angle always
replaces the stored embeddings; other angles only fill missing ones.

Examples:
  # Capture a single angle
  face-attendance enroll capture jan.novak center ./captures/center.jpg

  # Capture every angle found in a directory (files named after the angle)
  face-attendance enroll capture jan.novak --dir ./captures/jan`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runEnrollCapture,
}

var enrollStatusCmd = &cobra.Command{
	Use:   "status <identity>",
	Short: "Show enrollment progress of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollStatus,
}

var enrollResetCmd = &cobra.Command{
	Use:   "reset <identity>",
	Short: "Discard all captures and embeddings of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnrollReset,
}

var enrollListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completely enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runEnrollList,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.AddCommand(enrollCaptureCmd, enrollStatusCmd, enrollResetCmd, enrollListCmd)

	enrollCaptureCmd.Flags().String("dir", "", "Directory with one image per angle, named after the angle")
	enrollCaptureCmd.Flags().Bool("json", false, "Output as JSON")
	enrollStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnrollCapture(cmd *cobra.Command, args []string) error {
	dir := mustGetString(cmd, "dir")
	jsonOutput := mustGetBool(cmd, "json")

	identityID, err := identity.Parse(args[0])
	if err != nil {
		return err
	}
	if dir == "" && len(args) != 3 {
		return errors.New("provide <angle> <image> or use --dir")
	}
	if dir != "" && len(args) != 1 {
		return errors.New("cannot combine <angle> <image> with --dir")
	}

	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	if dir != "" {
		return captureDirectory(ctx, a, identityID, dir)
	}

	angle, ok := database.ParseAngle(args[1])
	if !ok {
		return fmt.Errorf("%w: %q", enrollment.ErrInvalidAngle, args[1])
	}
	data, ref, err := readImage(args[2])
	if err != nil {
		return err
	}

	res, err := a.aggregator.Capture(ctx, identityID, angle, data, ref)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(res)
	}

	if !res.Enrollment.Success {
		fmt.Printf("Capture rejected: %s (faces: %d, quality: %.2f)\n",
			res.Enrollment.Reason, res.Enrollment.FacesDetected, res.Enrollment.Quality.Score)
	} else {
		verb := "Captured"
		if res.Recaptured {
			verb = "Re-captured"
		}
		fmt.Printf("%s %s for %s (quality: %.2f, backends: %s)\n",
			verb, angle, identityID, res.Enrollment.Quality.Score, strings.Join(res.Enrollment.Embeddings.Backends(), ", "))
	}
	printStatus(res.Status)
	if res.JustCompleted {
		fmt.Println("Enrollment complete.")
	}
	return nil
}

// captureDirectory enrolls every <angle>.<ext> image found in dir.
func captureDirectory(ctx context.Context, a *app, identityID, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	type job struct {
		angle database.Angle
		path  string
	}
	var jobs []job
	seen := make(map[database.Angle]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		angle, ok := database.ParseAngle(name)
		if !ok || seen[angle] {
			continue
		}
		seen[angle] = true
		jobs = append(jobs, job{angle: angle, path: filepath.Join(dir, e.Name())})
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no images named after an enrollment angle in %s", dir)
	}

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("angles"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	rejected := make(map[database.Angle]string)
	var last *enrollment.CaptureResult
	for _, j := range jobs {
		data, ref, err := readImage(j.path)
		if err != nil {
			rejected[j.angle] = err.Error()
			bar.Add(1)
			continue
		}
		res, err := a.aggregator.Capture(ctx, identityID, j.angle, data, ref)
		if err != nil {
			rejected[j.angle] = err.Error()
			bar.Add(1)
			continue
		}
		if !res.Enrollment.Success {
			rejected[j.angle] = string(res.Enrollment.Reason)
		}
		last = res
		bar.Add(1)
	}
	fmt.Println()

	for _, angle := range database.Angles {
		if reason, ok := rejected[angle]; ok {
			fmt.Printf("  %s: rejected (%s)\n", angle, reason)
		}
	}

	if last != nil {
		printStatus(last.Status)
		return nil
	}
	status, err := a.aggregator.Status(ctx, identityID)
	if err != nil {
		return err
	}
	printStatus(status)
	return nil
}

func runEnrollStatus(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	identityID, err := identity.Parse(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	agg := enrollment.NewAggregator(nil, a.profiles)
	status, err := agg.Status(ctx, identityID)
	if err != nil {
		return err
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}
	printStatus(status)
	return nil
}

func printStatus(s *enrollment.Status) {
	fmt.Printf("Identity:   %s\n", s.IdentityID)
	fmt.Printf("State:      %s (%.0f%%)\n", s.State, s.CompletionPercentage)
	if len(s.MissingAngles) > 0 {
		missing := make([]string, len(s.MissingAngles))
		for i, a := range s.MissingAngles {
			missing[i] = string(a)
		}
		fmt.Printf("Missing:    %s\n", strings.Join(missing, ", "))
	}
	if len(s.CapturedAngles) > 0 {
		fmt.Printf("Quality:    %.2f\n", s.QualityScore)
		fmt.Printf("Confidence: %.2f\n", s.ConfidenceScore)
		fmt.Printf("Backends:   %s\n", strings.Join(s.Backends, ", "))
	}
	if s.EnrolledAt != nil {
		fmt.Printf("Enrolled:   %s\n", s.EnrolledAt.Format("2006-01-02 15:04:05"))
	}
}

func runEnrollReset(cmd *cobra.Command, args []string) error {
	identityID, err := identity.Parse(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := enrollment.NewAggregator(nil, a.profiles).Reset(ctx, identityID); err != nil {
		return err
	}
	fmt.Printf("Enrollment of %s reset.\n", identityID)
	return nil
}

func runEnrollList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	profiles, err := a.reader.ListCompleteProfiles(ctx)
	if err != nil {
		return err
	}
	total, complete, err := a.reader.CountProfiles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tQUALITY\tCONFIDENCE\tBACKENDS\tENROLLED")
	for i := range profiles {
		p := &profiles[i]
		enrolled := ""
		if p.EnrolledAt != nil {
			enrolled = p.EnrolledAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\t%s\n",
			p.IdentityID, p.QualityScore, p.ConfidenceScore, strings.Join(p.Embeddings.Backends(), ","), enrolled)
	}
	w.Flush()

	fmt.Printf("\n%d complete of %d profiles\n", complete, total)
	return nil
}
