package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/enrollment"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/imaging"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <identity> <image>",
	Short: "Verify a capture against an enrolled identity",
	Long: `Compare a capture with the enrolled profile of one identity and print the
verdict as JSON. The attempt is appended to the audit log.

Exit status is 0 when the verdict was produced, whether or not the face was
recognized. Use --fail to exit with status 2 on a negative verdict.

Examples:
  face-attendance verify jan.novak ./gate/frame.jpg
  face-attendance verify jan.novak ./gate/frame.jpg --fail`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Bool("fail", false, "Exit with status 2 when not recognized")
}

func runVerify(cmd *cobra.Command, args []string) error {
	failOnReject := mustGetBool(cmd, "fail")

	identityID, err := identity.Parse(args[0])
	if err != nil {
		return err
	}
	data, ref, err := readImage(args[1])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	verdict, err := verifyCapture(ctx, a.engine, a.aggregator, identityID, data)
	if err != nil {
		return err
	}
	a.logAttempt(ctx, verdict, database.ModeVerify, identityID, ref)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(verdict); err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	if failOnReject && !verdict.Recognized {
		a.close()
		os.Exit(2)
	}
	return nil
}

// verifyCapture checks data against the enrolled profile of identityID. An
// undecodable image is an error even when the identity is not enrolled.
func verifyCapture(ctx context.Context, engine *recognition.Engine, agg *enrollment.Aggregator, identityID string, data []byte) (*recognition.Verdict, error) {
	if err := imaging.Check(data); err != nil {
		return nil, err
	}

	enrolled, err := agg.EnrolledEmbeddings(ctx, identityID)
	if err != nil && !errors.Is(err, enrollment.ErrNotEnrolled) {
		return nil, err
	}

	var verdict *recognition.Verdict
	if enrolled == nil {
		verdict = engine.Evaluate(nil, nil)
		verdict.Reason = recognition.ReasonNotEnrolled
	} else {
		verdict, err = engine.RecognizeFace(ctx, data, enrolled)
		if err != nil {
			return nil, err
		}
	}
	verdict.IdentityID = identityID
	return verdict, nil
}
