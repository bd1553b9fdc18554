package cmd

import (
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the recognition policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective recognition policy",
	Args:  cobra.NoArgs,
	RunE:  runPolicyShow,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a policy file (default: RECOGNITION_POLICY_FILE)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPolicyValidate,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyValidateCmd)
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	source := "embedded default"
	if cfg.PolicyFile != "" {
		source = cfg.PolicyFile
	}
	fmt.Printf("# source: %s\n", source)
	fmt.Printf("# primary backend: %s\n", policy.PrimaryBackend())

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(policy)
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	path := config.Load().PolicyFile
	if len(args) == 1 {
		path = args[0]
	}

	policy, err := config.LoadPolicy(path)
	if err != nil {
		return err
	}
	fmt.Printf("Policy OK: %d backends, min confidence %.2f, quality threshold %.2f\n",
		len(policy.Weights), policy.MinConfidence, policy.QualityThreshold)
	return nil
}
