package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vulx-io/vulx/internal/agent"
	"github.com/vulx-io/vulx/internal/config"
	"github.com/vulx-io/vulx/internal/models"
	"github.com/vulx-io/vulx/internal/remediation"
)

const agentVersion = "1.0.0"

var errFindingsAboveThreshold = errors.New("findings at or above fail-on threshold")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		if !errors.Is(err, errFindingsAboveThreshold) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vulx-agent",
		Short:         "VULX security scanner agent for CI/CD pipelines",
		Version:       agentVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newScanCmd(), newAuthCmd(), newVersionCmd())
	return root
}

type scanFlags struct {
	target          string
	spec            string
	scanType        string
	projectID       string
	apiKey          string
	apiURL          string
	authToken       string
	authHeaders     []string
	failOn          string
	output          string
	showRemediation bool
	quiet           bool
	jsonOutput      bool
}

func newScanCmd() *cobra.Command {
	var flags scanFlags

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a security scan against a target API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.target, "target", "t", "", "Target URL to scan")
	cmd.Flags().StringVarP(&flags.spec, "spec", "s", "", "OpenAPI specification URL or file path")
	cmd.Flags().StringVar(&flags.scanType, "type", "standard", "Scan type: quick, standard or full")
	cmd.Flags().StringVarP(&flags.projectID, "project-id", "p", "", "VULX project ID")
	cmd.Flags().StringVarP(&flags.apiKey, "api-key", "k", "", "VULX API key")
	cmd.Flags().StringVar(&flags.apiURL, "api-url", "", "VULX API URL")
	cmd.Flags().StringVar(&flags.authToken, "auth-token", "", "Bearer token for authenticated scanning")
	cmd.Flags().StringArrayVar(&flags.authHeaders, "auth-header", nil, "Custom auth header ('Header: Value'), repeatable")
	cmd.Flags().StringVar(&flags.failOn, "fail-on", "high", "Exit non-zero on findings at or above this severity")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write JSON results to this file")
	cmd.Flags().BoolVar(&flags.showRemediation, "show-remediation", false, "Show remediation guidance per finding")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Minimal output")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json-output", false, "Print the result JSON on stdout")
	cmd.MarkFlagRequired("target")

	return cmd
}

func runScan(parent context.Context, flags scanFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyCredentialFlags(cfg, flags)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verbose := !flags.quiet && !flags.jsonOutput
	if verbose {
		agent.PrintBanner(os.Stdout)
		fmt.Printf("Starting %s scan of %s\n\n", flags.scanType, flags.target)
	}

	runner := agent.NewRunner(cfg)
	if verbose {
		runner.OnProgress(func(state models.ScanState, progress int, message string) {
			fmt.Printf("[%3d%%] %s: %s\n", progress, state, message)
		})
	}

	result := runner.Run(ctx, agent.ScanOptions{
		Target:      flags.target,
		Spec:        flags.spec,
		ScanType:    flags.scanType,
		AuthToken:   flags.authToken,
		AuthHeaders: flags.authHeaders,
	})

	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "\nScan cancelled")
		return context.Canceled
	}

	if flags.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else if !flags.quiet {
		agent.PrintSummary(os.Stdout, result)
		agent.PrintFindings(os.Stdout, result.Findings, flags.showRemediation)
		if flags.showRemediation {
			agent.PrintRemediationPlan(os.Stdout, result.Findings, remediation.NewEngine(), 5)
		}
		agent.PrintCompliance(os.Stdout, result)
	}

	if flags.output != "" {
		if err := writeResultFile(flags.output, result); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("\nResults saved to %s\n", flags.output)
		}
	}

	uploadResult(ctx, cfg, result, flags)

	if result.Status == models.StateFailed {
		return fmt.Errorf("scan failed: %s", result.Summary.Error)
	}

	if agent.ShouldFail(result.Findings, flags.failOn) {
		if !flags.quiet {
			fmt.Fprintf(os.Stderr, "\nFailing: findings at or above %s severity\n", flags.failOn)
		}
		return errFindingsAboveThreshold
	}

	if verbose {
		fmt.Println("\nScan completed successfully")
	}
	return nil
}

// applyCredentialFlags lets explicit flags win over VULX_* environment
// values already resolved by config.Load.
func applyCredentialFlags(cfg *config.Config, flags scanFlags) {
	if flags.apiURL != "" {
		cfg.VulxAPIURL = flags.apiURL
	}
	if flags.apiKey != "" {
		cfg.VulxAPIKey = flags.apiKey
	}
	if flags.projectID != "" {
		cfg.VulxProjectID = flags.projectID
	}
}

func writeResultFile(path string, result models.ScanResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

// uploadResult pushes the result to the platform when credentials are
// configured. Failures warn; they never change the exit code.
func uploadResult(ctx context.Context, cfg *config.Config, result models.ScanResult, flags scanFlags) {
	if cfg.VulxAPIKey == "" || cfg.VulxProjectID == "" {
		return
	}
	if !flags.quiet && !flags.jsonOutput {
		fmt.Println("\nUploading results to VULX platform...")
	}
	reporter := agent.NewReporter(cfg.VulxAPIURL, cfg.VulxAPIKey)
	if _, err := reporter.UploadResults(ctx, cfg.VulxProjectID, result); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to upload results:", err)
		return
	}
	if !flags.quiet && !flags.jsonOutput {
		fmt.Println("Results uploaded successfully")
	}
}

func newAuthCmd() *cobra.Command {
	var apiKey, apiURL string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Verify authentication with the VULX platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if apiKey != "" {
				cfg.VulxAPIKey = apiKey
			}
			if apiURL != "" {
				cfg.VulxAPIURL = apiURL
			}
			if cfg.VulxAPIKey == "" {
				return errors.New("no API key: set --api-key or VULX_API_KEY")
			}

			fmt.Println("Verifying authentication...")
			reporter := agent.NewReporter(cfg.VulxAPIURL, cfg.VulxAPIKey)
			info, err := reporter.VerifyAuth(cmd.Context())
			if err != nil {
				return err
			}
			if !info.Valid {
				return errors.New("authentication failed: invalid API key")
			}
			fmt.Println("Authentication successful")
			fmt.Println("  Organization:", valueOr(info.Organization, "N/A"))
			fmt.Println("  Plan:", valueOr(info.Plan, "N/A"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "VULX API key")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "VULX API URL")
	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("VULX Scanner Agent v" + agentVersion)
		},
	}
}
