package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/providers"
	"github.com/yairfalse/suoja/scope"
)

var (
	version = "0.1.0"

	intentPath    string
	providerName  string
	fixturePath   string
	exemptionPath string
	debug         bool

	rootCmd = &cobra.Command{
		Use:   "suoja",
		Short: "Tag-Scoped Protection Reconciler",
		Long: `Suoja - Tag-Scoped Protection Reconciler

Suoja converges DDoS protection enrollment with a declared policy
intent. Resources matching the intent's types, tags, and account scope
are enrolled; enrolled resources that fall out of scope are unenrolled.

Declare the intent once, reconcile continuously.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Suoja {{.Version}} - Tag-Scoped Protection Reconciler
`)

	rootCmd.PersistentFlags().StringVar(&intentPath, "intent", "intent.yaml", "Intent document path")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "memory", "Enrollment provider")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "Fixture file for the memory provider")
	rootCmd.PersistentFlags().StringVar(&exemptionPath, "exemptions", "", "Rego exemption policy path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// loadIntent reads and validates the intent document
func loadIntent() (*intent.PolicyIntent, error) {
	policy, err := intent.Load(intentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load intent %s: %w", intentPath, err)
	}
	return policy, nil
}

// createProvider resolves the configured provider from the registry
func createProvider() (providers.Provider, error) {
	return providers.Get(providerName, providers.Config{FixturePath: fixturePath})
}

// loadExemptions compiles the Rego exemption policy if one is configured
func loadExemptions(ctx context.Context) (*scope.ExemptionPolicy, error) {
	if exemptionPath == "" {
		return nil, nil
	}
	return scope.LoadExemptionPolicy(ctx, exemptionPath)
}
