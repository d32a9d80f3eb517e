package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"aurora-hq/nexus/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply defaults and environment
overrides, and report every validation error found.

Examples:
  # Validate the default config
  nexus validate

  # Validate a specific file
  nexus validate --config /etc/nexus/nexus.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				fmt.Println("✗ Configuration invalid:")
				for _, fe := range verr.Errors {
					fmt.Printf("  - %s\n", fe.Error())
				}
				return fmt.Errorf("%d validation error(s)", len(verr.Errors))
			}
			return err
		}

		fmt.Println("✓ Configuration valid")
		fmt.Printf("  listen address:  %s\n", cfg.Proxy.ListenAddress)
		fmt.Printf("  rag mode:        %v\n", cfg.RAG.Enabled)
		fmt.Printf("  static backends: %d\n", len(cfg.Backends))
		fmt.Printf("  health checks:   %v\n", cfg.Health.Enabled)
		fmt.Printf("  ledger:          %v\n", cfg.Ledger.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
