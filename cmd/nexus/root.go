package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - OpenAI-compatible gateway for inference backends",
	Long: `Nexus is an OpenAI-compatible request gateway for heterogeneous
inference backends.

It maintains a registry of backend instances grouped by kind (chat, whisper,
image, tts, rag-chat, rag-embedding), health-checks them in the background,
and dispatches each request to a healthy instance:
  - Least-loaded round-robin selection per kind
  - SSE-aware streaming with backpressure
  - Automatic failover to another instance on upstream failure
  - Runtime registration and removal through the admin API`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}
