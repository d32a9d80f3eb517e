package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"aurora-hq/nexus/pkg/cli"
)

var serversFlags struct {
	gateway string
	output  string
	timeout time.Duration

	url  string
	kind string
	id   string
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect and manage backends on a running gateway",
	Long: `Inspect and manage the backend registry of a running gateway through
its admin API.

Examples:
  # List registered backends
  nexus servers list

  # Register a chat backend
  nexus servers register --kind chat --url http://10.0.0.5:8080

  # Remove it again
  nexus servers unregister --kind chat --url http://10.0.0.5:8080`,
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered backends by kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(serversFlags.output)
		if err != nil {
			return err
		}

		client := cli.NewAdminClient(serversFlags.gateway, serversFlags.timeout)
		servers, err := client.ListServers(cmd.Context())
		if err != nil {
			return err
		}
		return cli.WriteServerList(os.Stdout, format, servers)
	},
}

var serversRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a backend instance",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cli.ParseOutputFormat(serversFlags.output)
		if err != nil {
			return err
		}

		client := cli.NewAdminClient(serversFlags.gateway, serversFlags.timeout)
		created, err := client.RegisterServer(cmd.Context(), serversFlags.kind, serversFlags.url)
		if err != nil {
			return err
		}
		return cli.WriteRegistered(os.Stdout, format, created)
	},
}

var serversUnregisterCmd = &cobra.Command{
	Use:   "unregister",
	Short: "Remove a backend instance by id or by url and kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serversFlags.id == "" && (serversFlags.url == "" || serversFlags.kind == "") {
			return fmt.Errorf("provide --id, or both --url and --kind")
		}

		client := cli.NewAdminClient(serversFlags.gateway, serversFlags.timeout)
		if err := client.UnregisterServer(cmd.Context(),
			serversFlags.id, serversFlags.url, serversFlags.kind); err != nil {
			return err
		}
		fmt.Println("✓ Unregistered")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.AddCommand(serversListCmd, serversRegisterCmd, serversUnregisterCmd)

	serversCmd.PersistentFlags().StringVar(&serversFlags.gateway, "gateway",
		"http://127.0.0.1:8080", "base URL of the running gateway")
	serversCmd.PersistentFlags().StringVarP(&serversFlags.output, "output", "o",
		"text", "output format (text, json)")
	serversCmd.PersistentFlags().DurationVar(&serversFlags.timeout, "timeout",
		10*time.Second, "admin request timeout")

	serversRegisterCmd.Flags().StringVar(&serversFlags.url, "url", "", "backend base URL")
	serversRegisterCmd.Flags().StringVar(&serversFlags.kind, "kind", "", "backend kind")
	serversRegisterCmd.MarkFlagRequired("url")
	serversRegisterCmd.MarkFlagRequired("kind")

	serversUnregisterCmd.Flags().StringVar(&serversFlags.id, "id", "", "instance id")
	serversUnregisterCmd.Flags().StringVar(&serversFlags.url, "url", "", "backend base URL")
	serversUnregisterCmd.Flags().StringVar(&serversFlags.kind, "kind", "", "backend kind")
}
