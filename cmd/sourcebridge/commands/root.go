// Package commands implements the SourceBridge CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sourcebridge",
		Short: "SourceBridge - supplier inquiry relay",
		Long: `SourceBridge relays sales inquiries between WhatsApp and WeChat
(via a Wechaty gateway): it categorizes each inquiry, fans it out to the
matching supplier group chats, aggregates their replies, and sends back a
summary.

Examples:
  sourcebridge serve
  sourcebridge serve --config ./config.yaml
  sourcebridge config init
  sourcebridge health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
