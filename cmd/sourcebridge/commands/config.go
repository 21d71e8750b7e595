package commands

import (
	"fmt"
	"os"

	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/config"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/inquiry"
	"github.com/jholhewres/sourcebridge/pkg/sourcebridge/router"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `sourcebridge config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)
	return cmd
}

// newConfigInitCmd writes a starter config file.
func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Root().PersistentFlags().GetString("config")
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
			}

			cfg := config.Default()
			// Seed one example category so the file validates after editing.
			cfg.Router.Categories = []router.CategoryRule{
				{
					Name:     "basin",
					Keywords: []string{"basin", "sink", "washbasin"},
					Groups: []inquiry.TargetGroup{
						{GroupID: "123456789@g.us", DisplayName: "Basin Suppliers"},
					},
				},
			}

			if err := config.Save(cfg, configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s. Edit the router categories and channel settings before serving.\n", configPath)
			return nil
		},
	}
}

// newConfigShowCmd prints the effective configuration.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Root().PersistentFlags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Never print secrets.
			if cfg.Summarizer.APIKey != "" {
				cfg.Summarizer.APIKey = "***"
			}
			if cfg.Gateway.AuthToken != "" {
				cfg.Gateway.AuthToken = "***"
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

// newConfigSetKeyCmd stores the summarizer API key in the OS keyring.
func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <api-key>",
		Short: "Store the summarizer API key in the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := config.StoreKeyring("api_key", args[0]); err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}
