package commands

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd creates the `sourcebridge health` command that queries the
// /health endpoint of a running instance.
func newHealthCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running instance's health",
		RunE: func(_ *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + address + "/health")
			if err != nil {
				return fmt.Errorf("instance unreachable at %s: %w", address, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}
			fmt.Println(string(body))

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health check returned status %d", resp.StatusCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "localhost:8085", "host:port of the running instance")
	return cmd
}
