package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zappabad/herdmarket/internal/client"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running herdmarket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c := client.New(url)
			health, err := c.Health(ctx)
			if err != nil {
				return fmt.Errorf("server %s: %w", url, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, field("Server", url))
			fmt.Fprintln(out, field("Status", completedStyle.Render(health.Status)))
			fmt.Fprintln(out, field("Clients", fmt.Sprintf("%d", health.Clients)))

			if health.Steps == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No steps yet"))
				return nil
			}

			summary, err := c.Summary(ctx)
			if err != nil {
				return fmt.Errorf("server %s: %w", url, err)
			}
			fmt.Fprintln(out, renderSummary(*summary))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8080", "Server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}
