// File: cmd/tools.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/easel/internal/mcp"
	"github.com/xkilldash9x/easel/internal/observability"
	"github.com/xkilldash9x/easel/internal/registry"
)

func newToolsCmd() *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tool catalog exactly as the model will see it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			return withToolSession(cmd.Context(), cfg.ToolServer(), cfg.Canvas(), logger, func(ctx context.Context, client *mcp.Client) error {
				catalog, err := registry.Fetch(ctx, client, logger)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), catalog.Render())
				return err
			})
		},
	}

	toolsCmd.Flags().Bool("inproc", false, "list the bundled canvas tools without spawning a server")
	return toolsCmd
}
