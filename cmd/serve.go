// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/easel/internal/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the canvas drawing tools over MCP on stdin and stdout",
		Long: `Serve exposes open_paint, draw_rectangle, add_text_in_paint and
fill_color_in_paint backed by an in-memory canvas. It is the default tool
server spawned by "easel run". Logs go to stderr; stdout carries only
protocol messages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			srv, err := newCanvasServer(cfg.Canvas(), logger)
			if err != nil {
				return err
			}
			logger.Debug("Canvas tool server ready.",
				zap.Int("width", cfg.Canvas().Width),
				zap.Int("height", cfg.Canvas().Height))
			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
