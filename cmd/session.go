// File: cmd/session.go
package cmd

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/easel/internal/canvas"
	"github.com/xkilldash9x/easel/internal/config"
	"github.com/xkilldash9x/easel/internal/mcp"
)

// serverName is announced by the bundled canvas tool server.
const serverName = "easel-paint"

// osExecutable is swapped in tests.
var osExecutable = os.Executable

// withToolSession opens an MCP session to the configured tool server, runs
// fn against it and tears the session down again.
func withToolSession(ctx context.Context, cfg config.ToolServerConfig, canvasCfg config.CanvasConfig, logger *zap.Logger, fn func(context.Context, *mcp.Client) error) error {
	if cfg.InProcess {
		return withInProcessSession(ctx, canvasCfg, logger, fn)
	}

	transport := &mcp.CommandTransport{
		Command:       cfg.Command,
		Args:          cfg.Args,
		Env:           cfg.Env,
		ShutdownGrace: cfg.ShutdownGrace,
		Logger:        logger,
	}
	if transport.Command == "" {
		self, err := osExecutable()
		if err != nil {
			return fmt.Errorf("failed to locate own executable: %w", err)
		}
		transport.Command = self
		transport.Args = []string{"serve"}
	}

	conn, err := transport.Connect(ctx)
	if err != nil {
		return err
	}
	client, err := mcp.Dial(ctx, conn, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	defer client.Close()

	logger.Info("Connected to tool server.",
		zap.String("server", client.ServerInfo().Name),
		zap.String("server_version", client.ServerInfo().Version))
	return fn(ctx, client)
}

// withInProcessSession serves a fresh canvas over in-memory pipes.
func withInProcessSession(ctx context.Context, canvasCfg config.CanvasConfig, logger *zap.Logger, fn func(context.Context, *mcp.Client) error) error {
	srv, err := newCanvasServer(canvasCfg, logger)
	if err != nil {
		return err
	}

	clientEnd, serverEnd := mcp.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer serverEnd.Close()
		return srv.Serve(gctx, serverEnd, serverEnd)
	})

	g.Go(func() error {
		// Closing the client end is what lets Serve return.
		client, err := mcp.Dial(gctx, clientEnd, logger)
		if err != nil {
			_ = clientEnd.Close()
			return fmt.Errorf("failed to initialize MCP session: %w", err)
		}
		defer client.Close()
		return fn(gctx, client)
	})

	return g.Wait()
}

// newCanvasServer builds the MCP server exposing a fresh canvas.
func newCanvasServer(canvasCfg config.CanvasConfig, logger *zap.Logger) (*mcp.Server, error) {
	c, err := canvas.New(canvasCfg.Width, canvasCfg.Height)
	if err != nil {
		return nil, err
	}
	srv := mcp.NewServer(serverName, Version, logger)
	if err := canvas.Register(srv, c, logger); err != nil {
		return nil, fmt.Errorf("failed to register canvas tools: %w", err)
	}
	return srv, nil
}
