package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docqa/internal/mcpserver"
)

func mcpCMD(flags *globalFlags) *cobra.Command {
	var stdio bool
	var addr string
	mcp := &cobra.Command{
		Use:   "mcp",
		Short: "Serve document tools over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.MCPAddr = addr
			}
			// stdout carries the protocol in stdio mode
			log, closeLog, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcpserver.NewServer(a.svc, log)
			if stdio {
				return mcpserver.ServeStdio(srv)
			}
			log.Info("mcp listening", "addr", cfg.Server.MCPAddr)
			return mcpserver.ServeSSE(ctx, srv, cfg.Server.MCPAddr)
		},
	}
	mcp.Flags().BoolVar(&stdio, "stdio", false, "serve over stdin/stdout instead of SSE")
	mcp.Flags().StringVar(&addr, "addr", "", "SSE listen address (overrides server.mcp_addr)")
	return mcp
}
