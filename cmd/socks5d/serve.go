package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orvantis/socks5d/internal/config"
	"github.com/orvantis/socks5d/internal/logging"
	"github.com/orvantis/socks5d/internal/socks5"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SOCKS5 proxy server",
		Long:  "Start the SOCKS5 proxy server with the specified configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			logger.Debug("resolved configuration", "config", cfg.String())

			srv := socks5.NewServer(serverConfigFromConfig(cfg, logger))
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			logger.Info("socks5 proxy listening", logging.KeyAddress, srv.Address())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			sig := <-sigCh
			logger.Info("received signal, shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.StopWithContext(ctx); err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./socks5d.yaml", "Path to configuration file")

	return cmd
}

// loadConfig loads the configuration file if it exists, falling back
// to defaults so the server can be run with zero configuration.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.Default(), nil
		}
		return nil, err
	}
	return config.Load(path)
}

// serverConfigFromConfig translates the file-backed configuration
// into the socks5 package's runtime ServerConfig.
func serverConfigFromConfig(cfg *config.Config, logger *slog.Logger) socks5.ServerConfig {
	sc := socks5.DefaultServerConfig()
	sc.Host = cfg.Listen.Host
	sc.Port = cfg.Listen.Port
	sc.Backlog = cfg.Listen.Backlog
	sc.MaxConnections = cfg.Listen.MaxConnections
	sc.BufferSize = cfg.Relay.BufferSize
	sc.ConnectTimeout = cfg.Relay.ConnectTimeout
	sc.IdleTimeout = cfg.Relay.IdleTimeout
	sc.RateLimitBytesPerSec = cfg.Relay.RateLimitBytesPerSec
	sc.KeepAliveIdle = cfg.KeepAlive.Idle
	sc.Resolver = net.DefaultResolver
	sc.Logger = logger
	return sc
}
