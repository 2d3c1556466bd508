package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"chatrelay/internal/app/chat"
	"chatrelay/internal/app/transport"
	"chatrelay/internal/configs"
	"chatrelay/internal/handler"
	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/limiter"
	"chatrelay/internal/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var port, tcpPort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the relay server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configs.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			if err := applyPortFlags(cmd, cfg, port, tcpPort); err != nil {
				return err
			}

			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP/WebSocket port (overrides PORT)")
	cmd.Flags().IntVar(&tcpPort, "tcp-port", 3042, "framed TCP port, 0 disables (overrides TCP_PORT)")

	return cmd
}

// applyPortFlags overrides the configured ports with the flags the user set explicitly.
func applyPortFlags(cmd *cobra.Command, cfg *configs.AppConfig, port, tcpPort int) error {
	if cmd.Flags().Changed("port") {
		if err := configs.ValidatePort("--port", port); err != nil {
			return fmt.Errorf("%w: %w", errs.NewError(errs.ErrInvalidParams), err)
		}
		cfg.Port = port
	}

	if cmd.Flags().Changed("tcp-port") {
		if tcpPort != 0 {
			if err := configs.ValidatePort("--tcp-port", tcpPort); err != nil {
				return fmt.Errorf("%w: %w", errs.NewError(errs.ErrInvalidParams), err)
			}
		}
		cfg.TCPPort = tcpPort
	}

	if cfg.TCPPort != 0 && cfg.TCPPort == cfg.Port {
		return fmt.Errorf("%w: TCP and HTTP ports must differ, both are %d", errs.NewError(errs.ErrInvalidParams), cfg.Port)
	}
	return nil
}

func hubOptions(cfg *configs.AppConfig) chat.Options {
	return chat.Options{
		SelfEcho:      cfg.SelfEcho,
		MaxNameLength: cfg.MaxNameLength,
		MaxChatBytes:  cfg.MaxChatBytes,
		MessageRate:   rate.Limit(cfg.MessageRate),
		MessageBurst:  cfg.MessageBurst,
		SendQueueSize: cfg.SendQueueSize,
	}
}

func serve(parent context.Context, cfg *configs.AppConfig) error {
	logx.InitGlobalLogger(cfg.IsDevelopment())
	if err := logx.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Int("tcp_port", cfg.TCPPort).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("self_echo", cfg.SelfEcho).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := chat.NewHub(hubOptions(cfg))
	connectLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(cfg.ConnectRate), cfg.ConnectBurst)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Router(&handler.AppDeps{
			Hub:            hub,
			Config:         cfg,
			ConnectLimiter: connectLimiter,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var tcpListener net.Listener
	if cfg.TCPPort != 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.TCPPort))
		if err != nil {
			return fmt.Errorf("listen on TCP port %d: %w", cfg.TCPPort, err)
		}
		tcpListener = ln
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logx.Info("Chat relay listening for WebSocket clients", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if tcpListener != nil {
		g.Go(func() error {
			logx.Info("Chat relay listening for TCP clients", "addr", tcpListener.Addr().String())
			return transport.ServeTCP(gctx, tcpListener, transport.TCPOptions{
				MaxFrameBytes: int64(cfg.MaxFrameBytes),
				Allow:         connectLimiter.Allow,
			}, hub.Serve)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// stop accepting upgrades before ending the sessions already running
		httpErr := server.Shutdown(shutdownCtx)
		hubErr := hub.Shutdown(shutdownCtx)
		return errors.Join(httpErr, hubErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logx.Info("Server gracefully stopped.")
	return nil
}
