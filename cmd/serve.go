package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pelusa-v/chatroom/internal/chat"
	"github.com/pelusa-v/chatroom/internal/handlers"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Server.Listen = listenAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg.Server.Listen)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
}

func serve(ctx context.Context, addr string) error {
	hub := chat.NewManager(chat.WithLogger(logger.Named("hub")))
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.New(hub, logger.Named("http")).Routes(app)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Start(ctx) })
	g.Go(func() error {
		logger.Info("relay listening", zap.String("addr", addr))
		return app.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return app.Shutdown()
	})
	return g.Wait()
}
