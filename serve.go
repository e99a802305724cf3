package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-analytics/noah-server/internal/invalidate"
	"github.com/noah-analytics/noah-server/internal/server"
	"github.com/noah-analytics/noah-server/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	baseURL := a.client.BaseURL()
	transport := invalidate.NewWebSocket(baseURL,
		invalidate.WithDialer(&websocket.Dialer{
			Jar:              a.client.Jar(),
			HandshakeTimeout: 10 * time.Second,
		}),
		invalidate.WithReconnectDelay(a.cfg.ReconnectDelay),
		invalidate.WithLogger(a.logger))

	srv := server.New(server.Config{
		Pages:      a.pages,
		Toasts:     a.toasts,
		Notes:      a.notes,
		Session:    session.NewBootstrapper(a.client, a.client, a.logger),
		Transport:  transport,
		Subscriber: a.cache,
		Deps: session.Deps{
			API:    a.client,
			Prefs:  a.prefs,
			Cache:  a.cache,
			Notify: a.toasts,
		},
		TextDebounce: a.cfg.TextDebounce,
		Logger:       a.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(fmt.Sprintf(":%d", a.cfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			a.logger.Error("http server shutdown failed", zap.Error(err))
			return err
		}
		return nil
	})
	return g.Wait()
}
