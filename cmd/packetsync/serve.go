package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packetSync/internal/api"
	"packetSync/internal/bus"
	"packetSync/internal/config"
	"packetSync/internal/gateway"
	"packetSync/internal/storage"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eventBus, err := newBus(cfg, logger)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	return serveGateway(ctx, cfg, store, eventBus, logger)
}

func serveGateway(ctx context.Context, cfg config.Config, store storage.QueryStore, eventBus bus.Bus, logger *zap.Logger) error {
	if cfg.AuthSecret == "" {
		return fmt.Errorf("auth secret is required")
	}

	gw := gateway.NewServer(gateway.Config{AuthSecret: cfg.AuthSecret}, logger)
	if err := eventBus.Subscribe(ctx, bus.TopicAll, gw.HandleBroadcast); err != nil {
		return err
	}

	mux := api.NewServer(store, logger).Routes()
	mux.HandleFunc("/ws", gw.Handler())

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
