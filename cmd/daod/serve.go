package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blockberries/dao/app"
	"github.com/blockberries/dao/config"
	daogrpc "github.com/blockberries/dao/grpc"
	"github.com/blockberries/dao/indexer"
	"github.com/blockberries/dao/store"
)

const shutdownTimeout = 30 * time.Second

func serveCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the application over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	cmd.Flags().String("grpc-addr", config.DefaultGRPCAddr, "gRPC listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics listen address, empty to disable")
	_ = v.BindPFlag(config.KeyGRPCAddr, cmd.Flags().Lookup("grpc-addr"))
	_ = v.BindPFlag(config.KeyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "component", programName, "version", versionString(),
		"home", cfg.Home, "grpc_addr", cfg.GRPCAddr)

	st, err := store.Open(
		store.WithLogger(logger),
		store.WithDataDir(cfg.DataDir),
		store.WithRetain(cfg.Store.Retain),
		store.WithGCInterval(cfg.Store.GCInterval),
	)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithPromRegistry(reg),
		app.WithStore(st),
	}
	if cfg.Indexer.Enabled {
		idx, err := indexer.Open(cfg.Indexer.Path)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
		opts = append(opts, app.WithIndexer(idx))
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	gs := daogrpc.NewGRPCServer(app.New(opts...), daogrpc.WithLogger(logger)).NewServer()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("serving gRPC", "component", programName, "addr", lis.Addr().String())
		errCh <- gs.Serve(lis)
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			logger.Info("serving prometheus metrics", "component", programName, "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "component", programName)
	case err = <-errCh:
		logger.Error("server failed", "component", programName, "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		gs.Stop()
	}
	return err
}
