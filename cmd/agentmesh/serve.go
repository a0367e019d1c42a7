package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-agentmesh/internal/agents"
	"github.com/xela07ax/spaceai-agentmesh/internal/capability"
	"github.com/xela07ax/spaceai-agentmesh/internal/connectors"
	"github.com/xela07ax/spaceai-agentmesh/internal/infra/auth"
	"github.com/xela07ax/spaceai-agentmesh/internal/server"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC agent endpoint and the metrics exporter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, runServe)
	},
}

func runServe(ctx context.Context, a *app) error {
	// Контекст для управления жизненным циклом фоновых горутин.
	// SIGTERM отменяет его и останавливает слушателей
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg, logger := a.cfg, a.logger

	// 1. Control Plane: подписки на сигналы других инстансов
	if a.rdb != nil {
		go capability.ListenInvalidations(appCtx, a.rdb, a.inspector, logger)
		go a.policy.ListenUpdates(appCtx, a.rdb)
		go a.ks.StartListener(appCtx)
	}
	if cfg.Directory.Watch && cfg.Directory.ManifestDir != "" {
		w := agents.NewWatcher(a.dir, cfg.Directory.ManifestDir, logger)
		go func() {
			if err := w.Run(appCtx); err != nil {
				logger.Error("manifest watcher stopped", zap.Error(err))
			}
		}()
	}

	// 2. Аутентификация: пустой ключ, локальный режим
	var validator auth.TokenValidator
	v, err := auth.NewValidatorFromPEM(cfg.Auth.PublicKey, "")
	if err != nil {
		return fmt.Errorf("auth public key: %w", err)
	}
	if v != nil {
		validator = v
	} else {
		logger.Warn("auth public key is not configured, API runs without authentication")
	}

	// 3. Метрики: отдельный порт или /metrics на основном роутере
	var gatherer prometheus.Gatherer = a.reg
	var metricsSrv *http.Server
	if cfg.Server.MetricsPort > 0 {
		gatherer = nil
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// 4. HTTP API
	api := server.New(server.Deps{
		Orchestrator: a.orch,
		Catalog:      a.dir,
		Inspector:    a.inspector,
		Collab:       a.collab,
		Journal:      a.journal,
		KillSwitch:   a.ks,
		Grants:       a.policy,
		Audit:        a.auditLog,
	}, validator, a.metrics, gatherer, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 5. gRPC: каждый локальный агент доступен удаленным оркестраторам
	var grpcSrv *grpc.Server
	if cfg.Server.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		grpcSrv = grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryInterceptor(validator, logger)))
		connectors.NewAgentServer(a.dir, logger).Register(grpcSrv)
		go func() {
			logger.Info("gRPC agent endpoint started", zap.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("failed to serve gRPC", zap.Error(err))
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("AgentMesh API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 6. Graceful Shutdown
	select {
	case <-appCtx.Done():
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("AgentMesh stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	logger.Info("AgentMesh exited properly")
	return nil
}
