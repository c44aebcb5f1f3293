package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"

	"github.com/vitrinehq/vitrine/internal/api"
	"github.com/vitrinehq/vitrine/internal/cluster"
	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/installer"
	"github.com/vitrinehq/vitrine/internal/release"
	"github.com/vitrinehq/vitrine/internal/tenantdb"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	restConfig, err := cluster.RESTConfig(cfg.KubernetesInCluster, cfg.KubeconfigPath)
	if err != nil {
		logger.Fatal("failed to build kubernetes config", zap.Error(err))
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		logger.Fatal("failed to create kubernetes client", zap.Error(err))
	}
	clusterClient := cluster.NewWithClientset(clientset, logger)

	releaseClient := release.NewClient(release.Options{
		KubeconfigPath: cfg.KubeconfigPath,
		ChartPath:      cfg.ChartPath,
		Image:          cfg.TenantImage,
		CertIssuer:     cfg.CertIssuer,
		Timezone:       cfg.Timezone,
		AdminEmail:     cfg.AdminEmail,
		DBHost:         cfg.TenantDBHost,
		DBPort:         cfg.TenantDBPort,
		Timeout:        cfg.ReleaseTimeout,
	}, logger)

	dbProvisioner, err := tenantdb.New(tenantdb.Options{
		Host:          cfg.TenantDBHost,
		Port:          cfg.TenantDBPort,
		AdminUser:     cfg.TenantDBAdminUser,
		AdminPassword: cfg.TenantDBAdminPassword,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to tenant database server", zap.Error(err))
	}

	setupRunner := installer.NewRunner(clusterClient, clientset, restConfig, installer.Options{
		Command:    cfg.SetupCommand,
		AdminEmail: cfg.AdminEmail,
		Timeout:    cfg.SetupTimeout,
	}, logger)

	app := api.NewApp(pool, cfg, api.Clients{
		Cluster:   clusterClient,
		Releases:  releaseClient,
		Databases: dbProvisioner,
		Setup:     setupRunner,
	}, logger)

	addr := cfg.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
