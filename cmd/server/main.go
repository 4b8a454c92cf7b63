package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	atlasdb "github.com/nickyhof/AtlasDB"
	"github.com/nickyhof/AtlasDB/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "YAML config file")
	addr := flag.String("addr", "", "TCP address to listen on")
	engine := flag.String("engine", "", "Storage engine: git, bolt or memory")
	dataDir := flag.String("dataDir", "", "Data directory for the git and bolt engines")
	metricsAddr := flag.String("metricsAddr", "", "HTTP address serving /metrics (disabled if empty)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("AtlasDB Server v%s\n", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *engine != "" {
		cfg.Engine = *engine
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := atlasdb.Open(cfg, logger, atlasdb.WithMetrics(reg))
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsServer = startMetricsEndpoint(cfg.Server.MetricsAddr, reg, logger)
	}

	server := NewServer(store, AuthConfigFrom(cfg.Server), logger)
	if err := server.Start(cfg.Server.Addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("AtlasDB server started",
		zap.String("version", Version),
		zap.String("engine", cfg.Engine))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	server.Stop()
	stopMetricsEndpoint(metricsServer)
	logger.Info("server stopped")
}
