package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkusd/config"
	"zkusd/native/token"
	"zkusd/native/vault"
	"zkusd/observability/logging"
	"zkusd/rpc"
	"zkusd/storage"
)

const (
	zkUSDSymbol      = "ZKUSD"
	collateralSymbol = "WZK"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	blockHeight := flag.Uint64("block-height", 0, "Initial block height for oracle freshness checks")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("zkusdd", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	zkLedger := token.NewLedger(db, zkUSDSymbol)
	collateralLedger := token.NewLedger(db, collateralSymbol)

	engine := vault.NewEngine(zkLedger, collateralLedger)
	engine.SetState(vault.NewStore(db))
	engine.SetBlockHeight(*blockHeight)

	server := rpc.NewServer(engine, logger, cfg.RPCTokens, cfg.RateLimitPerMin)
	server.SetDefaultOracle(cfg.Oracle())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcSrv := &http.Server{Addr: cfg.ListenAddress, Handler: server.Router()}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.ListenAddress, "oracle", cfg.OracleAddress)
		errCh <- rpcSrv.ListenAndServe()
	}()
	go func() {
		logger.Info("starting metrics server", "addr", cfg.MetricsAddress)
		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rpcSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", slog.Any("error", err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", slog.Any("error", err))
	}
	logger.Info("zkusdd stopped")
}
