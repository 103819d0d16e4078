package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/tsbscanner-backend/internal/metrics"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/bitcoin"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/chain"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/esplora"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/model"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/scanlog"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/service/scanner"
	"github.com/goodnatureofminers/tsbscanner-backend/internal/tsb/storage"
)

type config struct {
	Network     model.Network  `long:"network" env:"TSB_SCANNER_NETWORK" default:"mainnet" description:"bitcoin network (mainnet, testnet, regtest, signet)"`
	Storage     storage.Config `group:"store"`
	Source      string         `long:"source" env:"TSB_SCANNER_SOURCE" default:"rpc" choice:"rpc" choice:"esplora" description:"chain data source"`
	RPCURL      string         `long:"rpc-url" env:"TSB_SCANNER_RPC_URL" default:"http://127.0.0.1:8332" description:"Bitcoin RPC URL"`
	RPCUser     string         `long:"rpc-user" env:"TSB_SCANNER_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword string         `long:"rpc-password" env:"TSB_SCANNER_RPC_PASSWORD" description:"Bitcoin RPC password"`
	EsploraURL  string         `long:"esplora-url" env:"TSB_SCANNER_ESPLORA_URL" default:"https://mempool.space/api" description:"Esplora REST API base URL"`
	EsploraRPS  int            `long:"esplora-rps" env:"TSB_SCANNER_ESPLORA_RPS" default:"5" description:"Esplora requests per second, 0 disables pacing"`
	HTTPTimeout time.Duration  `long:"http-timeout" env:"TSB_SCANNER_HTTP_TIMEOUT" default:"30s" description:"HTTP timeout for Esplora requests"`
	MetricsAddr string         `long:"metrics-addr" env:"TSB_SCANNER_METRICS_ADDR" default:":2112" description:"address for metrics server"`
	LogJSON     bool           `long:"log-json" env:"TSB_SCANNER_LOG_JSON" description:"emit production JSON logs"`
	Scan        scanConfig     `group:"scan"`
	ScanLog     scanLogConfig  `group:"scan log"`
}

type scanConfig struct {
	CatchUpThreshold     uint64        `long:"catchup-threshold" env:"TSB_SCANNER_CATCHUP_THRESHOLD" default:"100" description:"blocks behind tip that switch a pass to catch-up mode"`
	BatchSize            int           `long:"batch-size" env:"TSB_SCANNER_BATCH_SIZE" default:"50" description:"heights per catch-up batch"`
	MaxConcurrentFetches int           `long:"max-concurrent-fetches" env:"TSB_SCANNER_MAX_CONCURRENT_FETCHES" default:"5" description:"parallel block fetches in catch-up mode"`
	Interval             time.Duration `long:"scan-interval" env:"TSB_SCANNER_SCAN_INTERVAL" default:"60s" description:"time between passes"`
	InterBlockDelay      time.Duration `long:"inter-block-delay" env:"TSB_SCANNER_INTER_BLOCK_DELAY" default:"200ms" description:"pause between heights in live mode"`
	BatchDelay           time.Duration `long:"batch-delay" env:"TSB_SCANNER_BATCH_DELAY" default:"1s" description:"pause between catch-up batches"`
	RetryAttempts        int           `long:"retry-attempts" env:"TSB_SCANNER_RETRY_ATTEMPTS" default:"3" description:"attempts per chain call"`
	RetryBaseDelay       time.Duration `long:"retry-base-delay" env:"TSB_SCANNER_RETRY_BASE_DELAY" default:"1s" description:"first retry wait, doubled per attempt"`
	RetryMaxDelay        time.Duration `long:"retry-max-delay" env:"TSB_SCANNER_RETRY_MAX_DELAY" default:"30s" description:"retry wait cap"`
	RateLimitRetryDelay  time.Duration `long:"rate-limit-retry-delay" env:"TSB_SCANNER_RATE_LIMIT_RETRY_DELAY" default:"5s" description:"retry wait after a rate limited call"`
	RateLimitCooldown    time.Duration `long:"rate-limit-cooldown" env:"TSB_SCANNER_RATE_LIMIT_COOLDOWN" default:"30s" description:"live mode cooldown before abandoning a rate limited pass"`
	StartHeight          uint64        `long:"start-height" env:"TSB_SCANNER_START_HEIGHT" default:"4321372" description:"checkpoint created on first run, scanning starts above it"`
	Window               string        `long:"window" env:"TSB_SCANNER_WINDOW" default:"fixed" choice:"fixed" choice:"sliding" description:"fixed scans from the start height, sliding only the latest blocks"`
	WindowSize           uint64        `long:"window-size" env:"TSB_SCANNER_WINDOW_SIZE" default:"100" description:"blocks kept in a sliding window"`
}

type scanLogConfig struct {
	Enabled       bool          `long:"scan-log" env:"TSB_SCANNER_SCAN_LOG" description:"record per-height outcomes in ClickHouse (requires --clickhouse-dsn)"`
	FlushSize     int           `long:"scan-log-flush-size" env:"TSB_SCANNER_SCAN_LOG_FLUSH_SIZE" default:"500" description:"events per flush"`
	FlushInterval time.Duration `long:"scan-log-flush-interval" env:"TSB_SCANNER_SCAN_LOG_FLUSH_INTERVAL" default:"5s" description:"maximum time events stay buffered"`
	RPS           int           `long:"scan-log-rps" env:"TSB_SCANNER_SCAN_LOG_RPS" default:"2" description:"flushes per second, 0 disables pacing"`
}

func (c scanConfig) scanner(network model.Network) scanner.Config {
	return scanner.Config{
		Network:              network,
		CatchUpThreshold:     c.CatchUpThreshold,
		BatchSize:            c.BatchSize,
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		ScanInterval:         c.Interval,
		InterBlockDelay:      c.InterBlockDelay,
		BatchDelay:           c.BatchDelay,
		RetryAttempts:        c.RetryAttempts,
		RetryBaseDelay:       c.RetryBaseDelay,
		RetryMaxDelay:        c.RetryMaxDelay,
		RateLimitRetryDelay:  c.RateLimitRetryDelay,
		RateLimitCooldown:    c.RateLimitCooldown,
		StartHeight:          c.StartHeight,
		Window:               scanner.Window(c.Window),
		WindowSize:           c.WindowSize,
	}
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogJSON)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("tsb scanner failed", zap.Error(err))
	}
}

func newLogger(json bool) (*zap.Logger, error) {
	if json {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	source, closeSource, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var opts []scanner.Option
	if cfg.ScanLog.Enabled {
		events, closeEvents, err := startScanLog(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeEvents()
		opts = append(opts, scanner.WithEventLog(events))
	}

	svc, err := scanner.New(
		source,
		store,
		metrics.NewScanner(cfg.Network),
		cfg.Scan.scanner(cfg.Network),
		logger,
		opts...,
	)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

func newSource(ctx context.Context, cfg config) (chain.Source, func(), error) {
	switch cfg.Source {
	case "esplora":
		src, err := esplora.NewSource(
			cfg.EsploraURL,
			metrics.NewEsploraClient(cfg.Network),
			esplora.WithRateLimit(cfg.EsploraRPS),
			esplora.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("init esplora source: %w", err)
		}
		return src, func() {}, nil
	default:
		rpcClient, err := newRPCClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
		if err != nil {
			return nil, nil, fmt.Errorf("init btc rpc client: %w", err)
		}
		shutdown := func() {
			rpcClient.Shutdown()
			rpcClient.WaitForShutdown()
		}
		rpc := bitcoin.NewObservedClient(rpcClient, metrics.NewRPCClient(cfg.Network))
		src, err := bitcoin.NewSource(rpc, cfg.Network)
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		if err := src.CheckNetwork(ctx); err != nil {
			shutdown()
			return nil, nil, err
		}
		return src, shutdown, nil
	}
}

func startScanLog(ctx context.Context, cfg config, logger *zap.Logger) (*scanlog.Log, func(), error) {
	repo, err := storage.OpenClickHouse(cfg.Storage.ClickhouseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("init scan log: %w", err)
	}
	l := scanlog.New(logger, repo, metrics.NewScanLog(), scanlog.Config{
		FlushSize:     cfg.ScanLog.FlushSize,
		FlushInterval: cfg.ScanLog.FlushInterval,
		RPS:           cfg.ScanLog.RPS,
	})
	l.Start(ctx)
	return l, func() {
		l.Stop()
		if err := repo.Close(); err != nil {
			logger.Error("failed to close scan log store", zap.Error(err))
		}
	}, nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}

func newRPCClient(rawURL, user, password string) (*rpcclient.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("rpc url scheme %q not supported, use http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	return rpcclient.New(&rpcclient.ConnConfig{
		Host:         parsed.Host + parsed.Path,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   parsed.Scheme == "http",
	}, nil)
}
