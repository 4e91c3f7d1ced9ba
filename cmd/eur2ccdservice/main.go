// Package main is the entry point for the Concordium EUR/CCD exchange
// rate oracle: it wires the source pollers, the aggregator, the safety
// governor and the chain submitter together behind two independent
// scheduler loops, and serves Prometheus metrics over HTTP.
package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/concordium/eur2ccd-service/internal/audit"
	"github.com/concordium/eur2ccd-service/internal/chain"
	"github.com/concordium/eur2ccd-service/internal/config"
	"github.com/concordium/eur2ccd-service/internal/governor"
	"github.com/concordium/eur2ccd-service/internal/history"
	"github.com/concordium/eur2ccd-service/internal/keys"
	"github.com/concordium/eur2ccd-service/internal/metrics"
	"github.com/concordium/eur2ccd-service/internal/scheduler"
	"github.com/concordium/eur2ccd-service/internal/security"
	"github.com/concordium/eur2ccd-service/internal/source"
	"github.com/concordium/eur2ccd-service/internal/telemetry"
)

const (
	fetchTimeout       = 10 * time.Second
	updateTickDeadline = 25 * time.Second
	shutdownTimeout    = 30 * time.Second
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	shutdownTracer := telemetry.InitTracer(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	defer shutdownTracer()

	m := metrics.New()

	sources := buildPollers(cfg)
	if len(sources) == 0 {
		logrus.Fatal("no sources enabled, refusing to start")
	}
	store := history.NewStore(cfg.EnabledSources(), cfg.MaxRatesSaved)

	signers := loadSigners(cfg)

	gov := governor.New(
		governor.Thresholds{
			WarnUp:   percentRat(cfg.WarnUpPercent),
			HaltUp:   percentRat(cfg.HaltUpPercent),
			WarnDown: percentRat(cfg.WarnDownPercent),
			HaltDown: percentRat(cfg.HaltDownPercent),
		},
		governor.WithLockFilePath(cfg.LockFilePath),
	)

	var auditSink *audit.Sink
	if cfg.DatabaseURL != "" {
		sink, err := audit.Open(cfg.DatabaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("failed to open audit database")
		}
		auditSink = sink
		defer auditSink.Close()
	}

	submitter := chain.New(cfg.Nodes, signers, store, gov, m, auditSink, cfg.DryRun, updateTickDeadline)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pullSched := scheduler.New(scheduler.Options{Interval: cfg.PullInterval, AlignToBucket: true}, logrus.WithField("component", "pull-scheduler"))
	for _, poller := range sources {
		ring := store.Ring(poller.Describe())
		go source.Run(ctx, pullSched, poller, ring, m, fetchTimeout)
	}

	updateSched := scheduler.New(scheduler.Options{Interval: cfg.UpdateInterval, AlignToBucket: true, StartupDelay: cfg.PullInterval}, logrus.WithField("component", "update-scheduler"))
	go updateSched.Run(ctx, submitter.Tick)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.PrometheusPort),
		Handler:      metricsHandler(m),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("metrics server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("metrics server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("metrics server shutdown failed")
	}
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

func metricsHandler(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	return mux
}

// buildPollers constructs one Poller per enabled named source plus one
// per configured test-source URL, in the same order as
// config.Config.EnabledSources so the two stay in lockstep.
func buildPollers(cfg config.Config) []source.Poller {
	var pollers []source.Poller
	if cfg.SourceEnabled["bitfinex"] {
		pollers = append(pollers, source.NewBitfinexPoller())
	}
	if cfg.SourceEnabled["coin-gecko"] {
		pollers = append(pollers, source.NewCoinGeckoPoller())
	}
	if cfg.SourceEnabled["coin-market-cap"] {
		pollers = append(pollers, source.NewCoinMarketCapPoller(cfg.SourceAPIKeys["coin-market-cap"]))
	}
	if cfg.SourceEnabled["live-coin-watch"] {
		pollers = append(pollers, source.NewLiveCoinWatchPoller(cfg.SourceAPIKeys["live-coin-watch"]))
	}
	for i, url := range cfg.TestSources {
		pollers = append(pollers, source.NewTestSourcePoller("test-source-"+strconv.Itoa(i), url))
	}
	return pollers
}

// loadSigners loads every configured governance key file and parses
// each keypair into a security.Signer. Any load or parse failure is
// fatal at startup (spec.md section 6).
func loadSigners(cfg config.Config) []*security.Signer {
	if len(cfg.LocalKeys) == 0 {
		logrus.Fatal("no governance key files configured (LOCAL_KEYS)")
	}
	loaded, err := keys.LocalFileSource{Paths: cfg.LocalKeys}.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load governance keys")
	}
	signers := make([]*security.Signer, 0, len(loaded))
	for _, k := range loaded {
		signer, err := security.NewSigner(k.KeyIndex, k.PrivateKey)
		if err != nil {
			logrus.WithError(err).Fatal("failed to parse governance key")
		}
		signers = append(signers, signer)
	}
	return signers
}

// percentRat parses a float64 percentage configured via the environment
// into an exact big.Rat.
func percentRat(pct float64) *big.Rat {
	r := new(big.Rat)
	r.SetFloat64(pct)
	return r
}
