// Package config loads the environment-variable configuration surface
// named in spec.md section 6. Parsing itself is an external concern
// (spec.md places CLI/environment parsing out of scope), so this stays
// close to the project's existing flat Config/Load idiom rather than
// growing a layered file+flag+env system.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every recognized option from spec.md section 6.
type Config struct {
	SecretNames   []string
	AWSRegion     string
	Nodes         []string
	RPCToken      string
	LogLevel      string
	PrometheusPort int
	DatabaseURL   string

	PullInterval   time.Duration
	MaxRatesSaved  int
	UpdateInterval time.Duration

	WarnUpPercent   float64
	HaltUpPercent   float64
	WarnDownPercent float64
	HaltDownPercent float64

	SourceEnabled map[string]bool
	SourceAPIKeys map[string]string

	DryRun      bool
	TestSources []string
	LocalKeys   []string

	LockFilePath string
}

// sourceNames lists every source the daemon knows how to poll (spec.md
// design note: "Implementations: bitfinex, coin-gecko, coin-market-cap,
// live-coin-watch, test-source").
var sourceNames = []string{"bitfinex", "coin-gecko", "coin-market-cap", "live-coin-watch"}

const defaultLockFilePath = "/var/lib/concordium-eur2ccd-service/update.lockfile"

// Load builds a Config from the process environment, applying the
// defaults listed in spec.md section 6.
func Load() Config {
	cfg := Config{
		SecretNames:    splitCSV(getEnvOrDefault("SECRET_NAMES", "")),
		AWSRegion:      getEnvOrDefault("AWS_REGION", "eu-central-1"),
		Nodes:          splitCSV(getEnvOrDefault("NODE", "")),
		RPCToken:       getEnvOrDefault("RPC_TOKEN", "rpcadmin"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		PrometheusPort: getEnvInt("PROMETHEUS_PORT", 8112),
		DatabaseURL:    getEnvOrDefault("DATABASE_URL", ""),

		PullInterval:   time.Duration(getEnvInt("PULL_INTERVAL", 60)) * time.Second,
		MaxRatesSaved:  getEnvInt("MAX_RATES_SAVED", 60),
		UpdateInterval: time.Duration(getEnvInt("UPDATE_INTERVAL", 1800)) * time.Second,

		WarnUpPercent:   getEnvFloat("WARNING_INCREASE_THRESHOLD", 30),
		HaltUpPercent:   getEnvFloat("HALT_INCREASE_THRESHOLD", 100),
		WarnDownPercent: getEnvFloat("WARNING_DECREASE_THRESHOLD", 15),
		HaltDownPercent: getEnvFloat("HALT_DECREASE_THRESHOLD", 50),

		SourceEnabled: map[string]bool{
			"coin-gecko":      getEnvBool("COIN_GECKO", false),
			"live-coin-watch": getEnvBool("LIVE_COIN_WATCH", false),
			"coin-market-cap": getEnvBool("COIN_MARKET_CAP", false),
			"bitfinex":        getEnvBool("BITFINEX", false),
		},
		SourceAPIKeys: map[string]string{
			"live-coin-watch": getEnvOrDefault("LIVE_COIN_WATCH_API_KEY", ""),
			"coin-market-cap": getEnvOrDefault("COIN_MARKET_CAP_API_KEY", ""),
		},

		DryRun:      getEnvBool("DRY_RUN", false),
		TestSources: splitCSV(getEnvOrDefault("TEST_SOURCE", "")),
		LocalKeys:   splitCSV(getEnvOrDefault("LOCAL_KEYS", "")),

		LockFilePath: getEnvOrDefault("LOCKFILE_PATH", defaultLockFilePath),
	}
	return cfg
}

// EnabledSources returns the identifiers of every source that should be
// polled: the explicitly enabled named sources plus one test-source per
// configured URL.
func (c Config) EnabledSources() []string {
	out := make([]string, 0, len(sourceNames)+len(c.TestSources))
	for _, name := range sourceNames {
		if c.SourceEnabled[name] {
			out = append(out, name)
		}
	}
	for i := range c.TestSources {
		out = append(out, "test-source-"+strconv.Itoa(i))
	}
	return out
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
