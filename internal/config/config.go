package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mythorath/m2p/internal/pool"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	RedisPassword  string
	FrontendOrigin string

	PollInterval   time.Duration
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
	MaxConcurrent  int

	APPerADVC      decimal.Decimal
	MinPayoutDelta decimal.Decimal

	Sources []pool.Source
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       envOr("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),

		PollInterval:   envSeconds("POLL_INTERVAL_SECONDS", 60),
		RequestTimeout: envSeconds("POOL_REQUEST_TIMEOUT_SECONDS", 10),
		DrainTimeout:   envSeconds("SHUTDOWN_DRAIN_SECONDS", 30),
		MaxConcurrent:  envInt("MAX_CONCURRENT_POLLS", 8),

		APPerADVC:      envDecimal("AP_PER_ADVC", "100"),
		MinPayoutDelta: envDecimal("MIN_PAYOUT_DELTA", "0.0001"),
	}

	cfg.Sources = loadSources()

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

// loadSources builds the static pool configuration. Changing these env vars
// takes effect on restart; the engine re-reads nothing mid-flight.
func loadSources() []pool.Source {
	one := decimal.New(1, 0)
	return []pool.Source{
		{
			Name:             "cpu-pool",
			EndpointTemplate: envOr("CPU_POOL_URL", "http://cpu-pool.com/api/worker_stats?address=%s"),
			Enabled:          envBool("CPU_POOL_ENABLED", true),
			Shape:            pool.ShapeFlat,
			ConversionFactor: one,
		},
		{
			Name:             "rplant",
			EndpointTemplate: envOr("RPLANT_URL", "https://pool.rplant.xyz/api/walletEx/advc/%s"),
			Enabled:          envBool("RPLANT_ENABLED", true),
			Shape:            pool.ShapeNested,
			ConversionFactor: one,
		},
		{
			Name:             "zpool",
			EndpointTemplate: envOr("ZPOOL_URL", "https://zpool.ca/api/walletEx?address=%s"),
			Enabled:          envBool("ZPOOL_ENABLED", true),
			Shape:            pool.ShapeBTC,
			ConversionFactor: envDecimal("BTC_TO_ADVC_RATE", "1000000"),
		},
	}
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL", "https://app.infisical.com")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"DATABASE_URL":   &cfg.DatabaseURL,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		slog.Warn("invalid integer env var, using default", "key", key, "value", v)
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		slog.Warn("invalid boolean env var, using default", "key", key, "value", v)
	}
	return fallback
}

func envDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
		slog.Warn("invalid decimal env var, using default", "key", key, "value", v)
	}
	return decimal.RequireFromString(fallback)
}
