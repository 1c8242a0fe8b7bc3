// Package config reads process configuration from the environment so main
// stays lean. Zero values fall back to development defaults; production
// deployments override them explicitly.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Server  Server
	Redis   Redis
	Ledger  Ledger
	Consent Consent
	Pool    Pool
	// DataRoot is where model artifacts are written. Empty disables
	// artifact persistence.
	DataRoot string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

// Redis configures the consent cache connection. An empty URL disables the
// cache and every consent check goes straight to the oracle.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Ledger configures audit persistence. With neither Dir nor PostgresDSN set
// the ledger lives in memory, which is only acceptable in development.
type Ledger struct {
	Dir         string
	PostgresDSN string
	SegmentSize int
}

// Consent bounds the oracle lookup on the inference hot path.
type Consent struct {
	LookupTimeout time.Duration
}

// Pool bounds concurrent engine invocations; zero means NumCPU.
type Pool struct {
	Workers int
}

// FromEnv builds the configuration from DELTA_* environment variables.
func FromEnv() Config {
	addr := os.Getenv("DELTA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("DELTA_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:          addr,
			JWTSigningKey: jwtSigningKey,
			JWTIssuer:     envOr("DELTA_JWT_ISSUER", "deltagate"),
			JWTAudience:   envOr("DELTA_JWT_AUDIENCE", "deltagate-api"),
		},
		Redis: Redis{
			URL:          os.Getenv("DELTA_REDIS_URL"),
			PoolSize:     envInt("DELTA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("DELTA_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("DELTA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("DELTA_REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: envDuration("DELTA_REDIS_WRITE_TIMEOUT", time.Second),
		},
		Ledger: Ledger{
			Dir:         os.Getenv("DELTA_LEDGER_DIR"),
			PostgresDSN: os.Getenv("DELTA_LEDGER_POSTGRES_DSN"),
			SegmentSize: envInt("DELTA_LEDGER_SEGMENT_SIZE", 0),
		},
		Consent: Consent{
			LookupTimeout: envDuration("DELTA_CONSENT_TIMEOUT", 2*time.Second),
		},
		Pool: Pool{
			Workers: envInt("DELTA_POOL_WORKERS", 0),
		},
		DataRoot: os.Getenv("DELTA_DATA_ROOT"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
