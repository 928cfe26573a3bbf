package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by CVRF_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("CVRF_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// InsightThreshold is the minimum absolute divergence of a factor's
// decision-weighted contribution between episodes for an insight to be
// extracted. Defaults to 0.10.
func InsightThreshold() float64 {
	v, err := strconv.ParseFloat(os.Getenv("CVRF_INSIGHT_THRESHOLD"), 64)
	if err != nil || v <= 0 {
		return 0.10
	}
	return v
}

// BeliefStep is the base belief-update step size, before scaling by learning
// rate and factor confidence. Defaults to 0.05.
func BeliefStep() float64 {
	v, err := strconv.ParseFloat(os.Getenv("CVRF_BELIEF_STEP"), 64)
	if err != nil || v <= 0 {
		return 0.05
	}
	return v
}

// CVaRConfidence is the tail level for the within-episode CVaR check.
// Defaults to 0.95.
func CVaRConfidence() float64 {
	v, err := strconv.ParseFloat(os.Getenv("CVRF_CVAR_CONFIDENCE"), 64)
	if err != nil || v <= 0 || v >= 1 {
		return 0.95
	}
	return v
}

// CVaRWindow is how many recent returns feed the within-episode check.
// Defaults to 20.
func CVaRWindow() int {
	v, err := strconv.Atoi(os.Getenv("CVRF_CVAR_WINDOW"))
	if err != nil || v <= 0 {
		return 20
	}
	return v
}

// StorageTimeout bounds each storage call. Defaults to 5s.
func StorageTimeout() time.Duration {
	d, err := time.ParseDuration(os.Getenv("CVRF_STORAGE_TIMEOUT"))
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ReadRetries is the retry budget for idempotent storage reads.
// Defaults to 3.
func ReadRetries() int {
	v, err := strconv.Atoi(os.Getenv("CVRF_READ_RETRIES"))
	if err != nil || v < 0 {
		return 3
	}
	return v
}

// PrecedentThreshold is the cosine-similarity threshold for
// similar-episode precedent lookup. Defaults to 0.7.
func PrecedentThreshold() float32 {
	v, err := strconv.ParseFloat(os.Getenv("CVRF_PRECEDENT_THRESHOLD"), 32)
	if err != nil || v <= 0 || v > 1 {
		return 0.7
	}
	return float32(v)
}
