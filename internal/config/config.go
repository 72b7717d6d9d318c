package config

import (
	"fmt"
	"os"
	"time"
)

// DefaultRemitWallet is the address users are told to remit fees to when no
// override is configured.
const DefaultRemitWallet = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"

// DefaultRemitNetwork is the settlement network shown alongside the remit wallet.
const DefaultRemitNetwork = "USDT-TRC20"

type Config struct {
	DatabaseURL   string // RECOVERY_DATABASE_URL (required)
	HTTPAddr      string // RECOVERY_HTTP_ADDR (default ":8080")
	NATSURL       string // RECOVERY_NATS_URL (optional, empty = no push channel)
	SessionSecret string // RECOVERY_SESSION_SECRET (required; HMAC key shared with the identity provider)
	OperatorToken string // RECOVERY_OPERATOR_TOKEN (optional, empty = operator endpoints disabled)

	SessionTTL   time.Duration // RECOVERY_SESSION_TTL (default 12h; token lifetime)
	StepDeadline time.Duration // RECOVERY_STEP_DEADLINE (default 8h; per-step countdown)

	RemitWallet  string // RECOVERY_REMIT_WALLET (default DefaultRemitWallet)
	RemitNetwork string // RECOVERY_REMIT_NETWORK (default DefaultRemitNetwork)

	// Snapshot export settings
	SyncInterval   time.Duration // RECOVERY_SYNC_INTERVAL (default 10m; 0 = disabled)
	SyncS3Bucket   string        // RECOVERY_SYNC_S3_BUCKET (enables S3 export when set)
	SyncS3Endpoint string        // RECOVERY_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // RECOVERY_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // RECOVERY_SYNC_S3_KEY (default "recovery/progress.jsonl")
	SyncGitRepo    string        // RECOVERY_SYNC_GIT_REPO (enables git export when set; path to a local clone)
	SyncGitFile    string        // RECOVERY_SYNC_GIT_FILE (default "progress.jsonl")
	SyncGitBranch  string        // RECOVERY_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("RECOVERY_DATABASE_URL"),
		HTTPAddr:       envOrDefault("RECOVERY_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("RECOVERY_NATS_URL"),
		SessionSecret:  os.Getenv("RECOVERY_SESSION_SECRET"),
		OperatorToken:  os.Getenv("RECOVERY_OPERATOR_TOKEN"),
		RemitWallet:    envOrDefault("RECOVERY_REMIT_WALLET", DefaultRemitWallet),
		RemitNetwork:   envOrDefault("RECOVERY_REMIT_NETWORK", DefaultRemitNetwork),
		SyncS3Bucket:   os.Getenv("RECOVERY_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("RECOVERY_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("RECOVERY_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("RECOVERY_SYNC_S3_KEY", "recovery/progress.jsonl"),
		SyncGitRepo:    os.Getenv("RECOVERY_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("RECOVERY_SYNC_GIT_FILE", "progress.jsonl"),
		SyncGitBranch:  envOrDefault("RECOVERY_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("RECOVERY_DATABASE_URL is required")
	}
	if c.SessionSecret == "" {
		return nil, fmt.Errorf("RECOVERY_SESSION_SECRET is required")
	}

	var err error
	if c.SessionTTL, err = envDuration("RECOVERY_SESSION_TTL", 12*time.Hour); err != nil {
		return nil, err
	}
	if c.StepDeadline, err = envDuration("RECOVERY_STEP_DEADLINE", 8*time.Hour); err != nil {
		return nil, err
	}
	if c.SyncInterval, err = envDuration("RECOVERY_SYNC_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
