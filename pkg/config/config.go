// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	AdsAddr     string // ads-service
	OrganicAddr string // organic-service

	// Graph API target (overridable for tests / mock upstreams)
	GraphBaseURL string
	GraphVersion string

	// Inbound auth (tenant-specific values override via provider)
	Issuer   string
	Audience string
	JWKSURL  string
	AuthSkew time.Duration

	// Vault
	SecretKey        string // encryption key material for stored credentials
	SecretValidity   time.Duration
	VaultWriteScopes []string // token scopes allowed to rotate secrets; empty allows all

	// Pipeline
	DefaultLinkURL string
	UploadWorkers  int
	RetryAttempts  int
	RetryDelay     time.Duration
	PollAttempts   int
	PollInterval   time.Duration

	// Media URL normalization
	PublicBaseURL string
	NgrokBaseURL  string

	// Redis & Postgres
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:              env("STAIRWAY_ENV", "dev"),
		AdsAddr:          env("STAIRWAY_ADS_ADDR", ":8080"),
		OrganicAddr:      env("STAIRWAY_ORGANIC_ADDR", ":8081"),
		GraphBaseURL:     env("GRAPH_BASE_URL", "https://graph.facebook.com"),
		GraphVersion:     env("GRAPH_API_VERSION", "v17.0"),
		Issuer:           env("OIDC_ISSUER", ""),
		Audience:         env("OIDC_AUDIENCE", "stairway-api"),
		JWKSURL:          env("JWKS_URL", ""),
		AuthSkew:         envDur("AUTH_CLOCK_SKEW_SEC", 60) * time.Second,
		SecretKey:        env("TOKEN_ENCRYPTION_KEY", ""),
		SecretValidity:   envDur("TOKEN_VALIDITY_DAYS", 58) * 24 * time.Hour,
		VaultWriteScopes: strings.Fields(env("VAULT_WRITE_SCOPES", "")),
		DefaultLinkURL:   env("DEFAULT_AD_LINK_URL", "https://www.instagram.com/"),
		UploadWorkers:    envInt("UPLOAD_WORKERS", 4),
		RetryAttempts:    envInt("SUBMIT_RETRY_ATTEMPTS", 5),
		RetryDelay:       envDur("SUBMIT_RETRY_DELAY_SEC", 4) * time.Second,
		PollAttempts:     envInt("POLL_MAX_ATTEMPTS", 20),
		PollInterval:     envDur("POLL_INTERVAL_SEC", 5) * time.Second,
		PublicBaseURL:    env("PUBLIC_BASE_URL", ""),
		NgrokBaseURL:     env("NGROK_BASE_URL", ""),
		RedisURL:         env("REDIS_URL", ""),
		DatabaseURL:      env("DATABASE_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set, using in-memory vault/tenant providers for dev")
	}
	if cfg.SecretKey == "" {
		log.Println("[WARN] TOKEN_ENCRYPTION_KEY not set, stored credentials will not be encrypted")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
