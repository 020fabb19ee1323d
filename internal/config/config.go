// Package config loads server settings: IFCOINS_* environment variables first, then command-line
// flags, which win.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/and161185/ifcoins/internal/repository"
)

// Server is the complete server configuration.
type Server struct {
	GRPCAddr  string        `env:"IFCOINS_GRPC_ADDR" envDefault:":8443"`
	HTTPAddr  string        `env:"IFCOINS_HTTP_ADDR" envDefault:":8080"` // empty disables the gateway
	DSN       string        `env:"IFCOINS_DSN"`                          // empty selects the in-memory ledger
	RedisAddr string        `env:"IFCOINS_REDIS_ADDR"`                   // empty disables cache and rate limits
	JWTKey    string        `env:"IFCOINS_JWT_KEY"`
	AccessTTL time.Duration `env:"IFCOINS_ACCESS_TTL" envDefault:"15m"`
	TLSCert   string        `env:"IFCOINS_TLS_CERT"`
	TLSKey    string        `env:"IFCOINS_TLS_KEY"`

	RetryAttempts int           `env:"IFCOINS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryBase     time.Duration `env:"IFCOINS_RETRY_BASE" envDefault:"5ms"`
	PackSize      int           `env:"IFCOINS_PACK_SIZE" envDefault:"3"`
	CatalogTTL    time.Duration `env:"IFCOINS_CATALOG_TTL" envDefault:"1m"`

	RateLimit  int           `env:"IFCOINS_RATE_LIMIT" envDefault:"30"`
	RateWindow time.Duration `env:"IFCOINS_RATE_WINDOW" envDefault:"1m"`

	AdminID    string   `env:"IFCOINS_ADMIN_ID"` // bootstrap admin account, created if missing
	AdminName  string   `env:"IFCOINS_ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail string   `env:"IFCOINS_ADMIN_EMAIL"`
	Origins    []string `env:"IFCOINS_CORS_ORIGINS" envSeparator:","`

	OTelEndpoint string `env:"IFCOINS_OTEL_ENDPOINT"`
	Dev          bool   `env:"IFCOINS_DEV"`
}

// Retry returns the ledger retry policy.
func (c Server) Retry() repository.RetryPolicy {
	return repository.RetryPolicy{Attempts: c.RetryAttempts, Base: c.RetryBase}
}

// Validate reports settings the server cannot start with.
func (c Server) Validate() error {
	var problems []error
	if c.JWTKey == "" {
		problems = append(problems, errors.New("missing jwt signing key (IFCOINS_JWT_KEY or -jwt-key)"))
	}
	if c.GRPCAddr == "" {
		problems = append(problems, errors.New("empty grpc address"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		problems = append(problems, errors.New("tls cert and key must be set together"))
	}
	if c.RetryAttempts < 1 {
		problems = append(problems, fmt.Errorf("retry attempts %d < 1", c.RetryAttempts))
	}
	if c.PackSize < 1 {
		problems = append(problems, fmt.Errorf("pack size %d < 1", c.PackSize))
	}
	if c.RateLimit < 1 {
		problems = append(problems, fmt.Errorf("rate limit %d < 1", c.RateLimit))
	}
	return errors.Join(problems...)
}

// Load parses the environment, then args (without the program name).
func Load(args []string) (Server, error) {
	var c Server
	if err := env.Parse(&c); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("ifcoins-server", flag.ContinueOnError)
	fs.StringVar(&c.GRPCAddr, "addr", c.GRPCAddr, "gRPC listen address")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP gateway listen address (empty disables)")
	fs.StringVar(&c.DSN, "dsn", c.DSN, "PostgreSQL DSN (empty = in-memory ledger)")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address for catalog cache and rate limits")
	fs.StringVar(&c.JWTKey, "jwt-key", c.JWTKey, "HS256 signing key (required)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token TTL")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "TLS private key (PEM)")
	fs.IntVar(&c.RetryAttempts, "retry-attempts", c.RetryAttempts, "ledger transaction attempts")
	fs.DurationVar(&c.RetryBase, "retry-base", c.RetryBase, "first retry backoff")
	fs.IntVar(&c.PackSize, "pack-size", c.PackSize, "cards per pack")
	fs.DurationVar(&c.CatalogTTL, "catalog-ttl", c.CatalogTTL, "catalog cache TTL")
	fs.IntVar(&c.RateLimit, "rate-limit", c.RateLimit, "mutating calls per window and caller")
	fs.DurationVar(&c.RateWindow, "rate-window", c.RateWindow, "rate limit window")
	fs.StringVar(&c.AdminID, "admin-id", c.AdminID, "bootstrap admin account id")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP trace endpoint (empty disables)")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "development logging and gin debug mode")
	origins := fs.String("cors-origins", strings.Join(c.Origins, ","), "comma-separated CORS origins")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}
	c.Origins = splitList(*origins)
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
