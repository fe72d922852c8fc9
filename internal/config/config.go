package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// NotificationPolicy selects who is notified when a message is created.
type NotificationPolicy string

const (
	// NotificationPolicyBroadcast notifies every participant except the sender.
	NotificationPolicyBroadcast NotificationPolicy = "broadcast"
	// NotificationPolicyDirect notifies only the message's designated receiver.
	NotificationPolicyDirect NotificationPolicy = "direct"
)

// Thread query modes for loading a message with all of its replies.
const (
	ThreadQueryAuto      = "auto"
	ThreadQueryRecursive = "recursive"
	ThreadQueryPrefetch  = "prefetch"
)

// Config holds all configuration for the messaging service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, the X-User-Email header is accepted in place of a bearer token.
	Mode string

	// Database
	DBURL string

	// Datastore backend type
	DatastoreType string // "postgres" or "sqlite"

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Redis
	RedisURL string

	// Infinispan (RESP protocol, connects via go-redis under the covers)
	InfinispanHost           string // host:port (e.g. "localhost:11222")
	InfinispanUsername       string
	InfinispanPassword       string
	InfinispanStartupTimeout time.Duration

	// Cache backend type
	CacheType string // "redis", "infinispan", "local", or "none"

	// How long a cached unread count stays valid.
	UnreadCountTTL time.Duration

	// Messaging behavior
	NotificationPolicy NotificationPolicy
	ThreadQueryMode    string

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Security
	AdminUsers           string // comma-separated emails granted admin
	AdminOIDCRole        string
	RequireJustification bool

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Eviction
	EvictionInterval                 time.Duration
	NotificationRetention            time.Duration
	EvictionDeleteEmptyConversations bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeProd,
		DatastoreType:            "postgres",
		DatastoreMigrateAtStart:  true,
		CacheType:                "none",
		InfinispanStartupTimeout: 30 * time.Second,
		UnreadCountTTL:           5 * time.Minute,
		NotificationPolicy:       NotificationPolicyBroadcast,
		ThreadQueryMode:          ThreadQueryAuto,
		MetricsLabels:            "service=messaging-service",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		AdminOIDCRole:                    "admin",
		MaxBodySize:                      1024 * 1024,
		DrainTimeout:                     30,
		DBMaxOpenConns:                   25,
		DBMaxIdleConns:                   5,
		EvictionInterval:                 time.Hour,
		NotificationRetention:            30 * 24 * time.Hour,
		EvictionDeleteEmptyConversations: true,
	}
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.NotificationPolicy {
	case NotificationPolicyBroadcast, NotificationPolicyDirect:
	default:
		return fmt.Errorf("invalid notification policy %q; valid: broadcast|direct", c.NotificationPolicy)
	}
	switch c.ThreadQueryMode {
	case ThreadQueryAuto, ThreadQueryRecursive, ThreadQueryPrefetch:
	default:
		return fmt.Errorf("invalid thread query mode %q; valid: auto|recursive|prefetch", c.ThreadQueryMode)
	}
	switch c.Mode {
	case ModeProd, ModeTesting:
	default:
		return fmt.Errorf("invalid mode %q; valid: prod|testing", c.Mode)
	}
	return nil
}

// AdminUserSet returns the configured admin emails, lower-cased.
func (c *Config) AdminUserSet() map[string]bool {
	result := map[string]bool{}
	if c == nil {
		return result
	}
	for _, part := range strings.Split(c.AdminUsers, ",") {
		v := strings.ToLower(strings.TrimSpace(part))
		if v != "" {
			result[v] = true
		}
	}
	return result
}
