package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads environment variables for settings that have no
// dedicated CLI flag on the serve command.
func (c *Config) ApplyEnvOverrides() error {
	if c == nil {
		return nil
	}

	var err error
	if err = applyBoolEnv("MESSAGING_SERVICE_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err = applyDurationEnv("MESSAGING_SERVICE_CACHE_UNREAD_COUNT_TTL", &c.UnreadCountTTL); err != nil {
		return err
	}
	if err = applyDurationEnv("MESSAGING_SERVICE_CACHE_INFINISPAN_STARTUP_TIMEOUT", &c.InfinispanStartupTimeout); err != nil {
		return err
	}
	if err = applyDurationEnv("MESSAGING_SERVICE_EVICTION_INTERVAL", &c.EvictionInterval); err != nil {
		return err
	}
	if err = applyDurationEnv("MESSAGING_SERVICE_NOTIFICATION_RETENTION", &c.NotificationRetention); err != nil {
		return err
	}
	if err = applyBoolEnv("MESSAGING_SERVICE_EVICTION_DELETE_EMPTY_CONVERSATIONS", &c.EvictionDeleteEmptyConversations); err != nil {
		return err
	}
	if err = applyIntEnv("MESSAGING_SERVICE_DRAIN_TIMEOUT", &c.DrainTimeout); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("MESSAGING_SERVICE_MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid MESSAGING_SERVICE_MAX_BODY_SIZE: %w", parseErr)
		}
		c.MaxBodySize = size
	}
	if err = applyBoolEnv("MESSAGING_SERVICE_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv("MESSAGING_SERVICE_CORS_ORIGINS", &c.CORSOrigins)
	applyStringEnv("MESSAGING_SERVICE_MODE", &c.Mode)

	return c.Validate()
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

// parseDuration accepts Go durations (30s, 5m) and the ISO-8601 subset PT#H#M#S.
func parseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
