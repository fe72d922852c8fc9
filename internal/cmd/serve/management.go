package serve

import (
	"context"
	"net"
	"net/http"

	"github.com/chirino/messaging-service/internal/config"
)

// startManagementServer serves the management routes (health, readiness,
// metrics) on their own port. Plaintext is enabled when neither mode is set.
func startManagementServer(ctx context.Context, cfg config.ListenerConfig, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	if !cfg.EnablePlainText && !cfg.EnableTLS {
		cfg.EnablePlainText = true
	}
	running, err := StartSinglePortHTTP(ctx, cfg, handler)
	if err != nil {
		return nil, nil, err
	}
	return running.Addr, running.Close, nil
}
