package remote

import (
	"fmt"

	"github.com/xtravels/backend/internal/infrastructure/config"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Source is a remote querier holding connections that must be released
type Source interface {
	store.Querier
	Close() error
}

// NewSource opens the source selected by federation.remote_mode
func NewSource(cfg config.FederationConfig, registry *schema.Registry, logger *zap.Logger) (Source, error) {
	switch cfg.RemoteMode {
	case config.RemoteModeHTTP, "":
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("federation.remote_url is required in %s mode", config.RemoteModeHTTP)
		}
		logger.Info("using HTTP remote source", zap.String("url", cfg.RemoteURL))
		return NewHTTPSource(cfg.RemoteURL, WithSourceLogger(logger)), nil
	case config.RemoteModeDatabase:
		src, err := OpenDatabaseSource(&cfg.RemoteDatabase, registry)
		if err != nil {
			return nil, err
		}
		logger.Info("using database remote source",
			zap.String("driver", cfg.RemoteDatabase.Driver),
			zap.String("database", cfg.RemoteDatabase.DBName),
		)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown federation.remote_mode %q", cfg.RemoteMode)
	}
}

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*DatabaseSource)(nil)
)
