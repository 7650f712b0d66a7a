package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	RefreshConfig
}

type EnvConfig interface {
	GetURL() string
	GetStorageKey() string
	GetAPIKey() string
	GetHeaders() map[string]string
	GetFlowType() string
	GetAutoRefreshToken() bool
	GetPersistSession() bool
	GetDetectSessionInURL() bool
	GetDebug() bool
	GetStoragePath() string
	GetPostgresDSN() string
	GetStorageSecret() string
}

// Settings is the concrete configuration. Fields can be overridden after New
// or Load, which is how tests shorten the refresh timings.
type Settings struct {
	EnvVars
	Refresh
}

var _ Config = Settings{}

// New returns the default configuration without reading the environment.
func New() Settings {
	return Settings{
		EnvVars: EnvVars{
			URL:                defaultURL,
			StorageKey:         defaultStorageKey,
			FlowType:           "implicit",
			AutoRefreshToken:   true,
			PersistSession:     true,
			DetectSessionInURL: true,
			StoragePath:        "./data/auth.db",
		},
	}
}

// Load reads the GOTRUE_* environment variables on top of the defaults.
func Load() (Settings, error) {
	s := New()
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("[config.Load] parse env: %w", err)
	}
	return s, nil
}
