package config

const (
	defaultURL        = "http://localhost:9999"
	defaultStorageKey = "supabase.auth.token"
)

type EnvVars struct {
	URL                string            `env:"GOTRUE_URL"`
	StorageKey         string            `env:"GOTRUE_STORAGE_KEY"`
	APIKey             string            `env:"GOTRUE_API_KEY"`
	Headers            map[string]string `env:"GOTRUE_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	FlowType           string            `env:"GOTRUE_FLOW_TYPE"`
	AutoRefreshToken   bool              `env:"GOTRUE_AUTO_REFRESH"`
	PersistSession     bool              `env:"GOTRUE_PERSIST_SESSION"`
	DetectSessionInURL bool              `env:"GOTRUE_DETECT_SESSION_IN_URL"`
	Debug              bool              `env:"GOTRUE_DEBUG"`
	StoragePath        string            `env:"GOTRUE_STORAGE_PATH"`
	PostgresDSN        string            `env:"GOTRUE_POSTGRES_DSN"`
	StorageSecret      string            `env:"GOTRUE_STORAGE_SECRET"`
}

var _ EnvConfig = EnvVars{}

// GetURL returns the base URL of the auth backend (e.g., "https://project.example.com/auth/v1")
func (e EnvVars) GetURL() string {
	if e.URL == "" {
		return defaultURL
	}
	return e.URL
}

// GetStorageKey returns the key the session is persisted under. The PKCE
// verifier and the broadcast channel name derive from it.
func (e EnvVars) GetStorageKey() string {
	if e.StorageKey == "" {
		return defaultStorageKey
	}
	return e.StorageKey
}

func (e EnvVars) GetAPIKey() string {
	return e.APIKey
}

func (e EnvVars) GetHeaders() map[string]string {
	return e.Headers
}

func (e EnvVars) GetFlowType() string {
	if e.FlowType == "" {
		return "implicit"
	}
	return e.FlowType
}

func (e EnvVars) GetAutoRefreshToken() bool {
	return e.AutoRefreshToken
}

func (e EnvVars) GetPersistSession() bool {
	return e.PersistSession
}

func (e EnvVars) GetDetectSessionInURL() bool {
	return e.DetectSessionInURL
}

func (e EnvVars) GetDebug() bool {
	return e.Debug
}

func (e EnvVars) GetStoragePath() string {
	return e.StoragePath
}

func (e EnvVars) GetPostgresDSN() string {
	return e.PostgresDSN
}

func (e EnvVars) GetStorageSecret() string {
	return e.StorageSecret
}
