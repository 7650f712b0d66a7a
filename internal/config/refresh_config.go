package config

import "time"

type RefreshConfig interface {
	GetAutoRefreshTickDuration() time.Duration
	GetAutoRefreshTickThreshold() int
	GetExpiryMargin() time.Duration
	GetRefreshRetryStep() time.Duration
}

// Refresh holds the auto refresh timings. Zero values fall back to the defaults.
type Refresh struct {
	TickDuration  time.Duration `env:"GOTRUE_REFRESH_TICK"`
	TickThreshold int           `env:"GOTRUE_REFRESH_TICK_THRESHOLD"`
	ExpiryMargin  time.Duration `env:"GOTRUE_EXPIRY_MARGIN"`
	RetryStep     time.Duration `env:"GOTRUE_REFRESH_RETRY_STEP"`
}

var _ RefreshConfig = Refresh{}

// GetAutoRefreshTickDuration is how often the current session is checked for refresh.
func (r Refresh) GetAutoRefreshTickDuration() time.Duration {
	if r.TickDuration <= 0 {
		return 30 * time.Second
	}
	return r.TickDuration
}

// GetAutoRefreshTickThreshold is how many ticks before expiry a refresh is attempted.
func (r Refresh) GetAutoRefreshTickThreshold() int {
	if r.TickThreshold <= 0 {
		return 3
	}
	return r.TickThreshold
}

// GetExpiryMargin is used when recovering a stored session: sessions expiring
// within the margin are refreshed instead of reused.
func (r Refresh) GetExpiryMargin() time.Duration {
	if r.ExpiryMargin <= 0 {
		return 10 * time.Second
	}
	return r.ExpiryMargin
}

// GetRefreshRetryStep is the linear backoff step between refresh attempts.
func (r Refresh) GetRefreshRetryStep() time.Duration {
	if r.RetryStep <= 0 {
		return 200 * time.Millisecond
	}
	return r.RetryStep
}
