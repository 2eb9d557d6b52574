package models

// PumpConfig bounds the memory and behavior of streaming transfers.
type PumpConfig struct {
	// ChunkSize is the high-water mark: the largest unit of bytes moved
	// per transfer step. Defaults to 64 KiB.
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitzero"`
	// SpoolDir is the directory file sources are read from and file
	// sinks are written to.
	SpoolDir string `yaml:"spool_dir" json:"spool_dir"`
	// HTTPTimeoutMs bounds remote source downloads end to end.
	HTTPTimeoutMs int `yaml:"http_timeout_ms,omitempty" json:"http_timeout_ms,omitzero"`
}

// WorkerConfig sizes the transfer worker pool.
type WorkerConfig struct {
	PoolSize  int `yaml:"pool_size,omitempty" json:"pool_size,omitzero"`
	QueueSize int `yaml:"queue_size,omitempty" json:"queue_size,omitzero"`
}

// RedisConfig configures the live status mirror and circuit breakers.
type RedisConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitzero"`
}

// AuthConfig configures inbound request authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// APIKeys are static bearer keys accepted as-is.
	APIKeys []string `yaml:"api_keys,omitempty" json:"-"`
	// JWTSecret, when set, additionally accepts HS256 tokens signed with it.
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"-"`
}

// CircuitBreakerConfig tunes the per-host breaker guarding remote sources.
type CircuitBreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitzero"`
	SuccessThreshold int `yaml:"success_threshold,omitempty" json:"success_threshold,omitzero"`
	TimeoutMs        int `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitzero"`
	ResetAfterMs     int `yaml:"reset_after_ms,omitempty" json:"reset_after_ms,omitzero"`
}
