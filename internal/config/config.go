package config

// Config holds all application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	State       StateConfig       `mapstructure:"state"`
	Server      ServerConfig      `mapstructure:"server"`
	Models      ModelsConfig      `mapstructure:"models"`
	Lookup      LookupConfig      `mapstructure:"lookup"`
	Checkpoints CheckpointsConfig `mapstructure:"checkpoints"`
	Costs       CostsConfig       `mapstructure:"costs"`
	Notify      NotifyConfig      `mapstructure:"notify"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// StateConfig configures order persistence.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the ops HTTP surface.
type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}

// ModelsConfig configures the model vendor backends.
type ModelsConfig struct {
	OpenAI    BackendConfig `mapstructure:"openai"`
	Anthropic BackendConfig `mapstructure:"anthropic"`
}

// BackendConfig configures one model vendor.
type BackendConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// LookupConfig configures the citation lookup chain.
type LookupConfig struct {
	// MonthlyCeiling caps metered vendor lookups per calendar month.
	// Zero disables the metered tier entirely.
	MonthlyCeiling int `mapstructure:"monthly_ceiling"`
}

// CheckpointsConfig configures the background checkpoint loops.
type CheckpointsConfig struct {
	EscalatorInterval string `mapstructure:"escalator_interval"`
	SweepInterval     string `mapstructure:"sweep_interval"`
}

// CostsConfig configures cost limits and alerts.
type CostsConfig struct {
	MaxPerOrder    float64 `mapstructure:"max_per_order"`
	AlertThreshold float64 `mapstructure:"alert_threshold"`
}

// NotifyConfig configures outbound client notifications.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	QueueSize  int    `mapstructure:"queue_size"`
}
