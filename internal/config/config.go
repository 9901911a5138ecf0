package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"required,gt=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"required,gt=0"`
}

// QueueConfig contains queue runtime settings. Concurrency ceilings are
// per queue; the discord queue is pinned to 1 worker and is deliberately
// not configurable (concurrent role mutation against one remote session
// can read stale role state and silently no-op).
type QueueConfig struct {
	BufferSize           int `mapstructure:"buffer_size"            validate:"required,gt=0"`
	ProvisionConcurrency int `mapstructure:"provision_concurrency"  validate:"required,gt=0,lte=4"`
	NotifyConcurrency    int `mapstructure:"notify_concurrency"     validate:"required,gt=0"`
	SyncConcurrency      int `mapstructure:"sync_concurrency"       validate:"required,gt=0"`
	StalledAfterMinutes  int `mapstructure:"stalled_after_minutes"  validate:"required,gt=0"`
	RetentionHours       int `mapstructure:"retention_hours"        validate:"required,gt=0"`
}

// TaskConfig contains settings for the task reconciler.
type TaskConfig struct {
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes" validate:"required,gt=0"`
	StaleTaskAgeMinutes      int `mapstructure:"stale_task_age_minutes"     validate:"required,gt=0"`
}
