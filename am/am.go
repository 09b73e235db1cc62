// Package am loads the lifecycle configuration ("I am").
package am

// Config represents the lifecycle service configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Pulse      PulseConfig      `mapstructure:"pulse" toml:"pulse"`
	Jobs       JobsConfig       `mapstructure:"jobs" toml:"jobs"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" toml:"monitoring"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PulseConfig configures the message workers and the scheduler ticker
type PulseConfig struct {
	Workers               int `mapstructure:"workers" toml:"workers"`                                 // Concurrent message workers (0 = none)
	PollIntervalMs        int `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`               // Queue poll interval per worker
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds" toml:"ticker_interval_seconds"` // Scheduler tick (0 = scheduler off)

	// Per-prison throttle applied before a message is executed. 0 = unlimited.
	PrisonRatePerSecond float64 `mapstructure:"prison_rate_per_second" toml:"prison_rate_per_second"`
	PrisonRateBurst     int     `mapstructure:"prison_rate_burst" toml:"prison_rate_burst"`
}

// JobsConfig configures the lifecycle jobs themselves
type JobsConfig struct {
	Timezone            string         `mapstructure:"timezone" toml:"timezone"`                         // Zone in which "today" is computed
	SystemActor         string         `mapstructure:"system_actor" toml:"system_actor"`                 // Recorded as deallocated/recorded by
	DispatchConcurrency int            `mapstructure:"dispatch_concurrency" toml:"dispatch_concurrency"` // Parallel message sends per dispatch
	ExpireUnmarked      bool           `mapstructure:"expire_unmarked" toml:"expire_unmarked"`           // Chain ATTENDANCE_EXPIRE after ATTENDANCE_CREATE
	Schedule            ScheduleConfig `mapstructure:"schedule" toml:"schedule"`
}

// ScheduleConfig holds the daily run time ("HH:MM", empty = not scheduled) of each
// job that starts a chain. Chained jobs (END_SUSPENSIONS, ATTENDANCE_EXPIRE) have no entry.
type ScheduleConfig struct {
	AttendanceCreate string `mapstructure:"attendance_create" toml:"attendance_create"`
	DeallocateEnding string `mapstructure:"deallocate_ending" toml:"deallocate_ending"`
	StartSuspensions string `mapstructure:"start_suspensions" toml:"start_suspensions"`
}

// MonitoringConfig configures error capture
type MonitoringConfig struct {
	SentryDSN   string  `mapstructure:"sentry_dsn" toml:"sentry_dsn"`
	Environment string  `mapstructure:"environment" toml:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" toml:"sample_rate"`
}

// DefaultSystemActor is recorded on rows the jobs change on their own.
const DefaultSystemActor = "Activities Management Service"

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
