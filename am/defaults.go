package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "lifecycle.db")

	v.SetDefault("pulse.workers", 2)
	v.SetDefault("pulse.poll_interval_ms", 1000)
	v.SetDefault("pulse.ticker_interval_seconds", 30)
	v.SetDefault("pulse.prison_rate_per_second", 0.0)
	v.SetDefault("pulse.prison_rate_burst", 1)

	v.SetDefault("jobs.timezone", "Europe/London")
	v.SetDefault("jobs.system_actor", DefaultSystemActor)
	v.SetDefault("jobs.dispatch_concurrency", 4)
	v.SetDefault("jobs.expire_unmarked", true)
	v.SetDefault("jobs.schedule.attendance_create", "02:00")
	v.SetDefault("jobs.schedule.deallocate_ending", "00:30")
	v.SetDefault("jobs.schedule.start_suspensions", "00:05")

	v.SetDefault("monitoring.environment", "dev")
	v.SetDefault("monitoring.sample_rate", 1.0)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("monitoring.sentry_dsn", "SENTRY_DSN", "LIFECYCLE_MONITORING_SENTRY_DSN")
}
