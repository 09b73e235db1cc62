package am

import (
	"time"

	"github.com/prisonops/lifecycle/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.PollIntervalMs < 0 {
		return errors.Newf("pulse.poll_interval_ms must be >= 0, got %d", c.Pulse.PollIntervalMs)
	}
	// Ticker interval: 0 = scheduler off
	if c.Pulse.TickerIntervalSeconds < 0 {
		return errors.Newf("pulse.ticker_interval_seconds must be >= 0, got %d", c.Pulse.TickerIntervalSeconds)
	}
	if c.Pulse.PrisonRatePerSecond < 0 {
		return errors.Newf("pulse.prison_rate_per_second must be >= 0, got %f", c.Pulse.PrisonRatePerSecond)
	}

	if c.Jobs.Timezone != "" {
		if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
			return errors.Wrapf(err, "jobs.timezone %q is not a known zone", c.Jobs.Timezone)
		}
	}
	if c.Jobs.DispatchConcurrency < 0 {
		return errors.Newf("jobs.dispatch_concurrency must be >= 0, got %d", c.Jobs.DispatchConcurrency)
	}

	for key, value := range map[string]string{
		"jobs.schedule.attendance_create": c.Jobs.Schedule.AttendanceCreate,
		"jobs.schedule.deallocate_ending": c.Jobs.Schedule.DeallocateEnding,
		"jobs.schedule.start_suspensions": c.Jobs.Schedule.StartSuspensions,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("15:04", value); err != nil {
			return errors.Newf("%s must be HH:MM, got %q", key, value)
		}
	}

	if c.Monitoring.SampleRate < 0 || c.Monitoring.SampleRate > 1 {
		return errors.Newf("monitoring.sample_rate must be within [0, 1], got %f", c.Monitoring.SampleRate)
	}

	return nil
}
