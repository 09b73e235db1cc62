package commands

import (
	"fmt"
	"time"

	"github.com/prisonops/lifecycle/am"
	"github.com/prisonops/lifecycle/logger"
	"github.com/prisonops/lifecycle/sym"
	"github.com/prisonops/lifecycle/version"
)

// printStartupBanner prints the daemon's settings before it starts
func printStartupBanner(verbosity int, cfg *am.Config) {
	green := "\033[32m"
	cyan := "\033[36m"
	bold := "\033[1m"
	reset := "\033[0m"

	info := version.Get()

	fmt.Printf("\n%s%s%s lifecycle pulse%s\n\n", cyan, bold, sym.Pulse, reset)
	fmt.Printf("%s%s┌─ Lifecycle ─────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Version:    %s (commit %s)\n", green, reset, info.Version, info.Short())
	fmt.Printf("%s│%s Verbosity:  %s\n", green, reset, logger.LevelName(verbosity))
	fmt.Printf("%s│%s Database:   %s\n", green, reset, cfg.Database.Path)
	fmt.Printf("%s│%s Workers:    %d (poll %v)\n", green, reset, cfg.Pulse.Workers, cfg.PollInterval())
	fmt.Printf("%s│%s Zone:       %s\n", green, reset, cfg.Location())
	if cfg.Pulse.TickerIntervalSeconds > 0 {
		fmt.Printf("%s│%s Scheduler:  every %v\n", green, reset, time.Duration(cfg.Pulse.TickerIntervalSeconds)*time.Second)
	} else {
		fmt.Printf("%s│%s Scheduler:  off\n", green, reset)
	}
	if cfg.Pulse.PrisonRatePerSecond > 0 {
		fmt.Printf("%s│%s Per prison: %.2f msg/s (burst %d)\n", green, reset, cfg.Pulse.PrisonRatePerSecond, cfg.Pulse.PrisonRateBurst)
	}
	if cfg.Monitoring.SentryDSN != "" {
		fmt.Printf("%s│%s Monitoring: sentry (%s)\n", green, reset, cfg.Monitoring.Environment)
	}
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)
}
