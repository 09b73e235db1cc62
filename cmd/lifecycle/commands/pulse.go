package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/app"
	"github.com/prisonops/lifecycle/logger"
	"github.com/prisonops/lifecycle/pulse/async"
	"github.com/prisonops/lifecycle/sym"
)

// PulseCmd represents the pulse command - message workers and scheduler
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the message workers and the daily scheduler",
	Long: sym.Pulse + ` Pulse daemon - runs lifecycle jobs.

The Pulse daemon provides:
- Worker pool processing one message per prison per job
- Daily scheduler starting START_SUSPENSIONS, DEALLOCATE_ENDING and ATTENDANCE_CREATE
- GRACE shutdown (running messages finish before exit)

Example:
  lifecycle pulse start              # Start daemon in foreground
  lifecycle pulse start --workers 4  # Start with 4 concurrent workers
  lifecycle pulse ls --status failed # Show failed messages`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the Pulse daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse daemon",
	Long: `Start the Pulse daemon in foreground mode.

The daemon will:
- Re-queue messages left running by an interrupted run
- Seed the schedule from the configured run times
- Start the worker pool and the scheduler ticker
- Run until interrupted (Ctrl+C) with GRACE shutdown`,
	RunE: runPulseStart,
}

var pulseLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent messages, newest first",
	RunE:  runPulseLs,
}

func init() {
	pulseLsCmd.Flags().String("status", "", "Only messages in this status: queued, running, completed, failed")
	pulseLsCmd.Flags().Int("limit", 50, "Number of messages to show (0 = all)")
	addOutputFlag(pulseLsCmd)
	PulseCmd.AddCommand(pulseLsCmd)

	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (default from config)")
	PulseStartCmd.Flags().Bool("no-scheduler", false, "Process messages only; do not start scheduled jobs")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pulse.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if noScheduler, _ := cmd.Flags().GetBool("no-scheduler"); noScheduler {
		cfg.Pulse.TickerIntervalSeconds = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Open(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	printStartupBanner(verbosity, cfg)

	if err := a.Start(ctx); err != nil {
		a.Close()
		return err
	}

	fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Pulse)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\n%s Initiating GRACE shutdown...\n", sym.PulseClose)

	// Scheduler first, then workers, then flush and close
	if err := a.Close(); err != nil {
		return err
	}

	fmt.Printf("%s Pulse daemon stopped\n", sym.Pulse)
	return nil
}

func runPulseLs(cmd *cobra.Command, args []string) error {
	var filter *async.MessageStatus
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		if !async.IsValidStatus(s) {
			return fmt.Errorf("unknown message status %q", s)
		}
		status := async.MessageStatus(s)
		filter = &status
	}
	limit, _ := cmd.Flags().GetInt("limit")

	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	messages, err := async.NewQueue(database).ListMessages(cmd.Context(), filter, limit)
	if err != nil {
		return err
	}
	return render(cmd, messages, func() pterm.TableData {
		data := pterm.TableData{{"ID", "Job type", "Prison", "Status", "Retries", "Created", "Error"}}
		for _, m := range messages {
			data = append(data, []string{
				m.ID[:8], m.HandlerName, m.PrisonCode, string(m.Status),
				itoa(int64(m.RetryCount)), formatTime(&m.CreatedAt), m.Error,
			})
		}
		return data
	})
}
