package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/cmd/lifecycle/commands"
	"github.com/prisonops/lifecycle/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Activities lifecycle jobs: suspensions, deallocations and attendances",
	Long: `lifecycle - scheduled lifecycle processing for prison activities.

Every job fans out one message per rolled-out prison, counts the prisons
that report back and starts its follow-on job when the last one finishes.

Available commands:
  am       - Show the lifecycle configuration ("I am")
  db       - Migrate and inspect the database
  pulse    - Run the message workers and the daily scheduler
  job      - Start and inspect lifecycle jobs
  rollout  - Manage which prisons are live
  schedule - Manage daily run times
  prisoner - Suspend or reactivate a prisoner's allocations
  events   - List published domain events

Examples:
  lifecycle pulse start                    # Run workers and scheduler
  lifecycle job run START_SUSPENSIONS      # Start a job now
  lifecycle job ls --type ATTENDANCE_CREATE
  lifecycle rollout set MDI --activities --live`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Keep machine-readable output clean
		if cmd.Name() == "show" && cmd.Parent() != nil && cmd.Parent().Name() == "am" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeFromEnv(verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default: cascade of /etc, ~/.lifecycle and ./lifecycle.toml)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.EventsCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.PrisonerCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.RolloutCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
