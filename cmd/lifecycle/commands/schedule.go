package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/pulse/schedule"
	"github.com/prisonops/lifecycle/sym"
)

// ScheduleCmd represents the schedule command
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: sym.Pulse + " Manage daily run times",
	Long: sym.Pulse + ` schedule - Manage daily run times

Run times are HH:MM in the configured zone. A job starts at most once per day,
on the first scheduler tick at or after its run time.

Examples:
  lifecycle schedule ls
  lifecycle schedule set ATTENDANCE_CREATE 02:30
  lifecycle schedule set DEALLOCATE_ENDING 00:30 --disabled`,
}

var scheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scheduled jobs",
	RunE:  runScheduleLs,
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set <JOB_TYPE> <HH:MM>",
	Short: "Set a job's daily run time",
	Args:  cobra.ExactArgs(2),
	RunE:  runScheduleSet,
}

func init() {
	addOutputFlag(scheduleLsCmd)
	scheduleSetCmd.Flags().Bool("disabled", false, "Keep the entry but do not start the job")

	ScheduleCmd.AddCommand(scheduleLsCmd)
	ScheduleCmd.AddCommand(scheduleSetCmd)
}

func runScheduleLs(cmd *cobra.Command, args []string) error {
	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	entries, err := schedule.NewStore(database).List(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd, entries, func() pterm.TableData {
		data := pterm.TableData{{"Job type", "Run at", "Enabled", "Last run", "Last job"}}
		for _, e := range entries {
			lastJob := "-"
			if e.LastJobID != nil {
				lastJob = itoa(*e.LastJobID)
			}
			data = append(data, []string{e.JobType, e.RunAt, yesNo(e.Enabled), formatDate(e.LastRunDate), lastJob})
		}
		return data
	})
}

func runScheduleSet(cmd *cobra.Command, args []string) error {
	jobType, err := job.ParseJobType(args[0])
	if err != nil {
		return err
	}
	disabled, _ := cmd.Flags().GetBool("disabled")

	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := schedule.NewStore(database).Upsert(cmd.Context(), string(jobType), args[1], !disabled); err != nil {
		return err
	}
	pterm.Success.Printfln("%s runs daily at %s (enabled: %s)", jobType, args[1], yesNo(!disabled))
	return nil
}
