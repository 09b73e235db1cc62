package commands

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/job"
	"github.com/prisonops/lifecycle/sym"
)

// JobCmd represents the job command
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: sym.Job + " Start and inspect lifecycle jobs",
	Long: sym.Job + ` job - Start and inspect lifecycle jobs

Job types:
  START_SUSPENSIONS  suspend allocations whose planned suspension starts today
  END_SUSPENSIONS    reactivate allocations whose planned suspension has ended
  DEALLOCATE_ENDING  end allocations whose schedule, end date or planned deallocation is due
  ATTENDANCE_CREATE  create attendance records for the day's sessions
  ATTENDANCE_EXPIRE  expire yesterday's unmarked attendances

Examples:
  lifecycle job run DEALLOCATE_ENDING
  lifecycle job run ATTENDANCE_CREATE --date 2026-10-18 --expire-unmarked
  lifecycle job run START_SUSPENSIONS --wait   # process the messages inline
  lifecycle job ls --type START_SUSPENSIONS --limit 5
  lifecycle job show 42 -o yaml`,
}

var jobRunCmd = &cobra.Command{
	Use:   "run <JOB_TYPE>",
	Short: "Start a job now",
	Long: `Record a job and send one message per rolled-out prison.

Without --wait the messages are left for a running "pulse start" to process.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobRun,
}

var jobLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent jobs",
	RunE:  runJobLs,
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobShow,
}

func init() {
	jobRunCmd.Flags().String("date", "", "Date the job runs for (YYYY-MM-DD, default today)")
	jobRunCmd.Flags().Bool("expire-unmarked", false, "ATTENDANCE_CREATE only: expire yesterday's unmarked attendances afterwards")
	jobRunCmd.Flags().Bool("wait", false, "Process the job's messages, and any follow-on job, before returning")

	jobLsCmd.Flags().String("type", "", "Only jobs of this type")
	jobLsCmd.Flags().Int("limit", 20, "Number of jobs to show (0 = all)")
	addOutputFlag(jobLsCmd)
	addOutputFlag(jobShowCmd)

	JobCmd.AddCommand(jobRunCmd)
	JobCmd.AddCommand(jobLsCmd)
	JobCmd.AddCommand(jobShowCmd)
}

func runJobRun(cmd *cobra.Command, args []string) error {
	jobType, err := job.ParseJobType(args[0])
	if err != nil {
		return err
	}
	date, err := dateFlag(cmd, "date")
	if err != nil {
		return err
	}
	expire, _ := cmd.Flags().GetBool("expire-unmarked")
	wait, _ := cmd.Flags().GetBool("wait")

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := a.Jobs.Start(ctx, jobType, job.StartOptions{Date: date, ExpireUnmarked: expire})
	if err != nil {
		if j != nil {
			pterm.Warning.Printfln("Job %d recorded but not fully dispatched", j.ID)
		}
		return err
	}
	pterm.Success.Printfln("Started %s job %d for %d prison(s)", j.Type, j.ID, j.TotalSubTasks)

	if !wait {
		return nil
	}
	ran, err := a.Pool.Drain(ctx)
	if err != nil {
		return err
	}
	j, err = a.Jobs.Store().Get(ctx, j.ID)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Processed %d message(s); job %d %d/%d, successful: %s",
		ran, j.ID, j.CompletedSubTasks, j.TotalSubTasks, yesNo(j.Successful))
	return nil
}

func runJobLs(cmd *cobra.Command, args []string) error {
	var filter *job.JobType
	if s, _ := cmd.Flags().GetString("type"); s != "" {
		t, err := job.ParseJobType(s)
		if err != nil {
			return err
		}
		filter = &t
	}
	limit, _ := cmd.Flags().GetInt("limit")

	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	jobs, err := job.NewStore(database).List(cmd.Context(), filter, limit)
	if err != nil {
		return err
	}
	return render(cmd, jobs, func() pterm.TableData { return jobTable(jobs...) })
}

func runJobShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid job id %q", args[0])
	}

	database, _, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	j, err := job.NewStore(database).Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	return render(cmd, j, func() pterm.TableData { return jobTable(j) })
}

func jobTable(jobs ...*job.Job) pterm.TableData {
	data := pterm.TableData{{"ID", "Type", "Started", "Ended", "Progress", "Successful"}}
	for _, j := range jobs {
		data = append(data, []string{
			itoa(j.ID),
			string(j.Type),
			formatTime(&j.StartedAt),
			formatTime(j.EndedAt),
			fmt.Sprintf("%d/%d", j.CompletedSubTasks, j.TotalSubTasks),
			yesNo(j.Successful),
		})
	}
	return data
}
