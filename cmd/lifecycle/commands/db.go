package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/db"
	"github.com/prisonops/lifecycle/pulse/async"
	"github.com/prisonops/lifecycle/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the lifecycle database",
	Long: sym.DB + ` db - Manage the lifecycle database

Every command migrates the database on open; "migrate" does only that.

Examples:
  lifecycle db migrate
  lifecycle db status
  lifecycle db cleanup --older-than 720h`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, cfg, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		pterm.Success.Printfln("%s %s is up to date", sym.DB, cfg.Database.Path)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migrations and message queue counts",
	RunE:  runDbStatus,
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished messages older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		database, _, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := async.NewQueue(database).Cleanup(cmd.Context(), olderThan)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Deleted %d message(s)", n)
		return nil
	},
}

func init() {
	dbCleanupCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age of completed and failed messages to delete")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatusCmd)
	DbCmd.AddCommand(dbCleanupCmd)
}

func runDbStatus(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	migrations, err := db.Status(database)
	if err != nil {
		return err
	}
	stats, err := async.NewQueue(database).GetStats(cmd.Context())
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printfln("%s %s", sym.DB, cfg.Database.Path)
	data := pterm.TableData{{"Version", "File", "Applied"}}
	for _, m := range migrations {
		data = append(data, []string{m.Version, m.File, yesNo(m.Applied)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	pterm.DefaultSection.Printfln("%s Messages", sym.Pulse)
	return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
		{"Queued", "Running", "Completed", "Failed", "Total"},
		{itoa(int64(stats.Queued)), itoa(int64(stats.Running)), itoa(int64(stats.Completed)), itoa(int64(stats.Failed)), itoa(int64(stats.Total))},
	}).Render()
}
