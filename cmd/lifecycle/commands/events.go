package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/events"
	"github.com/prisonops/lifecycle/logger"
)

// EventsCmd represents the events command
var EventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List published domain events",
}

var eventsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent events, newest first",
	Long: `List recent events, newest first.

--type accepts either form, e.g. PRISONER_ATTENDANCE_EXPIRED or activities.prisoner.attendance-expired.`,
	RunE: runEventsLs,
}

func init() {
	eventsLsCmd.Flags().String("type", "", "Only events of this type")
	eventsLsCmd.Flags().Int("limit", 50, "Number of events to show (0 = all)")
	addOutputFlag(eventsLsCmd)
	EventsCmd.AddCommand(eventsLsCmd)
}

func runEventsLs(cmd *cobra.Command, args []string) error {
	var filter *events.Type
	if s, _ := cmd.Flags().GetString("type"); s != "" {
		t, err := events.ParseType(s)
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

	list, err := events.NewOutbox(database, logger.Logger).List(cmd.Context(), filter, limit)
	if err != nil {
		return err
	}
	return render(cmd, list, func() pterm.TableData {
		data := pterm.TableData{{"ID", "Event", "Entity", "Occurred"}}
		for _, e := range list {
			data = append(data, []string{itoa(e.ID), e.Type.WireName(), itoa(e.EntityID), formatTime(&e.OccurredAt)})
		}
		return data
	})
}
