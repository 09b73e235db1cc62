package commands

import (
	"context"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/app"
	"github.com/prisonops/lifecycle/internal/batch"
	"github.com/prisonops/lifecycle/internal/util"
)

// PrisonerCmd represents the prisoner command
var PrisonerCmd = &cobra.Command{
	Use:   "prisoner",
	Short: "Suspend or reactivate a prisoner's allocations",
	Long: `prisoner - Apply a prisoner movement to their allocations

A temporary release auto-suspends the prisoner's active allocations and marks their
future sessions today as suspended. Coming back reactivates them, unless a planned
suspension still applies, and resets those sessions.

Examples:
  lifecycle prisoner release MDI A1234BC
  lifecycle prisoner receive MDI A1234BC`,
}

var prisonerReleaseCmd = &cobra.Command{
	Use:   "release <PRISON_CODE> <PRISONER_NUMBER>",
	Short: "Auto-suspend a prisoner's allocations on temporary release",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyMovement(cmd, args, "suspended", func(m movement) (batch.Result, error) {
			return m.app.Allocations.AutoSuspend(m.ctx, m.prison, m.prisoner)
		})
	},
}

var prisonerReceiveCmd = &cobra.Command{
	Use:   "receive <PRISON_CODE> <PRISONER_NUMBER>",
	Short: "Reactivate a prisoner's auto-suspended allocations",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return applyMovement(cmd, args, "reactivated", func(m movement) (batch.Result, error) {
			today := util.Today(time.Now(), m.app.Config.Location())
			return m.app.Allocations.ReceiveBack(m.ctx, m.prison, m.prisoner, today)
		})
	},
}

func init() {
	PrisonerCmd.AddCommand(prisonerReleaseCmd)
	PrisonerCmd.AddCommand(prisonerReceiveCmd)
}

type movement struct {
	ctx      context.Context
	app      *app.App
	prison   string
	prisoner string
}

func applyMovement(cmd *cobra.Command, args []string, verb string, apply func(movement) (batch.Result, error)) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	m := movement{ctx: ctx, app: a, prison: strings.ToUpper(args[0]), prisoner: strings.ToUpper(args[1])}
	result, err := apply(m)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("%s at %s: %d of %d allocation(s) %s", m.prisoner, m.prison, result.Changed, result.Examined, verb)
	if err := result.Err(); err != nil {
		pterm.Warning.Printfln("Some changes failed: %v", err)
	}
	return nil
}
