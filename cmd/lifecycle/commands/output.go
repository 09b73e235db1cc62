package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prisonops/lifecycle/internal/util"
)

// addOutputFlag registers -o on a listing command
func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "Output format: table, json, yaml")
}

// render prints v as JSON or YAML, or calls table for the default format.
func render(cmd *cobra.Command, v any, table func() pterm.TableData) error {
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
	case "table", "":
		data := table()
		if len(data) <= 1 {
			pterm.Info.Println("Nothing to show")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return util.FormatDate(*t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// dateFlag parses a YYYY-MM-DD flag; empty gives the zero time
func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := util.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
