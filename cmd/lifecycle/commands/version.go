package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prisonops/lifecycle/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show lifecycle version information",
	Long:  `Display version, build time, commit hash and platform of the lifecycle binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		format, _ := cmd.Flags().GetString("output")
		if format == "json" || format == "yaml" {
			return render(cmd, info, nil)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", info.Platform)
		fmt.Fprintf(cmd.OutOrStdout(), "Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().StringP("output", "o", "text", "Output format: text, json, yaml")
}
