package cli

import (
	"fmt"
	"maps"
	"slices"

	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database, Redis and broker connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return fmt.Errorf("app not initialized")
		}

		out := cmd.OutOrStdout()
		health := app.Health.GetOverallHealth(cmd.Context())
		for _, name := range slices.Sorted(maps.Keys(health.Checks)) {
			result := health.Checks[name]
			if result.Message != "" {
				fmt.Fprintf(out, "%-10s %s (%s)\n", name, result.Status, result.Message)
				continue
			}
			fmt.Fprintf(out, "%-10s %s\n", name, result.Status)
		}
		fmt.Fprintf(out, "overall    %s\n", health.Status)
		if health.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
