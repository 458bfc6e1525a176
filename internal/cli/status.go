package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server readiness and open anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			status := map[string]interface{}{
				"server": viper.GetString("server_url"),
			}
			if serverURL != "" {
				status["server"] = serverURL
			}

			ready, readyErr := apiClient.Ready(ctx)
			if readyErr != nil {
				status["ready"] = false
				status["error"] = readyErr.Error()
			} else {
				status["ready"] = true
				status["database"] = ready.Database
			}

			summary, sumErr := apiClient.Anomalies().Summary(ctx)
			if sumErr == nil {
				status["anomalies"] = summary
			}

			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, status)
			}

			fmt.Fprintln(out, "costlens status")
			fmt.Fprintln(out, strings.Repeat("=", 40))
			fmt.Fprintf(out, "  Server:      %v\n", status["server"])
			if readyErr != nil {
				fmt.Fprintf(out, "  Ready:       no (%v)\n", readyErr)
			} else {
				fmt.Fprintf(out, "  Ready:       yes (database %s)\n", ready.Database)
			}
			if sumErr != nil {
				fmt.Fprintf(out, "  Anomalies:   (error: %v)\n", sumErr)
				return nil
			}
			fmt.Fprintf(out, "  Anomalies:   %d total, %d open\n",
				summary.Total, summary.ByStatus["detected"]+summary.ByStatus["acknowledged"])
			fmt.Fprintf(out, "  Critical:    %d\n", summary.BySeverity["critical"])
			fmt.Fprintf(out, "  High:        %d\n", summary.BySeverity["high"])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "costlens %s\n", Version)
		},
	}
}
