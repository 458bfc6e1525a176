package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/pratik-mahalle/costlens/internal/detector"
	"github.com/pratik-mahalle/costlens/internal/domain/anomaly"
	"github.com/pratik-mahalle/costlens/internal/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDetectCmd() *cobra.Command {
	var (
		method      string
		threshold   float64
		noRootCause bool
		eventsFile  string
		utilFile    string
	)

	cmd := &cobra.Command{
		Use:   "detect <file> [file...]",
		Short: "Detect cost anomalies in local cost files",
		Long: `Run anomaly detection over daily cost rows read from CSV, JSON or YAML files.

CSV files need a header with at least date and cost columns; service,
provider and resource_id are optional. An empty cost cell is treated as
missing data.`,
		Example: `  costlens detect costs.csv
  costlens detect --method zscore --threshold 2 aws.csv gcp.csv
  costlens detect costs.json --events events.yaml -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obs, err := loadObservations(args...)
			if err != nil {
				return err
			}
			events, err := loadEvents(eventsFile)
			if err != nil {
				return err
			}
			util, err := loadUtilization(utilFile)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("method") {
				method = viper.GetString("anomaly.method")
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = viper.GetFloat64("anomaly.threshold")
			}

			log := logger.NewWithWriter(logger.Config{
				Level:  viper.GetString("log_level"),
				Format: "console",
			}, os.Stderr)

			det := detector.New(detector.DefaultConfig(), log.Component("detect"))
			result := det.Detect(cmd.Context(), detector.Request{
				Observations:     obs,
				Method:           anomaly.Method(method),
				Threshold:        threshold,
				AnalyzeRootCause: !noRootCause,
				Utilization:      util,
				CustomEvents:     events,
			})

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				if err := printOutput(out, format, result); err != nil {
					return err
				}
			} else {
				renderDetection(out, result)
			}
			if !result.Success {
				return fmt.Errorf("detection failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "ensemble", "zscore, isolation, density, decomposition or ensemble")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 2.5, "detection sensitivity")
	cmd.Flags().BoolVar(&noRootCause, "no-root-cause", false, "skip cloud context analysis")
	cmd.Flags().StringVar(&eventsFile, "events", "", "JSON or YAML file of custom events")
	cmd.Flags().StringVar(&utilFile, "utilization", "", "JSON or YAML file of utilization samples")

	return cmd
}

func renderDetection(w io.Writer, r anomaly.DetectionResult) {
	if !r.Success {
		fmt.Fprintf(w, "Detection failed: %s\n", r.Error)
		return
	}

	fmt.Fprintf(w, "Method: %s  Threshold: %.2f  Data points: %d  Anomalies: %d\n",
		r.DetectionMethod, r.Threshold, r.DataPoints, r.AnomalyCount)
	for _, fb := range r.Fallbacks {
		if fb.Fallback != "" {
			fmt.Fprintf(w, "  %s fell back to %s: %s\n", fb.Method, fb.Fallback, fb.Reason)
		} else {
			fmt.Fprintf(w, "  %s skipped: %s\n", fb.Method, fb.Reason)
		}
	}
	if r.Note != "" {
		fmt.Fprintln(w, r.Note)
	}
	if len(r.Anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies found.")
		return
	}
	fmt.Fprintln(w)

	table := NewTable(w, "DATE", "PROVIDER", "SERVICE", "COST", "BASELINE", "CHANGE", "SEVERITY", "AGREE", "CAUSE")
	for _, a := range r.Anomalies {
		cause := ""
		if a.CloudContext != nil && len(a.CloudContext.ProbableCauses) > 0 {
			cause = a.CloudContext.ProbableCauses[0].Cause
		}
		table.AddRow(
			a.Date.Format(dateLayout),
			a.Provider,
			truncate(a.Service, 30),
			formatMoney(a.Cost),
			formatMoney(a.BaselineCost),
			formatPercent(a.PercentageIncrease),
			formatSeverity(a.Severity),
			fmt.Sprintf("%d/%d", a.MethodsAgreement, a.MethodsTotal),
			truncate(cause, 40),
		)
	}
	table.Render()
}
