package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/pratik-mahalle/costlens/pkg/client"
	"github.com/spf13/cobra"
)

func newAnomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "anomalies",
		Aliases: []string{"anomaly", "an"},
		Short:   "Detect and manage stored cost anomalies",
	}

	cmd.AddCommand(newAnomaliesListCmd())
	cmd.AddCommand(newAnomaliesGetCmd())
	cmd.AddCommand(newAnomaliesDetectCmd())
	cmd.AddCommand(newAnomaliesSummaryCmd())
	cmd.AddCommand(newAnomaliesStatusCmd("resolve", "Mark an anomaly as resolved", "resolved"))
	cmd.AddCommand(newAnomaliesStatusCmd("ack", "Acknowledge an anomaly", "acknowledged"))
	cmd.AddCommand(newAnomaliesStatusCmd("ignore", "Ignore an anomaly", "ignored"))
	cmd.AddCommand(newAnomaliesDeleteCmd())

	return cmd
}

func newAnomaliesListCmd() *cobra.Command {
	var opts client.AnomalyListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := apiClient.Anomalies().List(cmd.Context(), &opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, page)
			}
			if len(page.Data) == 0 {
				fmt.Fprintln(out, "No anomalies found.")
				return nil
			}

			table := NewTable(out, "ID", "DATE", "PROVIDER", "SERVICE", "COST", "CHANGE", "SEVERITY", "STATUS")
			for _, a := range page.Data {
				table.AddRow(
					truncate(a.ID, 12),
					a.CostDate,
					a.Provider,
					truncate(a.Service, 30),
					formatMoney(a.Cost),
					formatPercent(a.PercentageIncrease),
					formatSeverity(a.Severity),
					formatStatus(a.Status),
				)
			}
			table.Render()
			fmt.Fprintf(out, "\nPage %d of %d (%d anomalies)\n", page.Page, page.TotalPages, page.TotalItems)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Provider, "provider", "", "filter by provider")
	f.StringVar(&opts.Service, "service", "", "filter by service")
	f.StringVar(&opts.Severity, "severity", "", "filter by severity")
	f.StringVar(&opts.Status, "status", "", "filter by status")
	f.StringVar(&opts.StartDate, "from", "", "earliest cost date (YYYY-MM-DD)")
	f.StringVar(&opts.EndDate, "to", "", "latest cost date (YYYY-MM-DD)")
	f.IntVar(&opts.Page, "page", 1, "page number")
	f.IntVar(&opts.PageSize, "page-size", 20, "page size")

	return cmd
}

func newAnomaliesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := apiClient.Anomalies().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, a)
			}

			fmt.Fprintf(out, "ID:          %s\n", a.ID)
			fmt.Fprintf(out, "Date:        %s\n", a.CostDate)
			fmt.Fprintf(out, "Provider:    %s\n", a.Provider)
			fmt.Fprintf(out, "Service:     %s\n", a.Service)
			if a.ResourceID != "" {
				fmt.Fprintf(out, "Resource:    %s\n", a.ResourceID)
			}
			fmt.Fprintf(out, "Cost:        %s (baseline %s, %s)\n",
				formatMoney(a.Cost), formatMoney(a.BaselineCost), formatPercent(a.PercentageIncrease))
			fmt.Fprintf(out, "Severity:    %s\n", formatSeverity(a.Severity))
			fmt.Fprintf(out, "Status:      %s\n", formatStatus(a.Status))
			fmt.Fprintf(out, "Method:      %s (%d/%d agree, confidence %.2f)\n",
				a.DetectionMethod, a.MethodsAgreement, a.MethodsTotal, a.Confidence)
			if a.RootCause != "" {
				fmt.Fprintf(out, "Root cause:  %s\n", a.RootCause)
			}
			return nil
		},
	}
}

func newAnomaliesDetectCmd() *cobra.Command {
	var (
		opts       client.DetectOptions
		eventsFile string
		utilFile   string
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run detection over costs stored on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadEvents(eventsFile)
			if err != nil {
				return err
			}
			for _, e := range events {
				opts.CustomEvents = append(opts.CustomEvents, client.CustomEvent{
					Date:        e.Date.Format(dateLayout),
					Name:        e.Name,
					Description: e.Description,
					Services:    e.Services,
				})
			}
			util, err := loadUtilization(utilFile)
			if err != nil {
				return err
			}
			for _, u := range util {
				opts.Utilization = append(opts.Utilization, client.UtilizationSample{
					Date:       u.Date.Format(dateLayout),
					Provider:   u.Provider,
					Service:    u.Service,
					ResourceID: u.ResourceID,
					Metric:     u.Metric,
					Value:      u.Value,
				})
			}

			result, err := apiClient.Anomalies().Detect(cmd.Context(), &opts)
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) {
					if failed, ok := apiErr.DetectionResult(); ok {
						result = failed
					}
				}
				if result == nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				if perr := printOutput(out, format, result); perr != nil {
					return perr
				}
			} else {
				renderRemoteDetection(out, result)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Days, "days", 30, "look-back window in days")
	f.Float64VarP(&opts.Threshold, "threshold", "t", 0, "detection sensitivity (server default when 0)")
	f.StringVarP(&opts.Method, "method", "m", "", "zscore, isolation, density, decomposition or ensemble")
	f.StringVar(&opts.Provider, "provider", "", "restrict to one provider")
	f.StringVar(&opts.Service, "service", "", "restrict to one service")
	f.BoolVar(&opts.SkipRootCause, "no-root-cause", false, "skip cloud context analysis")
	f.StringVar(&eventsFile, "events", "", "JSON or YAML file of custom events")
	f.StringVar(&utilFile, "utilization", "", "JSON or YAML file of utilization samples")

	return cmd
}

func renderRemoteDetection(w io.Writer, r *client.DetectionResult) {
	if !r.Success {
		fmt.Fprintf(w, "Detection failed: %s\n", r.Error)
		return
	}
	fmt.Fprintf(w, "Run %s: method %s, threshold %.2f, %d points, %d anomalies\n",
		r.RunID, r.DetectionMethod, r.Threshold, r.DataPoints, r.AnomalyCount)
	if r.Note != "" {
		fmt.Fprintln(w, r.Note)
	}
	if len(r.Anomalies) == 0 {
		return
	}
	fmt.Fprintln(w)

	table := NewTable(w, "DATE", "PROVIDER", "SERVICE", "COST", "CHANGE", "SEVERITY", "AGREE")
	for _, a := range r.Anomalies {
		table.AddRow(
			a.Date.Format(dateLayout),
			a.Provider,
			truncate(a.Service, 30),
			formatMoney(a.Cost),
			formatPercent(a.PercentageIncrease),
			formatSeverity(a.Severity),
			fmt.Sprintf("%d/%d", a.MethodsAgreement, a.MethodsTotal),
		)
	}
	table.Render()
}

func newAnomaliesSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Count stored anomalies by severity and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := apiClient.Anomalies().Summary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, s)
			}

			fmt.Fprintf(out, "Total anomalies: %d\n\n", s.Total)
			table := NewTable(out, "SEVERITY", "COUNT")
			for _, sev := range []string{"critical", "high", "medium", "low"} {
				table.AddRow(formatSeverity(sev), fmt.Sprint(s.BySeverity[sev]))
			}
			table.Render()
			fmt.Fprintln(out)
			table = NewTable(out, "STATUS", "COUNT")
			for _, st := range []string{"detected", "acknowledged", "resolved", "ignored"} {
				table.AddRow(formatStatus(st), fmt.Sprint(s.ByStatus[st]))
			}
			table.Render()
			return nil
		},
	}
}

func newAnomaliesStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Anomalies().UpdateStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Anomaly %s marked %s\n", args[0], status)
			return nil
		},
	}
}

func newAnomaliesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient.Anomalies().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Anomaly %s deleted\n", args[0])
			return nil
		},
	}
}
