package cli

import (
	"fmt"
	"sort"

	"github.com/pratik-mahalle/costlens/pkg/client"
	"github.com/spf13/cobra"
)

func newCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "costs",
		Aliases: []string{"cost"},
		Short:   "Ingest, sync and inspect daily costs",
	}

	cmd.AddCommand(newCostsIngestCmd())
	cmd.AddCommand(newCostsSyncCmd())
	cmd.AddCommand(newCostsListCmd())
	cmd.AddCommand(newCostsSummaryCmd())

	return cmd
}

func newCostsIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file> [file...]",
		Short: "Upload daily cost rows from CSV, JSON or YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := loadCostRows(args...)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no cost rows found")
			}
			stored, err := apiClient.Costs().Ingest(cmd.Context(), rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %d of %d cost rows\n", stored, len(rows))
			return nil
		},
	}
}

func newCostsSyncCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sync [provider]",
		Short: "Pull recent billing data from configured providers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []client.SyncResult
			if len(args) == 1 {
				res, err := apiClient.Costs().Sync(cmd.Context(), args[0], days)
				if err != nil {
					return err
				}
				results = append(results, *res)
			} else {
				all, err := apiClient.Costs().SyncAll(cmd.Context(), days)
				if err != nil {
					return err
				}
				results = all
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No providers configured.")
				return nil
			}
			table := NewTable(out, "PROVIDER", "FETCHED", "STORED", "FROM", "TO")
			for _, r := range results {
				table.AddRow(r.Provider, fmt.Sprint(r.Fetched), fmt.Sprint(r.Stored), r.From, r.To)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "look-back in days")
	return cmd
}

func costQueryFlags(cmd *cobra.Command, opts *client.CostQueryOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.Provider, "provider", "", "filter by provider")
	f.StringVar(&opts.Service, "service", "", "filter by service")
	f.StringVar(&opts.StartDate, "from", "", "start date (YYYY-MM-DD)")
	f.StringVar(&opts.EndDate, "to", "", "end date (YYYY-MM-DD)")
}

func newCostsListCmd() *cobra.Command {
	var opts client.CostQueryOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored daily costs",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := apiClient.Costs().List(cmd.Context(), &opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No costs found.")
				return nil
			}
			table := NewTable(out, "DATE", "PROVIDER", "SERVICE", "REGION", "COST")
			for _, r := range rows {
				cost := "-"
				if r.DailyCost != nil {
					cost = formatMoney(*r.DailyCost)
				}
				table.AddRow(r.CostDate, r.Provider, truncate(r.ServiceName, 30), r.Region, cost)
			}
			table.Render()
			return nil
		},
	}

	costQueryFlags(cmd, &opts)
	return cmd
}

func newCostsSummaryCmd() *cobra.Command {
	var opts client.CostQueryOptions

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show cost totals by provider and service",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := apiClient.Costs().Summary(cmd.Context(), &opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, s)
			}

			fmt.Fprintf(out, "Total: %s %s (%s to %s)\n\n", formatMoney(s.TotalCost), s.Currency, s.StartDate, s.EndDate)
			table := NewTable(out, "PROVIDER", "COST")
			for _, k := range sortedKeys(s.ByProvider) {
				table.AddRow(k, formatMoney(s.ByProvider[k]))
			}
			table.Render()
			fmt.Fprintln(out)
			table = NewTable(out, "SERVICE", "COST")
			for _, k := range sortedKeys(s.ByService) {
				table.AddRow(truncate(k, 40), formatMoney(s.ByService[k]))
			}
			table.Render()
			return nil
		},
	}

	costQueryFlags(cmd, &opts)
	return cmd
}

// sortedKeys orders by descending value, then name
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
