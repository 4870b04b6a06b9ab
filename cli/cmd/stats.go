package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-client usage statistics",
	Long:  "Show request counters for a client IP, or list the client IPs seen today",
	Example: `  accessctl stats --ip 203.0.113.10
  accessctl stats --active`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(cmd)

		if active, _ := cmd.Flags().GetBool("active"); active {
			ips, err := c.ActiveIPs(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list active clients: %w", err)
			}
			sort.Strings(ips)
			return output.Print(outputFormat(cmd), ips, func() {
				table := output.NewTable([]string{"CLIENT IP"})
				for _, ip := range ips {
					table.AddRow([]string{ip})
				}
				table.Render()
				output.Info("%d active clients today", len(ips))
			})
		}

		ip, _ := cmd.Flags().GetString("ip")
		stats, err := c.IPStats(cmd.Context(), ip)
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}
		return output.Print(outputFormat(cmd), stats, func() {
			last := "never"
			if stats.LastSeenAt != nil {
				last = stats.LastSeenAt.Local().Format(time.RFC3339)
			}
			table := output.NewTable([]string{"FIELD", "VALUE"})
			table.AddRow([]string{"Client IP", stats.ClientIP})
			table.AddRow([]string{"Last seen", last})
			table.AddRow([]string{"Last path", stats.LastPath})
			table.AddRow([]string{"Total requests", strconv.FormatInt(stats.TotalRequests, 10)})
			table.AddRow([]string{"Last hour", strconv.FormatInt(stats.RequestsLastHour, 10)})
			table.AddRow([]string{"Last 24h", strconv.FormatInt(stats.RequestsLast24h, 10)})
			table.AddRow([]string{"Distinct paths today", strconv.FormatInt(stats.DistinctPaths, 10)})
			table.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("ip", "", "client IP (default: the caller)")
	statsCmd.Flags().Bool("active", false, "list client IPs seen today")
}
