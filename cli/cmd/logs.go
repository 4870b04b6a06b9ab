package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/internal/client"
	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List persisted access logs",
	Long:  "List persisted access logs newest first, optionally for a single client IP",
	Example: `  accessctl logs
  accessctl logs --ip 203.0.113.10 --limit 20
  accessctl logs --offset 100 -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, _ := cmd.Flags().GetString("ip")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		if cmd.Flags().Changed("ip") && ip == "" {
			return fmt.Errorf("--ip must not be empty")
		}

		logs, err := newClient(cmd).Logs(cmd.Context(), client.ListOptions{IP: ip, Limit: limit, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list access logs: %w", err)
		}

		return output.Print(outputFormat(cmd), logs, func() {
			if len(logs) == 0 {
				output.Info("No access logs found")
				return
			}
			table := output.NewTable([]string{"TIME", "CLIENT IP", "TYPE", "METHOD", "PATH", "USER AGENT"})
			for _, l := range logs {
				table.AddRow([]string{
					l.ObservedAt.Local().Format(time.DateTime),
					l.ClientIP,
					l.IPType,
					l.RequestMethod,
					l.RequestPath,
					truncate(l.UserAgent, 40),
				})
			}
			table.Render()
		})
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().String("ip", "", "only show this client IP")
	logsCmd.Flags().IntP("limit", "n", 0, "maximum rows (default: server default)")
	logsCmd.Flags().Int("offset", 0, "rows to skip")
}
