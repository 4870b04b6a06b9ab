package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead letter queue commands",
	Long:  "Inspect and purge access events the service could not persist",
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead letter queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := newClient(cmd).DLQStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get DLQ stats: %w", err)
		}
		return output.Print(outputFormat(cmd), stats, func() {
			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			table := output.NewTable([]string{"FIELD", "VALUE"})
			for _, k := range keys {
				table.AddRow([]string{k, fmt.Sprint(stats[k])})
			}
			table.Render()
		})
	},
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		batches, err := newClient(cmd).DLQList(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to list DLQ: %w", err)
		}
		return output.Print(outputFormat(cmd), batches, func() {
			if len(batches) == 0 {
				output.Success("Dead letter queue is empty")
				return
			}
			table := output.NewTable([]string{"TIME", "REASON", "CODE", "RECORDS", "ERROR"})
			for _, b := range batches {
				table.AddRow([]string{
					b.Timestamp.Local().Format(time.DateTime),
					b.Reason,
					b.Code,
					strconv.Itoa(b.Count),
					truncate(b.Error, 60),
				})
			}
			table.Render()
		})
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to purge without --yes")
		}
		if err := newClient(cmd).DLQPurge(cmd.Context()); err != nil {
			return fmt.Errorf("failed to purge DLQ: %w", err)
		}
		output.Success("Dead letter queue purged")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqStatsCmd, dlqListCmd, dlqPurgeCmd)

	dlqListCmd.Flags().IntP("limit", "n", 100, "maximum batches to show")
	dlqPurgeCmd.Flags().Bool("yes", false, "confirm the purge")
}
