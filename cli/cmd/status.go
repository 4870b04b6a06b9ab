package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/internal/client"
	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show write-back pipeline status",
	Long:  "Show queue depth, flush counters and sink availability of the access log service",
	Example: `  accessctl status
  accessctl status --ready
  accessctl status -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient(cmd)

		if ready, _ := cmd.Flags().GetBool("ready"); ready {
			body, ok, err := c.Ready(cmd.Context())
			if err != nil {
				return err
			}
			if err := output.Print(outputFormat(cmd), body, func() { renderReady(body, ok) }); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("service is not ready")
			}
			return nil
		}

		status, err := c.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		return output.Print(outputFormat(cmd), status, func() { renderStatus(status) })
	},
}

func renderStatus(s *client.Status) {
	table := output.NewTable([]string{"FIELD", "VALUE"})
	table.AddRow([]string{"Queue", fmt.Sprintf("%d / %d", s.QueueLength, s.MaxSize)})
	table.AddRow([]string{"Flushing", strconv.FormatBool(s.IsFlushing)})
	table.AddRow([]string{"Sink available", strconv.FormatBool(s.SinkAvailable)})
	table.AddRow([]string{"Secondary buffer", strconv.FormatBool(s.SecondaryEnabled)})
	table.AddRow([]string{"Enqueued", strconv.FormatInt(s.TotalEnqueued, 10)})
	table.AddRow([]string{"Persisted", strconv.FormatInt(s.TotalPersisted, 10)})
	table.AddRow([]string{"Failed", strconv.FormatInt(s.TotalFailed, 10)})
	table.AddRow([]string{"Dropped", strconv.FormatInt(s.TotalDropped, 10)})
	table.AddRow([]string{"Readmitted", strconv.FormatInt(s.TotalReadmitted, 10)})
	table.AddRow([]string{"Secondary appended", strconv.FormatInt(s.SecondaryAppended, 10)})
	table.AddRow([]string{"Secondary drained", strconv.FormatInt(s.SecondaryDrained, 10)})
	table.AddRow([]string{"Average latency", fmt.Sprintf("%.2f ms", s.AverageLatencyMs)})
	last := "never"
	if s.LastBatchTime != nil {
		last = fmt.Sprintf("%d records at %s", s.LastBatchSize, s.LastBatchTime.Local().Format(time.RFC3339))
	}
	table.AddRow([]string{"Last batch", last})
	table.Render()

	if !s.SinkAvailable {
		output.Warn("Primary store is unavailable; events are being buffered")
	}
}

func renderReady(body map[string]any, ok bool) {
	if ok {
		output.Success("Service is ready")
	} else {
		output.Error("Service is not ready")
	}
	checks, _ := body["checks"].(map[string]any)
	table := output.NewTable([]string{"CHECK", "RESULT"})
	for name, result := range checks {
		table.AddRow([]string{name, fmt.Sprint(result)})
	}
	table.Render()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("ready", false, "show dependency readiness checks instead")
}
