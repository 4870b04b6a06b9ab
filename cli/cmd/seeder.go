package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/accesslog/cli/internal/client"
	"github.com/telhawk-systems/accesslog/cli/internal/seeder"
	"github.com/telhawk-systems/accesslog/cli/pkg/output"
)

var (
	seederCfgFile     string
	seederCount       int
	seederConcurrency int
	seederInterval    time.Duration
	seederClientPool  int
	seederIPv6Ratio   float64
	seederSeed        int64
	seederTop         int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic client traffic",
	Long: `Send requests to /ip/my from a pool of fake clients so the access log,
per-client stats and rate limiting can be exercised.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./seeder.yaml (project directory)
  3. ~/.accessctl/seeder.yaml (user directory)
  4. Built-in defaults

The server is taken from --server, then seeder.yaml, then the profile.`,
	Example: `  accessctl seed --count 1000 --concurrency 16
  accessctl seed --clients 5 --ipv6-ratio 0.5 --seed 42
  accessctl seed --seeder-config ./load.yaml`,
	RunE: runSeed,
}

var seedValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate seeder configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := seeder.LoadConfig(seederCfgFile)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if config.Defaults.ServerURL == "" {
			config.Defaults.ServerURL = serverURL(cmd)
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		output.Success("Configuration is valid")
		return output.Print(outputFormat(cmd), config.Defaults, func() {
			d := config.Defaults
			table := output.NewTable([]string{"SETTING", "VALUE"})
			table.AddRow([]string{"server_url", d.ServerURL})
			table.AddRow([]string{"count", strconv.Itoa(d.Count)})
			table.AddRow([]string{"concurrency", strconv.Itoa(d.Concurrency)})
			table.AddRow([]string{"interval", d.Interval.String()})
			table.AddRow([]string{"client_pool", strconv.Itoa(d.ClientPool)})
			table.AddRow([]string{"ipv6_ratio", strconv.FormatFloat(d.IPv6Ratio, 'f', 2, 64)})
			table.Render()
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.AddCommand(seedValidateCmd)

	seedCmd.PersistentFlags().StringVar(&seederCfgFile, "seeder-config", "", "seeder config file (default: ./seeder.yaml or ~/.accessctl/seeder.yaml)")

	seedCmd.Flags().IntVarP(&seederCount, "count", "c", 0, "number of requests to send")
	seedCmd.Flags().IntVar(&seederConcurrency, "concurrency", 0, "parallel requests")
	seedCmd.Flags().DurationVar(&seederInterval, "interval", 0, "pause between requests")
	seedCmd.Flags().IntVar(&seederClientPool, "clients", 0, "number of distinct fake clients")
	seedCmd.Flags().Float64Var(&seederIPv6Ratio, "ipv6-ratio", 0, "fraction of clients with IPv6 addresses")
	seedCmd.Flags().Int64Var(&seederSeed, "seed", 0, "random seed for reproducible traffic")
	seedCmd.Flags().IntVar(&seederTop, "top", 5, "busiest clients to show in the summary")
}

func runSeed(cmd *cobra.Command, args []string) error {
	config, err := seeder.LoadConfig(seederCfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if s, _ := flags.GetString("server"); s != "" || config.Defaults.ServerURL == "" {
		config.Defaults.ServerURL = serverURL(cmd)
	}
	if flags.Changed("count") {
		config.Defaults.Count = seederCount
	}
	if flags.Changed("concurrency") {
		config.Defaults.Concurrency = seederConcurrency
	}
	if flags.Changed("interval") {
		config.Defaults.Interval = seederInterval
	}
	if flags.Changed("clients") {
		config.Defaults.ClientPool = seederClientPool
	}
	if flags.Changed("ipv6-ratio") {
		config.Defaults.IPv6Ratio = seederIPv6Ratio
	}
	if flags.Changed("seed") {
		config.Defaults.Seed = seederSeed
	}
	if err := config.Validate(); err != nil {
		return err
	}

	d := config.Defaults
	output.Info("Seeding %d requests from %d clients against %s (concurrency %d)",
		d.Count, d.ClientPool, d.ServerURL, d.Concurrency)

	runner := seeder.NewRunner(config, client.NewAccessClient(d.ServerURL))
	step := max(int64(d.Count)/10, 1)
	runner.Progress = func(done, total int64) {
		if done%step == 0 || done == total {
			output.Info("Progress: %d/%d (%.0f%%)", done, total, float64(done)*100/float64(total))
		}
	}

	res, err := runner.Run(cmd.Context())
	if res != nil {
		renderSeedResult(res)
	}
	if err != nil {
		return fmt.Errorf("seeding interrupted: %w", err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d requests failed", res.Failed)
	}
	return nil
}

func renderSeedResult(res *seeder.Result) {
	output.Success("Sent %d requests in %s (%d distinct clients)", res.Sent, res.Elapsed.Round(time.Millisecond), res.Clients)
	if res.RateLimited > 0 {
		output.Warn("%d requests were rate limited", res.RateLimited)
	}
	if res.Failed > 0 {
		output.Error("%d requests failed", res.Failed)
	}

	type entry struct {
		ip string
		n  int64
	}
	top := make([]entry, 0, len(res.ByIP))
	for ip, n := range res.ByIP {
		top = append(top, entry{ip, n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].n != top[j].n {
			return top[i].n > top[j].n
		}
		return top[i].ip < top[j].ip
	})
	if len(top) == 0 || seederTop <= 0 {
		return
	}

	table := output.NewTable([]string{"CLIENT IP", "REQUESTS"})
	for _, e := range top[:min(seederTop, len(top))] {
		table.AddRow([]string{e.ip, strconv.FormatInt(e.n, 10)})
	}
	table.Render()
}
