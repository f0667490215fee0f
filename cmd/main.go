package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cache "github.com/krisalay/refresh-cache"
	"github.com/krisalay/refresh-cache/clock"
	"github.com/krisalay/refresh-cache/config"
	"github.com/krisalay/refresh-cache/logging"
	"github.com/krisalay/refresh-cache/metrics"
	"github.com/krisalay/refresh-cache/pages"
	"github.com/krisalay/refresh-cache/refresh"
	"github.com/krisalay/refresh-cache/types"
)

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:           "refresh-cache",
	Short:         "TTL cache with forced refresh: demos and page loaders",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Replay the 30 second freshness scenario on a simulated clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		return runScenario(cmd.Context(), cfg, log)
	},
}

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Load the cached and simple-cached pages a few times and print their JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		rounds, _ := cmd.Flags().GetInt("rounds")
		interval, _ := cmd.Flags().GetDuration("interval")
		return runPages(cmd.Context(), cfg, log, rounds, interval)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().Duration("ttl", 30*time.Second, "default cache TTL")
	rootCmd.PersistentFlags().Int("shards", 4, "number of cache shards")
	rootCmd.PersistentFlags().Bool("dedupe", true, "share one regeneration between concurrent callers of a key")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console or json)")

	_ = v.BindPFlag("cache.default_ttl", rootCmd.PersistentFlags().Lookup("ttl"))
	_ = v.BindPFlag("cache.shards", rootCmd.PersistentFlags().Lookup("shards"))
	_ = v.BindPFlag("cache.dedupe", rootCmd.PersistentFlags().Lookup("dedupe"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	pagesCmd.Flags().Int("rounds", 3, "how many times to load each page")
	pagesCmd.Flags().Duration("interval", time.Second, "pause between rounds")
	pagesCmd.Flags().Bool("latency", true, "simulate data-source latency")
	_ = v.BindPFlag("pages.simulate_latency", pagesCmd.Flags().Lookup("latency"))

	rootCmd.AddCommand(scenarioCmd)
	rootCmd.AddCommand(pagesCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	cobra.CheckErr(v.ReadInConfig())
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, log, nil
}

func newCache(cfg config.Config, log zerolog.Logger, clk clock.Clock, m types.Metrics, ttl time.Duration) (*cache.RefreshCache, error) {
	return cache.New(cache.Options{
		DefaultTTL: ttl,
		Shards:     cfg.Cache.Shards,
		Namespace:  cfg.Cache.Namespace,
		Dedupe:     cfg.Cache.Dedupe,
		Clock:      clk,
		Metrics:    m,
		Logger:     &log,
	})
}

// ================= SCENARIO =================

func runScenario(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	clk := clock.NewManual(time.Now())
	c, err := newCache(cfg, log, clk, nil, cfg.Cache.DefaultTTL)
	if err != nil {
		return err
	}
	defer c.Close()

	ttl := c.DefaultTTL()
	generation := 0
	regenerate := func(context.Context) (any, error) {
		generation++
		return fmt.Sprintf("generation-%d", generation), nil
	}

	steps := []struct {
		at    time.Duration
		force bool
	}{
		{0, false},
		{ttl / 6, false},
		{ttl + time.Second, false},
		{ttl + 2*time.Second, true},
	}

	fmt.Println("\n==================== SCENARIO ====================")
	fmt.Println("TTL :", ttl)

	start := clk.Now()
	for _, s := range steps {
		clk.Set(start.Add(s.at))
		r, err := c.GetDefault(ctx, "scenario", s.force, regenerate)
		if err != nil {
			return err
		}
		fmt.Printf("t=%-6s force=%-5t fromCache=%-5t cacheAge=%-3d nextRefresh=%-3d value=%v (generated %s)\n",
			s.at, s.force, r.FromCache, r.CacheAge(), r.NextRefreshIn(), r.Value,
			humanize.RelTime(r.GeneratedAt, clk.Now(), "ago", "from now"))
	}
	return nil
}

// ================= PAGES =================

func runPages(ctx context.Context, cfg config.Config, log zerolog.Logger, rounds int, interval time.Duration) error {
	ctx = logging.WithContext(ctx, log)
	reg := prometheus.NewRegistry()

	cachedMetrics, err := pageMetrics(cfg, reg, "cached")
	if err != nil {
		return err
	}
	simpleMetrics, err := pageMetrics(cfg, reg, "simple-cached")
	if err != nil {
		return err
	}

	clk := clock.System{}
	gen := pages.NewGenerator(clk, time.Now().UnixNano())
	if !cfg.Pages.SimulateLatency {
		gen.WithoutLatency()
	}

	c, err := newCache(cfg, log, clk, cachedMetrics, cfg.Pages.CachedTTL)
	if err != nil {
		return err
	}
	defer c.Close()
	cached := pages.NewCached(c, gen, cfg.Pages.CachedTTL)

	slot, err := cache.NewSlot(cache.Options{
		DefaultTTL: cfg.Pages.SimpleTTL,
		Dedupe:     cfg.Cache.Dedupe,
		Clock:      clk,
		Metrics:    simpleMetrics,
		Logger:     &log,
	})
	if err != nil {
		return err
	}
	simple := pages.NewSimpleCached(slot, gen)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for i := 0; i < rounds; i++ {
		// the last round forces a refresh, like the page's "强制刷新" button
		query := refresh.Query(i == rounds-1)

		fmt.Printf("\n==================== ROUND %d (%s) ====================\n", i+1, query.Encode())
		cr, err := cached.Load(ctx, query)
		if err != nil {
			return err
		}
		if err := enc.Encode(cr); err != nil {
			return err
		}
		sr, err := simple.Load(ctx, query)
		if err != nil {
			return err
		}
		if err := enc.Encode(sr); err != nil {
			return err
		}

		if i < rounds-1 {
			time.Sleep(interval)
		}
	}

	if !cfg.Metrics.Enabled {
		return nil
	}
	return printMetrics(reg)
}

func pageMetrics(cfg config.Config, reg *prometheus.Registry, page string) (types.Metrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	return metrics.NewPrometheus(reg, cfg.Metrics.Namespace, page)
}

func printMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	fmt.Println("\n==================== METRICS ====================")
	for _, f := range families {
		for _, m := range f.GetMetric() {
			labels := ""
			for _, l := range m.GetLabel() {
				labels += l.GetName() + "=" + l.GetValue() + " "
			}
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("%-50s %s: %v\n", f.GetName(), labels, m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				fmt.Printf("%-50s %s: count=%d\n", f.GetName(), labels, m.GetHistogram().GetSampleCount())
			}
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
