package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	cache "github.com/krisalay/refresh-cache"
	"github.com/krisalay/refresh-cache/config"
	"github.com/krisalay/refresh-cache/logging"
)

var v = config.New()

// defaultKeys keeps the preload short: every first write of a key copies
// its shard's map, so preloading n keys costs about n*n/shards copies.
const defaultKeys = 10_000

var benchCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Hammer the cache from many goroutines and report throughput",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		keys, _ := cmd.Flags().GetInt("keys")
		goroutines, _ := cmd.Flags().GetInt("goroutines")
		ops, _ := cmd.Flags().GetInt("ops")
		forceEvery, _ := cmd.Flags().GetInt("force-every")
		return run(cmd.Context(), cfg, keys, goroutines, ops, forceEvery)
	},
}

func init() {
	benchCmd.Flags().Int("keys", defaultKeys, "number of distinct keys")
	benchCmd.Flags().Int("goroutines", 200, "concurrent readers")
	benchCmd.Flags().Int("ops", 5000, "operations per goroutine")
	benchCmd.Flags().Int("force-every", 0, "force a refresh every N operations (0 = never)")
	benchCmd.Flags().Int("shards", 8, "number of cache shards")
	benchCmd.Flags().Duration("ttl", time.Minute, "cache TTL")
	benchCmd.Flags().Bool("dedupe", true, "share concurrent regenerations")

	_ = v.BindPFlag("cache.shards", benchCmd.Flags().Lookup("shards"))
	_ = v.BindPFlag("cache.default_ttl", benchCmd.Flags().Lookup("ttl"))
	_ = v.BindPFlag("cache.dedupe", benchCmd.Flags().Lookup("dedupe"))
}

func run(ctx context.Context, cfg config.Config, keys, goroutines, opsPerG, forceEvery int) error {
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	c, err := cache.New(cache.Options{
		DefaultTTL: cfg.Cache.DefaultTTL,
		Shards:     cfg.Cache.Shards,
		Dedupe:     cfg.Cache.Dedupe,
		Logger:     &log,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	var regenerations atomic.Int64
	regenerate := func(context.Context) (any, error) {
		return regenerations.Add(1), nil
	}

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("Shards       :", cfg.Cache.Shards)
	fmt.Println("TTL          :", cfg.Cache.DefaultTTL)
	fmt.Println("Dedupe       :", cfg.Cache.Dedupe)
	fmt.Println("Keys         :", humanize.Comma(int64(keys)))
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", humanize.Comma(int64(opsPerG)))
	fmt.Println("Force every  :", forceEvery)

	// ---------------- Preload ----------------
	fmt.Println("Preloading cache...")
	keyNames := make([]string, keys)
	for i := range keyNames {
		keyNames[i] = fmt.Sprintf("key-%d", i)
		if _, err := c.GetDefault(ctx, keyNames[i], false, regenerate); err != nil {
			return err
		}
	}

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")
	start := time.Now()
	preloaded := regenerations.Load()

	var wg sync.WaitGroup
	var hits atomic.Int64
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				force := forceEvery > 0 && j%forceEvery == 0
				r, err := c.GetDefault(ctx, keyNames[(id*opsPerG+j)%keys], force, regenerate)
				if err == nil && r.FromCache {
					hits.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	duration := time.Since(start)
	totalOps := int64(goroutines * opsPerG)

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %s\n", humanize.Comma(totalOps))
	fmt.Printf("Cache Hits       : %s\n", humanize.Comma(hits.Load()))
	fmt.Printf("Regenerations    : %s\n", humanize.Comma(regenerations.Load()-preloaded))
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %s ops/sec\n", humanize.CommafWithDigits(float64(totalOps)/duration.Seconds(), 2))
	fmt.Println("=========================================")
	return nil
}

func main() {
	if err := benchCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
