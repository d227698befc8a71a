package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/ValentinKolb/idxdb/lib/common"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for idxdb engines",
		Long:    util.WrapString("Runs add, put, get, cursor, delete and mixed workloads against a scratch store of the configured database and reports throughput and latency percentiles."),
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfStore            = "__perf"
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfResult combines the benchmark result with the latency distribution
type perfResult struct {
	bench testing.BenchmarkResult
	timer metrics.Timer
}

func runPerf(_ *cobra.Command, _ []string) error {
	return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
		fmt.Println("Performance testing tool for idxdb engines")

		fmt.Println()
		fmt.Println("Configuration:")
		fmt.Println(util.GetClientConfig().String())
		fmt.Printf("Threads: %d\n", perfNumThreads)
		fmt.Println()

		err := db.CreateStore(ctx, perfStore, idxdb.KeyPath("id"), idxdb.WithIndex("group", "group"))
		if err != nil && !errors.Is(err, idxdb.ErrStoreExists) {
			return fmt.Errorf("failed to create the scratch store: %w", err)
		}
		store := db.Store(perfStore)

		fmt.Println("starting tests...")

		// the commands of the benchmarks are not bounded by the command timeout
		ctx = context.WithoutCancel(ctx)

		registry := metrics.NewRegistry()
		results := make(map[string]perfResult)
		run := func(test string, setup func(getKey func(int) string, iter func(func(string))), op func(key string) error) {
			timer := metrics.GetOrRegisterTimer(test, registry)
			bench := testing.Benchmark(func(b *testing.B) {
				if shouldSkip(test) {
					return
				}

				getKey, iter := getKeys(test)
				if setup != nil {
					setup(getKey, iter)
				}

				// cleanup
				b.Cleanup(func() {
					iter(func(k string) {
						if err := store.Delete(ctx, k); err != nil {
							util.Logger.Warningf("(%s) - error deleting key: %v", test, err)
						}
					})
				})

				b.SetParallelism(perfNumThreads)
				b.ResetTimer()

				b.RunParallel(func(pb *testing.PB) {
					counter := 0
					for pb.Next() {
						start := time.Now()
						if err := op(getKey(counter)); err != nil {
							util.Logger.Debugf("(%s) - error: %v", test, err)
						}
						timer.UpdateSince(start)
						counter++
					}
				})
			})
			results[test] = perfResult{bench: bench, timer: timer}
			printResult(test, results[test])
		}

		record := func(key string, payload any) map[string]any {
			return map[string]any{"id": key, "group": key[len(key)-1:], "payload": payload}
		}
		fill := func(_ func(int) string, iter func(func(string))) {
			iter(func(k string) {
				if _, err := store.Update(ctx, record(k, "test"), nil); err != nil {
					util.Logger.Warningf("error filling key %s: %v", k, err)
				}
			})
		}

		run("add", nil, func(key string) error {
			// every key can only be added once, further adds measure the KEY_EXISTS path
			_, err := store.Create(ctx, record(key, "test"))
			if idxdb.CodeOf(err) == idxdb.CodeKeyExists {
				return nil
			}
			return err
		})

		run("put", nil, func(key string) error {
			_, err := store.Update(ctx, record(key, "test"), nil)
			return err
		})

		largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
		run("put-large", nil, func(key string) error {
			_, err := store.Update(ctx, record(key, largeValue), nil)
			return err
		})

		run("get", fill, func(key string) error {
			_, err := store.Get(ctx, idxdb.ByKey(key))
			return err
		})

		run("get-index", fill, func(key string) error {
			_, err := store.Get(ctx, idxdb.ByIndex("group", key[len(key)-1:]))
			return err
		})

		run("cursor", fill, func(string) error {
			_, err := store.Cursor(ctx, nil, "")
			return err
		})

		run("delete", fill, func(key string) error {
			return store.Delete(ctx, key)
		})

		var counter atomic.Int64
		run("mixed", fill, func(key string) error {
			var err error
			switch counter.Add(1) % 4 {
			case 0: // put
				_, err = store.Update(ctx, record(key, "test"), nil)
			case 1: // get
				_, err = store.Get(ctx, idxdb.ByKey(key))
			case 2: // delete
				err = store.Delete(ctx, key)
			case 3: // index
				_, err = store.Get(ctx, idxdb.ByIndex("group", key[len(key)-1:]))
			}
			return err
		})

		// Write results to csv if specified
		if csvPath := viper.GetString("csv"); csvPath != "" {
			fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
			if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
				return fmt.Errorf("failed to export results to CSV: %v", err)
			}
			fmt.Println("Export complete")
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	ps := result.timer.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50Ns", "P99Ns", "Skipped",
		"Engine", "Codec", "Transient",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		var nsPerOp, opsPerSec, p50, p99 float64
		skipped := "true"

		if result.bench.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			ps := result.timer.Percentiles([]float64{0.5, 0.99})
			p50, p99 = ps[0], ps[1]
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			fmt.Sprintf("%.0f", p50),
			fmt.Sprintf("%.0f", p99),
			skipped,
			string(config.Engine),
			config.Codec,
			strconv.FormatBool(config.Transient),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
