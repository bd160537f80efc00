// File: cmd/nfvworker/main.go
// Author: momentics <momentics@gmail.com>
//
// nfvworker is the single process binary of the NFV dataplane worker:
// it loads configuration (file + flags + env), assembles the Runtime,
// and runs until interrupted. Exit codes: 0 normal shutdown,
// 2 config error, 3 NIC init error, 4 internal invariant violation.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/momentics/nfvworker/internal/api"
	"github.com/momentics/nfvworker/internal/control"
	"github.com/momentics/nfvworker/internal/runtime"
)

var (
	configFile string
	pinCores   bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "nfvworker",
	Short: "NFV dataplane worker: multi-core RSS-bucket scheduler with burst offload",
	Long: `nfvworker is a per-server NFV runtime that ingests packets from RSS-hashed
NIC queues, processes them on a set of normal cores under tail-latency
targets, and offloads temporary overloads to reserved cores through
lock-free software queues. Load is rebalanced flow-by-flow every short
epoch (~1 ms) and bucket-by-bucket every long epoch (~1 s).`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path (TOML or JSON)")
	flags.BoolVar(&pinCores, "pin", false, "pin core goroutines to CPUs")
	flags.StringVar(&logLevel, "log-level", "info", "log level (trace..panic)")
	flags.Int("ncore", 1, "number of normal cores")
	flags.Int("rcore", 0, "number of reserved cores")
	flags.Int64("short-epoch-us", 1000, "short epoch period, microseconds")
	flags.Int64("long-epoch-ms", 1000, "long epoch period, milliseconds")
	flags.Int("rss-size", 512, "RSS indirection table size")
	flags.Int("sw-queue-pool", 40, "software queue pool size")
	flags.String("profile", "", "NF profile curve file (TOML)")

	for flagName, key := range map[string]string{
		"ncore":          "ncore",
		"rcore":          "rcore",
		"short-epoch-us": "short_epoch_us",
		"long-epoch-ms":  "long_epoch_ms",
		"rss-size":       "rss_size",
		"sw-queue-pool":  "sw_queue_pool",
		"profile":        "profile",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			panic(err)
		}
	}
}

func run(cmd *cobra.Command, _ []string) error {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, err := control.LoadWorkerConfig(viper.GetViper(), configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(int(api.ExitConfigError))
	}

	rt, err := runtime.New(cfg,
		runtime.WithLogger(log),
		runtime.WithAffinity(pinCores),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(int(api.ExitNicInitError))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := rt.Run(ctx)
	if code == api.ExitInvariantViolation {
		fmt.Fprintf(os.Stderr, "invariant violation: %v\n", rt.FatalInvariant())
	}
	os.Exit(int(code))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(api.ExitConfigError))
	}
}
