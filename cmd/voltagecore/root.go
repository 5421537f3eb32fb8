// Package main wires the VoltageEMS core process together: configuration,
// RTDB backend selection, the durable store, and the channel/dispatcher/
// instance/rule/reload components, following the teacher's cobra/viper
// bootstrap and signal-driven graceful shutdown (cli/root.go).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"voltageems.io/core/channel"
	"voltageems.io/core/config"
	"voltageems.io/core/dispatcher"
	"voltageems.io/core/durable"
	"voltageems.io/core/instance"
	"voltageems.io/core/logging"
	"voltageems.io/core/reload"
	"voltageems.io/core/routing"
	"voltageems.io/core/rtdb"
	"voltageems.io/core/rtdb/memrtdb"
	"voltageems.io/core/rtdb/redisrtdb"
	"voltageems.io/core/rule"
	"voltageems.io/core/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voltagecore",
	Short: "VoltageEMS industrial-control data plane core",
	RunE:  runCore,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML, optional)")
	rootCmd.PersistentFlags().String("rtdb-url", "", "RTDB backend URL (redis:// ...)")
	rootCmd.PersistentFlags().String("rtdb-backend", "", "RTDB backend: memory or redis")
	rootCmd.PersistentFlags().String("durable-dsn", "", "durable store DSN (postgres connection string)")

	v := viper.GetViper()
	v.BindPFlag(config.KeyRTDBURL, rootCmd.PersistentFlags().Lookup("rtdb-url"))
	v.BindPFlag(config.KeyRTDBBackend, rootCmd.PersistentFlags().Lookup("rtdb-backend"))
	v.BindPFlag(config.KeyDurableDSN, rootCmd.PersistentFlags().Lookup("durable-dsn"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCore(cmd *cobra.Command, args []string) error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("voltagecore: read config file: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("voltagecore: load config: %w", err)
	}

	logging.Logger = logging.NewLogger(logging.LoggerConfig{
		Level:      logging.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		TimeFormat: time.RFC3339,
	})
	logging.Logger.AddHook(logging.StaticFieldHook{
		"service":       "voltagecore",
		"build_version": version.GetCoreVersion(),
	})

	store, err := openRTDB(cfg)
	if err != nil {
		return fmt.Errorf("voltagecore: open rtdb: %w", err)
	}
	ks := rtdb.NewKeySpace()
	cache := routing.NewCache()

	var db *durable.Store
	if cfg.DurableDSN != "" {
		db, err = durable.Open(cfg.DurableDSN)
		if err != nil {
			return fmt.Errorf("voltagecore: open durable store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("voltagecore: migrate durable store: %w", err)
		}
	}

	manager := channel.NewManager(store, ks, cache, cfg.MaxC2CDepth)
	idempotency := dispatcher.NewIdempotencyWindow(cfg.CommandTimeout, 4096)
	dispatch := dispatcher.New(store, ks, cache, idempotency)

	registry := rule.NewRegistry()
	registry.Register(rule.SetValueExecutor{Store: store})
	registry.Register(rule.NotifyExecutor{Store: store, Channel: "voltagecore:alerts"})
	registry.Register(rule.TriggerActionExecutor{Dispatcher: dispatch})
	trace := rule.NewTraceHistory(cfg.TraceHistorySize)
	_ = rule.NewEngine(store, registry, trace) // readied for whatever external scheduler drives rule evaluation (§1: no HTTP API in this process)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if db != nil {
		_ = instance.New(store, ks, db) // readied for the same external collaborator

		reconciler := reload.NewReconciler(db, manager, cache)
		go runReloadLoop(ctx, reconciler)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("shutting down")
	cancel()
	return nil
}

// runReloadLoop periodically reconciles runtime channel state against the
// durable store, per §4.9's hot-reload contract; the first pass runs
// immediately so the process starts with every configured channel live.
func runReloadLoop(ctx context.Context, reconciler *reload.Reconciler) {
	reconcile := func() {
		result := reconciler.ReloadFromDatabase(ctx)
		logging.Logger.WithField("added", result.Added).
			WithField("updated", result.Updated).
			WithField("removed", result.Removed).
			WithField("errors", len(result.Errors)).
			Info("reload complete")
	}
	reconcile()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcile()
		}
	}
}

func openRTDB(cfg *config.Core) (rtdb.Rtdb, error) {
	switch cfg.RTDBBackend {
	case "redis":
		return redisrtdb.New(cfg.RTDBURL)
	default:
		return memrtdb.New(), nil
	}
}
