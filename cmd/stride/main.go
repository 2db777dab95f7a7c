package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/config"
	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/session"
	"github.com/mbaren/stride/internal/storage"
	"github.com/mbaren/stride/internal/storage/postgres"
	"github.com/mbaren/stride/internal/telemetry"
	"github.com/mbaren/stride/internal/ui"
)

var (
	configDir   string
	dsnFlag     string
	ownerFlag   string
	jsonOutput  bool
	yesFlag     bool
	verboseFlag bool
	quietFlag   bool

	cfg      *config.Config
	store    storage.Gateway
	pgStore  *postgres.Store
	engine   *reconcile.Engine
	sess     *session.Session
	reloader *session.Reloader

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noStoreCommands don't need a database connection.
var noStoreCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if noStoreCommands[c.Name()] {
			return false
		}
	}
	return true
}

var rootCmd = &cobra.Command{
	Use:   "stride",
	Short: "stride - Personal task manager",
	Long:  `A task manager that syncs across your devices. Edits apply instantly and reconcile with the hosted store in the background.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("stride version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if verboseFlag {
			debug.SetVerbose(true)
		}
		if quietFlag {
			debug.SetQuiet(true)
		}
		ui.Configure()

		if configDir == "" {
			configDir = config.DefaultConfigDir()
		}
		var err error
		cfg, err = config.Load(configDir)
		if err != nil {
			FatalError("%v", err)
		}
		if dsnFlag != "" {
			cfg.StoreDSN = dsnFlag
		}
		if ownerFlag != "" {
			cfg.Owner = ownerFlag
		}

		if err := telemetry.Init(rootCtx, "stride", Version); err != nil {
			WarnError("telemetry init failed: %v", err)
		}

		if !needsStore(cmd) {
			return
		}
		openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()

		if rootCancel != nil {
			rootCancel()
		}
	},
}

// openStore connects to the hosted store and seeds the in-memory engine
// with an initial load.
func openStore() {
	if cfg.StoreDSN == "" {
		FatalErrorWithHint("no store configured",
			fmt.Sprintf("Set store_dsn in %s or pass --store", config.Path(configDir)))
	}
	if cfg.Owner == "" {
		FatalErrorWithHint("no owner configured",
			fmt.Sprintf("Set owner in %s or pass --owner", config.Path(configDir)))
	}

	var err error
	pgStore, err = postgres.Open(rootCtx, cfg.StoreDSN, postgres.Options{
		Owner:   cfg.Owner,
		Channel: cfg.Channel,
	})
	if err != nil {
		FatalError("%v", err)
	}
	store = telemetry.WrapGateway(pgStore)

	engine = reconcile.New(store, reconcile.Options{
		GuardWindow: cfg.GuardWindow,
		UndoExpiry:  cfg.UndoExpiry,
		BatchSize:   cfg.BatchSize,
		Policy:      cfg.Policy(),
	})
	sess = session.New(engine, store)
	reloader = session.NewReloader(engine, store, session.ReloadOptions{
		Debounce:    cfg.ReloadDebounce,
		LoadTimeout: cfg.LoadTimeout,
	})

	if err := reloader.InitialLoad(rootCtx); err != nil {
		FatalError("loading tasks: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Config directory (default: ~/.config/stride)")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "store", "", "Store connection string (overrides config)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "Account owner (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Assume yes for confirmation prompts")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
