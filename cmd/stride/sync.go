package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/config"
	"github.com/mbaren/stride/internal/debug"
	"github.com/mbaren/stride/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the realtime sync loop",
	Long: `Stay connected to the store and reconcile continuously: realtime
change events from other devices trigger debounced reloads, a periodic
full reload catches anything missed, and config edits are picked up
without a restart. Runs until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		once, _ := cmd.Flags().GetBool("once")
		if once {
			reloader.ReloadNow(rootCtx)
			if !debug.IsQuiet() {
				fmt.Printf("%s Synced %d tasks\n", ui.RenderPass(ui.IconDone), len(engine.Tasks()))
			}
			return
		}

		notifier := pgStore.NewNotifier()

		// Realtime subscription; reconnects internally.
		errCh := make(chan error, 1)
		go func() {
			errCh <- reloader.Run(rootCtx, notifier)
		}()

		go watchConfig()

		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		if !debug.IsQuiet() {
			fmt.Fprintln(os.Stderr, "Syncing... (Press Ctrl+C to exit)")
		}

		for {
			select {
			case <-rootCtx.Done():
				fmt.Fprintln(os.Stderr, "\nStopped.")
				return
			case err := <-errCh:
				if rootCtx.Err() != nil {
					return
				}
				FatalError("realtime subscription failed: %v", err)
			case <-ticker.C:
				reloader.Trigger("periodic")
			}
		}
	},
}

// watchConfig reloads tunable settings when the config file changes.
// Settings that require a reconnect (store_dsn, owner, channel) only take
// effect on restart.
func watchConfig() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		debug.Warnf("config watch unavailable: %v", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(configDir); err != nil {
		debug.Warnf("config watch unavailable: %v", err)
		return
	}

	var debounce *time.Timer
	for {
		select {
		case <-rootCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != config.ConfigFile {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, func() {
				fresh, err := config.Load(configDir)
				if err != nil {
					debug.Warnf("config reload failed: %v", err)
					return
				}
				debug.Logf("config reloaded from %s (interval %s)", config.Path(configDir), fresh.SyncInterval)
				reloader.Trigger("config change")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			debug.Warnf("config watch error: %v", err)
		}
	}
}

func init() {
	syncCmd.Flags().Bool("once", false, "Reload once and exit")
	rootCmd.AddCommand(syncCmd)
}
