package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Run: func(cmd *cobra.Command, args []string) {
		s := ui.CollectStats(engine.Tasks(), time.Now())

		// engine.Tasks holds the working set; completed history lives in
		// the store.
		_, completedTotal, err := store.LoadCompleted(rootCtx, 1, 0)
		if err == nil {
			s.Completed = completedTotal
		}

		if jsonOutput {
			outputJSON(s)
			return
		}
		fmt.Println(ui.RenderStats(s))
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
