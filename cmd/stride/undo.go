package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/ui"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the last delete",
	Long: `Restore the tasks removed by the most recent delete. The undo
window is short and single-shot: once it expires or is used, the delete
is final. To revert a completion instead, use stride done --undo.`,
	Run: func(cmd *cobra.Command, args []string) {
		restored, err := engine.Undo(rootCtx)
		if errors.Is(err, reconcile.ErrNothingToUndo) {
			fmt.Println(ui.RenderMuted("Nothing to undo."))
			return
		}
		if err != nil {
			FatalError("%v", err)
		}

		if jsonOutput {
			outputJSON(restored)
			return
		}
		if len(restored) == 1 {
			fmt.Printf("%s Restored: %s\n", ui.RenderPass(ui.IconDone), restored[0].Title)
			return
		}
		fmt.Printf("%s Restored %d tasks\n", ui.RenderPass(ui.IconDone), len(restored))
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
}
