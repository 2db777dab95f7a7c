package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/ui"
)

var extendCmd = &cobra.Command{
	Use:   "extend <id>",
	Short: "Extend a recurring series with another batch",
	Long: `Generate the next batch of instances for a recurring series,
continuing from its current last instance. The new batch follows the
series' existing rule.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveTaskID(args[0])

		created, err := engine.ExtendGroup(rootCtx, id)
		if err != nil {
			FatalError("%v", err)
		}
		if len(created) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to extend."))
			return
		}

		if jsonOutput {
			outputJSON(created)
			return
		}
		fmt.Printf("%s Added %d instances\n%s\n", ui.RenderPass(ui.IconDone), len(created),
			ui.RenderTask(created[0], time.Now()))
		fmt.Println(ui.RenderMuted(fmt.Sprintf("  ... through %s", lastDueLabel(created))))
	},
}

func init() {
	rootCmd.AddCommand(extendCmd)
}
