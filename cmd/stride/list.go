package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/types"
	"github.com/mbaren/stride/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List incomplete tasks, sorted by due date. Completed tasks are
paged from the store with --done.`,
	Run: func(cmd *cobra.Command, args []string) {
		done, _ := cmd.Flags().GetBool("done")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		tag, _ := cmd.Flags().GetString("tag")
		overdue, _ := cmd.Flags().GetBool("overdue")
		groupID, _ := cmd.Flags().GetString("group")

		now := time.Now()

		if done {
			tasks, total, err := store.LoadCompleted(rootCtx, limit, offset)
			if err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				outputJSON(map[string]interface{}{"tasks": tasks, "total": total})
				return
			}
			if len(tasks) == 0 {
				fmt.Println(ui.RenderMuted("No completed tasks."))
				return
			}
			fmt.Println(ui.RenderTaskList(tasks, now))
			if total > offset+len(tasks) {
				fmt.Println(ui.RenderMuted(fmt.Sprintf("Showing %d-%d of %d (use --offset %d for more)",
					offset+1, offset+len(tasks), total, offset+limit)))
			}
			return
		}

		falseVal := false
		filter := types.TaskFilter{
			Tag:       tag,
			GroupID:   groupID,
			Overdue:   overdue,
			Completed: &falseVal,
		}
		tasks := types.Filter(engine.Tasks(), filter, now)
		types.SortByDueDate(tasks)

		if jsonOutput {
			outputJSON(tasks)
			return
		}
		if len(tasks) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to do."))
			return
		}
		fmt.Println(ui.RenderTaskList(tasks, now))
	},
}

func init() {
	listCmd.Flags().Bool("done", false, "List completed tasks instead")
	listCmd.Flags().Int("limit", 50, "Page size for --done")
	listCmd.Flags().Int("offset", 0, "Page offset for --done")
	listCmd.Flags().String("tag", "", "Only tasks with this tag")
	listCmd.Flags().String("group", "", "Only instances of this recurring group")
	listCmd.Flags().Bool("overdue", false, "Only overdue tasks")
	rootCmd.AddCommand(listCmd)
}
