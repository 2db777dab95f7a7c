package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/ui"
)

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a task",
	Long: `Delete a task. With --series the instance's whole recurring
series is removed: --future (the default) removes incomplete instances due
on or after this one, --open removes every incomplete instance. Completed
instances always survive a series delete.

A single delete can be reverted with stride undo for a few seconds.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveTaskID(args[0])
		series, _ := cmd.Flags().GetBool("series")
		open, _ := cmd.Flags().GetBool("open")

		task := engine.Get(id)
		if task == nil {
			fmt.Println(ui.RenderMuted("Task no longer exists."))
			return
		}

		if !series {
			if err := engine.Delete(rootCtx, []string{id}, id); err != nil {
				FatalError("%v", err)
			}
			if jsonOutput {
				outputJSON(map[string]string{"deleted": id})
				return
			}
			fmt.Printf("%s Deleted: %s %s\n", ui.RenderPass(ui.IconDone), task.Title,
				ui.RenderMuted("(stride undo to revert)"))
			return
		}

		if !task.IsRecurring() {
			FatalError("task is not part of a recurring series")
		}

		mode := reconcile.GroupDeleteFuture
		what := "this and future instances"
		if open {
			mode = reconcile.GroupDeleteOpen
			what = "every open instance"
		}
		if !yesFlag && !confirmSeriesDelete(task.Title, what) {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			return
		}

		if err := engine.DeleteGroup(rootCtx, task.RecurrenceGroupID, mode, id); err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deleted_group": task.RecurrenceGroupID})
			return
		}
		fmt.Printf("%s Deleted %s of %q %s\n", ui.RenderPass(ui.IconDone), what, task.Title,
			ui.RenderMuted("(stride undo to revert)"))
	},
}

func confirmSeriesDelete(title, what string) bool {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %s of %q?", what, title)).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		FatalError("form error: %v", err)
	}
	return confirmed
}

func init() {
	rmCmd.Flags().Bool("series", false, "Delete the recurring series, not just this instance")
	rmCmd.Flags().Bool("open", false, "With --series: delete every open instance, not just future ones")
	rootCmd.AddCommand(rmCmd)
}
