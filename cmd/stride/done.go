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

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Complete a task (or uncomplete a completed one)",
	Long: `Toggle a task's completion. Completing a task with incomplete
subtasks asks for confirmation first; the subtasks complete with it.

Completing the last instance of an auto-renewing series generates the
next batch. Use --undo to revert the most recent completion, which also
removes any instances it generated.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		undo, _ := cmd.Flags().GetBool("undo")
		if undo {
			task, err := engine.UndoComplete(rootCtx)
			if errors.Is(err, reconcile.ErrNothingToUndo) {
				fmt.Println(ui.RenderMuted("Nothing to undo."))
				return
			}
			if err != nil {
				FatalError("%v", err)
			}
			if task == nil {
				fmt.Println(ui.RenderMuted("Task no longer exists."))
				return
			}
			printDone("Uncompleted", task.ID)
			return
		}

		if len(args) == 0 {
			FatalError("task id required (or --undo)")
		}
		id := resolveTaskID(args[0])

		task, err := sess.ToggleComplete(rootCtx, id, yesFlag)
		if errors.Is(err, reconcile.ErrConfirmSubtasks) {
			if !confirmSubtasks(id) {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return
			}
			task, err = sess.ToggleComplete(rootCtx, id, true)
		}
		if err != nil {
			FatalError("%v", err)
		}
		if task == nil {
			fmt.Println(ui.RenderMuted("Task no longer exists."))
			return
		}

		if task.Completed {
			printDone("Completed", task.ID)
		} else {
			printDone("Uncompleted", task.ID)
		}
	},
}

func confirmSubtasks(id string) bool {
	task := engine.Get(id)
	open := 0
	if task != nil {
		for _, st := range task.Subtasks {
			if !st.Completed {
				open++
			}
		}
	}

	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("This task has %d incomplete subtasks. Complete them too?", open)).
			Affirmative("Complete all").
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

func printDone(verb, id string) {
	if jsonOutput {
		outputJSON(engine.Get(id))
		return
	}
	task := engine.Get(id)
	if task == nil {
		fmt.Printf("%s %s\n", ui.RenderPass(ui.IconDone), verb)
		return
	}
	fmt.Printf("%s %s: %s\n", ui.RenderPass(ui.IconDone), verb, task.Title)
}

func init() {
	doneCmd.Flags().Bool("undo", false, "Revert the most recent completion")
	rootCmd.AddCommand(doneCmd)
}
