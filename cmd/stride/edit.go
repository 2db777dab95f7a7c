package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/reconcile"
	"github.com/mbaren/stride/internal/session"
	"github.com/mbaren/stride/internal/timeparsing"
	"github.com/mbaren/stride/internal/types"
	"github.com/mbaren/stride/internal/ui"
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a task",
	Long: `Edit a task's fields. On a recurring task, shared-field edits
(title, tags, subtasks) carry over to the future instances of the series;
a recurrence-rule change regenerates the series instead. Changing the rule
on a middle instance asks whether to regenerate all instances or only this
and following ones (pre-select with --all or --following).

--move changes just this instance's due date, leaving siblings untouched.`,
	Example: `  stride edit 4f2a --title "Water the plants"
  stride edit 4f2a --due "next friday" --move
  stride edit 4f2a --every monthly --all
  stride edit 4f2a --clear-recurrence --following`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveTaskID(args[0])

		moveFlag, _ := cmd.Flags().GetBool("move")
		allFlag, _ := cmd.Flags().GetBool("all")
		followingFlag, _ := cmd.Flags().GetBool("following")
		noPropagate, _ := cmd.Flags().GetBool("no-propagate-subtasks")

		updates := collectUpdates(cmd)
		if len(updates) == 0 {
			FatalError("nothing to change (see stride edit --help)")
		}

		if moveFlag {
			if _, ok := updates["due_date"]; !ok || len(updates) != 1 {
				FatalError("--move takes exactly --due and no other field")
			}
		}
		if allFlag && followingFlag {
			FatalError("--all and --following are mutually exclusive")
		}

		var scope reconcile.Scope
		if allFlag {
			scope = reconcile.ScopeAll
		}
		if followingFlag {
			scope = reconcile.ScopeFollowing
		}

		opts := reconcile.UpdateOptions{
			DragMove:                   moveFlag,
			SuppressSubtaskPropagation: noPropagate,
		}

		task, err := sess.Update(rootCtx, id, updates, opts, scope)
		if errors.Is(err, session.ErrChoiceRequired) {
			chosen, ok := chooseScope()
			if !ok {
				sess.Cancel()
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return
			}
			task, err = sess.Resolve(rootCtx, chosen)
		}
		if err != nil {
			FatalError("%v", err)
		}
		if task == nil {
			fmt.Println(ui.RenderMuted("Task no longer exists."))
			return
		}

		if jsonOutput {
			outputJSON(task)
			return
		}
		fmt.Printf("%s Updated\n%s\n", ui.RenderPass(ui.IconDone), ui.RenderTask(task, time.Now()))
	},
}

// collectUpdates translates set flags into an updates map. Unset flags
// leave their fields untouched.
func collectUpdates(cmd *cobra.Command) map[string]interface{} {
	updates := map[string]interface{}{}

	if cmd.Flags().Changed("title") {
		title, _ := cmd.Flags().GetString("title")
		updates["title"] = title
	}
	if cmd.Flags().Changed("due") {
		raw, _ := cmd.Flags().GetString("due")
		due, err := timeparsing.ParseDueDate(raw, time.Now())
		if err != nil {
			FatalError("invalid --due format %q. Examples: +2d, tomorrow, next monday, 2025-01-15", raw)
		}
		updates["due_date"] = due
	}
	if clearDue, _ := cmd.Flags().GetBool("clear-due"); clearDue {
		updates["due_date"] = nil
	}
	if cmd.Flags().Changed("tag") {
		tags, _ := cmd.Flags().GetStringSlice("tag")
		updates["tags"] = tags
	}
	if cmd.Flags().Changed("subtask") {
		raw, _ := cmd.Flags().GetStringSlice("subtask")
		subtasks := make([]types.Subtask, 0, len(raw))
		for _, text := range raw {
			if text = strings.TrimSpace(text); text != "" {
				subtasks = append(subtasks, types.Subtask{Text: text})
			}
		}
		updates["subtasks"] = subtasks
	}
	if cmd.Flags().Changed("every") {
		every, _ := cmd.Flags().GetString("every")
		rule := types.Recurrence(every)
		if !rule.IsValid() || rule == types.RecurrenceNone {
			FatalError("invalid --every %q (valid: daily, weekly, monthly, quarterly, yearly, custom)", every)
		}
		updates["recurrence"] = rule
	}
	if clearRec, _ := cmd.Flags().GetBool("clear-recurrence"); clearRec {
		updates["recurrence"] = types.RecurrenceNone
	}
	if cmd.Flags().Changed("frequency") {
		frequency, _ := cmd.Flags().GetString("frequency")
		freq := types.CustomFrequency(frequency)
		if !freq.IsValid() {
			FatalError("invalid --frequency %q (valid: days, weeks, months, years)", frequency)
		}
		updates["custom_frequency"] = freq
	}
	if cmd.Flags().Changed("multiplier") {
		multiplier, _ := cmd.Flags().GetInt("multiplier")
		updates["recurrence_multiplier"] = multiplier
	}
	if cmd.Flags().Changed("auto-renew") {
		autoRenew, _ := cmd.Flags().GetBool("auto-renew")
		updates["auto_renew"] = autoRenew
	}

	return updates
}

// chooseScope prompts for the regeneration scope of a recurrence-rule
// change on a middle instance.
func chooseScope() (reconcile.Scope, bool) {
	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("This changes the series' recurrence. Apply to:").
			Options(
				huh.NewOption("All instances", string(reconcile.ScopeAll)),
				huh.NewOption("This and following instances", string(reconcile.ScopeFollowing)),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", false
		}
		FatalError("form error: %v", err)
	}
	return reconcile.Scope(choice), true
}

func init() {
	editCmd.Flags().String("title", "", "New title")
	editCmd.Flags().String("due", "", "New due date (+2d, tomorrow, 2025-01-15)")
	editCmd.Flags().Bool("clear-due", false, "Remove the due date")
	editCmd.Flags().Bool("move", false, "Move just this instance (due date only)")
	editCmd.Flags().StringSlice("tag", nil, "Replace tags (repeatable)")
	editCmd.Flags().StringSlice("subtask", nil, "Replace subtasks (repeatable)")
	editCmd.Flags().Bool("no-propagate-subtasks", false, "Keep subtask changes on this instance only")
	editCmd.Flags().String("every", "", "New recurrence rule (daily, weekly, monthly, quarterly, yearly, custom)")
	editCmd.Flags().Bool("clear-recurrence", false, "Detach this task and stop the series")
	editCmd.Flags().String("frequency", "", "Custom recurrence unit (days, weeks, months, years)")
	editCmd.Flags().Int("multiplier", 0, "Repeat every N periods")
	editCmd.Flags().Bool("auto-renew", false, "Renew the series when the last instance completes")
	editCmd.Flags().Bool("all", false, "Apply a rule change to all instances without asking")
	editCmd.Flags().Bool("following", false, "Apply a rule change to this and following instances without asking")
	rootCmd.AddCommand(editCmd)
}
