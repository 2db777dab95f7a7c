package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbaren/stride/internal/timeparsing"
	"github.com/mbaren/stride/internal/types"
	"github.com/mbaren/stride/internal/ui"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Long: `Add a task, optionally with a due date, tags, subtasks, or a
recurrence rule. A recurrence flag creates the whole series up front.

Due dates accept compact durations (+2d), natural language (tomorrow,
next monday), or absolute dates (2025-01-15).`,
	Example: `  stride add "Water plants"
  stride add "Gym" --due tomorrow --every weekly
  stride add "Rent" --due "Feb 1" --every monthly --auto-renew
  stride add "Deep clean" --due +3d --every custom --frequency weeks --multiplier 6`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.Join(args, " ")
		dueFlag, _ := cmd.Flags().GetString("due")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		subtasks, _ := cmd.Flags().GetStringSlice("subtask")
		every, _ := cmd.Flags().GetString("every")
		frequency, _ := cmd.Flags().GetString("frequency")
		multiplier, _ := cmd.Flags().GetInt("multiplier")
		autoRenew, _ := cmd.Flags().GetBool("auto-renew")

		now := time.Now()

		task := &types.Task{
			Title:     title,
			Tags:      tags,
			AutoRenew: autoRenew,
		}
		for _, text := range subtasks {
			if text = strings.TrimSpace(text); text != "" {
				task.Subtasks = append(task.Subtasks, types.Subtask{Text: text})
			}
		}

		if dueFlag != "" {
			due, err := timeparsing.ParseDueDate(dueFlag, now)
			if err != nil {
				FatalError("invalid --due format %q. Examples: +2d, tomorrow, next monday, 2025-01-15", dueFlag)
			}
			task.DueDate = &due
		}

		if every == "" {
			created, err := engine.Add(rootCtx, task)
			if err != nil {
				FatalError("%v", err)
			}
			printAdded([]*types.Task{created})
			return
		}

		rule := types.Recurrence(every)
		if !rule.IsValid() || rule == types.RecurrenceNone {
			FatalError("invalid --every %q (valid: daily, weekly, monthly, quarterly, yearly, custom)", every)
		}
		task.Recurrence = rule
		task.RecurrenceMultiplier = multiplier
		if rule == types.RecurrenceCustom {
			freq := types.CustomFrequency(frequency)
			if freq == "" || !freq.IsValid() {
				FatalError("--every custom requires --frequency (days, weeks, months, years)")
			}
			task.CustomFrequency = freq
		}

		start := types.DateOf(now)
		if task.DueDate != nil {
			start = *task.DueDate
		}

		created, err := engine.AddRecurring(rootCtx, task, start)
		if err != nil {
			FatalError("%v", err)
		}
		printAdded(created)
	},
}

func printAdded(created []*types.Task) {
	if jsonOutput {
		outputJSON(created)
		return
	}
	now := time.Now()
	if len(created) == 1 {
		fmt.Printf("%s Added\n%s\n", ui.RenderPass(ui.IconDone), ui.RenderTask(created[0], now))
		return
	}
	fmt.Printf("%s Added %d instances\n%s\n", ui.RenderPass(ui.IconDone), len(created),
		ui.RenderTask(created[0], now))
	fmt.Println(ui.RenderMuted(fmt.Sprintf("  ... through %s", lastDueLabel(created))))
}

func lastDueLabel(tasks []*types.Task) string {
	last := tasks[len(tasks)-1]
	if last.DueDate == nil {
		return "the end of the series"
	}
	return last.DueDate.Format("Jan 2 2006")
}

func init() {
	addCmd.Flags().String("due", "", "Due date (+2d, tomorrow, 2025-01-15)")
	addCmd.Flags().StringSlice("tag", nil, "Tag (repeatable)")
	addCmd.Flags().StringSlice("subtask", nil, "Subtask (repeatable)")
	addCmd.Flags().String("every", "", "Recurrence rule (daily, weekly, monthly, quarterly, yearly, custom)")
	addCmd.Flags().String("frequency", "", "Custom recurrence unit (days, weeks, months, years)")
	addCmd.Flags().Int("multiplier", 0, "Repeat every N periods")
	addCmd.Flags().Bool("auto-renew", false, "Start a fresh series when the last instance completes")
	rootCmd.AddCommand(addCmd)
}
