package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamtask/internal/app"
	"teamtask/internal/domain"
	"teamtask/internal/engine"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks as the --as user",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskStatsCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (Manager or Admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				t, err := ac.Engine.CreateTask(ctx, p, opts)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "task description")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee user id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assigned-to")
	return cmd
}

func taskListCmd() *cobra.Command {
	var opts engine.TaskListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				tasks, err := ac.Engine.ListTasks(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Created By", "Updated"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.AssignedTo, t.CreatedBy, t.UpdatedAt})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "Total", len(tasks)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter (ToDo, InProgress, Done)")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee filter (Manager and Admin only)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				t, err := ac.Engine.GetTask(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, description, assignedTo, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task; Members may only change status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("assigned-to") {
				patch.AssignedTo = &assignedTo
			}
			if cmd.Flags().Changed("status") {
				s := domain.Status(status)
				patch.Status = &s
			}
			if patch.Fields().Empty() {
				return fmt.Errorf("nothing to update; pass --title, --description, --assigned-to or --status")
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				t, err := ac.Engine.UpdateTask(ctx, p, args[0], patch)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "new assignee user id")
	cmd.Flags().StringVar(&status, "status", "", "new status (ToDo, InProgress, Done)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task (Manager or Admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				if err := ac.Engine.DeleteTask(ctx, p, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func taskStatsCmd() *cobra.Command {
	var opts engine.TaskListOptions
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count visible tasks per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := actingAs(ctx, ac)
				if err != nil {
					return err
				}
				counts, err := ac.Engine.TaskStats(ctx, p, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Tasks"})
				total := 0
				for _, s := range domain.Statuses() {
					tw.AppendRow(table.Row{s, counts[s]})
					total += counts[s]
				}
				tw.AppendFooter(table.Row{"Total", total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee filter (Manager and Admin only)")
	return cmd
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Description", t.Description},
		{"Status", t.Status},
		{"Assigned To", t.AssignedTo},
		{"Created By", t.CreatedBy},
		{"Created", t.CreatedAt},
		{"Updated", t.UpdatedAt},
	})
	tw.Render()
	return nil
}
