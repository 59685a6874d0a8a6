package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	var status, description string
	var priority int
	add := &cobra.Command{
		Use:   "add <project-id> <title>",
		Short: "Add a task to the bottom of a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				if _, err := s.GetProjectByID(ctxOf(cmd), args[0]); err != nil {
					return err
				}
				t, err := s.CreateTask(ctxOf(cmd), model.Task{
					ProjectID:   args[0],
					Title:       args[1],
					Description: description,
					Status:      status,
					Priority:    priority,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s\t%s\t%s\n", t.ID, t.Status, t.Rank)
				return nil
			})
		},
	}
	add.Flags().StringVar(&status, "status", model.StatusOpen, "board column")
	add.Flags().StringVar(&description, "description", "", "task description")
	add.Flags().IntVar(&priority, "priority", model.PriorityMedium, "priority 1 (critical) to 5 (lowest)")

	var listStatus string
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's tasks by column and rank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.TaskFilter{ProjectID: &args[0]}
			if listStatus != "" {
				filter.Status = &listStatus
			}
			return a.withStore(func(s *store.SQLiteStore) error {
				tasks, err := s.GetTasks(ctxOf(cmd), filter)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Fprintf(out(cmd), "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Rank, t.Title)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&listStatus, "status", "", "only this column")

	cmd.AddCommand(add, list)
	return cmd
}
