package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/reorder"
	"github.com/nhle/taskboard/internal/store"
	"github.com/nhle/taskboard/internal/theme"
)

func newMoveCmd(a *app) *cobra.Command {
	var status, user string
	var index int
	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move a task to a position in a column",
		Long: `Move a task to --index of the --status column (zero-based, counted
without the task itself). Indexes past the end append. Without --status the
task stays in its column.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				res, err := a.coordinator(s).Reorder(ctxOf(cmd), reorder.Request{
					TaskID:      args[0],
					Column:      model.ColumnKey{Status: status},
					Index:       index,
					RequesterID: user,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "%s\t%s\t%s\n", res.Moved.ID, res.Moved.Status, res.Moved.Rank)
				if res.Outcome == reorder.OutcomeRebalanced {
					fmt.Fprintln(out(cmd), theme.WarningStyle.Render(fmt.Sprintf(
						"column rebalanced (%s), %d other tasks re-ranked", res.Reason, len(res.Affected))))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "destination column")
	cmd.Flags().IntVar(&index, "index", 0, "destination position")
	cmd.Flags().StringVar(&user, "user", "", "requester; must own the project when set")
	return cmd
}

func newColumnCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "column <project-id> <status>",
		Short: "Show one column in rank order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			col := model.ColumnKey{ProjectID: args[0], Status: args[1]}
			if !model.ValidStatus(col.Status) {
				return fmt.Errorf("unknown status %q", col.Status)
			}
			return a.withStore(func(s *store.SQLiteStore) error {
				if _, err := s.GetProjectByID(ctxOf(cmd), col.ProjectID); err != nil {
					return err
				}
				tasks, err := s.FindColumnOrderedByRank(ctxOf(cmd), col)
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), theme.RenderColumn(col, tasks, time.Now()))
				return nil
			})
		},
	}
}

func newRebalanceCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "rebalance <project-id>",
		Short: "Rewrite ranks of a project's columns, keeping their order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				c := a.coordinator(s)
				var (
					updated []model.Task
					err     error
				)
				if status != "" {
					if _, err := s.GetProjectByID(ctxOf(cmd), args[0]); err != nil {
						return err
					}
					updated, err = c.RebalanceColumn(ctxOf(cmd), model.ColumnKey{ProjectID: args[0], Status: status})
				} else {
					updated, err = c.RebalanceProject(ctxOf(cmd), args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out(cmd), "re-ranked %d tasks\n", len(updated))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only this column")
	return cmd
}
