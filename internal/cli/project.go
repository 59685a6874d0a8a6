package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/store"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var owner, description string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				p, err := s.CreateProject(ctxOf(cmd), model.Project{
					Name:        args[0],
					Description: description,
					OwnerID:     owner,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out(cmd), p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&owner, "owner", "", "owner user ID")
	add.Flags().StringVar(&description, "description", "", "project description")

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				projects, err := s.GetProjects(ctxOf(cmd), all)
				if err != nil {
					return err
				}
				for _, p := range projects {
					line := fmt.Sprintf("%s\t%s", p.ID, p.Name)
					if p.Archived {
						line += "\t(archived)"
					}
					fmt.Fprintln(out(cmd), line)
				}
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "include archived projects")

	archive := &cobra.Command{
		Use:   "archive <project-id>",
		Short: "Archive a project; its tasks can no longer be moved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				return s.ArchiveProject(ctxOf(cmd), args[0])
			})
		},
	}

	cmd.AddCommand(add, list, archive)
	return cmd
}
