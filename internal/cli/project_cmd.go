package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/dashboard/scheduler"
	"github.com/pmsystem/pmdash/internal/projects/domain"
	"github.com/pmsystem/pmdash/internal/projects/service"
)

func (r *runner) projectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List all projects (admin)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireAdmin(); err != nil {
				return err
			}
			items, err := r.app.Catalog.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			renderProjects(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func (r *runner) createCmd() *cobra.Command {
	var (
		name     string
		price    string
		deadline string
		stages   []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project and print its one-time client password (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.NewProject{Name: name, Stages: stages}
			p, err := service.ParsePrice(price)
			if err != nil {
				return err
			}
			in.Price = p
			if deadline != "" {
				d, err := time.Parse(dateLayout, deadline)
				if err != nil {
					return fmt.Errorf("deadline must look like %s", dateLayout)
				}
				in.Deadline = &d
			}

			creds, err := r.app.Mutations.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project created: %s\n", creds.ID)
			fmt.Fprintf(out, "Client password: %s\n", creds.Password)
			fmt.Fprintln(out, "The password is shown only once. Send it to the client now.")
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&price, "price", "0", "project price")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline ("+dateLayout+")")
	cmd.Flags().StringArrayVar(&stages, "stage", nil, "stage title, repeat for more stages")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (r *runner) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [project-id]",
		Short: "Show a project as seen by your role",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.open(cmd, args); err != nil {
				return err
			}
			return r.render(cmd)
		},
	}
}

func (r *runner) render(cmd *cobra.Command) error {
	vm, ok := r.app.View()
	if !ok {
		return fmt.Errorf("nothing to show")
	}
	renderView(cmd.OutOrStdout(), vm)
	return nil
}

func (r *runner) watchCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch [project-id]",
		Short: "Follow a project until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := r.projectID(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			out := cmd.OutOrStdout()
			var lastVersion int64
			seen := 0
			r.app.Store.OnCommit(func(agg *domain.Aggregate) {
				vm, ok := r.app.View()
				if !ok {
					return
				}
				if lastVersion != 0 && agg.Details.Version != lastVersion {
					fmt.Fprintf(out, "-- updated: %s, progress %d%%\n", agg.Details.Status, vm.Progress)
				}
				lastVersion = agg.Details.Version
				st := newStyles(out)
				for _, m := range vm.Messages[min(seen, len(vm.Messages)):] {
					renderMessage(out, st, m)
				}
				seen = len(vm.Messages)
			})

			if _, err := r.app.OpenProject(ctx, id); err != nil {
				return err
			}
			defer r.app.CloseProject()

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					// polling stops by itself once the session is gone
					if r.app.Scheduler.State() != scheduler.Idle {
						continue
					}
					if _, ok := r.app.Session.Current(); !ok {
						return api.ErrSessionExpired
					}
					return r.app.Scheduler.LastError()
				}
			}
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 means until interrupted)")
	return cmd
}

func (r *runner) setCmd() *cobra.Command {
	var (
		status        string
		price         string
		deadline      string
		clearDeadline bool
	)

	cmd := &cobra.Command{
		Use:   "set [project-id]",
		Short: "Change status, price or deadline (admin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd domain.ProjectUpdate
			if status != "" {
				s := domain.Status(status)
				upd.Status = &s
			}
			if price != "" {
				p, err := service.ParsePrice(price)
				if err != nil {
					return err
				}
				upd.Price = &p
			}
			if deadline != "" {
				d, err := time.Parse(dateLayout, deadline)
				if err != nil {
					return fmt.Errorf("deadline must look like %s", dateLayout)
				}
				upd.Deadline = &d
			}
			upd.ClearDeadline = clearDeadline

			if err := r.requireAdmin(); err != nil {
				return err
			}
			if err := r.open(cmd, args); err != nil {
				return err
			}
			version, err := r.app.Mutations.UpdateProject(cmd.Context(), upd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved (version %d)\n", version)
			return r.render(cmd)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "New, InProgress or Completed")
	cmd.Flags().StringVar(&price, "price", "", "new price")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline ("+dateLayout+")")
	cmd.Flags().BoolVar(&clearDeadline, "clear-deadline", false, "remove the deadline")
	return cmd
}

func (r *runner) stageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage <index> [done|undone|toggle]",
		Short: "Mark one stage of the project (admin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid stage index %q", args[0])
			}
			action := "toggle"
			if len(args) == 2 {
				action = args[1]
			}

			if err := r.requireAdmin(); err != nil {
				return err
			}
			if err := r.open(cmd, nil); err != nil {
				return err
			}

			ctx := cmd.Context()
			switch action {
			case "done":
				_, err = r.app.Mutations.SetStage(ctx, index, true)
			case "undone":
				_, err = r.app.Mutations.SetStage(ctx, index, false)
			case "toggle":
				_, err = r.app.Mutations.ToggleStage(ctx, index)
			default:
				return fmt.Errorf("unknown action %q, use done, undone or toggle", action)
			}
			if err != nil {
				return err
			}
			return r.render(cmd)
		},
	}
}

func (r *runner) requireAdmin() error {
	s, ok := r.app.Session.Current()
	if !ok {
		return api.ErrNoSession
	}
	if s.Role != domain.RoleAdmin {
		return api.ErrForbidden
	}
	return nil
}
