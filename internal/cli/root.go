// Package cli implements the pmctl commands on top of the dashboard app.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/dashboard"
	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const dateLayout = "2006-01-02"

// Options configure the root command. Client may be nil, in which case one
// is built from the config.
type Options struct {
	Config  *config.Config
	Client  *api.Client
	Version string
}

type runner struct {
	opts    Options
	app     *dashboard.App
	project string
}

func NewRootCommand(opts Options) *cobra.Command {
	r := &runner{opts: opts}

	root := &cobra.Command{
		Use:   "pmctl",
		Short: "Project dashboard client",
		Long: `pmctl is the terminal client of the project dashboard.
Administrators manage projects, stages and the task list; clients follow
their project and talk to the studio.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return r.init()
		},
	}
	root.PersistentFlags().StringVarP(&r.project, "project", "p", "", "project id (clients default to their own project)")

	root.AddCommand(
		r.loginCmd(),
		r.logoutCmd(),
		r.whoamiCmd(),
		r.projectsCmd(),
		r.createCmd(),
		r.showCmd(),
		r.watchCmd(),
		r.setCmd(),
		r.stageCmd(),
		r.sendCmd(),
		r.attachCmd(),
		r.todosCmd(),
	)
	return root
}

func (r *runner) init() error {
	if r.app != nil {
		return nil
	}
	r.app = dashboard.New(r.opts.Config, r.opts.Client)
	if _, err := r.app.Session.Restore(); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return nil
}

// projectID resolves the project a command works on: the positional
// argument, then --project, then the client's own project.
func (r *runner) projectID(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if r.project != "" {
		return r.project, nil
	}
	if s, ok := r.app.Session.Current(); ok && s.Role == domain.RoleClient {
		return s.Subject, nil
	}
	return "", errors.New("a project id is required (use --project)")
}

// open loads the project without starting the poller.
func (r *runner) open(cmd *cobra.Command, args []string) error {
	id, err := r.projectID(args)
	if err != nil {
		return err
	}
	_, err = r.app.Store.Load(cmd.Context(), id)
	return err
}

func readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Describe turns an error into the line shown to the user.
func Describe(err error) string {
	var verr *api.ValidationError
	var nerr *api.NetworkError
	var orphan *api.OrphanedUploadError
	switch {
	case errors.As(err, &orphan):
		return fmt.Sprintf("the file was uploaded (%s) but the message failed: %s; retry with 'pmctl send --attachment %s'",
			orphan.Attachment.URL, Describe(orphan.Err), orphan.Attachment.URL)
	case errors.Is(err, api.ErrAuth):
		return "wrong id or password"
	case errors.Is(err, api.ErrSessionExpired):
		return "your session has expired, run 'pmctl login' again"
	case errors.Is(err, api.ErrNoSession):
		return "not logged in, run 'pmctl login' first"
	case errors.Is(err, api.ErrForbidden):
		return "this action is not available for your role"
	case errors.Is(err, api.ErrNotFound):
		return "project not found"
	case errors.Is(err, api.ErrConflict):
		return err.Error()
	case errors.As(err, &verr):
		return "invalid input: " + verr.Error()
	case errors.As(err, &nerr):
		return "server unreachable, try again: " + nerr.Error()
	default:
		return err.Error()
	}
}
