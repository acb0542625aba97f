// Package dashboard wires the client components into one application
// object. Every network call made through it carries the session token.
package dashboard

import (
	"context"

	"github.com/pmsystem/pmdash/config"
	"github.com/pmsystem/pmdash/internal/dashboard/aggregate"
	"github.com/pmsystem/pmdash/internal/dashboard/api"
	"github.com/pmsystem/pmdash/internal/dashboard/chatlog"
	"github.com/pmsystem/pmdash/internal/dashboard/mutation"
	"github.com/pmsystem/pmdash/internal/dashboard/scheduler"
	"github.com/pmsystem/pmdash/internal/dashboard/session"
	"github.com/pmsystem/pmdash/internal/dashboard/view"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

type App struct {
	Session   *session.Manager
	Store     *aggregate.Store
	Catalog   *aggregate.Catalog
	Chat      *chatlog.Log
	Scheduler *scheduler.Scheduler
	Mutations *mutation.Coordinator

	projector view.Projector
}

// New builds the application. When client is nil one is created from the
// configured base URL.
func New(cfg *config.Config, client *api.Client) *App {
	if client == nil {
		client = api.NewClient(cfg.Client.APIBaseURL, cfg.Client.Timeout)
	}

	var store session.Store
	if cfg.Client.SessionFile != "" {
		store = session.NewFileStore(cfg.Client.SessionFile)
	}

	sess := session.NewManager(client, store)
	agg := aggregate.NewStore(client, sess)
	catalog := aggregate.NewCatalog(client, sess)
	chat := chatlog.New(client, sess, agg)
	sched := scheduler.New(agg, cfg.Client.PollInterval)
	mut := mutation.New(client, sess, agg, catalog, chat)

	// the scheduler goes first so no tick commits into a reset store
	sess.OnTeardown(sched.Stop)
	sess.OnTeardown(agg.Reset)
	sess.OnTeardown(catalog.Reset)
	sess.OnTeardown(mut.Reset)

	return &App{
		Session:   sess,
		Store:     agg,
		Catalog:   catalog,
		Chat:      chat,
		Scheduler: sched,
		Mutations: mut,
		projector: view.Projector{Strict: !cfg.IsProduction()},
	}
}

// Login replaces the session. The previous identity's caches are torn down
// by the session manager and its open project is closed once the new
// session is established.
func (a *App) Login(ctx context.Context, role domain.Role, creds session.Credentials) (*session.Session, error) {
	s, err := a.Session.Login(ctx, role, creds)
	if err != nil {
		return nil, err
	}
	a.CloseProject()
	return s, nil
}

// OpenProject loads the project and starts polling it. A client can only
// open the project it logged into.
func (a *App) OpenProject(ctx context.Context, projectID string) (*domain.Aggregate, error) {
	agg, err := a.Store.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := a.Scheduler.Open(agg.Details.ID); err != nil {
		return nil, err
	}
	return agg, nil
}

// CloseProject stops polling and forgets the snapshot.
func (a *App) CloseProject() {
	a.Scheduler.Close()
	a.Store.Close()
}

// View projects the open project for the current role.
func (a *App) View() (view.ViewModel, bool) {
	s, ok := a.Session.Current()
	if !ok {
		return view.ViewModel{}, false
	}
	agg, ok := a.Store.Snapshot()
	if !ok {
		return view.ViewModel{}, false
	}
	return a.projector.Project(s.Role, agg), true
}

// Logout stops polling, then ends the session on both sides.
func (a *App) Logout(ctx context.Context) error {
	a.Scheduler.Close()
	return a.Session.Logout(ctx)
}
