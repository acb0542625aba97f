// Package memstore keeps every table of the backend in process memory. It
// backs DB_DRIVER=memory for local runs and the end-to-end tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	authdomain "github.com/pmsystem/pmdash/internal/auth/domain"
	"github.com/pmsystem/pmdash/internal/projects/domain"
	"github.com/pmsystem/pmdash/internal/projects/repository"
)

type projectRow struct {
	project domain.Project
	hash    string
	stages  []domain.Stage
}

// DB is the shared state behind the per-table views.
type DB struct {
	mu       sync.Mutex
	now      func() time.Time
	seq      int64
	admins   map[string]string
	projects map[string]*projectRow
	messages []domain.Message
	todos    []domain.Todo
	uploads  map[string]repository.StoredObject
	payments map[string]struct{}
}

func New() *DB {
	return &DB{
		now:      time.Now,
		admins:   make(map[string]string),
		projects: make(map[string]*projectRow),
		uploads:  make(map[string]repository.StoredObject),
		payments: make(map[string]struct{}),
	}
}

// SetClock replaces the time source. Used by tests that need equal timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

func (db *DB) Projects() *Projects { return &Projects{db: db} }
func (db *DB) Messages() *Messages { return &Messages{db: db} }
func (db *DB) Todos() *Todos       { return &Todos{db: db} }
func (db *DB) Uploads() *Uploads   { return &Uploads{db: db} }
func (db *DB) Admins() *Admins     { return &Admins{db: db} }

// Projects mirrors repository.ProjectRepository.
type Projects struct{ db *DB }

func (p *Projects) Create(_ context.Context, in domain.NewProject, passwordHash string) (*domain.Project, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name required")
	}

	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	var id string
	for {
		var err error
		id, err = domain.NewProjectID()
		if err != nil {
			return nil, err
		}
		if _, taken := p.db.projects[id]; !taken {
			break
		}
	}

	row := &projectRow{
		project: domain.Project{
			ID:         id,
			Name:       in.Name,
			Status:     domain.StatusNew,
			Price:      in.Price,
			PaidAmount: decimal.Zero,
			Deadline:   in.Deadline,
			Version:    1,
			CreatedAt:  p.db.now(),
		},
		hash: passwordHash,
	}
	for _, title := range in.Stages {
		row.stages = append(row.stages, domain.Stage{Title: title})
	}
	p.db.projects[id] = row

	out := row.project
	return &out, nil
}

func (p *Projects) List(context.Context) ([]domain.ProjectSummary, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	out := make([]domain.ProjectSummary, 0, len(p.db.projects))
	for _, row := range p.db.projects {
		pr := row.project
		out = append(out, domain.ProjectSummary{
			ID:         pr.ID,
			Name:       pr.Name,
			Status:     pr.Status,
			Price:      pr.Price,
			PaidAmount: pr.PaidAmount,
			Deadline:   pr.Deadline,
			CreatedAt:  pr.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (p *Projects) PasswordHash(_ context.Context, id string) (string, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	row, ok := p.db.projects[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return row.hash, nil
}

func (p *Projects) Aggregate(_ context.Context, id string) (*domain.Aggregate, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	row, ok := p.db.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	agg := &domain.Aggregate{
		Details:  row.project,
		Stages:   append([]domain.Stage{}, row.stages...),
		Messages: p.db.messagesOf(id),
	}
	return agg.Clone(), nil
}

func (p *Projects) Update(_ context.Context, id string, upd domain.ProjectUpdate) (int64, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	row, ok := p.db.projects[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if upd.Stages != nil {
		if upd.ExpectedVersion == nil || *upd.ExpectedVersion != row.project.Version {
			return 0, domain.ErrVersionConflict
		}
	}
	if upd.Price != nil && upd.Price.LessThan(row.project.PaidAmount) {
		return 0, domain.Invalid("price", "must not be below the paid amount %s", row.project.PaidAmount.String())
	}

	if upd.Status != nil {
		row.project.Status = *upd.Status
	}
	if upd.Price != nil {
		row.project.Price = *upd.Price
	}
	if upd.Deadline != nil {
		d := *upd.Deadline
		row.project.Deadline = &d
	}
	if upd.ClearDeadline {
		row.project.Deadline = nil
	}
	if upd.Stages != nil {
		row.stages = append([]domain.Stage{}, upd.Stages...)
	}
	row.project.Version++
	return row.project.Version, nil
}

func (p *Projects) SetStage(_ context.Context, id string, index int, done bool) (int64, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	row, ok := p.db.projects[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if index < 0 || index >= len(row.stages) {
		return 0, domain.ErrStageIndex
	}
	row.stages[index].Done = done
	row.project.Version++
	return row.project.Version, nil
}

func (p *Projects) RecordPayment(_ context.Context, ev domain.PaymentEvent) (decimal.Decimal, bool, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()

	row, ok := p.db.projects[ev.ProjectID]
	if !ok {
		return decimal.Zero, false, domain.ErrNotFound
	}
	if _, seen := p.db.payments[ev.EventID]; seen {
		return row.project.PaidAmount, false, nil
	}
	paid := row.project.PaidAmount.Add(ev.Amount)
	if paid.GreaterThan(row.project.Price) {
		return decimal.Zero, false, domain.Invalid("amount", "payment exceeds the outstanding balance")
	}
	p.db.payments[ev.EventID] = struct{}{}
	row.project.PaidAmount = paid
	row.project.Version++
	return paid, true, nil
}

// Messages mirrors repository.MessageRepository.
type Messages struct{ db *DB }

func (m *Messages) Append(_ context.Context, msg *domain.Message) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	if _, ok := m.db.projects[msg.ProjectID]; !ok {
		return domain.ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.db.seq++
	msg.Seq = m.db.seq
	msg.Timestamp = m.db.now()

	stored := *msg
	if msg.Attachment != nil {
		att := *msg.Attachment
		stored.Attachment = &att
	}
	m.db.messages = append(m.db.messages, stored)
	return nil
}

func (m *Messages) ListByProject(_ context.Context, projectID string) ([]domain.Message, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.messagesOf(projectID), nil
}

func (db *DB) messagesOf(projectID string) []domain.Message {
	out := make([]domain.Message, 0)
	for _, msg := range db.messages {
		if msg.ProjectID == projectID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Todos mirrors repository.TodoRepository.
type Todos struct{ db *DB }

func (t *Todos) List(context.Context) ([]domain.Todo, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	return append([]domain.Todo{}, t.db.todos...), nil
}

func (t *Todos) Create(_ context.Context, text string) (*domain.Todo, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	todo := domain.Todo{ID: uuid.NewString(), Text: text, CreatedAt: t.db.now()}
	t.db.todos = append(t.db.todos, todo)
	return &todo, nil
}

func (t *Todos) Delete(_ context.Context, id string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	for i, todo := range t.db.todos {
		if todo.ID == id {
			t.db.todos = append(t.db.todos[:i], t.db.todos[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// Uploads mirrors repository.UploadRepository.
type Uploads struct{ db *DB }

func (u *Uploads) Record(_ context.Context, o repository.StoredObject) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	if _, ok := u.db.uploads[o.Key]; ok {
		return nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = u.db.now()
	}
	u.db.uploads[o.Key] = o
	return nil
}

func (u *Uploads) ListOrphans(_ context.Context, cutoff time.Time) ([]repository.StoredObject, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	referenced := make(map[string]bool)
	for _, msg := range u.db.messages {
		if msg.Attachment != nil {
			referenced[msg.Attachment.URL] = true
		}
	}

	var out []repository.StoredObject
	for _, o := range u.db.uploads {
		if o.CreatedAt.Before(cutoff) && !referenced[o.URL] {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (u *Uploads) Delete(_ context.Context, key string) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	delete(u.db.uploads, key)
	return nil
}

// Admins mirrors the auth admin repository.
type Admins struct{ db *DB }

func (a *Admins) PasswordHash(_ context.Context, username string) (string, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()

	h, ok := a.db.admins[username]
	if !ok {
		return "", authdomain.ErrInvalidCredentials
	}
	return h, nil
}

func (a *Admins) Count(context.Context) (int, error) {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	return len(a.db.admins), nil
}

func (a *Admins) Create(_ context.Context, username, passwordHash string) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()

	if _, ok := a.db.admins[username]; !ok {
		a.db.admins[username] = passwordHash
	}
	return nil
}
