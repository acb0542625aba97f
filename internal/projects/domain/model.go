package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role identifies which side of the dashboard a token belongs to.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

// Status is the delivery status of a project. Any value may follow any other.
type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
)

func (s Status) Valid() bool {
	return s == StatusNew || s == StatusInProgress || s == StatusCompleted
}

// Project is the metadata part of the aggregate.
// Version increases on every write and guards whole-stage-list replacement.
type Project struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	Price      decimal.Decimal `json:"price"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Outstanding reports whether the client still owes money on the project.
func (p Project) Outstanding() bool {
	return p.PaidAmount.LessThan(p.Price)
}

type Stage struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Attachment points at a file held by the upload collaborator.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type Message struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"project_id"`
	Sender     Role        `json:"sender"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	// Seq is the server-side log position, used to order equal timestamps.
	Seq int64 `json:"seq"`
}

// Aggregate is fetched and refreshed as one unit.
type Aggregate struct {
	Details  Project   `json:"details"`
	Stages   []Stage   `json:"stages"`
	Messages []Message `json:"messages"`
}

// Progress is the stage completion ratio in percent, rounded down.
func (a *Aggregate) Progress() int {
	return Progress(a.Stages)
}

// Clone returns a deep copy so callers can never mutate a shared snapshot.
func (a *Aggregate) Clone() *Aggregate {
	if a == nil {
		return nil
	}
	out := &Aggregate{Details: a.Details}
	if a.Details.Deadline != nil {
		d := *a.Details.Deadline
		out.Details.Deadline = &d
	}
	out.Stages = append(make([]Stage, 0, len(a.Stages)), a.Stages...)
	out.Messages = make([]Message, 0, len(a.Messages))
	for _, m := range a.Messages {
		if m.Attachment != nil {
			att := *m.Attachment
			m.Attachment = &att
		}
		out.Messages = append(out.Messages, m)
	}
	return out
}

// Progress computes floor(done / total * 100). No stages means 0.
func Progress(stages []Stage) int {
	if len(stages) == 0 {
		return 0
	}
	done := 0
	for _, s := range stages {
		if s.Done {
			done++
		}
	}
	return done * 100 / len(stages)
}

// ProjectSummary is one row of the admin project list.
type ProjectSummary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	Price      decimal.Decimal `json:"price"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewProject is the admin input for project creation.
type NewProject struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Deadline *time.Time      `json:"deadline,omitempty"`
	Stages   []string        `json:"stages,omitempty"`
}

// ProjectCredentials are returned once on creation. The password is never
// retrievable again.
type ProjectCredentials struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// ProjectUpdate carries only the fields the admin intends to change.
// Stages replaces the whole checklist and requires ExpectedVersion.
type ProjectUpdate struct {
	Status          *Status          `json:"status,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Deadline        *time.Time       `json:"deadline,omitempty"`
	ClearDeadline   bool             `json:"clear_deadline,omitempty"`
	Stages          []Stage          `json:"stages,omitempty"`
	ExpectedVersion *int64           `json:"version,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ProjectUpdate) Empty() bool {
	return u.Status == nil && u.Price == nil && u.Deadline == nil && !u.ClearDeadline && u.Stages == nil
}

// Todo is an entry of the admin-only task list. It has no relation to projects.
type Todo struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Upload describes a stored file returned by the upload endpoint.
type Upload struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Type     string `json:"type"`
}

// PaymentEvent is sent by the payment gateway.
type PaymentEvent struct {
	EventID   string          `json:"event_id"`
	ProjectID string          `json:"project_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Principal is the authenticated caller as seen by the backend.
// For clients Subject is the project id they logged into.
type Principal struct {
	Role    Role
	Subject string
}

// CanRead reports whether the caller may see the given project.
func (p Principal) CanRead(projectID string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleClient:
		return p.Subject == projectID
	default:
		return false
	}
}
