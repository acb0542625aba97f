// Package view derives what a role sees and may change on a project.
package view

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pmsystem/pmdash/internal/dashboard/chatlog"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

// Field is one displayed value. Present is false when the aggregate lacked
// it and the projector degraded instead of failing.
type Field[T any] struct {
	Value    T
	Present  bool
	Editable bool
}

type StageView struct {
	Index  int
	Title  string
	Done   bool
	Toggle bool
}

type MessageView struct {
	ID         string
	Sender     domain.Role
	Own        bool
	Text       string
	Attachment *domain.Attachment
	Timestamp  time.Time
}

type ViewModel struct {
	Role      domain.Role
	ProjectID string

	Name     Field[string]
	Status   Field[domain.Status]
	Price    Field[decimal.Decimal]
	Paid     Field[decimal.Decimal]
	Deadline Field[*time.Time]
	Progress int

	Stages   []StageView
	Messages []MessageView

	CanPay           bool
	CanSendMessage   bool
	ShowProjectList  bool
	ShowTaskList     bool
	CanCreateProject bool

	// Missing names the required fields the aggregate did not carry.
	Missing []string
}

// Projector is a pure function of (role, aggregate). Strict turns missing
// required fields into a panic, which is what development builds want.
type Projector struct {
	Strict bool
}

func (p Projector) Project(role domain.Role, agg *domain.Aggregate) ViewModel {
	admin := role == domain.RoleAdmin
	vm := ViewModel{
		Role:             role,
		ShowProjectList:  admin,
		ShowTaskList:     admin,
		CanCreateProject: admin,
	}
	if !role.Valid() {
		p.missing(&vm, "role")
		return vm
	}
	if agg == nil {
		p.missing(&vm, "aggregate")
		return vm
	}

	d := agg.Details
	vm.ProjectID = d.ID
	if d.ID == "" {
		p.missing(&vm, "details.id")
	}
	vm.CanSendMessage = d.ID != ""

	vm.Name = Field[string]{Value: d.Name, Present: d.Name != ""}
	if !vm.Name.Present {
		p.missing(&vm, "details.name")
	}

	vm.Status = Field[domain.Status]{Value: d.Status, Present: d.Status.Valid(), Editable: admin}
	if !vm.Status.Present {
		p.missing(&vm, "details.status")
	}

	vm.Price = Field[decimal.Decimal]{Value: d.Price, Present: true, Editable: admin}
	vm.Paid = Field[decimal.Decimal]{Value: d.PaidAmount, Present: true}
	vm.Deadline = Field[*time.Time]{Value: d.Deadline, Present: true, Editable: admin}

	vm.CanPay = !admin && d.Outstanding()
	vm.Progress = domain.Progress(agg.Stages)

	vm.Stages = make([]StageView, 0, len(agg.Stages))
	for i, st := range agg.Stages {
		vm.Stages = append(vm.Stages, StageView{
			Index:  i,
			Title:  st.Title,
			Done:   st.Done,
			Toggle: admin,
		})
	}

	ordered := chatlog.Ordered(d.ID, agg.Messages)
	vm.Messages = make([]MessageView, 0, len(ordered))
	for _, m := range ordered {
		if m.Attachment != nil {
			att := *m.Attachment
			m.Attachment = &att
		}
		vm.Messages = append(vm.Messages, MessageView{
			ID:         m.ID,
			Sender:     m.Sender,
			Own:        chatlog.IsOwn(m, role),
			Text:       m.Text,
			Attachment: m.Attachment,
			Timestamp:  m.Timestamp,
		})
	}
	return vm
}

func (p Projector) missing(vm *ViewModel, field string) {
	if p.Strict {
		panic(fmt.Sprintf("view: aggregate is missing %s", field))
	}
	vm.Missing = append(vm.Missing, field)
}
