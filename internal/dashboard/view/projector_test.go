package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmsystem/pmdash/internal/projects/domain"
)

func sample() *domain.Aggregate {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Aggregate{
		Details: domain.Project{
			ID:         "PRJ-00000A",
			Name:       "Site Redesign",
			Status:     domain.StatusInProgress,
			Price:      decimal.NewFromInt(1000),
			PaidAmount: decimal.Zero,
			Version:    4,
		},
		Stages: []domain.Stage{
			{Title: "Brief", Done: true},
			{Title: "Design", Done: true},
			{Title: "Build"},
			{Title: "QA"},
			{Title: "Launch"},
		},
		Messages: []domain.Message{
			{ID: "m2", ProjectID: "PRJ-00000A", Sender: domain.RoleAdmin, Text: "soon", Timestamp: t0.Add(time.Minute), Seq: 2},
			{ID: "m1", ProjectID: "PRJ-00000A", Sender: domain.RoleClient, Text: "when?", Timestamp: t0, Seq: 1},
		},
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	p := Projector{Strict: true}
	agg := sample()
	before := agg.Clone()

	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleClient} {
		first := p.Project(role, agg)
		second := p.Project(role, agg)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, before, agg, "input must not be modified")
}

func TestClientView(t *testing.T) {
	vm := Projector{Strict: true}.Project(domain.RoleClient, sample())

	assert.True(t, vm.CanPay)
	assert.False(t, vm.Status.Editable)
	assert.False(t, vm.Price.Editable)
	assert.False(t, vm.Deadline.Editable)
	assert.False(t, vm.ShowProjectList)
	assert.False(t, vm.ShowTaskList)
	assert.False(t, vm.CanCreateProject)
	assert.True(t, vm.CanSendMessage)
	for _, st := range vm.Stages {
		assert.False(t, st.Toggle)
	}
	assert.Equal(t, 40, vm.Progress)

	require.Len(t, vm.Messages, 2)
	assert.Equal(t, "m1", vm.Messages[0].ID)
	assert.True(t, vm.Messages[0].Own)
	assert.False(t, vm.Messages[1].Own)
}

func TestClientPaymentHiddenWhenPaid(t *testing.T) {
	agg := sample()
	agg.Details.PaidAmount = decimal.NewFromInt(1000)
	vm := Projector{}.Project(domain.RoleClient, agg)
	assert.False(t, vm.CanPay)
}

func TestAdminView(t *testing.T) {
	vm := Projector{Strict: true}.Project(domain.RoleAdmin, sample())

	assert.False(t, vm.CanPay)
	assert.True(t, vm.Status.Editable)
	assert.True(t, vm.Price.Editable)
	assert.True(t, vm.Deadline.Editable)
	assert.False(t, vm.Paid.Editable)
	assert.True(t, vm.ShowProjectList)
	assert.True(t, vm.ShowTaskList)
	require.Len(t, vm.Stages, 5)
	assert.True(t, vm.Stages[2].Toggle)
	assert.Equal(t, 2, vm.Stages[2].Index)
	assert.True(t, vm.Messages[1].Own)
}

func TestMissingFields(t *testing.T) {
	agg := sample()
	agg.Details.Name = ""
	agg.Details.Status = ""

	assert.Panics(t, func() { Projector{Strict: true}.Project(domain.RoleAdmin, agg) })
	assert.Panics(t, func() { Projector{Strict: true}.Project(domain.RoleAdmin, nil) })

	vm := Projector{}.Project(domain.RoleAdmin, agg)
	assert.False(t, vm.Name.Present)
	assert.False(t, vm.Status.Present)
	assert.Equal(t, []string{"details.name", "details.status"}, vm.Missing)
	assert.Len(t, vm.Stages, 5)

	vm = Projector{}.Project(domain.RoleClient, nil)
	assert.Equal(t, []string{"aggregate"}, vm.Missing)
	assert.False(t, vm.CanPay)
}

func TestNoStagesMeansZeroProgress(t *testing.T) {
	agg := sample()
	agg.Stages = nil
	vm := Projector{}.Project(domain.RoleAdmin, agg)
	assert.Zero(t, vm.Progress)
	assert.Empty(t, vm.Stages)
}
