package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pmsystem/pmdash/internal/dashboard/view"
	"github.com/pmsystem/pmdash/internal/projects/domain"
)

const (
	colorAccent  = "#7D56F4"
	colorMuted   = "#8A8A8A"
	colorSuccess = "#04B575"
	colorWarning = "#FFB347"
)

// styles are bound to one writer so that color is only emitted on a
// terminal.
type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	done    lipgloss.Style
	warning lipgloss.Style
	own     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color(colorMuted)),
		done:    r.NewStyle().Foreground(lipgloss.Color(colorSuccess)),
		warning: r.NewStyle().Foreground(lipgloss.Color(colorWarning)),
		own:     r.NewStyle().Foreground(lipgloss.Color(colorAccent)),
	}
}

func renderView(w io.Writer, vm view.ViewModel) {
	st := newStyles(w)

	name := vm.Name.Value
	if !vm.Name.Present {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "%s %s\n", st.title.Render(name), st.muted.Render("("+vm.ProjectID+")"))

	if vm.Status.Present {
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Status:  "), vm.Status.Value)
	}
	fmt.Fprintf(w, "%s %s  %s %s\n",
		st.label.Render("Price:   "), vm.Price.Value.StringFixed(2),
		st.label.Render("Paid:"), vm.Paid.Value.StringFixed(2),
	)
	deadline := "none"
	if vm.Deadline.Value != nil {
		deadline = vm.Deadline.Value.Format(dateLayout)
	}
	fmt.Fprintf(w, "%s %s\n", st.label.Render("Deadline:"), deadline)
	fmt.Fprintf(w, "%s %d%%\n", st.label.Render("Progress:"), vm.Progress)

	if vm.CanPay {
		due := vm.Price.Value.Sub(vm.Paid.Value)
		fmt.Fprintln(w, st.warning.Render(fmt.Sprintf("Payment due: %s", due.StringFixed(2))))
	}

	var editable []string
	for _, f := range []struct {
		name string
		ok   bool
	}{{"status", vm.Status.Editable}, {"price", vm.Price.Editable}, {"deadline", vm.Deadline.Editable}} {
		if f.ok {
			editable = append(editable, f.name)
		}
	}
	if len(editable) > 0 {
		fmt.Fprintln(w, st.muted.Render("Editable: "+strings.Join(editable, ", ")))
	}

	if len(vm.Stages) > 0 {
		fmt.Fprintln(w, st.label.Render("Stages:"))
		for _, s := range vm.Stages {
			box := "[ ]"
			if s.Done {
				box = st.done.Render("[x]")
			}
			if s.Toggle {
				fmt.Fprintf(w, "  %s %d %s\n", box, s.Index, s.Title)
			} else {
				fmt.Fprintf(w, "  %s %s\n", box, s.Title)
			}
		}
	}

	fmt.Fprintln(w, st.label.Render("Messages:"))
	if len(vm.Messages) == 0 {
		fmt.Fprintln(w, st.muted.Render("  no messages yet"))
	}
	for _, m := range vm.Messages {
		renderMessage(w, st, m)
	}

	if len(vm.Missing) > 0 {
		fmt.Fprintln(w, st.warning.Render("Missing fields: "+strings.Join(vm.Missing, ", ")))
	}
}

func renderMessage(w io.Writer, st styles, m view.MessageView) {
	who := string(m.Sender)
	if m.Own {
		who = st.own.Render("you")
	}
	line := fmt.Sprintf("  %s %s: %s", st.muted.Render(m.Timestamp.Local().Format("2006-01-02 15:04")), who, m.Text)
	if m.Attachment != nil {
		line += st.muted.Render(fmt.Sprintf(" [%s %s]", m.Attachment.Type, m.Attachment.URL))
	}
	fmt.Fprintln(w, line)
}

func renderProjects(w io.Writer, items []domain.ProjectSummary) {
	st := newStyles(w)
	if len(items) == 0 {
		fmt.Fprintln(w, st.muted.Render("No projects yet. Use 'pmctl create' to add one."))
		return
	}

	fmt.Fprintln(w, st.label.Render(fmt.Sprintf("%-11s %-30s %-11s %12s %12s %s", "ID", "NAME", "STATUS", "PRICE", "PAID", "DEADLINE")))
	for _, p := range items {
		name := p.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		deadline := "-"
		if p.Deadline != nil {
			deadline = p.Deadline.Format(dateLayout)
		}
		fmt.Fprintf(w, "%-11s %-30s %-11s %12s %12s %s\n",
			p.ID, name, p.Status, p.Price.StringFixed(2), p.PaidAmount.StringFixed(2), deadline)
	}
}

func renderTodos(w io.Writer, items []domain.Todo) {
	st := newStyles(w)
	if len(items) == 0 {
		fmt.Fprintln(w, st.muted.Render("Task list is empty."))
		return
	}
	for _, t := range items {
		fmt.Fprintf(w, "%s  %s\n", st.muted.Render(t.ID), t.Text)
	}
}
