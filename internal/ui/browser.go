package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"skillvet/internal/db"
	"skillvet/internal/model"
)

// ReportLoader fetches the full report behind a summary row.
type ReportLoader func(id string) (*model.CombinedReport, error)

type reportLoadedMsg struct{ report *model.CombinedReport }

type reportLoadErrMsg struct{ err error }

var browserTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))

type reportBrowserModel struct {
	table   table.Model
	detail  viewport.Model
	reports []db.ReportSummary
	load    ReportLoader

	showing bool
	current string
	err     error
	width   int
	height  int
}

// NewReportBrowser builds the interactive report list. Enter opens the
// selected report, esc returns to the list and q quits.
func NewReportBrowser(reports []db.ReportSummary, load ReportLoader) reportBrowserModel {
	columns := []table.Column{
		{Title: "ID", Width: 36},
		{Title: "PACKAGE", Width: 24},
		{Title: "RISK", Width: 9},
		{Title: "SCORE", Width: 5},
		{Title: "FINDINGS", Width: 8},
		{Title: "BLOCKED", Width: 7},
		{Title: "CREATED", Width: 16},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := reportBrowserModel{
		table:   t,
		detail:  viewport.New(100, 20),
		reports: reports,
		load:    load,
	}
	m.updateTableRows()
	return m
}

func (m *reportBrowserModel) updateTableRows() {
	rows := make([]table.Row, 0, len(m.reports))
	for _, r := range m.reports {
		blocked := ""
		if r.BlockExecution {
			blocked = "yes"
		}
		rows = append(rows, table.Row{
			r.ID,
			r.Package,
			string(r.RiskLevel),
			strconv.Itoa(r.Score),
			strconv.Itoa(r.Findings),
			blocked,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	m.table.SetRows(rows)
}

func (m reportBrowserModel) Init() tea.Cmd {
	return nil
}

func (m reportBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(m.width)
		m.table.SetHeight(max(m.height-6, 3))
		m.detail.Width = m.width
		m.detail.Height = max(m.height-4, 3)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc", "backspace":
			if m.showing {
				m.showing = false
				m.err = nil
				return m, nil
			}
		case "enter":
			if !m.showing {
				return m, m.openSelected()
			}
		}

	case reportLoadedMsg:
		m.showing = true
		m.current = msg.report.ID
		m.err = nil
		m.detail.SetContent(RenderText(msg.report))
		m.detail.GotoTop()
		return m, nil

	case reportLoadErrMsg:
		m.err = msg.err
		return m, nil
	}

	if m.showing {
		m.detail, cmd = m.detail.Update(msg)
	} else {
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

func (m reportBrowserModel) openSelected() tea.Cmd {
	row := m.table.SelectedRow()
	if row == nil || m.load == nil {
		return nil
	}
	id := row[0]
	load := m.load
	return func() tea.Msg {
		report, err := load(id)
		if err != nil {
			return reportLoadErrMsg{err: fmt.Errorf("load %s: %w", id, err)}
		}
		return reportLoadedMsg{report: report}
	}
}

func (m reportBrowserModel) View() string {
	var b strings.Builder
	if m.showing {
		b.WriteString(browserTitleStyle.Render(" Report "+m.current) + "\n")
		b.WriteString(m.detail.View() + "\n")
		b.WriteString(dimStyle.Render("↑/↓ scroll • esc back • q quit"))
		return b.String()
	}

	b.WriteString(browserTitleStyle.Render(fmt.Sprintf(" skillvet reports (%d)", len(m.reports))) + "\n\n")
	if len(m.reports) == 0 {
		b.WriteString(dimStyle.Render("No reports.") + "\n")
	} else {
		b.WriteString(m.table.View() + "\n")
	}
	if m.err != nil {
		b.WriteString(blockedStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("↑/↓ move • enter open • q quit"))
	return b.String()
}

// StartReportBrowser runs the browser full screen until the user quits.
var StartReportBrowser = func(reports []db.ReportSummary, load ReportLoader) error {
	p := tea.NewProgram(NewReportBrowser(reports, load), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
