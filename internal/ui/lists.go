package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"skillvet/internal/db"
	"skillvet/internal/rules"
)

// ReportsTable renders stored report summaries.
func ReportsTable(reports []db.ReportSummary) string {
	if len(reports) == 0 {
		return dimStyle.Render("No reports.") + "\n"
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		blocked := ""
		if r.BlockExecution {
			blocked = "yes"
		}
		rows = append(rows, []string{
			r.ID,
			r.Package,
			string(r.RiskLevel),
			strconv.Itoa(r.Score),
			strconv.Itoa(r.Findings),
			blocked,
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "PACKAGE", "RISK", "SCORE", "FINDINGS", "BLOCKED", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCellStyle
			case col == 2 && row >= 0 && row < len(reports):
				return riskStyle(reports[row].RiskLevel).Padding(0, 1)
			}
			return cellStyle
		})
	return t.Render() + "\n"
}

// RulesTable renders a rule catalog.
func RulesTable(c *rules.Catalog) string {
	list := c.Rules()
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{r.ID, string(r.Severity), r.AppliesTo.String(), r.Category, r.Name})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "SEVERITY", "APPLIES TO", "CATEGORY", "NAME").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerCellStyle
			case col == 1 && row >= 0 && row < len(list):
				return severityStyle(list[row].Severity).Padding(0, 1)
			}
			return cellStyle
		})
	return t.Render() + "\n"
}
