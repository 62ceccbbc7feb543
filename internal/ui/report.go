// Package ui renders reports for terminals and files.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"skillvet/internal/model"
)

// Format selects a report rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, text/table or markdown/md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "text", "table":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, text or markdown)", s)
}

// Options tune terminal rendering.
type Options struct {
	// Styled renders markdown through glamour instead of emitting raw markdown.
	Styled bool
	// Width wraps styled markdown; zero means 80.
	Width int
}

// Write renders report to w in the requested format.
func Write(w io.Writer, report *model.CombinedReport, format Format, opts Options) error {
	switch format {
	case FormatText:
		_, err := io.WriteString(w, RenderText(report))
		return err
	case FormatMarkdown:
		md := RenderMarkdown(report)
		if opts.Styled {
			out, err := StyleMarkdown(md, opts.Width)
			if err == nil {
				md = out
			}
		}
		_, err := io.WriteString(w, md)
		return err
	default:
		data, err := EncodeJSON(report)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

// EncodeJSON is the machine-readable rendering, newline terminated.
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderText renders a terminal summary with a findings table.
func RenderText(r *model.CombinedReport) string {
	var sb strings.Builder

	name := r.Package
	if name == "" {
		name = "package"
	}
	sb.WriteString(titleStyle.Render("skillvet: "+name) + "\n\n")

	verdict := allowedStyle.Render("ALLOWED")
	if r.BlockExecution {
		verdict = blockedStyle.Render("BLOCKED")
	}
	fmt.Fprintf(&sb, "%s %s   %s %s   %s %d/100   %s %d%%\n",
		labelStyle.Render("Risk:"), riskStyle(r.RiskLevel).Render(strings.ToUpper(string(r.RiskLevel))),
		labelStyle.Render("Execution:"), verdict,
		labelStyle.Render("Score:"), r.Score,
		labelStyle.Render("Confidence:"), r.Confidence)
	if r.ID != "" {
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Report:"), dimStyle.Render(r.ID))
	}
	if r.Semantic != nil && r.Semantic.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Semantic.Summary)
	}
	sb.WriteString("\n")

	if len(r.Findings) == 0 {
		sb.WriteString(allowedStyle.Render("No findings.") + "\n")
	} else {
		sb.WriteString(FindingsTable(r.Findings) + "\n")
	}

	if recs := recommendations(r); len(recs) > 0 {
		sb.WriteString("\n" + labelStyle.Render("Recommendations:") + "\n")
		for _, rec := range recs {
			sb.WriteString("  - " + rec + "\n")
		}
	}
	if len(r.SkippedFiles) > 0 {
		sb.WriteString("\n" + labelStyle.Render("Skipped files:") + "\n")
		for _, s := range r.SkippedFiles {
			sb.WriteString("  - " + dimStyle.Render(s) + "\n")
		}
	}
	return sb.String()
}

// FindingsTable lays findings out as a bordered table.
func FindingsTable(findings []model.Finding) string {
	rows := make([][]string, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, []string{string(f.Severity), string(f.Source), location(f), f.Title})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("SEVERITY", "SOURCE", "LOCATION", "TITLE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			if col == 0 && row >= 0 && row < len(findings) {
				return severityStyle(findings[row].Severity).Padding(0, 1)
			}
			return cellStyle
		})
	return t.Render()
}

// RenderMarkdown renders the report as a markdown document.
func RenderMarkdown(r *model.CombinedReport) string {
	var sb strings.Builder

	name := r.Package
	if name == "" {
		name = "package"
	}
	fmt.Fprintf(&sb, "# Security report: %s\n\n", name)

	verdict := "allowed"
	if r.BlockExecution {
		verdict = "**BLOCKED**"
	}
	sb.WriteString("| Risk | Execution | Score | Confidence |\n")
	sb.WriteString("|------|-----------|-------|------------|\n")
	fmt.Fprintf(&sb, "| %s | %s | %d/100 | %d%% |\n\n", r.RiskLevel, verdict, r.Score, r.Confidence)

	if r.Semantic != nil && r.Semantic.Summary != "" {
		sb.WriteString(r.Semantic.Summary + "\n\n")
	}

	sb.WriteString("## Findings\n\n")
	if len(r.Findings) == 0 {
		sb.WriteString("No findings.\n\n")
	}
	for _, f := range r.Findings {
		fmt.Fprintf(&sb, "### [%s] %s\n\n", strings.ToUpper(string(f.Severity)), escapeMD(f.Title))
		fmt.Fprintf(&sb, "- Source: %s\n", f.Source)
		if f.Category != "" {
			fmt.Fprintf(&sb, "- Category: %s\n", f.Category)
		}
		if loc := location(f); loc != "" {
			fmt.Fprintf(&sb, "- Location: `%s`\n", loc)
		}
		if f.RuleID != "" {
			fmt.Fprintf(&sb, "- Rule: %s\n", f.RuleID)
		}
		sb.WriteString("\n")
		if f.Description != "" {
			sb.WriteString(f.Description + "\n\n")
		}
		if f.Match != "" {
			fmt.Fprintf(&sb, "```\n%s\n```\n\n", f.Match)
		}
		if f.Recommendation != "" {
			fmt.Fprintf(&sb, "> %s\n\n", f.Recommendation)
		}
	}

	if recs := recommendations(r); len(recs) > 0 {
		sb.WriteString("## Recommendations\n\n")
		for _, rec := range recs {
			sb.WriteString("- " + rec + "\n")
		}
		sb.WriteString("\n")
	}
	if len(r.SkippedFiles) > 0 {
		sb.WriteString("## Skipped files\n\n")
		for _, s := range r.SkippedFiles {
			sb.WriteString("- " + s + "\n")
		}
	}
	return sb.String()
}

// StyleMarkdown renders markdown for a terminal with glamour.
func StyleMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(md)
}

func location(f model.Finding) string {
	if f.File == "" {
		return ""
	}
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d", f.File, f.Line)
	}
	return f.File
}

func recommendations(r *model.CombinedReport) []string {
	if r.Semantic == nil {
		return nil
	}
	return r.Semantic.Recommendations
}

var mdEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`")

func escapeMD(s string) string {
	return mdEscaper.Replace(s)
}
