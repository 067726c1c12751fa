package cli

import (
	"fmt"
	"strings"

	"claudechat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Styles resolve against the active theme at render time, so CLI tables
// match whatever theme the chat UI is configured with.
func headerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Active.Accent)
}

func cellStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Active.TextPrimary)
}

func frameStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(theme.Active.TextDim)
}

// Table is a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
}

// RenderTable renders a bordered table with headers and rows. Row
// columns after the first are right-aligned; they hold counts and
// timestamps in every caller.
func RenderTable(t Table) string {
	cols := len(t.Headers)
	if cols == 0 && len(t.Rows) > 0 {
		cols = len(t.Rows[0])
	}
	if cols == 0 {
		return ""
	}

	widths := t.Widths
	if widths == nil {
		widths = columnWidths(t, cols)
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle().Render(t.Title))
		b.WriteString("\n")
	}

	writeRule(&b, widths, "╭", "┬", "╮")
	if len(t.Headers) > 0 {
		writeCells(&b, widths, t.Headers, headerStyle(), false)
		writeRule(&b, widths, "├", "┼", "┤")
	}
	for _, row := range t.Rows {
		writeCells(&b, widths, row, cellStyle(), true)
	}
	writeRule(&b, widths, "╰", "┴", "╯")

	return b.String()
}

func columnWidths(t Table, cols int) []int {
	widths := make([]int, cols)
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < cols && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func writeRule(b *strings.Builder, widths []int, left, mid, right string) {
	frame := frameStyle()
	b.WriteString(frame.Render(left))
	for i, w := range widths {
		b.WriteString(frame.Render(strings.Repeat("─", w+2)))
		if i < len(widths)-1 {
			b.WriteString(frame.Render(mid))
		}
	}
	b.WriteString(frame.Render(right))
	b.WriteString("\n")
}

func writeCells(b *strings.Builder, widths []int, cells []string, style lipgloss.Style, alignNumeric bool) {
	frame := frameStyle()
	b.WriteString(frame.Render("│"))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		padded := fmt.Sprintf(" %-*s ", w, cell)
		if alignNumeric && i > 0 {
			padded = fmt.Sprintf(" %*s ", w, cell)
		}
		b.WriteString(style.Render(padded))
		if i < len(widths)-1 {
			b.WriteString(frame.Render("│"))
		}
	}
	b.WriteString(frame.Render("│"))
	b.WriteString("\n")
}
