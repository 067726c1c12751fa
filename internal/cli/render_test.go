package cli

import (
	"strings"
	"testing"
)

func TestRenderTable_Structure(t *testing.T) {
	out := RenderTable(Table{
		Title:   "Saved conversations",
		Headers: []string{"Name", "Msgs"},
		Rows: [][]string{
			{"standup", "12"},
			{"planning", "4"},
		},
	})

	for _, want := range []string{"Saved conversations", "Name", "Msgs", "standup", "planning"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	for _, glyph := range []string{"╭", "╮", "├", "┼", "╰", "╯"} {
		if !strings.Contains(out, glyph) {
			t.Errorf("table missing border %q:\n%s", glyph, out)
		}
	}
}

func TestRenderTable_NumericColumnsRightAligned(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Name", "Count"},
		Rows:    [][]string{{"a", "7"}},
	})
	// "Count" fixes the column at five characters, so the single digit
	// pads on the left.
	if !strings.Contains(out, "    7 ") {
		t.Errorf("numeric cell not right-aligned:\n%s", out)
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if out := RenderTable(Table{}); out != "" {
		t.Errorf("empty table rendered %q", out)
	}
}
