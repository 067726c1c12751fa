package components

import (
	"fmt"

	"claudechat/internal/cache"
	"claudechat/internal/cli"
	"claudechat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Cache state glyphs shown in the status bar.
const (
	GlyphActive  = "●"
	GlyphExpired = "✗"
	GlyphNone    = "○"
)

// CacheSummary renders the cache segment of the status bar, e.g.
// "● cache 12m/1h" or "○ no cache".
func CacheSummary(st cache.Status) string {
	t := theme.Active

	switch st.State {
	case cache.StateActive:
		style := lipgloss.NewStyle().Foreground(t.Green)
		return style.Render(fmt.Sprintf("%s cache %s/%s",
			GlyphActive,
			cli.FormatMinutes(st.ElapsedMinutes),
			cli.FormatMinutes(st.DurationMinutes)))
	case cache.StateExpired:
		style := lipgloss.NewStyle().Foreground(t.Red)
		return style.Render(fmt.Sprintf("%s cache expired", GlyphExpired))
	default:
		style := lipgloss.NewStyle().Foreground(t.TextDim)
		if st.DurationMinutes > 0 {
			// Checkpoint declared but never confirmed by a response.
			return style.Render(fmt.Sprintf("%s cache pending", GlyphNone))
		}
		return style.Render(fmt.Sprintf("%s no cache", GlyphNone))
	}
}

// RenderStatusBar renders the bottom status bar: model and message count
// on the left, last exchange's token usage, web search state, and cache
// state on the right. lastUsage may be empty before the first exchange.
func RenderStatusBar(width int, modelAlias string, messages int, lastUsage string, st cache.Status, webSearch bool) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)

	left := fmt.Sprintf(" %s · %d msgs · /help", modelAlias, messages)
	right := CacheSummary(st) + " "
	if webSearch {
		right = lipgloss.NewStyle().Foreground(t.Blue).Render("🌐 web  ") + right
	}
	if lastUsage != "" {
		right = lipgloss.NewStyle().Foreground(t.TextDim).Render(lastUsage+"  ") + right
	}

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 0 {
		padding = 0
	}

	bar := left
	for i := 0; i < padding; i++ {
		bar += " "
	}
	bar += right

	return style.Render(bar)
}
