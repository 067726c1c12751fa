// Package tui provides the interactive Bubble Tea chat interface for
// claudechat.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"claudechat/internal/anthropic"
	"claudechat/internal/cache"
	"claudechat/internal/chat"
	"claudechat/internal/cli"
	"claudechat/internal/config"
	"claudechat/internal/model"
	"claudechat/internal/store"
	"claudechat/internal/tui/components"
	"claudechat/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// replyMsg is sent when the API exchange completes.
type replyMsg struct {
	reply chat.Reply
}

// errMsg is sent when the API exchange fails.
type errMsg struct {
	err error
}

const (
	minTerminalWidth = 40
	inputHeight      = 3
	sendTimeout      = 3 * time.Minute
)

// App is the root Bubble Tea model: a transcript viewport over a
// text input, with a status bar carrying the cache state.
type App struct {
	cfg     config.Config
	session *chat.Session

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	ready    bool
	waiting  bool
	width    int
	height   int
	quitting bool

	// notice is a transient line under the input (command results,
	// warnings). overlay replaces the transcript until the next input.
	notice      string
	noticeIsErr bool
	overlay     string
	lastUsage   string

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals setupValues
	needSetup bool
}

// NewApp creates the chat TUI over an initialized session. A non-nil
// cacheWarning (a dropped checkpoint record) is surfaced once.
func NewApp(cfg config.Config, session *chat.Session, cacheWarning error) App {
	theme.SetActive(cfg.Appearance.Theme)

	ta := textarea.New()
	ta.Placeholder = "Message (or /help)"
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(inputHeight)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	a := App{
		cfg:       cfg,
		session:   session,
		textarea:  ta,
		spinner:   sp,
		needSetup: !config.Exists(),
	}
	if cacheWarning != nil {
		a.notice = fmt.Sprintf("cache state discarded: %v", cacheWarning)
		a.noticeIsErr = true
	}
	if a.needSetup {
		a.setupVals.model = cfg.Models.Default
		a.setupVals.themeName = cfg.Appearance.Theme
		a.setupForm = newSetupForm(&a.setupVals)
	}
	return a
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, a.spinner.Tick}
	if a.setupForm != nil {
		cmds = append(cmds, a.setupForm.Init())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		return a, nil

	case replyMsg:
		a.waiting = false
		a.lastUsage = formatUsage(msg.reply.Usage)
		a.refreshTranscript()
		return a, nil

	case errMsg:
		a.waiting = false
		a.notice = msg.err.Error()
		a.noticeIsErr = true
		a.refreshTranscript()
		return a, nil

	case spinner.TickMsg:
		if a.waiting {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c":
			a.quitting = true
			_ = a.session.Persist()
			return a, tea.Quit
		case "enter":
			if a.waiting {
				return a, nil
			}
			return a.submit()
		case "esc":
			if a.overlay != "" {
				a.overlay = ""
				return a, nil
			}
		case "pgup":
			a.viewport.HalfViewUp()
			return a, nil
		case "pgdown":
			a.viewport.HalfViewDown()
			return a, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	if a.setupForm.State == huh.StateCompleted {
		if err := a.saveSetupConfig(); err != nil {
			a.notice = fmt.Sprintf("could not save config: %v", err)
			a.noticeIsErr = true
		} else {
			a.session.SwitchModel(a.cfg.Models.Default)
			a.notice = "saved to " + config.ConfigPath()
		}
		a.needSetup = false
		a.setupForm = nil
		a.refreshTranscript()
		return a, nil
	}

	if a.setupForm.State == huh.StateAborted {
		a.needSetup = false
		a.setupForm = nil
		a.refreshTranscript()
		return a, nil
	}

	return a, cmd
}

// submit sends the input line: slash commands run locally, anything
// else goes to the API.
func (a App) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(a.textarea.Value())
	if input == "" {
		return a, nil
	}
	a.textarea.Reset()
	a.notice = ""
	a.noticeIsErr = false
	a.overlay = ""

	if strings.HasPrefix(input, "/") {
		return a.runCommand(input)
	}

	a.waiting = true
	a.refreshTranscript()
	return a, tea.Batch(a.spinner.Tick, sendCmd(a.session, input))
}

func sendCmd(s *chat.Session, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		reply, err := s.Send(ctx, text)
		if err != nil {
			return errMsg{err}
		}
		return replyMsg{reply}
	}
}

// runCommand executes one slash command.
func (a App) runCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/help":
		a.overlay = helpText()

	case "/quit", "/exit":
		a.quitting = true
		_ = a.session.Persist()
		return a, tea.Quit

	case "/new":
		archived, err := a.session.New()
		if err != nil {
			return a.fail(err)
		}
		if archived != "" {
			a.notice = "previous conversation archived as " + archived
		} else {
			a.notice = "started a new conversation"
		}
		a.refreshTranscript()

	case "/save":
		if len(args) == 0 {
			return a.fail(fmt.Errorf("usage: /save <name>"))
		}
		saved, err := a.session.SaveAs(args[0])
		if err != nil {
			return a.fail(err)
		}
		a.notice = "saved as " + saved

	case "/load":
		if len(args) == 0 {
			return a.fail(fmt.Errorf("usage: /load <name>"))
		}
		warning, err := a.session.Load(args[0])
		if err != nil {
			return a.fail(err)
		}
		a.notice = "loaded " + args[0]
		if warning != nil {
			a.notice = fmt.Sprintf("loaded %s (cache state discarded: %v)", args[0], warning)
			a.noticeIsErr = true
		}
		a.refreshTranscript()

	case "/list":
		list, err := a.session.List()
		if err != nil {
			return a.fail(err)
		}
		a.overlay = renderConversationList(list)

	case "/model":
		if len(args) == 0 {
			a.notice = "current model: " + config.AliasFor(a.cfg, a.session.Model())
			break
		}
		full := a.session.SwitchModel(args[0])
		a.notice = "switched to " + config.AliasFor(a.cfg, full)
		a.refreshTranscript()

	case "/cache":
		return a.runCacheCommand(args)

	case "/web":
		return a.runWebCommand(args)

	case "/clear":
		if err := a.session.ClearCheckpoint(); err != nil {
			return a.fail(err)
		}
		a.notice = "cache checkpoint cleared"

	case "/attach":
		if len(args) == 0 {
			return a.fail(fmt.Errorf("usage: /attach <path>"))
		}
		p, err := a.session.Attach(strings.Join(args, " "))
		if err != nil {
			return a.fail(err)
		}
		a.notice = fmt.Sprintf("attached %s (%s), sent with your next message",
			p.Filename, cli.FormatSize(p.SizeBytes))

	case "/files":
		a.overlay = a.renderAttachments()

	default:
		return a.fail(fmt.Errorf("unknown command %s (try /help)", name))
	}

	return a, nil
}

func (a App) runCacheCommand(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 || args[0] == "status" {
		a.overlay = a.renderCacheStatus()
		return a, nil
	}
	if args[0] == "clear" {
		if err := a.session.ClearCheckpoint(); err != nil {
			return a.fail(err)
		}
		a.notice = "cache checkpoint cleared"
		return a, nil
	}

	minutes, err := parseDuration(args[0])
	if err != nil {
		return a.fail(err)
	}
	index, err := a.session.CreateCheckpoint(minutes)
	if err != nil {
		return a.fail(err)
	}
	a.notice = fmt.Sprintf("cache checkpoint set after message %d (%s)",
		index+1, cli.FormatMinutes(minutes))
	return a, nil
}

func (a App) runWebCommand(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		if a.session.WebSearchEnabled() {
			a.notice = fmt.Sprintf("web search enabled (up to %d searches per reply), /web off to disable",
				anthropic.WebSearchMaxUses)
		} else {
			a.notice = "web search disabled, /web on to enable"
		}
		return a, nil
	}

	var (
		enabled bool
		err     error
	)
	switch action, perr := parseToggle(args[0]); {
	case perr != nil:
		return a.fail(perr)
	case action == "toggle":
		enabled, err = a.session.ToggleWebSearch()
	default:
		enabled = action == "on"
		err = a.session.SetWebSearch(enabled)
	}
	if err != nil {
		return a.fail(err)
	}

	if enabled {
		a.notice = "web search enabled"
	} else {
		a.notice = "web search disabled"
	}
	return a, nil
}

// parseToggle normalizes an on/off argument to "on", "off" or "toggle".
func parseToggle(arg string) (string, error) {
	switch strings.ToLower(arg) {
	case "on", "enable", "true", "1":
		return "on", nil
	case "off", "disable", "false", "0":
		return "off", nil
	case "toggle":
		return "toggle", nil
	default:
		return "", fmt.Errorf("usage: /web [on|off|toggle], got %q", arg)
	}
}

// parseDuration maps a user duration argument to a supported minute
// count.
func parseDuration(arg string) (int, error) {
	switch strings.ToLower(arg) {
	case "5m", "5":
		return cache.DurationShort, nil
	case "1h", "60m", "60":
		return cache.DurationLong, nil
	default:
		return 0, fmt.Errorf("duration must be 5m or 1h, got %q", arg)
	}
}

func (a App) fail(err error) (tea.Model, tea.Cmd) {
	a.notice = err.Error()
	a.noticeIsErr = true
	return a, nil
}

func (a *App) layout() {
	vpHeight := a.height - inputHeight - 3 // title, notice, status bar
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !a.ready {
		a.viewport = viewport.New(a.width, vpHeight)
		a.ready = true
	} else {
		a.viewport.Width = a.width
		a.viewport.Height = vpHeight
	}
	a.textarea.SetWidth(a.width - 2)
	a.refreshTranscript()
}

func (a *App) refreshTranscript() {
	if !a.ready {
		return
	}
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}

// View implements tea.Model.
func (a App) View() string {
	if a.quitting {
		return ""
	}
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return "\n  Terminal too narrow.\n"
	}
	if a.needSetup && a.setupForm != nil {
		return a.setupForm.View()
	}

	t := theme.Active
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(t.Accent).Render(" claudechat")
	b.WriteString(title)
	b.WriteString("\n")

	if a.overlay != "" {
		b.WriteString(a.overlay)
		pad := a.viewport.Height - lipgloss.Height(a.overlay)
		for i := 0; i < pad; i++ {
			b.WriteString("\n")
		}
	} else {
		b.WriteString(a.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(a.textarea.View())
	b.WriteString("\n")
	b.WriteString(a.noticeLine())
	b.WriteString("\n")

	b.WriteString(components.RenderStatusBar(
		a.width,
		config.AliasFor(a.cfg, a.session.Model()),
		len(a.session.Conversation().Messages),
		a.lastUsage,
		a.session.CacheStatus(),
		a.session.WebSearchEnabled(),
	))

	return b.String()
}

func (a App) noticeLine() string {
	t := theme.Active
	if a.waiting {
		return " " + a.spinner.View() + lipgloss.NewStyle().Foreground(t.TextMuted).Render(" thinking...")
	}
	if a.notice == "" {
		return ""
	}
	style := lipgloss.NewStyle().Foreground(t.TextMuted)
	if a.noticeIsErr {
		style = lipgloss.NewStyle().Foreground(t.Red)
	}
	return " " + style.Render(a.notice)
}

// renderTranscript renders the conversation for the viewport.
func (a App) renderTranscript() string {
	t := theme.Active
	msgs := a.session.Conversation().Messages
	if len(msgs) == 0 {
		return lipgloss.NewStyle().Foreground(t.TextDim).
			Render("\n  No messages yet. Say something, or /help for commands.")
	}

	userStyle := lipgloss.NewStyle().Bold(true).Foreground(t.Accent)
	asstStyle := lipgloss.NewStyle().Bold(true).Foreground(t.Green)
	noteStyle := lipgloss.NewStyle().Foreground(t.TextDim).Italic(true)
	bodyStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Width(a.width - 4)

	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case m.Role == model.RoleSystem:
			b.WriteString(noteStyle.Render("  — " + m.Content.Plain()))
			b.WriteString("\n")
		case m.Role == model.RoleUser:
			b.WriteString(userStyle.Render("  You"))
			b.WriteString("\n")
			b.WriteString(indent(bodyStyle.Render(m.Content.Plain())))
		default:
			label := "  Claude"
			if m.Model != "" {
				label = "  " + config.AliasFor(a.cfg, m.Model)
			}
			b.WriteString(asstStyle.Render(label))
			b.WriteString("\n")
			b.WriteString(indent(bodyStyle.Render(m.Content.Plain())))
		}
	}
	return b.String()
}

// formatUsage renders the last exchange's token counters, including
// cache activity when present.
func formatUsage(u model.Usage) string {
	s := fmt.Sprintf("↑%s ↓%s",
		cli.FormatTokens(int64(u.InputTokens)),
		cli.FormatTokens(int64(u.OutputTokens)))
	if u.CacheCreationInputTokens > 0 {
		s += fmt.Sprintf(" +%s cached", cli.FormatTokens(int64(u.CacheCreationInputTokens)))
	}
	if u.CacheReadInputTokens > 0 {
		s += fmt.Sprintf(" %s from cache", cli.FormatTokens(int64(u.CacheReadInputTokens)))
	}
	return s
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

func (a App) renderCacheStatus() string {
	t := theme.Active
	st := a.session.CacheStatus()

	label := lipgloss.NewStyle().Foreground(t.TextMuted)
	value := lipgloss.NewStyle().Foreground(t.TextPrimary)

	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(components.CacheSummary(st))
	b.WriteString("\n\n")

	if st.State == cache.StateNone && st.DurationMinutes == 0 {
		b.WriteString(label.Render("  No checkpoint. Use /cache 5m or /cache 1h to create one."))
		b.WriteString("\n")
		return b.String()
	}

	row := func(k, v string) {
		b.WriteString(label.Render(fmt.Sprintf("  %-18s", k)))
		b.WriteString(value.Render(v))
		b.WriteString("\n")
	}
	row("cached messages", fmt.Sprintf("%d", st.CachedMessages))
	row("duration", cli.FormatMinutes(st.DurationMinutes))
	if st.HasElapsed {
		row("since last hit", cli.FormatMinutes(st.ElapsedMinutes))
	} else {
		row("since last hit", "never confirmed")
	}
	row("creation tokens", cli.FormatTokens(int64(st.CreationTokens)))
	row("hit tokens", cli.FormatTokens(int64(st.HitTokens)))

	if spend, ok := config.EstimateCacheSpend(a.session.Model(), st.DurationMinutes,
		st.CreationTokens, st.HitTokens); ok && spend > 0 {
		row("est. cache spend", cli.FormatCost(spend))
	}
	return b.String()
}

func (a App) renderAttachments() string {
	t := theme.Active
	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	pending := a.session.PendingAttachments()
	header := fmt.Sprintf("\n  %d attachment(s) staged for the next message\n", pending)
	if pending == 0 {
		header = dim.Render("\n  No attachments staged. Use /attach <path>.") + "\n"
	}
	return header
}

func renderConversationList(list []store.SavedConversation) string {
	if len(list) == 0 {
		return "\n  No saved conversations yet. Use /save <name>.\n"
	}
	rows := make([][]string, 0, len(list))
	now := time.Now()
	for _, sc := range list {
		rows = append(rows, []string{
			sc.Name,
			fmt.Sprintf("%d", sc.Messages),
			cli.FormatRelativeTime(sc.ModTime, now),
		})
	}
	return "\n" + cli.RenderTable(cli.Table{
		Title:   "Saved conversations",
		Headers: []string{"Name", "Msgs", "Saved"},
		Rows:    rows,
	})
}

func helpText() string {
	t := theme.Active
	cmd := lipgloss.NewStyle().Foreground(t.Accent)
	desc := lipgloss.NewStyle().Foreground(t.TextMuted)

	entries := []struct{ c, d string }{
		{"/new", "archive this conversation and start fresh"},
		{"/save <name>", "save the conversation under a name"},
		{"/load <name>", "load a saved conversation"},
		{"/list", "list saved conversations"},
		{"/model [alias]", "show or switch the model"},
		{"/cache [5m|1h]", "set a cache checkpoint here"},
		{"/cache status", "show cache checkpoint details"},
		{"/clear", "clear the cache checkpoint"},
		{"/web [on|off]", "toggle web search for your messages"},
		{"/attach <path>", "attach a file to your next message"},
		{"/files", "show staged attachments"},
		{"/quit", "save and exit"},
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			cmd.Render(fmt.Sprintf("%-16s", e.c)),
			desc.Render(e.d)))
	}
	return b.String()
}
