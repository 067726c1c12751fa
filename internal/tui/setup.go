package tui

import (
	"strings"

	"claudechat/internal/config"
	"claudechat/internal/tui/theme"

	"github.com/charmbracelet/huh"
)

// setupValues holds the first-run form answers.
type setupValues struct {
	apiKey    string
	model     string
	themeName string
}

// newSetupForm builds the first-run setup form.
func newSetupForm(vals *setupValues) *huh.Form {
	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to claudechat").
				Description("A couple of questions and you're chatting."),
			huh.NewInput().
				Title("Anthropic API key").
				Description("Stored in your config file. Leave blank to use ANTHROPIC_API_KEY.").
				EchoMode(huh.EchoModePassword).
				Value(&vals.apiKey),
			huh.NewSelect[string]().
				Title("Default model").
				Options(
					huh.NewOption("Sonnet (fast, everyday)", "sonnet"),
					huh.NewOption("Opus (deepest reasoning)", "opus"),
				).
				Value(&vals.model),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&vals.themeName),
		),
	)
}

// saveSetupConfig folds the form answers into the config file.
func (a *App) saveSetupConfig() error {
	cfg, _ := config.Load()

	if key := strings.TrimSpace(a.setupVals.apiKey); key != "" {
		cfg.API.Key = key
	}
	if a.setupVals.model != "" {
		cfg.Models.Default = a.setupVals.model
	}
	if a.setupVals.themeName != "" {
		cfg.Appearance.Theme = a.setupVals.themeName
		theme.SetActive(cfg.Appearance.Theme)
	}

	a.cfg = cfg
	return config.Save(cfg)
}
