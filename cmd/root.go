package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"claudechat/internal/anthropic"
	"claudechat/internal/chat"
	"claudechat/internal/config"
	"claudechat/internal/store"
	"claudechat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	flagModel        string
	flagDataDir      string
	flagConversation string
	flagPlain        bool
)

var rootCmd = &cobra.Command{
	Use:   "claudechat",
	Short: "Terminal chat client for Claude",
	Long:  "Chat with Claude from the terminal, with prompt-cache checkpoints to cut the cost of long conversations.",
	RunE:  runChat,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model alias or full ID (default from config)")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Data directory for conversations")
	rootCmd.Flags().StringVarP(&flagConversation, "conversation", "c", "", "Saved conversation to open")
	rootCmd.Flags().BoolVar(&flagPlain, "plain", false, "No TUI: read one prompt from stdin, print the reply")
}

// loadConfig loads config and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagDataDir != "" {
		cfg.General.DataDir = flagDataDir
	}
	return cfg, nil
}

// openStores opens the conversation store and attachment registry under
// the configured data directory.
func openStores(cfg config.Config) (*store.ConversationStore, *store.Registry, error) {
	dataDir := config.DataDir(cfg)
	st, err := store.NewConversationStore(dataDir, cfg.General.MaxSavedConversations)
	if err != nil {
		return nil, nil, err
	}
	reg, err := store.OpenRegistry(filepath.Join(dataDir, "attachments.db"))
	if err != nil {
		return nil, nil, err
	}
	return st, reg, nil
}

// lazyTransport resolves the API key per request, so a key saved by
// the first-run setup form takes effect without a restart.
type lazyTransport struct {
	baseURL string
}

func (l *lazyTransport) CreateMessage(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	apiKey := config.GetAPIKey(cfg)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key: set ANTHROPIC_API_KEY or run `claudechat setup`")
	}
	client, err := anthropic.NewClient(apiKey, l.baseURL)
	if err != nil {
		return nil, err
	}
	return client.CreateMessage(ctx, req)
}

// sessionInit is a ready-to-run session with the resources the command
// must release and surface. cacheWarning is non-nil when a malformed
// checkpoint record was dropped on load.
type sessionInit struct {
	session      *chat.Session
	registry     *store.Registry
	cacheWarning error
}

// newSession wires up a session: config, transport, stores, and the
// conversation selected by flags (the current one by default).
func newSession(cfg config.Config) (sessionInit, error) {
	client := &lazyTransport{baseURL: cfg.API.BaseURL}

	st, reg, err := openStores(cfg)
	if err != nil {
		return sessionInit{}, err
	}

	var res *store.LoadResult
	if flagConversation != "" {
		res, err = st.LoadArchived(flagConversation)
		if err != nil {
			return sessionInit{}, fmt.Errorf("loading conversation %q: %w", flagConversation, err)
		}
	} else {
		res, err = st.LoadCurrent()
		if err != nil {
			return sessionInit{}, err
		}
	}

	session, err := buildSession(cfg, client, st, reg, res)
	if err != nil {
		return sessionInit{}, err
	}
	si := sessionInit{session: session, registry: reg}
	if res != nil {
		si.cacheWarning = res.CacheWarning
	}
	if flagModel != "" {
		session.SwitchModel(flagModel)
	}
	return si, nil
}

func buildSession(cfg config.Config, transport chat.Transport, st *store.ConversationStore, reg *store.Registry, res *store.LoadResult) (*chat.Session, error) {
	if res == nil {
		return chat.NewSession(cfg, transport, st, reg, nil, nil)
	}
	return chat.NewSession(cfg, transport, st, reg, res.Conversation, res.Checkpoint)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	si, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer si.registry.Close()

	if flagPlain {
		return runPlain(cmd, si.session, si.cacheWarning)
	}

	app := tui.NewApp(cfg, si.session, si.cacheWarning)
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat: %w", err)
	}
	return nil
}

// runPlain sends one prompt read from stdin and prints the reply.
func runPlain(cmd *cobra.Command, session *chat.Session, cacheWarning error) error {
	if cacheWarning != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "  warning: cache state discarded: %v\n", cacheWarning)
	}
	prompt, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("reading prompt: %w", err)
	}
	reply, err := session.Send(context.Background(), string(prompt))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
	return nil
}
