// Package chat runs a conversation: it owns the message list, the cache
// checkpoint, persistence, and the exchange with the Messages API.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"claudechat/internal/anthropic"
	"claudechat/internal/cache"
	"claudechat/internal/config"
	"claudechat/internal/files"
	"claudechat/internal/model"
	"claudechat/internal/store"
)

// ErrEmptyMessage is returned when Send is called with nothing to say.
var ErrEmptyMessage = errors.New("chat: empty message")

// Transport sends one Messages API request. Satisfied by
// *anthropic.Client and by test fakes.
type Transport interface {
	CreateMessage(ctx context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error)
}

// Session is one user-facing chat. Not safe for concurrent use; the UI
// drives it one exchange at a time.
type Session struct {
	cfg       config.Config
	transport Transport
	store     *store.ConversationStore
	registry  *store.Registry
	cache     *cache.Manager

	conv      *model.Conversation
	pending   []model.ContentBlock
	webSearch bool
}

// Reply is the outcome of one exchange.
type Reply struct {
	Text  string
	Model string
	Usage model.Usage
}

// NewSession builds a session over an existing conversation, or a fresh
// one when conv is nil. A restored checkpoint may be nil.
func NewSession(cfg config.Config, transport Transport, st *store.ConversationStore, reg *store.Registry, conv *model.Conversation, cp *cache.Checkpoint) (*Session, error) {
	if conv == nil {
		conv = model.NewConversation(config.ResolveModel(cfg, cfg.Models.Default))
	}
	if conv.CurrentModel == "" {
		conv.CurrentModel = config.ResolveModel(cfg, cfg.Models.Default)
	}

	mgr := cache.NewManager()
	mgr.SetReannotateEstablished(cfg.Cache.ReannotateEstablished)
	if err := mgr.Restore(cp); err != nil {
		return nil, fmt.Errorf("chat: restoring cache checkpoint: %w", err)
	}

	return &Session{
		cfg:       cfg,
		transport: transport,
		store:     st,
		registry:  reg,
		cache:     mgr,
		conv:      conv,
		webSearch: conv.WebSearch,
	}, nil
}

// Conversation exposes the underlying conversation for display.
func (s *Session) Conversation() *model.Conversation {
	return s.conv
}

// Model returns the full identifier of the model currently answering.
func (s *Session) Model() string {
	return s.conv.CurrentModel
}

// SwitchModel switches to the named model (alias or full ID), recording
// the switch in the transcript. Cache state is kept: prompt caches are
// model-scoped server-side, so the next exchange simply misses.
func (s *Session) SwitchModel(name string) string {
	full := config.ResolveModel(s.cfg, name)
	s.conv.SwitchModel(full)
	return full
}

// SetWebSearch turns the server-side web search tool on or off for
// later exchanges and persists the choice with the conversation.
func (s *Session) SetWebSearch(on bool) error {
	s.webSearch = on
	return s.Persist()
}

// ToggleWebSearch flips the web search flag and returns the new state.
func (s *Session) ToggleWebSearch() (bool, error) {
	err := s.SetWebSearch(!s.webSearch)
	return s.webSearch, err
}

// WebSearchEnabled reports whether requests carry the web search tool.
func (s *Session) WebSearchEnabled() bool {
	return s.webSearch
}

// Attach processes a local file, stages its content block for the next
// message, and records it in the attachment registry when one is open.
func (s *Session) Attach(path string) (files.Processed, error) {
	p, err := files.Process(path)
	if err != nil {
		return files.Processed{}, err
	}
	s.pending = append(s.pending, p.Block)
	if s.registry != nil {
		if _, err := s.registry.Add(p.Filename, path, p.SizeBytes, p.MimeType); err != nil {
			return files.Processed{}, fmt.Errorf("chat: registering attachment: %w", err)
		}
	}
	return p, nil
}

// PendingAttachments reports how many staged blocks the next message
// will carry.
func (s *Session) PendingAttachments() int {
	return len(s.pending)
}

// Send runs one exchange: append the user message (with any staged
// attachments), annotate for the cache checkpoint, call the API, record
// the reply, fold usage counters into the checkpoint, and persist. On
// transport failure the user message is rolled back so a retry does not
// duplicate it.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(s.pending) == 0 {
		return Reply{}, ErrEmptyMessage
	}

	s.autoReference(text)
	s.conv.Add(model.NewUserMessage(s.buildContent(text)))
	s.pending = nil

	req := anthropic.MessagesRequest{
		Model:     s.conv.CurrentModel,
		MaxTokens: s.cfg.API.MaxTokens,
		Messages:  s.cache.Annotate(s.conv.APIMessages()),
	}
	if s.webSearch {
		req.Tools = []anthropic.Tool{anthropic.WebSearchTool()}
	}

	resp, err := s.transport.CreateMessage(ctx, req)
	if err != nil {
		s.conv.Messages = s.conv.Messages[:len(s.conv.Messages)-1]
		return Reply{}, err
	}

	s.conv.Add(model.NewAssistantMessage(resp.Text(), resp.Model))
	s.cache.UpdateFromUsage(resp.Usage)

	if err := s.Persist(); err != nil {
		return Reply{Text: resp.Text(), Model: resp.Model, Usage: resp.Usage}, err
	}
	return Reply{Text: resp.Text(), Model: resp.Model, Usage: resp.Usage}, nil
}

// autoReference stages registered attachments whose filename appears in
// the message text, so files can be re-sent by mentioning them. Files
// that no longer read back are skipped silently.
func (s *Session) autoReference(text string) {
	if s.registry == nil || text == "" {
		return
	}
	known, err := s.registry.List()
	if err != nil {
		return
	}
	lower := strings.ToLower(text)
	staged := make(map[string]bool, len(s.pending))
	for _, b := range s.pending {
		staged[blockKey(b)] = true
	}
	seen := make(map[string]bool, len(known))
	for _, a := range known {
		if seen[a.Filename] || !strings.Contains(lower, strings.ToLower(a.Filename)) {
			continue
		}
		seen[a.Filename] = true
		p, err := files.Process(a.Path)
		if err != nil {
			continue
		}
		if staged[blockKey(p.Block)] {
			continue
		}
		s.pending = append(s.pending, p.Block)
	}
}

func blockKey(b model.ContentBlock) string {
	if b.Source != nil {
		return b.Type + ":" + b.Source.Data
	}
	return b.Type + ":" + b.Text
}

// buildContent assembles the outgoing message body. Plain text stays a
// bare string; staged attachments produce a block list with the text
// last.
func (s *Session) buildContent(text string) model.Content {
	if len(s.pending) == 0 {
		return model.TextContent(text)
	}
	blocks := make([]model.ContentBlock, 0, len(s.pending)+1)
	blocks = append(blocks, s.pending...)
	if text != "" {
		blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: text})
	}
	return model.BlocksContent(blocks...)
}

// CreateCheckpoint declares a cache checkpoint over the current
// conversation and persists immediately.
func (s *Session) CreateCheckpoint(durationMinutes int) (int, error) {
	index, err := s.cache.Create(s.conv.APIMessages(), durationMinutes)
	if err != nil {
		return 0, err
	}
	return index, s.Persist()
}

// ClearCheckpoint discards the cache checkpoint and persists.
func (s *Session) ClearCheckpoint() error {
	s.cache.Clear()
	return s.Persist()
}

// CacheStatus returns the derived checkpoint status for display.
func (s *Session) CacheStatus() cache.Status {
	return s.cache.Status()
}

// DetachStore stops the session from persisting. Used by one-shot
// invocations that should not touch the current conversation on disk.
func (s *Session) DetachStore() {
	s.store = nil
}

// Persist writes the conversation and checkpoint to the current file.
func (s *Session) Persist() error {
	s.conv.WebSearch = s.webSearch
	if s.store == nil {
		return nil
	}
	return s.store.SaveCurrent(s.conv, s.cache.Snapshot())
}

// New archives the current conversation (if non-empty) and starts a
// fresh one. The cache checkpoint belongs to the archived conversation
// and travels with it; the web search preference stays with the session.
func (s *Session) New() (string, error) {
	archived, err := s.store.Archive(s.conv, s.cache.Snapshot())
	if err != nil {
		return "", err
	}
	s.conv = model.NewConversation(config.ResolveModel(s.cfg, s.cfg.Models.Default))
	s.cache.Clear()
	s.pending = nil
	return archived, s.Persist()
}

// SaveAs archives the current conversation under a chosen name.
func (s *Session) SaveAs(name string) (string, error) {
	return s.store.ArchiveAs(s.conv, s.cache.Snapshot(), name)
}

// Load replaces the current conversation with a named archive,
// restoring its cache checkpoint. Returns a non-nil warning when a
// malformed checkpoint record was dropped; the conversation still loads.
func (s *Session) Load(name string) (warning, err error) {
	res, err := s.store.LoadArchived(name)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Restore(res.Checkpoint); err != nil {
		s.cache.Clear()
		res.CacheWarning = err
	}
	s.conv = res.Conversation
	s.pending = nil
	// A saved web-search preference turns the tool on; it never turns
	// an already-enabled session off.
	if res.Conversation.WebSearch {
		s.webSearch = true
	}
	return res.CacheWarning, s.Persist()
}

// List returns the archived conversations, most recent first.
func (s *Session) List() ([]store.SavedConversation, error) {
	return s.store.List()
}
