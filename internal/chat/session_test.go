package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"claudechat/internal/anthropic"
	"claudechat/internal/cache"
	"claudechat/internal/config"
	"claudechat/internal/model"
	"claudechat/internal/store"
)

// fakeTransport replays scripted responses and records every request.
type fakeTransport struct {
	requests  []anthropic.MessagesRequest
	responses []*anthropic.MessagesResponse
	err       error
}

func (f *fakeTransport) CreateMessage(_ context.Context, req anthropic.MessagesRequest) (*anthropic.MessagesResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return textResponse("ok", model.Usage{InputTokens: 10, OutputTokens: 5}), nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func textResponse(text string, u model.Usage) *anthropic.MessagesResponse {
	return &anthropic.MessagesResponse{
		Model:   "claude-sonnet-4-20250514",
		Content: []anthropic.ReplyBlock{{Type: "text", Text: text}},
		Usage:   u,
	}
}

func newTestSession(t *testing.T, ft *fakeTransport) *Session {
	t.Helper()
	st, err := store.NewConversationStore(t.TempDir(), 10)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(config.DefaultConfig(), ft, st, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSend_AppendsBothSides(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(t, ft)

	reply, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Text != "ok" {
		t.Errorf("reply = %q", reply.Text)
	}
	if got := len(s.Conversation().Messages); got != 2 {
		t.Fatalf("transcript has %d messages, want 2", got)
	}
	if len(ft.requests) != 1 || len(ft.requests[0].Messages) != 1 {
		t.Fatalf("requests = %+v", ft.requests)
	}
	if ft.requests[0].Model != "claude-sonnet-4-20250514" {
		t.Errorf("request model = %q", ft.requests[0].Model)
	}
}

func TestSend_EmptyRejected(t *testing.T) {
	s := newTestSession(t, &fakeTransport{})
	if _, err := s.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSend_TransportErrorRollsBackUserMessage(t *testing.T) {
	ft := &fakeTransport{err: errors.New("boom")}
	s := newTestSession(t, ft)

	if _, err := s.Send(context.Background(), "hello"); err == nil {
		t.Fatal("no error from failed transport")
	}
	if s.Conversation().HasMessages() {
		t.Errorf("user message not rolled back: %+v", s.Conversation().Messages)
	}
}

func TestSend_CheckpointAnnotatesRequest(t *testing.T) {
	ft := &fakeTransport{responses: []*anthropic.MessagesResponse{
		textResponse("first", model.Usage{}),
		textResponse("second", model.Usage{CacheCreationInputTokens: 1200}),
	}}
	s := newTestSession(t, ft)

	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	index, err := s.CreateCheckpoint(cache.DurationLong)
	if err != nil {
		t.Fatalf("CreateCheckpoint: %v", err)
	}
	if index != 1 {
		t.Errorf("checkpoint index = %d, want 1", index)
	}

	if _, err := s.Send(context.Background(), "more"); err != nil {
		t.Fatal(err)
	}

	req := ft.requests[1]
	marked := req.Messages[index].Content
	if !marked.IsBlocks() {
		t.Fatal("checkpoint message not converted to blocks")
	}
	cc := marked.Blocks[len(marked.Blocks)-1].CacheControl
	if cc == nil || cc.Type != "ephemeral" || cc.TTL != "1h" {
		t.Errorf("cache_control = %+v", cc)
	}

	st := s.CacheStatus()
	if st.State != cache.StateActive {
		t.Errorf("state = %v after creation report, want active", st.State)
	}
	if st.CreationTokens != 1200 {
		t.Errorf("creation tokens = %d", st.CreationTokens)
	}
}

func TestCreateCheckpoint_EmptyConversation(t *testing.T) {
	s := newTestSession(t, &fakeTransport{})
	if _, err := s.CreateCheckpoint(cache.DurationShort); !errors.Is(err, cache.ErrNoMessages) {
		t.Errorf("err = %v, want ErrNoMessages", err)
	}
}

func TestSend_PersistsConversationAndCheckpoint(t *testing.T) {
	ft := &fakeTransport{responses: []*anthropic.MessagesResponse{
		textResponse("a", model.Usage{}),
		textResponse("b", model.Usage{CacheCreationInputTokens: 900}),
	}}
	dir := t.TempDir()
	st, err := store.NewConversationStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(config.DefaultConfig(), ft, st, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Send(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCheckpoint(cache.DurationShort); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "two"); err != nil {
		t.Fatal(err)
	}

	res, err := st.LoadCurrent()
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Conversation.Messages) != 4 {
		t.Fatalf("persisted state: %+v", res)
	}
	if res.Checkpoint == nil || res.Checkpoint.CreationTokens != 900 {
		t.Errorf("checkpoint = %+v", res.Checkpoint)
	}

	// A new session over the persisted state resumes the checkpoint.
	s2, err := NewSession(config.DefaultConfig(), ft, st, nil, res.Conversation, res.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.CacheStatus().State; got != cache.StateActive {
		t.Errorf("restored state = %v, want active", got)
	}
}

func TestAttach_StagedBlocksRideNextMessage(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(t, ft)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("remember this"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Attach(path); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if s.PendingAttachments() != 1 {
		t.Fatalf("pending = %d", s.PendingAttachments())
	}

	if _, err := s.Send(context.Background(), "see attached"); err != nil {
		t.Fatal(err)
	}

	content := ft.requests[0].Messages[0].Content
	if !content.IsBlocks() || len(content.Blocks) != 2 {
		t.Fatalf("content = %+v", content)
	}
	if content.Blocks[0].Type != model.BlockText || content.Blocks[1].Text != "see attached" {
		t.Errorf("blocks = %+v", content.Blocks)
	}
	if s.PendingAttachments() != 0 {
		t.Error("pending attachments not cleared after send")
	}
}

func TestSend_MentionedAttachmentAutoReferenced(t *testing.T) {
	ft := &fakeTransport{}
	dir := t.TempDir()
	st, err := store.NewConversationStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	reg, err := store.OpenRegistry(filepath.Join(dir, "attachments.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reg.Close() })

	s, err := NewSession(config.DefaultConfig(), ft, st, reg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("remember this"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Attach(path); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "first look"); err != nil {
		t.Fatal(err)
	}

	// Mentioning the filename later re-includes the file.
	if _, err := s.Send(context.Background(), "back to notes.txt please"); err != nil {
		t.Fatal(err)
	}
	content := ft.requests[1].Messages[2].Content
	if !content.IsBlocks() {
		t.Fatalf("mention did not produce blocks: %+v", content)
	}
	found := false
	for _, b := range content.Blocks {
		if strings.Contains(b.Text, "remember this") {
			found = true
		}
	}
	if !found {
		t.Errorf("mentioned file not re-included: %+v", content.Blocks)
	}

	// A message that mentions nothing stays plain text.
	if _, err := s.Send(context.Background(), "unrelated"); err != nil {
		t.Fatal(err)
	}
	if ft.requests[2].Messages[4].Content.IsBlocks() {
		t.Error("plain message gained attachment blocks")
	}
}

func TestSend_WebSearchToolRidesRequest(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(t, ft)

	if err := s.SetWebSearch(true); err != nil {
		t.Fatalf("SetWebSearch: %v", err)
	}
	if _, err := s.Send(context.Background(), "look this up"); err != nil {
		t.Fatal(err)
	}
	tools := ft.requests[0].Tools
	if len(tools) != 1 {
		t.Fatalf("tools = %+v, want one entry", tools)
	}
	if tools[0].Type != "web_search_20250305" || tools[0].Name != "web_search" || tools[0].MaxUses != 5 {
		t.Errorf("web search tool = %+v", tools[0])
	}

	if err := s.SetWebSearch(false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "no searching"); err != nil {
		t.Fatal(err)
	}
	if len(ft.requests[1].Tools) != 0 {
		t.Errorf("tools still attached after disable: %+v", ft.requests[1].Tools)
	}
}

func TestWebSearch_SurvivesNewAndPersists(t *testing.T) {
	ft := &fakeTransport{}
	dir := t.TempDir()
	st, err := store.NewConversationStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(config.DefaultConfig(), ft, st, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if enabled, err := s.ToggleWebSearch(); err != nil || !enabled {
		t.Fatalf("ToggleWebSearch = %v, %v", enabled, err)
	}
	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	// The preference belongs to the session, not the conversation it
	// happened to be set on.
	if _, err := s.New(); err != nil {
		t.Fatal(err)
	}
	if !s.WebSearchEnabled() {
		t.Error("web search dropped by starting a new conversation")
	}
	if _, err := s.Send(context.Background(), "still searching"); err != nil {
		t.Fatal(err)
	}
	last := ft.requests[len(ft.requests)-1]
	if len(last.Tools) != 1 {
		t.Errorf("tools = %+v after /new", last.Tools)
	}

	// The flag is persisted and restored with the conversation.
	res, err := st.LoadCurrent()
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || !res.Conversation.WebSearch {
		t.Fatalf("persisted web search flag missing: %+v", res)
	}
	s2, err := NewSession(config.DefaultConfig(), ft, st, nil, res.Conversation, res.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	if !s2.WebSearchEnabled() {
		t.Error("restored session lost the web search flag")
	}
}

func TestSwitchModel_RecordsNoteAndSkipsWire(t *testing.T) {
	ft := &fakeTransport{}
	s := newTestSession(t, ft)

	if _, err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	full := s.SwitchModel("opus")
	if full != "claude-opus-4-20250514" {
		t.Errorf("resolved = %q", full)
	}
	if _, err := s.Send(context.Background(), "again"); err != nil {
		t.Fatal(err)
	}

	// Transcript holds the switch note; the wire does not.
	if got := len(s.Conversation().Messages); got != 5 {
		t.Errorf("transcript = %d messages, want 5", got)
	}
	if got := len(ft.requests[1].Messages); got != 3 {
		t.Errorf("wire = %d messages, want 3", got)
	}
	if ft.requests[1].Model != "claude-opus-4-20250514" {
		t.Errorf("request model = %q", ft.requests[1].Model)
	}
}

func TestNewAndLoad_RoundTripCheckpoint(t *testing.T) {
	ft := &fakeTransport{responses: []*anthropic.MessagesResponse{
		textResponse("a", model.Usage{}),
		textResponse("b", model.Usage{CacheCreationInputTokens: 500}),
	}}
	s := newTestSession(t, ft)

	if _, err := s.Send(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCheckpoint(cache.DurationLong); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Send(context.Background(), "two"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveAs("saved"); err != nil {
		t.Fatal(err)
	}

	archived, err := s.New()
	if err != nil {
		t.Fatal(err)
	}
	if archived == "" {
		t.Error("non-empty conversation not archived")
	}
	if s.Conversation().HasMessages() {
		t.Error("new conversation not empty")
	}
	if s.CacheStatus().State != cache.StateNone {
		t.Error("checkpoint survived /new")
	}

	warning, err := s.Load("saved")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if warning != nil {
		t.Errorf("unexpected warning: %v", warning)
	}
	if len(s.Conversation().Messages) != 4 {
		t.Errorf("loaded %d messages", len(s.Conversation().Messages))
	}
	if got := s.CacheStatus(); got.State != cache.StateActive || got.CreationTokens != 500 {
		t.Errorf("restored status = %+v", got)
	}
}
