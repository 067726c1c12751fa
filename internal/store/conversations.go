// Package store persists conversations as JSON documents and tracks
// attached files in a SQLite registry.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"claudechat/internal/cache"
	"claudechat/internal/model"
)

const currentFileName = "current.json"

// document is the on-disk conversation shape. The cache checkpoint is
// embedded verbatim under cache_metadata.
type document struct {
	Messages     []model.Message `json:"messages"`
	CreatedAt    string          `json:"created_at"`
	CurrentModel string          `json:"current_model,omitempty"`
	WebSearch    bool            `json:"web_search_enabled,omitempty"`
	CacheMeta    json.RawMessage `json:"cache_metadata,omitempty"`
}

// LoadResult is a loaded conversation plus its restored cache state.
// CacheWarning is non-nil when a malformed checkpoint record was dropped;
// the conversation itself is still usable.
type LoadResult struct {
	Conversation *model.Conversation
	Checkpoint   *cache.Checkpoint
	CacheWarning error
}

// SavedConversation describes one archived conversation file.
type SavedConversation struct {
	Name     string
	ModTime  time.Time
	Messages int
	Model    string
}

// ConversationStore reads and writes conversation documents under a data
// directory: one current conversation plus an archive of named ones.
type ConversationStore struct {
	dataDir    string
	archiveDir string
	maxSaved   int
}

// NewConversationStore creates the data directories if needed.
func NewConversationStore(dataDir string, maxSaved int) (*ConversationStore, error) {
	archiveDir := filepath.Join(dataDir, "conversations")
	if err := os.MkdirAll(archiveDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating conversations dir: %w", err)
	}
	if maxSaved <= 0 {
		maxSaved = 50
	}
	return &ConversationStore{
		dataDir:    dataDir,
		archiveDir: archiveDir,
		maxSaved:   maxSaved,
	}, nil
}

func (s *ConversationStore) currentPath() string {
	return filepath.Join(s.dataDir, currentFileName)
}

// SaveCurrent writes the working conversation (and its cache checkpoint,
// if any) to the current file.
func (s *ConversationStore) SaveCurrent(conv *model.Conversation, cp *cache.Checkpoint) error {
	return s.write(s.currentPath(), conv, cp)
}

func (s *ConversationStore) write(path string, conv *model.Conversation, cp *cache.Checkpoint) error {
	doc := document{
		Messages:     conv.Messages,
		CreatedAt:    conv.CreatedAt,
		CurrentModel: conv.CurrentModel,
		WebSearch:    conv.WebSearch,
	}
	if cp != nil {
		raw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("encoding cache checkpoint: %w", err)
		}
		doc.CacheMeta = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}
	return nil
}

// LoadCurrent loads the working conversation. Returns (nil, nil) when no
// current file exists yet.
func (s *ConversationStore) LoadCurrent() (*LoadResult, error) {
	res, err := s.read(s.currentPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	return res, err
}

// LoadArchived loads a named conversation from the archive. The .json
// suffix is optional.
func (s *ConversationStore) LoadArchived(name string) (*LoadResult, error) {
	return s.read(filepath.Join(s.archiveDir, ensureJSON(name)))
}

func (s *ConversationStore) read(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("reading conversation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing conversation %s: %w", filepath.Base(path), err)
	}

	res := &LoadResult{
		Conversation: &model.Conversation{
			Messages:     doc.Messages,
			CreatedAt:    doc.CreatedAt,
			CurrentModel: doc.CurrentModel,
			WebSearch:    doc.WebSearch,
		},
	}

	// Caching is an optimization: a checkpoint record that no longer
	// decodes is dropped rather than failing the whole load.
	if len(doc.CacheMeta) > 0 {
		var cp cache.Checkpoint
		if err := json.Unmarshal(doc.CacheMeta, &cp); err != nil {
			res.CacheWarning = err
		} else {
			res.Checkpoint = &cp
		}
	}
	return res, nil
}

// Archive saves the conversation under a timestamped name and prunes old
// archives. Empty conversations are not archived.
func (s *ConversationStore) Archive(conv *model.Conversation, cp *cache.Checkpoint) (string, error) {
	if !conv.HasMessages() {
		return "", nil
	}
	name := time.Now().Format("2006-01-02_15-04-05") + ".json"
	if err := s.write(filepath.Join(s.archiveDir, name), conv, cp); err != nil {
		return "", err
	}
	if err := s.prune(name); err != nil {
		return name, err
	}
	return name, nil
}

// ArchiveAs saves the conversation under a user-chosen name, overwriting
// any existing archive with that name.
func (s *ConversationStore) ArchiveAs(conv *model.Conversation, cp *cache.Checkpoint, name string) (string, error) {
	if !conv.HasMessages() {
		return "", fmt.Errorf("nothing to save")
	}
	name = ensureJSON(name)
	if err := s.write(filepath.Join(s.archiveDir, name), conv, cp); err != nil {
		return "", err
	}
	if err := s.prune(name); err != nil {
		return name, err
	}
	return name, nil
}

// List returns archived conversations, most recent first.
func (s *ConversationStore) List() ([]SavedConversation, error) {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	var out []SavedConversation
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sc := SavedConversation{
			Name:    strings.TrimSuffix(e.Name(), ".json"),
			ModTime: info.ModTime(),
		}
		if res, err := s.read(filepath.Join(s.archiveDir, e.Name())); err == nil {
			sc.Messages = len(res.Conversation.Messages)
			sc.Model = res.Conversation.CurrentModel
		}
		out = append(out, sc)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}

// LoadMostRecent returns the most recently modified conversation (the
// current file or any archive), or nil when none exist.
func (s *ConversationStore) LoadMostRecent() (*LoadResult, error) {
	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	if info, err := os.Stat(s.currentPath()); err == nil {
		candidates = append(candidates, candidate{s.currentPath(), info.ModTime()})
	}
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if info, err := e.Info(); err == nil {
			candidates = append(candidates, candidate{filepath.Join(s.archiveDir, e.Name()), info.ModTime()})
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	return s.read(candidates[0].path)
}

// prune deletes the oldest archives beyond the retention limit, never
// touching the named file.
func (s *ConversationStore) prune(keep string) error {
	entries, err := os.ReadDir(s.archiveDir)
	if err != nil {
		return err
	}

	type aged struct {
		name    string
		modTime time.Time
	}
	var files []aged
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name() == keep {
			continue
		}
		if info, err := e.Info(); err == nil {
			files = append(files, aged{e.Name(), info.ModTime()})
		}
	}
	if len(files) < s.maxSaved {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	for _, f := range files[s.maxSaved-1:] {
		if err := os.Remove(filepath.Join(s.archiveDir, f.name)); err != nil {
			return fmt.Errorf("pruning old conversation: %w", err)
		}
	}
	return nil
}

func ensureJSON(name string) string {
	if !strings.HasSuffix(name, ".json") {
		return name + ".json"
	}
	return name
}
