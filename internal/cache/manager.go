package cache

import (
	"errors"

	"claudechat/internal/model"
)

// Validation rejections surfaced by Create. Both leave any existing
// checkpoint untouched.
var (
	ErrNoMessages      = errors.New("cache: no messages to cache")
	ErrInvalidDuration = errors.New("cache: duration must be 5 or 60 minutes")
)

// State is the derived checkpoint state. Never stored; always computed
// from last_hit_at, duration, and the current time.
type State string

const (
	StateNone    State = "none"
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Status is the read-only view handed to the display layer.
type Status struct {
	State           State
	ElapsedMinutes  int
	HasElapsed      bool
	DurationMinutes int
	CachedMessages  int
	CreationTokens  int
	HitTokens       int
}

// Manager owns the zero-or-one cache checkpoint of a conversation and
// all transitions on it. Purely in-memory and single-threaded: the
// surrounding app drives it one exchange at a time.
type Manager struct {
	clock      Clock
	checkpoint *Checkpoint

	// reannotateEstablished controls whether outgoing requests keep
	// carrying the cache marker after the remote side has confirmed a
	// cache creation. True re-annotates every request.
	reannotateEstablished bool
}

// NewManager returns a manager with no checkpoint and the default
// always-reannotate policy.
func NewManager() *Manager {
	return NewManagerWithClock(systemClock{})
}

// NewManagerWithClock is NewManager with an injected clock.
func NewManagerWithClock(clock Clock) *Manager {
	return &Manager{clock: clock, reannotateEstablished: true}
}

// SetReannotateEstablished sets the re-annotation policy. False stops
// annotating outgoing messages once creation tokens have been observed.
func (m *Manager) SetReannotateEstablished(v bool) {
	m.reannotateEstablished = v
}

// Create declares a checkpoint covering the full current message list,
// replacing any existing checkpoint. Returns the checkpoint index for
// caller display. No network side effects: the marker is applied lazily
// on the next outgoing request, and last_hit_at stays absent until the
// first usage report confirms the cache.
func (m *Manager) Create(messages []model.APIMessage, durationMinutes int) (int, error) {
	if len(messages) == 0 {
		return 0, ErrNoMessages
	}
	if durationMinutes != DurationShort && durationMinutes != DurationLong {
		return 0, ErrInvalidDuration
	}

	index := len(messages) - 1
	m.checkpoint = &Checkpoint{
		Index:               index,
		CreatedAt:           m.clock.Now(),
		DurationMinutes:     durationMinutes,
		TotalCachedMessages: index + 1,
	}
	return index, nil
}

// Annotate returns the messages to send, with a cache_control marker on
// the checkpoint message. The input is never mutated: the returned slice
// shares unannotated messages but the annotated one gets its own content.
// Pass-through when no checkpoint exists, the list is empty, or the
// policy says an established cache needs no further marking.
func (m *Manager) Annotate(messages []model.APIMessage) []model.APIMessage {
	cp := m.checkpoint
	if cp == nil || len(messages) == 0 {
		return messages
	}
	if !m.reannotateEstablished && cp.CreationTokens > 0 {
		return messages
	}
	if cp.Index >= len(messages) {
		return messages
	}

	out := make([]model.APIMessage, len(messages))
	copy(out, messages)

	marker := &model.CacheControl{Type: "ephemeral", TTL: cp.TTL()}
	target := messages[cp.Index].Content

	if !target.IsBlocks() {
		out[cp.Index].Content = model.BlocksContent(model.ContentBlock{
			Type:         model.BlockText,
			Text:         target.Text,
			CacheControl: marker,
		})
		return out
	}

	blocks := make([]model.ContentBlock, len(target.Blocks))
	copy(blocks, target.Blocks)
	if n := len(blocks); n > 0 {
		switch blocks[n-1].Type {
		case model.BlockText, model.BlockImage, model.BlockDocument:
			blocks[n-1].CacheControl = marker
		}
		// Unrecognized block types are skipped silently.
	}
	out[cp.Index].Content = model.Content{Blocks: blocks}
	return out
}

// UpdateFromUsage transitions the checkpoint from a response's token
// counters. Creation and read counters are independent and may both
// fire. Creation tokens are recorded first-report-wins: a re-creation
// after expiry refreshes last_hit_at but keeps the original figure.
func (m *Manager) UpdateFromUsage(u model.Usage) {
	if m.checkpoint == nil {
		return
	}
	if u.CacheCreationInputTokens > 0 {
		if m.checkpoint.CreationTokens == 0 {
			m.checkpoint.CreationTokens = u.CacheCreationInputTokens
		}
		now := m.clock.Now()
		m.checkpoint.LastHitAt = &now
	}
	if u.CacheReadInputTokens > 0 {
		m.checkpoint.HitTokens = u.CacheReadInputTokens
		now := m.clock.Now()
		m.checkpoint.LastHitAt = &now
	}
}

// Clear discards the checkpoint unconditionally.
func (m *Manager) Clear() {
	m.checkpoint = nil
}

// Status derives the current display status. Zero value with StateNone
// when no checkpoint exists.
func (m *Manager) Status() Status {
	cp := m.checkpoint
	if cp == nil {
		return Status{State: StateNone}
	}
	now := m.clock.Now()
	elapsed, ok := cp.MinutesSinceHit(now)
	return Status{
		State:           cp.StateAt(now),
		ElapsedMinutes:  elapsed,
		HasElapsed:      ok,
		DurationMinutes: cp.DurationMinutes,
		CachedMessages:  cp.TotalCachedMessages,
		CreationTokens:  cp.CreationTokens,
		HitTokens:       cp.HitTokens,
	}
}

// Snapshot returns a copy of the checkpoint for persistence, or nil.
func (m *Manager) Snapshot() *Checkpoint {
	if m.checkpoint == nil {
		return nil
	}
	cp := *m.checkpoint
	if m.checkpoint.LastHitAt != nil {
		hit := *m.checkpoint.LastHitAt
		cp.LastHitAt = &hit
	}
	return &cp
}

// Restore installs a previously persisted checkpoint. Nil clears.
// Staleness is not re-confirmed with the server: expiry is inferred
// locally from elapsed time on the next Status call.
func (m *Manager) Restore(cp *Checkpoint) error {
	if cp == nil {
		m.checkpoint = nil
		return nil
	}
	if cp.DurationMinutes != DurationShort && cp.DurationMinutes != DurationLong {
		return ErrInvalidDuration
	}
	copied := *cp
	if cp.LastHitAt != nil {
		hit := *cp.LastHitAt
		copied.LastHitAt = &hit
	}
	m.checkpoint = &copied
	return nil
}
