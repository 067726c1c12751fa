// Package cache manages the prompt-cache checkpoint of a conversation:
// where the cached prefix ends, how outgoing messages are annotated with
// cache_control markers, and how usage counters from API responses move
// the checkpoint between active and expired.
package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Supported cache duration classes, in minutes.
const (
	DurationShort = 5
	DurationLong  = 60
)

// TTL strings sent on the wire for each duration class.
const (
	TTLShort = "5m"
	TTLLong  = "1h"
)

// Checkpoint marks the prefix of a conversation designated for prompt
// caching. At most one exists per conversation. Index is fixed at
// creation: appended messages are never part of the cached prefix.
type Checkpoint struct {
	Index               int
	CreatedAt           time.Time
	DurationMinutes     int
	LastHitAt           *time.Time
	CreationTokens      int
	HitTokens           int
	TotalCachedMessages int
}

// TTL returns the wire TTL string for the checkpoint's duration class.
func (c *Checkpoint) TTL() string {
	if c.DurationMinutes == DurationLong {
		return TTLLong
	}
	return TTLShort
}

// MinutesSinceHit returns whole minutes elapsed since the last confirmed
// hit, or false when the checkpoint has never been confirmed.
func (c *Checkpoint) MinutesSinceHit(now time.Time) (int, bool) {
	if c.LastHitAt == nil {
		return 0, false
	}
	return int(now.Sub(*c.LastHitAt).Minutes()), true
}

// StateAt derives the checkpoint state at the given instant. A checkpoint
// that has never been confirmed by a usage report is NONE for display.
func (c *Checkpoint) StateAt(now time.Time) State {
	minutes, ok := c.MinutesSinceHit(now)
	if !ok {
		return StateNone
	}
	if minutes >= c.DurationMinutes {
		return StateExpired
	}
	return StateActive
}

// checkpointJSON is the persisted record shape. Pointer fields let decode
// distinguish absent from zero.
type checkpointJSON struct {
	Index               *int    `json:"checkpoint_index"`
	CreatedAt           *string `json:"created_at"`
	LastHitAt           *string `json:"last_hit_at,omitempty"`
	CreationTokens      *int    `json:"creation_tokens"`
	HitTokens           *int    `json:"hit_tokens"`
	TotalCachedMessages *int    `json:"total_cached_messages"`
	DurationMinutes     *int    `json:"duration_minutes"`
}

// MarshalJSON writes the on-disk record shape with ISO-8601 timestamps.
func (c Checkpoint) MarshalJSON() ([]byte, error) {
	created := c.CreatedAt.Format(time.RFC3339)
	out := checkpointJSON{
		Index:               &c.Index,
		CreatedAt:           &created,
		CreationTokens:      &c.CreationTokens,
		HitTokens:           &c.HitTokens,
		TotalCachedMessages: &c.TotalCachedMessages,
		DurationMinutes:     &c.DurationMinutes,
	}
	if c.LastHitAt != nil {
		hit := c.LastHitAt.Format(time.RFC3339)
		out.LastHitAt = &hit
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the persisted record. Every field except
// last_hit_at is required; a record that fails here should be dropped by
// the caller rather than treated as a fatal conversation-load error.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var raw checkpointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("cache: decoding checkpoint: %w", err)
	}

	switch {
	case raw.Index == nil:
		return fmt.Errorf("cache: checkpoint record missing checkpoint_index")
	case raw.CreatedAt == nil:
		return fmt.Errorf("cache: checkpoint record missing created_at")
	case raw.CreationTokens == nil:
		return fmt.Errorf("cache: checkpoint record missing creation_tokens")
	case raw.HitTokens == nil:
		return fmt.Errorf("cache: checkpoint record missing hit_tokens")
	case raw.TotalCachedMessages == nil:
		return fmt.Errorf("cache: checkpoint record missing total_cached_messages")
	case raw.DurationMinutes == nil:
		return fmt.Errorf("cache: checkpoint record missing duration_minutes")
	}

	if *raw.Index < 0 {
		return fmt.Errorf("cache: checkpoint_index %d is negative", *raw.Index)
	}
	if *raw.DurationMinutes != DurationShort && *raw.DurationMinutes != DurationLong {
		return fmt.Errorf("cache: duration_minutes %d not in {%d, %d}", *raw.DurationMinutes, DurationShort, DurationLong)
	}

	created, err := time.Parse(time.RFC3339, *raw.CreatedAt)
	if err != nil {
		return fmt.Errorf("cache: parsing created_at: %w", err)
	}

	c.Index = *raw.Index
	c.CreatedAt = created
	c.CreationTokens = *raw.CreationTokens
	c.HitTokens = *raw.HitTokens
	c.TotalCachedMessages = *raw.TotalCachedMessages
	c.DurationMinutes = *raw.DurationMinutes
	c.LastHitAt = nil
	if raw.LastHitAt != nil {
		hit, err := time.Parse(time.RFC3339, *raw.LastHitAt)
		if err != nil {
			return fmt.Errorf("cache: parsing last_hit_at: %w", err)
		}
		c.LastHitAt = &hit
	}
	return nil
}
