package cache

import (
	"errors"
	"testing"
	"time"

	"claudechat/internal/model"
)

// fakeClock lets tests step time forward deterministically.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManagerWithClock(clock), clock
}

func userMessages(n int) []model.APIMessage {
	msgs := make([]model.APIMessage, n)
	for i := range msgs {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msgs[i] = model.APIMessage{Role: role, Content: model.TextContent("message")}
	}
	return msgs
}

func TestCreate_SetsIndexAndCount(t *testing.T) {
	for _, duration := range []int{DurationShort, DurationLong} {
		m, _ := newTestManager(t)
		msgs := userMessages(4)

		index, err := m.Create(msgs, duration)
		if err != nil {
			t.Fatalf("Create(%d msgs, %d): %v", len(msgs), duration, err)
		}
		if index != 3 {
			t.Errorf("index = %d, want 3", index)
		}

		st := m.Status()
		if st.CachedMessages != 4 {
			t.Errorf("CachedMessages = %d, want 4", st.CachedMessages)
		}
		if st.DurationMinutes != duration {
			t.Errorf("DurationMinutes = %d, want %d", st.DurationMinutes, duration)
		}
	}
}

func TestCreate_EmptyConversationRejected(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Create(nil, DurationShort); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("Create(empty) err = %v, want ErrNoMessages", err)
	}
}

func TestCreate_EmptyLeavesPriorCheckpointUntouched(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(2), DurationLong); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Create(nil, DurationLong); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}

	st := m.Status()
	if st.CachedMessages != 2 || st.DurationMinutes != DurationLong {
		t.Errorf("prior checkpoint modified: %+v", st)
	}
}

func TestCreate_InvalidDurationRejected(t *testing.T) {
	m, _ := newTestManager(t)
	for _, duration := range []int{10, 0, -5, 30, 61} {
		if _, err := m.Create(userMessages(1), duration); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Create(duration=%d) err = %v, want ErrInvalidDuration", duration, err)
		}
	}
}

func TestCreate_ReplacesExistingCheckpoint(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(2), DurationShort); err != nil {
		t.Fatal(err)
	}
	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 500})

	index, err := m.Create(userMessages(6), DurationLong)
	if err != nil {
		t.Fatal(err)
	}
	if index != 5 {
		t.Errorf("index = %d, want 5", index)
	}

	st := m.Status()
	if st.State != StateNone {
		t.Errorf("state after replacement = %q, want none (unconfirmed)", st.State)
	}
	if st.CreationTokens != 0 {
		t.Errorf("CreationTokens = %d, want 0 after replacement", st.CreationTokens)
	}
}

func TestStatus_LifecycleNoneActiveExpired(t *testing.T) {
	m, clock := newTestManager(t)
	if _, err := m.Create(userMessages(3), DurationShort); err != nil {
		t.Fatal(err)
	}

	// Checkpoint exists but no usage report yet: NONE.
	if st := m.Status(); st.State != StateNone {
		t.Fatalf("state before first usage = %q, want none", st.State)
	}

	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 1000})
	if st := m.Status(); st.State != StateActive {
		t.Fatalf("state after creation report = %q, want active", st.State)
	}

	clock.advance(4 * time.Minute)
	if st := m.Status(); st.State != StateActive {
		t.Errorf("state at 4m of 5m = %q, want active", st.State)
	}

	clock.advance(1 * time.Minute)
	st := m.Status()
	if st.State != StateExpired {
		t.Errorf("state at 5m of 5m = %q, want expired", st.State)
	}
	if !st.HasElapsed || st.ElapsedMinutes != 5 {
		t.Errorf("elapsed = (%d, %v), want (5, true)", st.ElapsedMinutes, st.HasElapsed)
	}
}

func TestAnnotate_NoCheckpointPassThrough(t *testing.T) {
	m, _ := newTestManager(t)
	msgs := userMessages(2)

	out := m.Annotate(msgs)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	for i := range out {
		if out[i].Content.IsBlocks() {
			t.Errorf("message %d converted to blocks without a checkpoint", i)
		}
	}
}

func TestAnnotate_EmptyListPassThrough(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationShort); err != nil {
		t.Fatal(err)
	}
	if out := m.Annotate(nil); len(out) != 0 {
		t.Fatalf("Annotate(nil) returned %d messages", len(out))
	}
}

func TestAnnotate_StringContentBecomesMarkedTextBlock(t *testing.T) {
	cases := []struct {
		duration int
		wantTTL  string
	}{
		{DurationShort, "5m"},
		{DurationLong, "1h"},
	}
	for _, tc := range cases {
		m, _ := newTestManager(t)
		msgs := []model.APIMessage{
			{Role: model.RoleUser, Content: model.TextContent("hello")},
			{Role: model.RoleAssistant, Content: model.TextContent("hi there")},
		}
		if _, err := m.Create(msgs, tc.duration); err != nil {
			t.Fatal(err)
		}

		out := m.Annotate(msgs)

		blocks := out[1].Content.Blocks
		if len(blocks) != 1 {
			t.Fatalf("duration %d: block count = %d, want 1", tc.duration, len(blocks))
		}
		b := blocks[0]
		if b.Type != model.BlockText || b.Text != "hi there" {
			t.Errorf("block = {%s %q}, want text block with original text", b.Type, b.Text)
		}
		if b.CacheControl == nil {
			t.Fatal("missing cache_control marker")
		}
		if b.CacheControl.Type != "ephemeral" || b.CacheControl.TTL != tc.wantTTL {
			t.Errorf("marker = %+v, want {ephemeral %s}", *b.CacheControl, tc.wantTTL)
		}

		// Only the checkpoint message is touched.
		if out[0].Content.IsBlocks() {
			t.Error("message 0 annotated, want pass-through")
		}
	}
}

func TestAnnotate_BlockContentMarksLastBlockOnly(t *testing.T) {
	m, _ := newTestManager(t)
	msgs := []model.APIMessage{
		{Role: model.RoleUser, Content: model.BlocksContent(
			model.ContentBlock{Type: model.BlockText, Text: "look at this"},
			model.ContentBlock{Type: model.BlockImage, Source: &model.BlockSource{Type: "base64", MediaType: "image/png", Data: "aGk="}},
		)},
	}
	if _, err := m.Create(msgs, DurationLong); err != nil {
		t.Fatal(err)
	}

	out := m.Annotate(msgs)
	blocks := out[0].Content.Blocks
	if blocks[0].CacheControl != nil {
		t.Error("first block marked, want only last")
	}
	if blocks[1].CacheControl == nil || blocks[1].CacheControl.TTL != "1h" {
		t.Errorf("last block marker = %+v, want ephemeral/1h", blocks[1].CacheControl)
	}
}

func TestAnnotate_UnrecognizedLastBlockSkippedSilently(t *testing.T) {
	m, _ := newTestManager(t)
	msgs := []model.APIMessage{
		{Role: model.RoleUser, Content: model.BlocksContent(
			model.ContentBlock{Type: model.BlockText, Text: "use the tool"},
			model.ContentBlock{Type: "tool_use"},
		)},
	}
	if _, err := m.Create(msgs, DurationShort); err != nil {
		t.Fatal(err)
	}

	out := m.Annotate(msgs)
	for i, b := range out[0].Content.Blocks {
		if b.CacheControl != nil {
			t.Errorf("block %d marked, want none for unrecognized last block type", i)
		}
	}
}

func TestAnnotate_NeverMutatesInput(t *testing.T) {
	m, _ := newTestManager(t)
	original := []model.APIMessage{
		{Role: model.RoleUser, Content: model.TextContent("first")},
		{Role: model.RoleUser, Content: model.BlocksContent(
			model.ContentBlock{Type: model.BlockText, Text: "second"},
		)},
	}
	if _, err := m.Create(original, DurationShort); err != nil {
		t.Fatal(err)
	}

	_ = m.Annotate(original)

	if original[0].Content.IsBlocks() {
		t.Error("input message 0 content converted in place")
	}
	if original[1].Content.Blocks[0].CacheControl != nil {
		t.Error("input message 1 block marked in place")
	}
}

func TestAnnotate_ReappliedOnEveryRequestByDefault(t *testing.T) {
	m, _ := newTestManager(t)
	msgs := userMessages(2)
	if _, err := m.Create(msgs, DurationShort); err != nil {
		t.Fatal(err)
	}
	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 800})

	out := m.Annotate(msgs)
	if out[1].Content.Blocks[0].CacheControl == nil {
		t.Error("marker missing after creation report; default policy re-annotates")
	}
}

func TestAnnotate_SkipPolicyStopsAfterCreation(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetReannotateEstablished(false)
	msgs := userMessages(2)
	if _, err := m.Create(msgs, DurationShort); err != nil {
		t.Fatal(err)
	}

	// Before any creation report the marker still goes out.
	if out := m.Annotate(msgs); out[1].Content.Blocks[0].CacheControl == nil {
		t.Fatal("marker missing before creation was observed")
	}

	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 800})

	out := m.Annotate(msgs)
	if out[1].Content.IsBlocks() {
		t.Error("message annotated after creation with skip policy")
	}
}

func TestUpdateFromUsage_NoCheckpointIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	m.UpdateFromUsage(model.Usage{CacheReadInputTokens: 100})
	if st := m.Status(); st.State != StateNone {
		t.Errorf("state = %q, want none", st.State)
	}
}

func TestUpdateFromUsage_ReadTokens(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationShort); err != nil {
		t.Fatal(err)
	}

	m.UpdateFromUsage(model.Usage{CacheReadInputTokens: 250})

	st := m.Status()
	if st.HitTokens != 250 {
		t.Errorf("HitTokens = %d, want 250", st.HitTokens)
	}
	if st.State != StateActive {
		t.Errorf("state = %q, want active", st.State)
	}
	if !st.HasElapsed || st.ElapsedMinutes != 0 {
		t.Errorf("elapsed = (%d, %v), want (0, true)", st.ElapsedMinutes, st.HasElapsed)
	}
}

func TestUpdateFromUsage_CreationTokensFirstReportWins(t *testing.T) {
	m, clock := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationShort); err != nil {
		t.Fatal(err)
	}

	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 1200})
	clock.advance(10 * time.Minute) // expire, then implicit re-creation
	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 900})

	st := m.Status()
	if st.CreationTokens != 1200 {
		t.Errorf("CreationTokens = %d, want 1200 (first report wins)", st.CreationTokens)
	}
	// Re-creation still refreshes the hit time.
	if st.State != StateActive {
		t.Errorf("state after re-creation = %q, want active", st.State)
	}
}

func TestUpdateFromUsage_BothCountersInOneResponse(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationLong); err != nil {
		t.Fatal(err)
	}

	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 300, CacheReadInputTokens: 150})

	st := m.Status()
	if st.CreationTokens != 300 || st.HitTokens != 150 {
		t.Errorf("tokens = (%d, %d), want (300, 150)", st.CreationTokens, st.HitTokens)
	}
}

func TestClear_AlwaysYieldsNone(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(3), DurationLong); err != nil {
		t.Fatal(err)
	}
	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 100})

	m.Clear()

	st := m.Status()
	if st.State != StateNone || st.CachedMessages != 0 || st.CreationTokens != 0 {
		t.Errorf("status after clear = %+v, want empty", st)
	}
	if m.Snapshot() != nil {
		t.Error("Snapshot() non-nil after clear")
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m, clock := newTestManager(t)
	if _, err := m.Create(userMessages(4), DurationLong); err != nil {
		t.Fatal(err)
	}
	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 2000})
	clock.advance(20 * time.Minute)

	snap := m.Snapshot()

	restored := NewManagerWithClock(clock)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, want := restored.Status(), m.Status()
	if got != want {
		t.Errorf("restored status = %+v, want %+v", got, want)
	}
}

func TestRestore_NilClears(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationShort); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore(nil); err != nil {
		t.Fatal(err)
	}
	if st := m.Status(); st.State != StateNone {
		t.Errorf("state = %q, want none", st.State)
	}
}

func TestRestore_RejectsBadDuration(t *testing.T) {
	m, clock := newTestManager(t)
	cp := &Checkpoint{Index: 0, CreatedAt: clock.Now(), DurationMinutes: 15, TotalCachedMessages: 1}
	if err := m.Restore(cp); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("err = %v, want ErrInvalidDuration", err)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(userMessages(1), DurationShort); err != nil {
		t.Fatal(err)
	}
	m.UpdateFromUsage(model.Usage{CacheReadInputTokens: 50})

	snap := m.Snapshot()
	snap.HitTokens = 9999
	*snap.LastHitAt = snap.LastHitAt.Add(-time.Hour)

	if st := m.Status(); st.HitTokens != 50 {
		t.Errorf("manager state changed through snapshot: HitTokens = %d", st.HitTokens)
	}
}

// Mirrors the full create -> annotate -> creation report -> status flow.
func TestEndToEnd_SixMessageScenario(t *testing.T) {
	m, _ := newTestManager(t)
	msgs := userMessages(6)

	index, err := m.Create(msgs, DurationLong)
	if err != nil {
		t.Fatal(err)
	}
	if index != 5 {
		t.Fatalf("index = %d, want 5", index)
	}
	if st := m.Status(); st.CachedMessages != 6 {
		t.Fatalf("CachedMessages = %d, want 6", st.CachedMessages)
	}

	out := m.Annotate(msgs)
	for i, msg := range out {
		marked := msg.Content.IsBlocks() && msg.Content.Blocks[len(msg.Content.Blocks)-1].CacheControl != nil
		if i == 5 && !marked {
			t.Error("message 5 not marked")
		}
		if i != 5 && marked {
			t.Errorf("message %d marked, want only index 5", i)
		}
	}

	m.UpdateFromUsage(model.Usage{CacheCreationInputTokens: 1200})

	st := m.Status()
	if st.State != StateActive {
		t.Errorf("state = %q, want active", st.State)
	}
	if st.CreationTokens != 1200 {
		t.Errorf("CreationTokens = %d, want 1200", st.CreationTokens)
	}
	if st.HitTokens != 0 {
		t.Errorf("HitTokens = %d, want 0", st.HitTokens)
	}
}
