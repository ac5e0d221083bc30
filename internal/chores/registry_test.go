package chores

import (
	"testing"
	"time"
)

func mustRotation(t *testing.T, handles ...string) *Rotation {
	t.Helper()
	r, err := NewRotation(handles)
	if err != nil {
		t.Fatalf("NewRotation(%v): %v", handles, err)
	}
	return r
}

func intervalTask(t *testing.T, name string, every time.Duration, handles ...string) *Task {
	t.Helper()
	return &Task{
		Name:     name,
		Trigger:  Trigger{Kind: TriggerInterval, Every: every},
		Rotation: mustRotation(t, handles...),
	}
}

func TestPutValidatesBeforeMutation(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)

	cases := []struct {
		name    string
		task    *Task
		wantErr error
	}{
		{name: "empty name", task: intervalTask(t, "  ", time.Minute, "a"), wantErr: ErrInvalidName},
		{name: "too frequent", task: intervalTask(t, "x", time.Second, "a"), wantErr: ErrTooFrequent},
		{name: "no rotation", task: &Task{Name: "x", Trigger: Trigger{Kind: TriggerInterval, Every: time.Minute}, Rotation: &Rotation{}}, wantErr: ErrEmptyRotation},
	}
	for _, tc := range cases {
		if _, _, err := chat.Put(tc.task, MinInterval); err != tc.wantErr {
			t.Fatalf("%s: Put err = %v, want %v", tc.name, err, tc.wantErr)
		}
	}

	if chat.Len() != 0 {
		t.Fatalf("rejected Put mutated the registry: len = %d", chat.Len())
	}
}

func TestPutReplaceBumpsGenerationAndKeepsOrder(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)

	for _, name := range []string{"dishes", "trash", "plants"} {
		if _, _, err := chat.Put(intervalTask(t, name, time.Minute, "a", "b"), MinInterval); err != nil {
			t.Fatalf("Put(%s): %v", name, err)
		}
	}

	old, err := chat.Get("trash")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	replaced, prevGen, err := chat.Put(intervalTask(t, "trash", 2*time.Minute, "c"), MinInterval)
	if err != nil {
		t.Fatalf("replace Put: %v", err)
	}
	if !replaced {
		t.Fatalf("replaced = false, want true")
	}
	if prevGen != old.Generation {
		t.Fatalf("prevGen = %d, want %d", prevGen, old.Generation)
	}

	cur, err := chat.Get("trash")
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if cur.Generation <= old.Generation {
		t.Fatalf("generation did not advance: %d -> %d", old.Generation, cur.Generation)
	}

	// Replacement keeps the original /list position.
	names := []string{}
	for _, task := range chat.List() {
		names = append(names, task.Name)
	}
	want := []string{"dishes", "trash", "plants"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("list order = %v, want %v", names, want)
		}
	}
}

func TestGenerationsUniqueAcrossChats(t *testing.T) {
	t.Parallel()

	store := NewStore()
	seen := map[uint64]bool{}
	for chatID := int64(1); chatID <= 3; chatID++ {
		for _, name := range []string{"a", "b"} {
			task := intervalTask(t, name, time.Minute, "p")
			if _, _, err := store.Chat(chatID).Put(task, MinInterval); err != nil {
				t.Fatalf("Put: %v", err)
			}
			if seen[task.Generation] {
				t.Fatalf("generation %d handed out twice", task.Generation)
			}
			seen[task.Generation] = true
		}
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)
	task := intervalTask(t, "dishes", time.Minute, "a")
	if _, _, err := chat.Put(task, MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}

	gen, err := chat.Remove("dishes")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if gen != task.Generation {
		t.Fatalf("Remove gen = %d, want %d", gen, task.Generation)
	}

	if _, err := chat.Remove("dishes"); err != ErrTaskNotFound {
		t.Fatalf("second Remove err = %v, want ErrTaskNotFound", err)
	}
	if len(chat.List()) != 0 {
		t.Fatalf("task still listed after Remove")
	}
}

func TestListReturnsSnapshots(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)
	if _, _, err := chat.Put(intervalTask(t, "dishes", time.Minute, "a", "b"), MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}

	snap := chat.List()
	if !chat.AdvanceAfterFire("dishes", snap[0].Generation) {
		t.Fatalf("AdvanceAfterFire failed")
	}

	if got := snap[0].Rotation.Handles()[0]; got != "a" {
		t.Fatalf("snapshot rotation mutated: head = %q", got)
	}
	cur, err := chat.Get("dishes")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := cur.Rotation.Handles()[0]; got != "b" {
		t.Fatalf("live rotation head = %q, want b", got)
	}
}

func TestPeekForFireStaleGeneration(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)
	task := intervalTask(t, "dishes", time.Minute, "a")
	if _, _, err := chat.Put(task, MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}
	oldGen := task.Generation

	// Live generation resolves.
	head, snap, ok := chat.PeekForFire("dishes", oldGen)
	if !ok || head.Handle != "a" || snap.Name != "dishes" {
		t.Fatalf("PeekForFire live = (%v, %v, %v)", head, snap, ok)
	}

	// Replace the task; the old generation is now stale.
	if _, _, err := chat.Put(intervalTask(t, "dishes", time.Minute, "b"), MinInterval); err != nil {
		t.Fatalf("replace Put: %v", err)
	}
	if _, _, ok := chat.PeekForFire("dishes", oldGen); ok {
		t.Fatalf("stale generation resolved a firing")
	}
	if chat.AdvanceAfterFire("dishes", oldGen) {
		t.Fatalf("stale generation advanced the rotation")
	}

	// Unknown task.
	if _, _, ok := chat.PeekForFire("nope", 1); ok {
		t.Fatalf("unknown task resolved a firing")
	}
}

func TestResetClearsTasksAndDraft(t *testing.T) {
	t.Parallel()

	store := NewStore()
	chat := store.Chat(1)
	if _, _, err := chat.Put(intervalTask(t, "dishes", time.Minute, "a"), MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := chat.Put(intervalTask(t, "trash", time.Minute, "b"), MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := chat.BeginDraft("plants", 42); err != nil {
		t.Fatalf("BeginDraft: %v", err)
	}

	removed := store.Reset(1)
	if len(removed) != 2 {
		t.Fatalf("Reset removed %v, want 2 names", removed)
	}
	if chat.Len() != 0 {
		t.Fatalf("tasks survive Reset")
	}
	if chat.Draft() != nil {
		t.Fatalf("draft survives Reset")
	}

	if removed := store.Reset(99); removed != nil {
		t.Fatalf("Reset(unknown chat) = %v, want nil", removed)
	}
}

func TestBeginDraftSingleConversation(t *testing.T) {
	t.Parallel()

	chat := NewStore().Chat(1)

	if _, err := chat.BeginDraft("", 1); err != ErrInvalidName {
		t.Fatalf("BeginDraft(empty) err = %v, want ErrInvalidName", err)
	}

	d, err := chat.BeginDraft("dishes", 1)
	if err != nil {
		t.Fatalf("BeginDraft: %v", err)
	}
	if _, err := chat.BeginDraft("trash", 2); err != ErrDuplicateConversation {
		t.Fatalf("second BeginDraft err = %v, want ErrDuplicateConversation", err)
	}
	// The first draft is untouched.
	if got := chat.Draft(); got != d || got.Name() != "dishes" {
		t.Fatalf("active draft = %v", got)
	}

	chat.ClearDraft()
	if _, err := chat.BeginDraft("trash", 2); err != nil {
		t.Fatalf("BeginDraft after clear: %v", err)
	}
}

func TestChatsAreIndependent(t *testing.T) {
	t.Parallel()

	store := NewStore()
	if _, _, err := store.Chat(1).Put(intervalTask(t, "dishes", time.Minute, "a"), MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, _, err := store.Chat(2).Put(intervalTask(t, "dishes", time.Minute, "b"), MinInterval); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store.Reset(1)
	if store.Chat(2).Len() != 1 {
		t.Fatalf("Reset(1) touched chat 2")
	}
}
