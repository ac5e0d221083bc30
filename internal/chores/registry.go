package chores

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Store keys chat state by chat id. Each chat owns its tasks, its draft
// conversation and its lock; operations on different chats never contend.
type Store struct {
	mu    sync.RWMutex
	chats map[int64]*ChatState

	// genSeq hands out scheduler generations. Global and monotonic so a
	// replaced task's old firings can never collide with the new ones.
	genSeq atomic.Uint64
}

func NewStore() *Store {
	return &Store{chats: map[int64]*ChatState{}}
}

// Chat returns the state for chatID, creating it on first use.
func (s *Store) Chat(chatID int64) *ChatState {
	s.mu.RLock()
	cs := s.chats[chatID]
	s.mu.RUnlock()
	if cs != nil {
		return cs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs = s.chats[chatID]; cs == nil {
		cs = &ChatState{store: s, chatID: chatID, tasks: map[string]*Task{}}
		s.chats[chatID] = cs
	}
	return cs
}

// Reset clears the chat's registry and draft, returning the names of the
// tasks that were removed so the caller can cancel their triggers.
// Idempotent: resetting an unknown chat returns nil.
func (s *Store) Reset(chatID int64) []string {
	s.mu.RLock()
	cs := s.chats[chatID]
	s.mu.RUnlock()
	if cs == nil {
		return nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	removed := append([]string(nil), cs.order...)
	cs.tasks = map[string]*Task{}
	cs.order = nil
	cs.draft = nil
	return removed
}

// ChatState owns one chat's task registry and at most one draft conversation.
// All exported methods take the per-chat lock; callers never hold it across
// notifier I/O.
type ChatState struct {
	store  *Store
	chatID int64

	// schedMu serializes a registry mutation with the scheduler call that
	// belongs to it (Put+Schedule, Remove+Cancel, Reset+Cancel). Without it
	// two concurrent commits can leave the registry on one generation and
	// the live trigger closure on another, and the task never fires again.
	// Always acquired before mu; firings never take it.
	schedMu sync.Mutex

	mu    sync.Mutex
	tasks map[string]*Task
	order []string // insertion order for stable /list output
	draft *Draft
}

func (c *ChatState) ChatID() int64 { return c.chatID }

// Put inserts or replaces the task under its name (create_or_replace).
// Validation happens here, before any mutation: non-empty name, trigger
// frequency floor, non-empty rotation. On success the task is assigned a
// fresh generation and Put reports whether a prior entry was replaced,
// along with the prior generation so its trigger can be torn down.
func (c *ChatState) Put(t *Task, minInterval time.Duration) (replaced bool, prevGen uint64, err error) {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return false, 0, ErrInvalidName
	}
	if err := t.Trigger.Validate(minInterval); err != nil {
		return false, 0, err
	}
	if t.Rotation.Len() == 0 {
		return false, 0, ErrEmptyRotation
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t.Generation = c.store.genSeq.Add(1)
	prev, existed := c.tasks[t.Name]
	c.tasks[t.Name] = t
	if existed {
		// Replacement keeps the original /list position.
		return true, prev.Generation, nil
	}
	c.order = append(c.order, t.Name)
	return false, 0, nil
}

// Remove deletes the named task and returns its last generation so the
// caller can cancel the live trigger.
func (c *ChatState) Remove(name string) (gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[name]
	if !ok {
		return 0, ErrTaskNotFound
	}
	delete(c.tasks, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return t.Generation, nil
}

// Get returns a snapshot copy of the named task.
func (c *ChatState) Get(name string) (*Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[name]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.clone(), nil
}

// List returns snapshot copies in insertion order. Mutations after List
// returns never affect the returned slice.
func (c *ChatState) List() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Task, 0, len(c.order))
	for _, name := range c.order {
		if t := c.tasks[name]; t != nil {
			out = append(out, t.clone())
		}
	}
	return out
}

func (c *ChatState) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// PeekForFire resolves a firing. It returns the head assignee and a task
// snapshot for rendering, without advancing the rotation. A firing for a
// removed task or a stale generation reports ok=false: expected race, not
// an error.
func (c *ChatState) PeekForFire(name string, gen uint64) (Assignee, *Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, exists := c.tasks[name]
	if !exists || t.Generation != gen {
		return Assignee{}, nil, false
	}
	head, err := t.Rotation.PeekNext()
	if err != nil {
		return Assignee{}, nil, false
	}
	return head, t.clone(), true
}

// AdvanceAfterFire rotates the task's assignees after delivery was attempted.
// The generation is re-checked: the task may have been replaced or removed
// while the notifier was in flight.
func (c *ChatState) AdvanceAfterFire(name string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, exists := c.tasks[name]
	if !exists || t.Generation != gen {
		return false
	}
	t.Rotation.Advance()
	return true
}

// BeginDraft opens a draft conversation for this chat. One draft per chat:
// a second /add_task while one is active is rejected, never overwritten.
func (c *ChatState) BeginDraft(name string, owner int64) (*Draft, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft != nil {
		return nil, ErrDuplicateConversation
	}
	d := newDraft(name, owner)
	c.draft = d
	return d, nil
}

// Draft returns the active draft, or nil.
func (c *ChatState) Draft() *Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// ClearDraft ends the conversation (confirm, cancel or abandonment).
func (c *ChatState) ClearDraft() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = nil
}
