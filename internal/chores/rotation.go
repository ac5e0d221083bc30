package chores

import "strings"

// Assignee is one person in a task's rotation.
type Assignee struct {
	Handle string
	Duties int // times this assignee has been notified
}

// Rotation is the fairness-ordered queue of assignees for a single task.
// The head is always the next person to notify; Advance moves the head to
// the tail so everyone eventually takes a turn, least-recently-served first.
//
// Rotation is not safe for concurrent use; the owning ChatState serializes
// access.
type Rotation struct {
	members []Assignee
}

// NewRotation builds a rotation from ordered handles. Order is significant.
// Blank handles are dropped; duplicates are rejected.
func NewRotation(handles []string) (*Rotation, error) {
	seen := make(map[string]struct{}, len(handles))
	members := make([]Assignee, 0, len(handles))
	for _, h := range handles {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			return nil, ErrDuplicateAssignee
		}
		seen[h] = struct{}{}
		members = append(members, Assignee{Handle: h})
	}
	if len(members) == 0 {
		return nil, ErrEmptyRotation
	}
	return &Rotation{members: members}, nil
}

func (r *Rotation) Len() int {
	if r == nil {
		return 0
	}
	return len(r.members)
}

// PeekNext returns the assignee at the rotation head without mutating order.
func (r *Rotation) PeekNext() (Assignee, error) {
	if r.Len() == 0 {
		return Assignee{}, ErrEmptyRotation
	}
	return r.members[0], nil
}

// Advance moves the head to the tail and increments its duty count.
func (r *Rotation) Advance() {
	if r.Len() == 0 {
		return
	}
	head := r.members[0]
	head.Duties++
	r.members = append(r.members[1:], head)
}

// Members returns a snapshot copy in current rotation order.
func (r *Rotation) Members() []Assignee {
	if r.Len() == 0 {
		return nil
	}
	return append([]Assignee(nil), r.members...)
}

// Handles returns the handles in current rotation order.
func (r *Rotation) Handles() []string {
	out := make([]string, 0, r.Len())
	for _, m := range r.Members() {
		out = append(out, m.Handle)
	}
	return out
}

func (r *Rotation) clone() *Rotation {
	if r == nil {
		return nil
	}
	return &Rotation{members: append([]Assignee(nil), r.members...)}
}
