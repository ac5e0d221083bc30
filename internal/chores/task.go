package chores

// Task is a named, schedulable unit of recurring reminder work.
//
// A task is mutable only while it is the draft of an active dialogue; the
// moment it is committed to a ChatState registry it is treated as immutable
// and edits require replacing the registry entry.
type Task struct {
	Name        string
	Description string // optional
	Trigger     Trigger
	Rotation    *Rotation

	// Generation identifies the live scheduler registration for this task.
	// A firing whose generation does not match is stale and must be ignored.
	Generation uint64
}

func (t *Task) clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Rotation = t.Rotation.clone()
	return &cp
}
