package chores

import "errors"

var (
	// ErrInvalidName rejects empty or unusable task names before any mutation.
	ErrInvalidName = errors.New("invalid task name")

	// ErrTaskNotFound is returned by lookups and removals for unknown names.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTooFrequent rejects interval triggers below MinInterval.
	ErrTooFrequent = errors.New("trigger interval below minimum")

	// ErrEmptyRotation means a task reached scheduling with no assignees.
	// The registry and the dialogue enforce the precondition, so seeing this
	// outside construction is an invariant violation, not a user error.
	ErrEmptyRotation = errors.New("rotation is empty")

	// ErrDuplicateAssignee rejects the same handle twice in one rotation.
	ErrDuplicateAssignee = errors.New("duplicate assignee")

	// ErrDuplicateConversation means the chat already has a draft in progress.
	ErrDuplicateConversation = errors.New("a task is already being created in this chat")

	// ErrNoConversation means a dialogue control token arrived with no draft active.
	ErrNoConversation = errors.New("no task creation in progress")

	// ErrNotConfirmable means /confirm was sent from a non-confirm dialogue state.
	ErrNotConfirmable = errors.New("nothing to confirm yet")
)
