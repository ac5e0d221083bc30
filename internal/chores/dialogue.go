package chores

import (
	"strings"
	"sync"
	"time"
)

// DraftState enumerates the dialogue steps of a task under construction.
type DraftState int

const (
	AwaitingDescription DraftState = iota
	AwaitingTrigger
	AwaitingAssignees
	AwaitingConfirm
)

func (s DraftState) String() string {
	switch s {
	case AwaitingDescription:
		return "awaiting_description"
	case AwaitingTrigger:
		return "awaiting_trigger"
	case AwaitingAssignees:
		return "awaiting_assignees"
	case AwaitingConfirm:
		return "awaiting_confirm"
	default:
		return "unknown"
	}
}

// Dialogue control tokens. They are plain commands on the wire but only
// meaningful while a draft is active.
const (
	tokenSkip    = "/skip"
	tokenCancel  = "/cancel"
	tokenConfirm = "/confirm"
)

// StepResult is the effect of one dialogue transition.
type StepResult struct {
	Reply  string
	Done   bool  // conversation ended (confirm or cancel)
	Commit *Task // non-nil only when the draft should be committed
}

// Draft is a task under construction via the guided dialogue. It is the
// explicit, tagged representation of "the current conversation": one per
// chat, advanced step by step, discarded on cancel.
type Draft struct {
	mu sync.Mutex

	name  string
	owner int64 // user who started the conversation
	state DraftState

	description string
	trigger     Trigger
	assignees   []string
}

func newDraft(name string, owner int64) *Draft {
	return &Draft{name: name, owner: owner, state: AwaitingDescription}
}

func (d *Draft) Name() string { return d.name }
func (d *Draft) Owner() int64 { return d.owner }

func (d *Draft) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Step advances the dialogue with one user input. It is a pure transition
// over the draft's own state: it never touches the registry or the
// scheduler. Commit in the result tells the caller to do that.
//
//	AwaitingDescription --text/skip--> AwaitingTrigger
//	AwaitingTrigger     --valid text-> AwaitingAssignees
//	AwaitingAssignees   --text-------> AwaitingConfirm
//	AwaitingConfirm     --/confirm---> done (commit)
//	any state           --/cancel----> done (discard)
//
// Invalid inputs leave the state unchanged and only produce a reply.
func (d *Draft) Step(input string, minInterval time.Duration) StepResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	in := strings.TrimSpace(input)
	if in == tokenCancel {
		return StepResult{Reply: msgDraftCancelled(d.name), Done: true}
	}
	if in == tokenConfirm && d.state != AwaitingConfirm {
		// Rejected without side effects: the draft keeps its state.
		return StepResult{Reply: msgNotConfirmable}
	}

	switch d.state {
	case AwaitingDescription:
		if in != tokenSkip {
			d.description = in
		}
		d.state = AwaitingTrigger
		return StepResult{Reply: msgAskTrigger(d.name)}

	case AwaitingTrigger:
		if in == tokenSkip {
			return StepResult{Reply: msgCannotSkip("a trigger")}
		}
		trig, err := ParseTrigger(in)
		if err != nil {
			return StepResult{Reply: msgBadTrigger(in)}
		}
		if err := trig.Validate(minInterval); err != nil {
			return StepResult{Reply: msgTooFrequentMin(minInterval)}
		}
		d.trigger = trig
		d.state = AwaitingAssignees
		return StepResult{Reply: msgAskAssignees(d.name)}

	case AwaitingAssignees:
		if in == tokenSkip {
			return StepResult{Reply: msgCannotSkip("at least one assignee")}
		}
		handles := strings.Fields(in)
		if _, err := NewRotation(handles); err != nil {
			return StepResult{Reply: msgBadAssignees(err)}
		}
		d.assignees = handles
		d.state = AwaitingConfirm
		return StepResult{Reply: msgConfirmDraft(d.name, d.description, d.trigger, handles)}

	case AwaitingConfirm:
		if in != tokenConfirm {
			return StepResult{Reply: msgAwaitingConfirm(d.name)}
		}
		task, err := d.buildLocked()
		if err != nil {
			// Guarded at every earlier step; reaching this is an invariant
			// violation, surfaced as a cancelled conversation.
			return StepResult{Reply: msgBadAssignees(err), Done: true}
		}
		return StepResult{Reply: "", Done: true, Commit: task}

	default:
		return StepResult{Reply: msgDraftCancelled(d.name), Done: true}
	}
}

// Confirmable reports whether /confirm is valid right now. Used to reject
// /confirm from earlier states without side effects.
func (d *Draft) Confirmable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == AwaitingConfirm
}

func (d *Draft) buildLocked() (*Task, error) {
	rot, err := NewRotation(d.assignees)
	if err != nil {
		return nil, err
	}
	return &Task{
		Name:        d.name,
		Description: d.description,
		Trigger:     d.trigger,
		Rotation:    rot,
	}, nil
}
