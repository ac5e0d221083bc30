package chores

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialogueHappyPath(t *testing.T) {
	t.Parallel()

	d := newDraft("dishes", 42)
	require.Equal(t, AwaitingDescription, d.State())

	res := d.Step("wash the dishes", MinInterval)
	require.False(t, res.Done)
	require.Nil(t, res.Commit)
	require.Equal(t, AwaitingTrigger, d.State())

	res = d.Step("30m", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingAssignees, d.State())

	res = d.Step("alice bob", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingConfirm, d.State())
	require.Contains(t, res.Reply, "dishes")
	require.Contains(t, res.Reply, "alice, bob")

	res = d.Step("/confirm", MinInterval)
	require.True(t, res.Done)
	require.NotNil(t, res.Commit)

	task := res.Commit
	require.Equal(t, "dishes", task.Name)
	require.Equal(t, "wash the dishes", task.Description)
	require.Equal(t, TriggerInterval, task.Trigger.Kind)
	require.Equal(t, 30*time.Minute, task.Trigger.Every)
	require.Equal(t, []string{"alice", "bob"}, task.Rotation.Handles())
}

func TestDialogueSkipDescription(t *testing.T) {
	t.Parallel()

	d := newDraft("dishes", 42)
	d.Step("/skip", MinInterval)
	require.Equal(t, AwaitingTrigger, d.State())

	d.Step("10m", MinInterval)
	d.Step("alice", MinInterval)
	res := d.Step("/confirm", MinInterval)
	require.NotNil(t, res.Commit)
	require.Empty(t, res.Commit.Description)
}

func TestDialogueMandatoryStepsCannotBeSkipped(t *testing.T) {
	t.Parallel()

	d := newDraft("dishes", 42)
	d.Step("/skip", MinInterval)

	res := d.Step("/skip", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingTrigger, d.State(), "trigger step must not be skippable")

	d.Step("10m", MinInterval)
	res = d.Step("/skip", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingAssignees, d.State(), "assignee step must not be skippable")
}

func TestDialogueCancelFromEveryState(t *testing.T) {
	t.Parallel()

	advance := map[DraftState][]string{
		AwaitingDescription: {},
		AwaitingTrigger:     {"desc"},
		AwaitingAssignees:   {"desc", "10m"},
		AwaitingConfirm:     {"desc", "10m", "alice"},
	}

	for state, inputs := range advance {
		d := newDraft("dishes", 42)
		for _, in := range inputs {
			d.Step(in, MinInterval)
		}
		require.Equal(t, state, d.State())

		res := d.Step("/cancel", MinInterval)
		require.True(t, res.Done, "cancel from %s", state)
		require.Nil(t, res.Commit, "cancel from %s must not commit", state)
		require.Contains(t, res.Reply, "discarded")
	}
}

func TestDialogueConfirmOnlyAtConfirmStep(t *testing.T) {
	t.Parallel()

	d := newDraft("dishes", 42)

	// /confirm before the confirm step is rejected with no side effects:
	// in particular it must not be stored as the description.
	res := d.Step("/confirm", MinInterval)
	require.False(t, res.Done)
	require.Nil(t, res.Commit)
	require.Equal(t, AwaitingDescription, d.State())

	d.Step("real description", MinInterval)
	res = d.Step("/confirm", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingTrigger, d.State())

	d.Step("10m", MinInterval)
	res = d.Step("/confirm", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingAssignees, d.State())

	d.Step("alice", MinInterval)
	res = d.Step("/confirm", MinInterval)
	require.True(t, res.Done)
	require.NotNil(t, res.Commit)
	require.Equal(t, "real description", res.Commit.Description)
}

func TestDialogueInvalidInputsKeepState(t *testing.T) {
	t.Parallel()

	d := newDraft("dishes", 42)
	d.Step("/skip", MinInterval)

	// Unparseable trigger: re-prompt, no transition.
	res := d.Step("banana", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingTrigger, d.State())
	require.Contains(t, res.Reply, "banana")

	// Below the floor: re-prompt, no transition.
	res = d.Step("1", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingTrigger, d.State())
	require.Contains(t, res.Reply, "Nein, zu viel!")

	d.Step("10m", MinInterval)

	// Duplicate assignees: re-prompt, no transition.
	res = d.Step("alice alice", MinInterval)
	require.False(t, res.Done)
	require.Equal(t, AwaitingAssignees, d.State())

	d.Step("alice bob", MinInterval)

	// Arbitrary text at the confirm step just repeats the prompt.
	res = d.Step("hmm", MinInterval)
	require.False(t, res.Done)
	require.Nil(t, res.Commit)
	require.Equal(t, AwaitingConfirm, d.State())
}
