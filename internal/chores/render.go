package chores

import (
	"fmt"
	"strings"
	"time"
)

// Reply texts live in one place so the dialogue and the command handlers
// stay declarative. The greeting and reminder wording follow the bot's
// original voice.

const (
	msgGreeting    = "Guten Tag, Sir."
	msgUsageSet    = "Usage: /set <name> <interval> <[list of people]>"
	msgUsageUnset  = "Usage: /unset <name>"
	msgUsageAdd    = "Usage: /add_task <name>"
	msgUnsetOK     = "Timer successfully cancelled!"
	msgUnsetNone   = "You have no active timer."
	msgListHeader  = "Scheduled tasks"
	msgListEmpty   = "Scheduled tasks\n(none)"
	msgNoDraft     = "No task is being created right now. Start one with /add_task <name>."
	msgDraftDupe   = "A task is already being created in this chat. Finish it or /cancel first."
	msgTooFrequent = "Nein, zu viel!"

	msgNotConfirmable = "Nothing to confirm yet."
)

func msgReminder(person, task string) string {
	return fmt.Sprintf("Guten Tag %s!\nThe task %s requires your attention!", person, task)
}

func msgScheduled(name string, replaced bool) string {
	text := fmt.Sprintf("Task %s scheduled successfully!", name)
	if replaced {
		text += " The old one was removed."
	}
	return text
}

func msgTooFrequentMin(min time.Duration) string {
	return fmt.Sprintf("%s Minimum interval is %s.", msgTooFrequent, min)
}

func msgAskDescription(name string) string {
	return fmt.Sprintf("Creating task %q. Send a description, or /skip. (/cancel aborts)", name)
}

func msgAskTrigger(name string) string {
	return fmt.Sprintf("Got it. How often should %q fire? Send an interval (e.g. 30m, 3600) or a cron spec.", name)
}

func msgAskAssignees(name string) string {
	return fmt.Sprintf("Who takes turns on %q? Send the people, space separated, in rotation order.", name)
}

func msgConfirmDraft(name, desc string, trig Trigger, people []string) string {
	lines := []string{fmt.Sprintf("Task %q:", name)}
	if desc != "" {
		lines = append(lines, "- description: "+desc)
	}
	lines = append(lines,
		"- trigger: "+trig.String(),
		"- rotation: "+strings.Join(people, ", "),
		"Send /confirm to schedule it, or /cancel to discard.",
	)
	return strings.Join(lines, "\n")
}

func msgAwaitingConfirm(name string) string {
	return fmt.Sprintf("Task %q is ready. Send /confirm to schedule it, or /cancel to discard.", name)
}

func msgDraftCancelled(name string) string {
	return fmt.Sprintf("Task %q discarded.", name)
}

func msgCannotSkip(what string) string {
	return fmt.Sprintf("This step needs %s; it cannot be skipped. (/cancel aborts)", what)
}

func msgBadTrigger(in string) string {
	return fmt.Sprintf("Could not read %q as a trigger. Try an interval like 30m or 3600, or a cron spec.", in)
}

func msgBadAssignees(err error) string {
	return "Could not build the rotation: " + err.Error() + ". Send the people again."
}

func renderList(tasks []*Task) string {
	if len(tasks) == 0 {
		return msgListEmpty
	}
	lines := make([]string, 0, len(tasks)+1)
	lines = append(lines, msgListHeader)
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("%s - interval:%s - rotation:%s",
			t.Name, t.Trigger.String(), strings.Join(t.Rotation.Handles(), ",")))
	}
	return strings.Join(lines, "\n")
}
