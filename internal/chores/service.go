package chores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chorebot/internal/eventbus"
	kit "chorebot/internal/transport"
	"chorebot/pkg/logx"
)

// SchedulerPort is the narrow slice of the trigger service the core needs:
// named repeating triggers with replace-on-schedule and idempotent cancel.
type SchedulerPort interface {
	Schedule(key, spec string, job func(ctx context.Context)) error
	Cancel(key string) bool
}

// NotifierPort delivers rendered text to a chat. Failures are best-effort:
// the rotation advances regardless (see the policy note on fire()).
type NotifierPort interface {
	Send(ctx context.Context, to kit.ChatTarget, text string) error
}

type Config struct {
	// MinInterval is the frequency floor for interval triggers.
	// Zero means the package default.
	MinInterval time.Duration
}

// Service ties the registry, the dialogue, the scheduler adapter and the
// notifier together. All user commands and all firings land here.
type Service struct {
	store *Store
	sched SchedulerPort
	notif NotifierPort
	bus   eventbus.Bus
	log   logx.Logger

	minInterval time.Duration
}

// TaskEvent is the bus payload for task lifecycle events.
type TaskEvent struct {
	ChatID     int64
	Name       string
	Generation uint64
	Assignee   string // task.fired / notify.failed only
	Error      string // notify.failed only
}

func NewService(cfg Config, store *Store, sched SchedulerPort, notif NotifierPort, bus eventbus.Bus, log logx.Logger) *Service {
	min := cfg.MinInterval
	if min <= 0 {
		min = MinInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:       store,
		sched:       sched,
		notif:       notif,
		bus:         bus,
		log:         log,
		minInterval: min,
	}
}

func (s *Service) Store() *Store { return s.store }

// triggerKey names a scheduler registration. One live trigger per task name
// per chat, so the key is exactly (chat, name).
func triggerKey(chatID int64, name string) string {
	return fmt.Sprintf("%d:%s", chatID, name)
}

// StartChat initializes (or re-initializes) a chat: the registry is cleared
// and every live trigger is cancelled. Idempotent.
func (s *Service) StartChat(chatID int64) string {
	chat := s.store.Chat(chatID)

	chat.schedMu.Lock()
	removed := s.store.Reset(chatID)
	for _, name := range removed {
		s.sched.Cancel(triggerKey(chatID, name))
	}
	chat.schedMu.Unlock()
	if len(removed) > 0 {
		s.log.Info("chat reset", logx.Int64("chat_id", chatID), logx.Int("tasks_removed", len(removed)))
	}
	s.publish(eventbus.TypeChatReset, TaskEvent{ChatID: chatID})
	return msgGreeting
}

// SetTask is the direct, non-dialogue creation path (/set).
func (s *Service) SetTask(chatID int64, name, triggerRaw string, people []string) (string, error) {
	trig, err := ParseTrigger(triggerRaw)
	if err != nil {
		return msgUsageSet, err
	}
	rot, err := NewRotation(people)
	if err != nil {
		return msgUsageSet, err
	}
	task := &Task{Name: name, Trigger: trig, Rotation: rot}

	replaced, err := s.commit(chatID, task)
	if err != nil {
		if errors.Is(err, ErrTooFrequent) {
			return msgTooFrequentMin(s.minInterval), err
		}
		if errors.Is(err, ErrInvalidName) {
			return msgUsageSet, err
		}
		return "could not schedule the task: " + err.Error(), err
	}
	return msgScheduled(name, replaced), nil
}

// commit performs create_or_replace plus scheduling, all-or-nothing. The
// registry validates before any mutation; a prior trigger with the same
// name is cancelled before the new registration goes live, so a discarded
// task can never keep a zombie timer. Put and Schedule run as one critical
// section under the chat's scheduling lock: the registry generation and the
// live trigger closure must never diverge.
func (s *Service) commit(chatID int64, task *Task) (replaced bool, err error) {
	chat := s.store.Chat(chatID)

	chat.schedMu.Lock()
	defer chat.schedMu.Unlock()

	replaced, _, err = chat.Put(task, s.minInterval)
	if err != nil {
		return false, err
	}

	gen := task.Generation
	name := task.Name
	job := func(ctx context.Context) {
		s.fire(ctx, chatID, name, gen)
	}
	if err := s.sched.Schedule(triggerKey(chatID, name), task.Trigger.Spec(), job); err != nil {
		// Roll back the registry entry so no task sits there unscheduled.
		_, _ = chat.Remove(name)
		s.sched.Cancel(triggerKey(chatID, name))
		return false, fmt.Errorf("schedule %s: %w", name, err)
	}

	s.log.Info("task scheduled",
		logx.Int64("chat_id", chatID),
		logx.String("task", name),
		logx.String("trigger", task.Trigger.String()),
		logx.Uint64("gen", gen),
		logx.Bool("replaced", replaced),
	)
	s.publish(eventbus.TypeTaskCreated, TaskEvent{ChatID: chatID, Name: name, Generation: gen})
	return replaced, nil
}

// Unset cancels the trigger and removes the task (/unset). The bool reports
// whether a task existed; a second /unset on the same name is a clean miss.
func (s *Service) Unset(chatID int64, name string) bool {
	chat := s.store.Chat(chatID)

	chat.schedMu.Lock()
	defer chat.schedMu.Unlock()

	if _, err := chat.Remove(name); err != nil {
		return false
	}
	s.sched.Cancel(triggerKey(chatID, name))
	s.log.Info("task removed", logx.Int64("chat_id", chatID), logx.String("task", name))
	s.publish(eventbus.TypeTaskRemoved, TaskEvent{ChatID: chatID, Name: name})
	return true
}

// ListText renders the chat's tasks for /list.
func (s *Service) ListText(chatID int64) string {
	return renderList(s.store.Chat(chatID).List())
}

// BeginDialogue opens the guided-creation conversation (/add_task).
func (s *Service) BeginDialogue(chatID, from int64, name string) (string, error) {
	_, err := s.store.Chat(chatID).BeginDraft(name, from)
	switch {
	case errors.Is(err, ErrDuplicateConversation):
		return msgDraftDupe, err
	case errors.Is(err, ErrInvalidName):
		return msgUsageAdd, err
	case err != nil:
		return msgUsageAdd, err
	}
	return msgAskDescription(name), nil
}

// DialogueInput feeds one inbound message into the active draft. The bool
// reports whether a draft consumed the input; free text in a chat without a
// draft is simply not ours.
func (s *Service) DialogueInput(chatID, from int64, text string) (string, bool) {
	chat := s.store.Chat(chatID)
	draft := chat.Draft()
	if draft == nil {
		return "", false
	}

	res := draft.Step(text, s.minInterval)
	if res.Done {
		chat.ClearDraft()
	}
	if res.Commit == nil {
		return res.Reply, true
	}

	replaced, err := s.commit(chatID, res.Commit)
	if err != nil {
		if errors.Is(err, ErrTooFrequent) {
			return msgTooFrequentMin(s.minInterval), true
		}
		return "could not schedule the task: " + err.Error(), true
	}
	return msgScheduled(res.Commit.Name, replaced), true
}

// Control handles /skip, /confirm and /cancel, which are only meaningful
// while a draft is active.
func (s *Service) Control(chatID, from int64, token string) string {
	reply, ok := s.DialogueInput(chatID, from, token)
	if !ok {
		return msgNoDraft
	}
	return reply
}

// fire resolves one trigger firing. Lock discipline per the concurrency
// model: resolve the head and render under the chat lock, deliver without
// it, then advance under the lock again. A stale generation (task removed
// or replaced while the firing was in flight) is a silent no-op.
//
// Policy: the rotation advances even when delivery fails. Fairness is
// preferred over confirmed delivery; the task stays scheduled either way.
func (s *Service) fire(ctx context.Context, chatID int64, name string, gen uint64) {
	chat := s.store.Chat(chatID)

	head, task, ok := chat.PeekForFire(name, gen)
	if !ok {
		s.log.Debug("stale firing ignored",
			logx.Int64("chat_id", chatID), logx.String("task", name), logx.Uint64("gen", gen))
		return
	}

	text := msgReminder(head.Handle, task.Name)
	if err := s.notif.Send(ctx, kit.ChatTarget{ChatID: chatID}, text); err != nil {
		s.log.Warn("reminder delivery failed; advancing rotation anyway",
			logx.Int64("chat_id", chatID), logx.String("task", name),
			logx.String("assignee", head.Handle), logx.Err(err))
		s.publish(eventbus.TypeNotifyFailed, TaskEvent{
			ChatID: chatID, Name: name, Generation: gen, Assignee: head.Handle, Error: err.Error(),
		})
	}

	if chat.AdvanceAfterFire(name, gen) {
		s.publish(eventbus.TypeTaskFired, TaskEvent{
			ChatID: chatID, Name: name, Generation: gen, Assignee: head.Handle,
		})
	}
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
