package chores

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chorebot/internal/eventbus"
	kit "chorebot/internal/transport"
	"chorebot/pkg/logx"
)

type fakeScheduler struct {
	mu        sync.Mutex
	jobs      map[string]func(ctx context.Context)
	specs     map[string]string
	cancelled []string
	failNext  error

	// delay widens the Schedule window so callers that are not serialized
	// would overlap inside it.
	delay      time.Duration
	active     atomic.Int32
	overlapped atomic.Bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: map[string]func(ctx context.Context){}, specs: map[string]string{}}
}

func (f *fakeScheduler) Schedule(key, spec string, job func(ctx context.Context)) error {
	if f.delay > 0 {
		if f.active.Add(1) > 1 {
			f.overlapped.Store(true)
		}
		defer f.active.Add(-1)
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.jobs[key] = job
	f.specs[key] = spec
	return nil
}

func (f *fakeScheduler) Cancel(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, key)
	_, ok := f.jobs[key]
	delete(f.jobs, key)
	delete(f.specs, key)
	return ok
}

func (f *fakeScheduler) job(key string) func(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[key]
}

func (f *fakeScheduler) spec(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.specs[key]
}

type sentMsg struct {
	to   kit.ChatTarget
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, to kit.ChatTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMsg{to: to, text: text})
	return nil
}

func (f *fakeNotifier) all() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func newTestService(t *testing.T) (*Service, *fakeScheduler, *fakeNotifier) {
	t.Helper()
	sched := newFakeScheduler()
	notif := &fakeNotifier{}
	svc := NewService(Config{}, NewStore(), sched, notif, eventbus.New(), logx.Nop())
	return svc, sched, notif
}

func TestServiceSetTask(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	reply, err := svc.SetTask(1, "dishes", "3600", []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	if reply != "Task dishes scheduled successfully!" {
		t.Fatalf("reply = %q", reply)
	}
	if got := sched.spec("1:dishes"); got != "@every 1h0m0s" {
		t.Fatalf("scheduled spec = %q", got)
	}
}

func TestServiceSetTaskReplaceUpsertsSameKey(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	reply, err := svc.SetTask(1, "dishes", "2h", []string{"bob"})
	if err != nil {
		t.Fatalf("replace SetTask: %v", err)
	}
	if !strings.Contains(reply, "The old one was removed.") {
		t.Fatalf("replace reply = %q", reply)
	}
	if got := sched.spec("1:dishes"); got != "@every 2h0m0s" {
		t.Fatalf("spec after replace = %q", got)
	}
	if len(sched.jobs) != 1 {
		t.Fatalf("replace left %d registrations, want 1", len(sched.jobs))
	}
}

func TestServiceSetTaskErrors(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	reply, err := svc.SetTask(1, "dishes", "1", []string{"alice"})
	if !errors.Is(err, ErrTooFrequent) {
		t.Fatalf("err = %v, want ErrTooFrequent", err)
	}
	if !strings.Contains(reply, "Nein, zu viel!") {
		t.Fatalf("reply = %q", reply)
	}

	if _, err := svc.SetTask(1, "dishes", "banana", []string{"alice"}); err == nil {
		t.Fatalf("bad trigger accepted")
	}
	if _, err := svc.SetTask(1, "dishes", "@every 1s", []string{"alice"}); !errors.Is(err, ErrTooFrequent) {
		t.Fatalf("@every below the floor: err = %v, want ErrTooFrequent", err)
	}
	if _, err := svc.SetTask(1, "dishes", "1h", []string{"a", "a"}); err == nil {
		t.Fatalf("duplicate rotation accepted")
	}

	if len(sched.jobs) != 0 {
		t.Fatalf("rejected input reached the scheduler")
	}
	if svc.Store().Chat(1).Len() != 0 {
		t.Fatalf("rejected input reached the registry")
	}
}

func TestServiceCommitRollsBackOnScheduleFailure(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)
	sched.failNext = errors.New("cron says no")

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err == nil {
		t.Fatalf("SetTask swallowed the scheduler error")
	}
	if svc.Store().Chat(1).Len() != 0 {
		t.Fatalf("failed schedule left the task in the registry")
	}
}

// Two concurrent /set on the same name must not interleave registry and
// scheduler updates: if the registry ends up on one generation while the
// surviving trigger closure carries another, every future firing is stale
// and the task silently never fires again.
func TestServiceConcurrentSetKeepsTriggerLive(t *testing.T) {
	t.Parallel()

	svc, sched, notif := newTestService(t)
	sched.delay = time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
				t.Errorf("SetTask: %v", err)
			}
		}()
	}
	wg.Wait()

	if sched.overlapped.Load() {
		t.Fatalf("concurrent commits were not serialized per chat")
	}

	job := sched.job("1:dishes")
	if job == nil {
		t.Fatalf("no job registered")
	}
	job(context.Background())
	if sent := notif.all(); len(sent) != 1 {
		t.Fatalf("surviving trigger delivered %d reminders, want 1", len(sent))
	}
}

// Racing /set, /unset and /start must leave the chat consistent: a /set
// issued after the dust settles yields a trigger that actually delivers.
func TestServiceConcurrentMutationsStayConsistent(t *testing.T) {
	t.Parallel()

	svc, sched, notif := newTestService(t)
	sched.delay = 100 * time.Microsecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = svc.SetTask(1, "dishes", "1h", []string{"alice"})
				svc.Unset(1, "dishes")
				svc.StartChat(1)
			}
		}()
	}
	wg.Wait()

	if sched.overlapped.Load() {
		t.Fatalf("concurrent mutations were not serialized per chat")
	}

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
		t.Fatalf("SetTask after churn: %v", err)
	}
	job := sched.job("1:dishes")
	if job == nil {
		t.Fatalf("no job registered after churn")
	}
	job(context.Background())
	if sent := notif.all(); len(sent) != 1 {
		t.Fatalf("trigger after churn delivered %d reminders, want 1", len(sent))
	}
}

func TestServiceFireNotifiesAndRotates(t *testing.T) {
	t.Parallel()

	svc, sched, notif := newTestService(t)

	if _, err := svc.SetTask(7, "dishes", "1h", []string{"alice", "bob"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	job := sched.job("7:dishes")
	if job == nil {
		t.Fatalf("no job registered")
	}

	job(context.Background())
	job(context.Background())
	job(context.Background())

	sent := notif.all()
	if len(sent) != 3 {
		t.Fatalf("sent %d reminders, want 3", len(sent))
	}
	wantTexts := []string{
		"Guten Tag alice!\nThe task dishes requires your attention!",
		"Guten Tag bob!\nThe task dishes requires your attention!",
		"Guten Tag alice!\nThe task dishes requires your attention!",
	}
	for i, w := range wantTexts {
		if sent[i].text != w {
			t.Fatalf("reminder %d = %q, want %q", i, sent[i].text, w)
		}
		if sent[i].to.ChatID != 7 {
			t.Fatalf("reminder %d chat = %d, want 7", i, sent[i].to.ChatID)
		}
	}
}

func TestServiceStaleFiringIsNoop(t *testing.T) {
	t.Parallel()

	svc, sched, notif := newTestService(t)

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	oldJob := sched.job("1:dishes")

	// Replace: the upsert swaps the registration, but a firing from the old
	// closure may already be in flight.
	if _, err := svc.SetTask(1, "dishes", "2h", []string{"bob"}); err != nil {
		t.Fatalf("replace: %v", err)
	}

	oldJob(context.Background())
	if got := notif.all(); len(got) != 0 {
		t.Fatalf("stale firing delivered %d reminders", len(got))
	}

	// The live registration still works.
	sched.job("1:dishes")(context.Background())
	sent := notif.all()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "bob") {
		t.Fatalf("live firing = %+v", sent)
	}
}

func TestServiceFireAdvancesOnDeliveryFailure(t *testing.T) {
	t.Parallel()

	svc, sched, notif := newTestService(t)

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice", "bob"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	job := sched.job("1:dishes")

	notif.err = errors.New("telegram down")
	job(context.Background())
	notif.err = nil

	job(context.Background())
	sent := notif.all()
	if len(sent) != 1 {
		t.Fatalf("sent %d, want 1", len(sent))
	}
	// alice's turn failed but still counted; bob is next.
	if !strings.Contains(sent[0].text, "bob") {
		t.Fatalf("after failed delivery the head did not advance: %q", sent[0].text)
	}
}

func TestServiceUnset(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}

	if !svc.Unset(1, "dishes") {
		t.Fatalf("Unset reported no task")
	}
	if sched.job("1:dishes") != nil {
		t.Fatalf("trigger survived Unset")
	}
	if svc.Unset(1, "dishes") {
		t.Fatalf("second Unset reported a task")
	}
}

func TestServiceStartChatResets(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	if _, err := svc.SetTask(1, "dishes", "1h", []string{"alice"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}
	if _, err := svc.SetTask(1, "trash", "2h", []string{"bob"}); err != nil {
		t.Fatalf("SetTask: %v", err)
	}

	reply := svc.StartChat(1)
	if reply != "Guten Tag, Sir." {
		t.Fatalf("greeting = %q", reply)
	}
	if svc.Store().Chat(1).Len() != 0 {
		t.Fatalf("tasks survive StartChat")
	}
	if len(sched.jobs) != 0 {
		t.Fatalf("triggers survive StartChat: %v", sched.jobs)
	}
}

func TestServiceDialogueEndToEnd(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	reply, err := svc.BeginDialogue(1, 42, "dishes")
	if err != nil {
		t.Fatalf("BeginDialogue: %v", err)
	}
	if !strings.Contains(reply, "dishes") {
		t.Fatalf("begin reply = %q", reply)
	}

	if _, err := svc.BeginDialogue(1, 43, "trash"); !errors.Is(err, ErrDuplicateConversation) {
		t.Fatalf("second BeginDialogue err = %v", err)
	}

	steps := []string{"wash them", "30m", "alice bob"}
	for _, in := range steps {
		if _, handled := svc.DialogueInput(1, 42, in); !handled {
			t.Fatalf("input %q not handled", in)
		}
	}

	reply = svc.Control(1, 42, "/confirm")
	if reply != "Task dishes scheduled successfully!" {
		t.Fatalf("confirm reply = %q", reply)
	}
	if sched.spec("1:dishes") != "@every 30m0s" {
		t.Fatalf("spec = %q", sched.spec("1:dishes"))
	}
	if svc.Store().Chat(1).Draft() != nil {
		t.Fatalf("draft survives confirm")
	}

	// Free text with no draft active is not ours.
	if _, handled := svc.DialogueInput(1, 42, "hello"); handled {
		t.Fatalf("text handled with no draft active")
	}
}

func TestServiceDialogueCancel(t *testing.T) {
	t.Parallel()

	svc, sched, _ := newTestService(t)

	if _, err := svc.BeginDialogue(1, 42, "dishes"); err != nil {
		t.Fatalf("BeginDialogue: %v", err)
	}
	reply := svc.Control(1, 42, "/cancel")
	if !strings.Contains(reply, "discarded") {
		t.Fatalf("cancel reply = %q", reply)
	}
	if svc.Store().Chat(1).Draft() != nil {
		t.Fatalf("draft survives cancel")
	}
	if len(sched.jobs) != 0 {
		t.Fatalf("cancelled draft reached the scheduler")
	}

	// Control tokens without a draft.
	if got := svc.Control(1, 42, "/confirm"); got != msgNoDraft {
		t.Fatalf("confirm with no draft = %q", got)
	}
}
