package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chorebot/pkg/logx"
)

type Config struct {
	Workers int
	// DefaultTimeout bounds one firing's handler; 0 disables the bound.
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "Europe/Berlin"
}

// HistoryItem records one executed firing.
type HistoryItem struct {
	Key      string
	Started  time.Time
	Duration time.Duration
}

type firing struct {
	key     string
	timeout time.Duration
	run     func(ctx context.Context)
}

type entry struct {
	key     string
	spec    string // cron spec or "@every ..."
	job     func(ctx context.Context)
	entryID cron.EntryID
	live    bool // registered with the running cron instance
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser  cron.Parser
	c       *cron.Cron
	entries map[string]*entry

	queue    chan firing
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]*entry{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan firing, 256)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// register entries scheduled before Start
	for _, e := range s.entries {
		s.registerLocked(e)
	}

	for i := 0; i < workers; i++ {
		s.workerWG.Add(1)
		go s.worker(ctx)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
	for _, e := range s.entries {
		e.live = false
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for workers")
	}
	s.log.Info("scheduler stopped")
}

// Apply updates live settings. A timezone change restarts the cron instance
// and re-registers every entry.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.stopCh == nil || oldTZ == newTZ {
		return
	}
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, e := range s.entries {
		s.registerLocked(e)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

// Schedule upserts a named repeating trigger. An existing registration
// under the same key is removed first; its in-flight firings are the
// caller's concern (generation checks), but no new ones occur.
func (s *Service) Schedule(key, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[key]; ok && prev.live && s.c != nil {
		s.c.Remove(prev.entryID)
	}
	e := &entry{key: key, spec: spec, job: job}
	s.entries[key] = e

	if s.c == nil {
		// Not started yet: keep the definition, register on Start.
		return nil
	}
	if err := s.registerLocked(e); err != nil {
		delete(s.entries, key)
		return err
	}
	s.log.Debug("trigger registered", logx.String("key", key), logx.String("spec", spec))
	return nil
}

// Cancel removes the named trigger. Cancelling an unknown key is a no-op.
func (s *Service) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	if e.live && s.c != nil {
		s.c.Remove(e.entryID)
	}
	s.log.Debug("trigger cancelled", logx.String("key", key))
	return true
}

// Len reports the number of registered triggers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// History returns a copy of the recent firing records.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) registerLocked(e *entry) error {
	key := e.key
	job := e.job
	timeout := s.cfg.DefaultTimeout
	id, err := s.c.AddFunc(e.spec, func() {
		s.enqueue(firing{key: key, timeout: timeout, run: job})
	})
	if err != nil {
		return err
	}
	e.entryID = id
	e.live = true
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) enqueue(f firing) {
	select {
	case s.queue <- f:
	default:
		s.log.Warn("scheduler queue full, dropping firing", logx.String("key", f.key))
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.workerWG.Done()

	s.mu.Lock()
	stopCh := s.stopCh
	queue := s.queue
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case f := <-queue:
			s.execOne(ctx, f)
		}
	}
}

func (s *Service) execOne(ctx context.Context, f firing) {
	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if f.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	f.run(runCtx)

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{Key: f.key, Started: start, Duration: time.Since(start)})
	if s.cfg.HistorySize > 0 && len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}
