// Package notify delivers reminder text to chats through the transport
// adapter, with a token-bucket rate limit and bounded retry. Delivery
// failures are reported to the caller but never crash anything; the core
// treats delivery as best-effort.
package notify

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "chorebot/internal/transport"
	"chorebot/pkg/logx"
)

type Config struct {
	RatePerSec    int           // token bucket rate (default 3)
	RetryMax      int           // retries after the first attempt (default 2)
	RetryBase     time.Duration // first backoff (default 500ms)
	RetryMaxDelay time.Duration // backoff cap (default 10s)
	HistorySize   int           // delivery record ring (default 300)
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	} else if c.RetryMax == 0 {
		c.RetryMax = 2
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 300
	}
	return c
}

// HistoryItem records one delivery attempt outcome.
type HistoryItem struct {
	At     time.Time
	ChatID int64
	Error  string
}

type Service struct {
	adapter kit.Adapter
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.Apply(cfg)
	return s
}

// Apply updates rate/retry settings at runtime.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	// Burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Send delivers text to a chat, waiting on the rate limiter and retrying
// transient failures with jittered exponential backoff.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget, text string) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	var err error
	delay := cfg.RetryBase
	for attempt := 0; ; attempt++ {
		_, err = s.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true})
		if err == nil || attempt >= cfg.RetryMax {
			break
		}
		s.log.Debug("delivery attempt failed, retrying",
			logx.Int64("chat_id", to.ChatID), logx.Int("attempt", attempt+1), logx.Err(err))

		jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		if delay *= 2; delay > cfg.RetryMaxDelay {
			delay = cfg.RetryMaxDelay
		}
	}

	s.record(to.ChatID, err)
	if err != nil {
		s.log.Warn("delivery failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
	return err
}

// History returns a copy of recent delivery records.
func (s *Service) History() []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) Stop(ctx context.Context) {
	// no background workers currently
}

func (s *Service) record(chatID int64, err error) {
	it := HistoryItem{At: time.Now(), ChatID: chatID}
	if err != nil {
		it.Error = err.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, it)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
}
