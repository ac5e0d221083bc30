package chores

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// MinInterval is the policy floor for interval triggers. Anything faster is
// rejected with ErrTooFrequent before the registry or scheduler mutate state.
const MinInterval = 2 * time.Second

type TriggerKind int

const (
	TriggerInterval TriggerKind = iota
	TriggerCron
)

// Trigger is the validated periodicity spec for a task. It is a closed sum:
// either a fixed interval or a cron expression, never an opaque blob.
type Trigger struct {
	Kind  TriggerKind
	Every time.Duration // TriggerInterval only
	Cron  string        // TriggerCron only, normalized expression
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseTrigger is the single entry point turning user input into a Trigger.
//
// Accepted forms:
//   - Bare number of seconds, fraction allowed: "5", "2.5"
//   - Go duration: "10m", "2h30m"
//   - HH:MM treated as an interval: "01:30" (1h30m)
//   - Cron: "*/5 * * * *", "@hourly", optionally prefixed "cron:"
func ParseTrigger(raw string) (Trigger, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Trigger{}, fmt.Errorf("empty trigger")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		return parseCron(rest)
	}

	// Bare number = seconds (the classic /set form).
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return Trigger{}, fmt.Errorf("interval must be positive")
		}
		return Trigger{Kind: TriggerInterval, Every: time.Duration(secs * float64(time.Second))}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Trigger{}, fmt.Errorf("interval must be positive")
		}
		return Trigger{Kind: TriggerInterval, Every: d}, nil
	}

	if h, m, err := parseHHMM(s); err == nil {
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		if d <= 0 {
			return Trigger{}, fmt.Errorf("interval must be positive")
		}
		return Trigger{Kind: TriggerInterval, Every: d}, nil
	}

	return parseCron(s)
}

func parseCron(expr string) (Trigger, error) {
	expr = strings.TrimSpace(expr)

	// "@every <dur>" is an interval in cron clothing. Route it through the
	// interval kind so the frequency floor applies to it like any other
	// interval; the remaining descriptors (@hourly and coarser) and the
	// 5-field grammar cannot fire more often than once a minute.
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return Trigger{}, fmt.Errorf("invalid trigger %q: bad @every duration", expr)
		}
		return Trigger{Kind: TriggerInterval, Every: d}, nil
	}

	if _, err := cronParser.Parse(expr); err != nil {
		return Trigger{}, fmt.Errorf("invalid trigger %q: %w", expr, err)
	}
	return Trigger{Kind: TriggerCron, Cron: expr}, nil
}

// Validate applies the frequency floor. Cron triggers pass: @every is
// normalized to an interval at parse time, and what remains of the cron
// grammar cannot fire more than once a minute.
func (t Trigger) Validate(min time.Duration) error {
	switch t.Kind {
	case TriggerInterval:
		if t.Every < min {
			return ErrTooFrequent
		}
		return nil
	case TriggerCron:
		if strings.TrimSpace(t.Cron) == "" {
			return fmt.Errorf("empty cron expression")
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %d", t.Kind)
	}
}

// Spec renders the registration string for the cron runner.
func (t Trigger) Spec() string {
	if t.Kind == TriggerCron {
		return t.Cron
	}
	return "@every " + t.Every.String()
}

// String is the human summary used in /list output.
func (t Trigger) String() string {
	if t.Kind == TriggerCron {
		return "cron " + t.Cron
	}
	return "every " + t.Every.String()
}

func parseHHMM(s string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
