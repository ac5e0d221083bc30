package core

import (
	"fmt"
	"os"
	"strings"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Chores    ChoresConfig    `json:"chores"`
	Notify    NotifyConfig    `json:"notify"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	// Token is the bot credential. Leave empty and set TokenFile to read it
	// from a file instead (one trimmed line, the classic TOKEN.txt).
	Token     string `json:"token"`
	TokenFile string `json:"token_file"`
	// GroupLog is the chat id (as string) receiving log notifications.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// ResolveToken returns the inline token, or the first line of TokenFile.
func (t TelegramConfig) ResolveToken() (string, error) {
	if tok := strings.TrimSpace(t.Token); tok != "" {
		return tok, nil
	}
	path := strings.TrimSpace(t.TokenFile)
	if path == "" {
		return "", fmt.Errorf("telegram: neither token nor token_file is set")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("telegram: read token_file: %w", err)
	}
	tok := strings.TrimSpace(strings.SplitN(string(b), "\n", 2)[0])
	if tok == "" {
		return "", fmt.Errorf("telegram: token_file %q is empty", path)
	}
	return tok, nil
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SchedulerConfig struct {
	Workers int `json:"workers"`
	// DefaultTimeout bounds one firing's handler. Go duration string;
	// "0s" disables the bound.
	DefaultTimeout string `json:"default_timeout"`
	HistorySize    int    `json:"history_size"`
	Timezone       string `json:"timezone,omitempty"`
}

type ChoresConfig struct {
	// MinInterval is the frequency floor for interval triggers.
	// Go duration string; empty means the built-in default (2s).
	MinInterval string `json:"min_interval"`
}

type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec"`
	// RetryMax counts retries after the first attempt.
	RetryMax int `json:"retry_max"`
	// RetryBase / RetryMaxDelay are Go duration strings.
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	HistorySize   int    `json:"history_size"`
}

type StorageConfig struct {
	// Driver: "file", "sqlite", or ""/"none" to disable the audit trail.
	Driver string `json:"driver"`
	Path   string `json:"path"`
}
