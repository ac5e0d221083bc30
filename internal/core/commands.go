package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	kit "chorebot/internal/transport"
	"chorebot/pkg/logx"
)

type Command struct {
	// Name is the single command word, e.g. "list". The bot's command
	// surface is flat; there are no subcommand paths.
	Name        string
	Aliases     []string // e.g. ["init"] for "start"
	Description string
	Usage       string

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends plain text back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// TextHandlerFunc consumes non-command messages (dialogue input). It reports
// whether the message was handled; unhandled text is silently ignored.
type TextHandlerFunc func(ctx context.Context, req *Request) bool

type CommandManager struct {
	mu sync.RWMutex

	cmds  map[string]*Command // canonical name -> command
	alias map[string]string   // alias -> canonical name

	textHandler TextHandlerFunc

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter) *CommandManager {
	return &CommandManager{
		cmds:    map[string]*Command{},
		alias:   map[string]string{},
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 256),
	}
}

// SetTextHandler installs the fallback for non-command messages. The guided
// dialogue lives behind this: free text only means something while a draft
// conversation is active.
func (m *CommandManager) SetTextHandler(h TextHandlerFunc) {
	m.mu.Lock()
	m.textHandler = h
	m.mu.Unlock()
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	// always inject help
	helper := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show help",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	}
	cmds = append(cmds, helper)

	reg := map[string]*Command{}
	alias := map[string]string{}

	for _, c := range cmds {
		name := strings.TrimSpace(c.Name)
		if name == "" || strings.Contains(name, " ") || c.Handle == nil {
			continue
		}
		cc := c // copy
		cc.Name = name
		reg[name] = &cc

		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = name
		}
	}

	m.mu.Lock()
	m.cmds = reg
	m.alias = alias
	m.mu.Unlock()
}

// MenuCommands renders the registry as platform menu entries (sorted).
func (m *CommandManager) MenuCommands() []kit.BotCommand {
	m.mu.RLock()
	reg := m.cmds
	m.mu.RUnlock()

	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]kit.BotCommand, 0, len(names))
	for _, name := range names {
		out = append(out, kit.BotCommand{Command: name, Description: reg[name].Description})
	}
	return out
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	// bounded worker pool
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() {
		closeOnce.Do(func() { close(m.jobs) })
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in command worker",
						logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					if job == nil {
						continue
					}
					job()
				}
			}
		}()
	}

	defer func() {
		closeJobs()
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("command dispatcher stopped (updates channel closed)")
				return nil
			}
			if up.Kind == kit.UpdateMessage {
				m.routeMessage(ctx, up)
			}
		}
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		m.enqueueText(root, up, text)
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := []string{}
	if len(parts) > 1 {
		args = parts[1:]
	}

	m.mu.RLock()
	if canon, ok := m.alias[word]; ok {
		word = canon
	}
	cmd, ok := m.cmds[word]
	m.mu.RUnlock()

	if !ok {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "unknown command. try /help", nil)
		return
	}
	m.enqueueCommand(root, up, *cmd, args)
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, args []string) {
	if up.Message == nil {
		return
	}

	req := m.newRequest(up, cmd.Name, args)

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func (m *CommandManager) enqueueText(root context.Context, up kit.Update, text string) {
	m.mu.RLock()
	h := m.textHandler
	m.mu.RUnlock()
	if h == nil {
		return
	}

	req := m.newRequest(up, "text", nil)

	wrapped := Chain(
		func(ctx context.Context, r *Request) error {
			h(ctx, r)
			return nil
		},
		MWPanicRecover(m.log),
	)

	select {
	case m.jobs <- func() { _ = wrapped(root, req) }:
	default:
		// dialogue input dropped under load; the user can resend
		m.log.Warn("text input dropped (job queue full)", logx.Int64("chat_id", up.Message.ChatID))
	}
}

func (m *CommandManager) newRequest(up kit.Update, command string, args []string) *Request {
	msg := up.Message
	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", command),
	)
	return &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: command,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger:  reqLog,
	}
}
