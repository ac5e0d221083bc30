package chores

import (
	"context"

	"chorebot/internal/core"
)

// Commands builds the bot command registry over the service. Routing,
// middleware and the worker pool belong to core; everything here is a thin
// translation from parsed arguments to service calls.
func Commands(svc *Service) []core.Command {
	return []core.Command{
		{
			Name:        "start",
			Aliases:     []string{"init"},
			Description: "reset this chat and start fresh",
			Usage:       "/start",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, svc.StartChat(req.Chat.ChatID))
			},
		},
		{
			Name:        "set",
			Description: "schedule a task in one line",
			Usage:       msgUsageSet,
			Handle: func(ctx context.Context, req *core.Request) error {
				if len(req.Args) < 3 {
					return req.Reply(ctx, msgUsageSet)
				}
				reply, _ := svc.SetTask(req.Chat.ChatID, req.Args[0], req.Args[1], req.Args[2:])
				return req.Reply(ctx, reply)
			},
		},
		{
			Name:        "add_task",
			Description: "create a task step by step",
			Usage:       msgUsageAdd,
			Handle: func(ctx context.Context, req *core.Request) error {
				if len(req.Args) != 1 {
					return req.Reply(ctx, msgUsageAdd)
				}
				reply, _ := svc.BeginDialogue(req.Chat.ChatID, req.FromID, req.Args[0])
				return req.Reply(ctx, reply)
			},
		},
		{
			Name:        "unset",
			Description: "cancel a scheduled task",
			Usage:       msgUsageUnset,
			Handle: func(ctx context.Context, req *core.Request) error {
				if len(req.Args) != 1 {
					return req.Reply(ctx, msgUsageUnset)
				}
				if svc.Unset(req.Chat.ChatID, req.Args[0]) {
					return req.Reply(ctx, msgUnsetOK)
				}
				return req.Reply(ctx, msgUnsetNone)
			},
		},
		{
			Name:        "list",
			Description: "show scheduled tasks",
			Usage:       "/list",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, svc.ListText(req.Chat.ChatID))
			},
		},
		{
			Name:        "skip",
			Description: "skip the optional step of a task dialogue",
			Usage:       "/skip",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, svc.Control(req.Chat.ChatID, req.FromID, tokenSkip))
			},
		},
		{
			Name:        "confirm",
			Description: "confirm the task dialogue",
			Usage:       "/confirm",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, svc.Control(req.Chat.ChatID, req.FromID, tokenConfirm))
			},
		},
		{
			Name:        "cancel",
			Description: "abort the task dialogue",
			Usage:       "/cancel",
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, svc.Control(req.Chat.ChatID, req.FromID, tokenCancel))
			},
		},
	}
}

// TextHandler feeds free text into the chat's active draft, if any.
func TextHandler(svc *Service) core.TextHandlerFunc {
	return func(ctx context.Context, req *core.Request) bool {
		if req.Update.Message == nil {
			return false
		}
		reply, handled := svc.DialogueInput(req.Chat.ChatID, req.FromID, req.Update.Message.Text)
		if !handled {
			return false
		}
		if reply != "" {
			_ = req.Reply(ctx, reply)
		}
		return true
	}
}
