package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

type promptSpec struct {
	name, description, title string
	arg, argHelp, fallback   string
	// template takes the argument once per %[1]s.
	template string
}

var prompts = []promptSpec{
	{
		name:        "reschedule_meeting",
		description: "Walk through moving a meeting to a time every attendee is free.",
		title:       "Reschedule a Meeting",
		arg:         "event_id",
		argHelp:     "ID of the meeting to move",
		fallback:    "[the meeting's event ID]",
		template: `Help me move meeting %[1]s.

1. Call reschedule.request with event_id %[1]q.
2. Show me the candidates with their index, start, end and length.
3. If the list is empty, no slot fits; offer to retry with a wider window
   (days) or fewer attendees.
4. When I pick one, call reschedule.select with the session_id and index.
   If it fails with a provider error the session stays open, so I can pick
   again. If it says the session is closed, request a new one.
5. If I change my mind, call reschedule.cancel.

Sessions expire after a few minutes, so do not wait long between steps.`,
	},
	{
		name:        "find_common_time",
		description: "Find time when a group of people are all free.",
		title:       "Find Common Free Time",
		arg:         "attendees",
		argHelp:     "Comma-separated attendee calendars",
		fallback:    "[attendee emails]",
		template: `Find time when I and %[1]s are all free.

Call availability.free with those attendees, then summarize the earliest
slots grouped by day. Mention which slots are shorter than 30 minutes.`,
	},
}

func (p promptSpec) render(args map[string]string) *mcp.PromptResult {
	value := args[p.arg]
	if value == "" {
		value = p.fallback
	}
	return &mcp.PromptResult{
		Description: p.title,
		Messages: []mcp.PromptMessage{{
			Role:    string(mcp.RoleUser),
			Content: mcp.TextContent{Type: "text", Text: fmt.Sprintf(p.template, value)},
		}},
	}
}

// RegisterPrompts adds the guided workflow prompts.
func RegisterPrompts(srv *mcp.Server, _ ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	for _, p := range prompts {
		srv.Prompt(p.name).
			Description(p.description).
			Argument(p.arg, p.argHelp, true).
			Handler(func(_ context.Context, args map[string]string) (*mcp.PromptResult, error) {
				return p.render(args), nil
			})
	}
	return nil
}
