package relay

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gideonlabs/gideon/internal/agent"
	"github.com/gideonlabs/gideon/internal/store"
)

// Complete is the non-streaming sibling of Stream: one upstream call, one
// scan over the returned message list, one persisted reply. The complete
// response may still encode the reply as tool-call JSON, so extraction goes
// through the same field walker the streaming path uses.
func (r *Relay) Complete(ctx context.Context, req ChatRequest) (string, *store.Conversation, error) {
	if _, perr := r.store.AppendMessage(req.TopicID, newMessage(store.RoleUser, req.Message)); perr != nil {
		slog.Error("Failed to persist user message", "topic", req.TopicID, "error", perr)
	}

	resp, err := r.upstream.SendMessage(ctx, r.opts.AgentID, req.prompt())
	if err != nil {
		return "", nil, err
	}

	var reply strings.Builder
	for _, msg := range resp.Messages {
		evt, ok := agent.EventFromMessage(msg)
		if !ok {
			continue
		}
		switch evt.Kind {
		case agent.EventToolCall:
			if evt.ToolName != agent.SendMessageTool {
				continue
			}
			if val, ok := ExtractStringField(evt.ArgumentsDelta, "message"); ok {
				reply.WriteString(val)
			}
		case agent.EventAssistant:
			reply.WriteString(evt.Content)
		}
	}

	text := reply.String()

	var conv *store.Conversation
	if text != "" {
		saved, perr := r.store.AppendMessage(req.TopicID, newMessage(store.RoleAssistant, text))
		if perr != nil {
			slog.Error("Failed to persist assistant message", "topic", req.TopicID, "error", perr)
		} else {
			conv = saved
		}
		if r.notifier != nil {
			r.notifier.NotifyConversationCompleted(req.TopicID)
		}
	}
	if conv == nil {
		if current, gerr := r.store.GetConversation(req.TopicID); gerr == nil {
			conv = current
		}
	}

	return text, conv, nil
}
