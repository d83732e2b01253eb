package agent

import (
	"encoding/json"
	"strings"
)

// SendMessageTool is the tool the agent uses to carry its visible reply text.
// Its streamed arguments are a JSON object like {"message": "..."}.
const SendMessageTool = "send_message"

// SendMessageSentinel is the tool_return the runtime emits after a successful
// send_message call. It carries no information beyond the text already streamed.
const SendMessageSentinel = "Sent message successfully."

type EventKind int

const (
	EventToolCall EventKind = iota
	EventToolReturn
	EventReasoning
	EventAssistant
)

// StreamEvent is one decoded upstream frame. The discriminant is resolved
// here, at the parser boundary; nothing downstream branches on raw strings.
type StreamEvent struct {
	Kind EventKind

	// EventToolCall: ArgumentsDelta is a raw JSON fragment to concatenate.
	ToolName       string
	ToolCallID     string
	ArgumentsDelta string

	// EventToolReturn
	ToolReturn string

	// EventReasoning
	Reasoning string

	// EventAssistant: cumulative text, not a delta.
	Content string
}

// Message is one entry of a non-streaming messages response. It mirrors the
// same shapes the stream carries.
type Message struct {
	MessageType string    `json:"message_type"`
	ToolCall    *ToolCall `json:"tool_call,omitempty"`
	Name        string    `json:"name,omitempty"`
	ToolCallID  string    `json:"tool_call_id,omitempty"`
	ToolReturn  string    `json:"tool_return,omitempty"`
	Reasoning   string    `json:"reasoning,omitempty"`
	Content     string    `json:"content,omitempty"`
}

type ToolCall struct {
	Name       string `json:"name"`
	ToolCallID string `json:"tool_call_id"`
	Arguments  string `json:"arguments"`
}

type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ParseLine decodes one raw transport line into a StreamEvent. It reports
// false for non-data lines, the [DONE] terminator, and unparsable payloads.
// The transport is known to split a JSON body across chunk boundaries;
// such a line is dropped here and its text recovered from later deltas.
func ParseLine(line string) (StreamEvent, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return StreamEvent{}, false
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "[DONE]" {
		return StreamEvent{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return StreamEvent{}, false
	}

	return EventFromMessage(msg)
}

// EventFromMessage maps one wire message to its typed event. The
// non-streaming response carries the same shapes, so the one-shot path
// decodes through here as well.
func EventFromMessage(msg Message) (StreamEvent, bool) {
	switch msg.MessageType {
	case "tool_call_message":
		if msg.ToolCall == nil {
			return StreamEvent{}, false
		}
		return StreamEvent{
			Kind:           EventToolCall,
			ToolName:       msg.ToolCall.Name,
			ToolCallID:     msg.ToolCall.ToolCallID,
			ArgumentsDelta: msg.ToolCall.Arguments,
		}, true
	case "tool_return_message":
		return StreamEvent{
			Kind:       EventToolReturn,
			ToolName:   msg.Name,
			ToolCallID: msg.ToolCallID,
			ToolReturn: msg.ToolReturn,
		}, true
	case "reasoning_message":
		return StreamEvent{
			Kind:      EventReasoning,
			Reasoning: msg.Reasoning,
		}, true
	case "assistant_message":
		return StreamEvent{
			Kind:    EventAssistant,
			Content: msg.Content,
		}, true
	default:
		return StreamEvent{}, false
	}
}
