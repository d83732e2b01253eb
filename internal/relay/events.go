package relay

import "github.com/gideonlabs/gideon/internal/store"

// EventKind doubles as the SSE event name on the wire to the browser.
type EventKind string

const (
	KindText     EventKind = "text"
	KindThinking EventKind = "thinking"
	KindTool     EventKind = "tool"
	KindDone     EventKind = "done"
	KindError    EventKind = "error"
)

// Event is one normalized outbound event. Events are emitted in strict
// arrival order relative to the upstream frames that produced them, except
// thinking events, which are debounced.
type Event struct {
	Kind    EventKind
	Payload interface{}
}

type TextPayload struct {
	Delta string `json:"delta"`
}

type ThinkingPayload struct {
	Reasoning string `json:"reasoning"`
}

type ToolPayload struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
}

type DonePayload struct {
	Conversation *store.Conversation `json:"conversation"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func TextEvent(delta string) Event {
	return Event{Kind: KindText, Payload: TextPayload{Delta: delta}}
}

func ThinkingEvent(reasoning string) Event {
	return Event{Kind: KindThinking, Payload: ThinkingPayload{Reasoning: reasoning}}
}

func ToolEvent(name, status, result string) Event {
	return Event{Kind: KindTool, Payload: ToolPayload{Name: name, Status: status, Result: result}}
}

func DoneEvent(conv *store.Conversation) Event {
	return Event{Kind: KindDone, Payload: DonePayload{Conversation: conv}}
}

func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Payload: ErrorPayload{Message: message}}
}

// Sink receives normalized events. Send errors mean the consumer is gone;
// the relay stops emitting but keeps draining upstream bookkeeping.
type Sink interface {
	Send(evt Event) error
}
