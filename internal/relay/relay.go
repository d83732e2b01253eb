package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gideonlabs/gideon/internal/agent"
	"github.com/gideonlabs/gideon/internal/gideonerrors"
	"github.com/gideonlabs/gideon/internal/store"

	"github.com/oklog/ulid/v2"
)

// Upstream is the slice of the agent runtime client the relay needs.
type Upstream interface {
	StreamMessages(ctx context.Context, agentID, content string) (io.ReadCloser, error)
	SendMessage(ctx context.Context, agentID, content string) (*agent.MessagesResponse, error)
}

// ConversationStore is the storage collaborator surface the relay consumes.
type ConversationStore interface {
	GetConversation(topicID string) (*store.Conversation, error)
	AppendMessage(topicID string, msg store.Message) (*store.Conversation, error)
	LogActivity(entry store.ActivityEntry) error
}

// CurationNotifier is told when a conversation completes. Delivery is
// fire-and-forget: no guarantee, no retry.
type CurationNotifier interface {
	NotifyConversationCompleted(topicID string)
}

type Options struct {
	AgentID           string
	AgentName         string
	ReasoningDebounce time.Duration
	ToolResultLimit   int
}

// Relay drives one upstream agent stream per chat request, translating the
// runtime's tool-call event protocol into the browser-facing event sequence
// and persisting the reconstructed conversation.
type Relay struct {
	upstream Upstream
	store    ConversationStore
	notifier CurationNotifier
	opts     Options
}

func New(upstream Upstream, convStore ConversationStore, notifier CurationNotifier, opts Options) *Relay {
	if opts.ReasoningDebounce <= 0 {
		opts.ReasoningDebounce = 100 * time.Millisecond
	}
	if opts.ToolResultLimit <= 0 {
		opts.ToolResultLimit = 200
	}
	return &Relay{
		upstream: upstream,
		store:    convStore,
		notifier: notifier,
		opts:     opts,
	}
}

type ChatRequest struct {
	TopicID string        `json:"topicId"`
	Message string        `json:"message"`
	Context *TopicContext `json:"topicContext,omitempty"`
	Stream  bool          `json:"stream"`
}

type TopicContext struct {
	Title     string   `json:"title,omitempty"`
	Category  string   `json:"category,omitempty"`
	KeyPoints []string `json:"keyPoints,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// prompt prefixes the raw user text with bracketed annotation lines. This is
// the only prompt shaping the relay performs.
func (req ChatRequest) prompt() string {
	if req.Context == nil {
		return req.Message
	}

	var b strings.Builder
	c := req.Context
	if c.Title != "" {
		fmt.Fprintf(&b, "[Topic: %s]\n", c.Title)
	}
	if c.Category != "" {
		fmt.Fprintf(&b, "[Category: %s]\n", c.Category)
	}
	if len(c.KeyPoints) > 0 {
		fmt.Fprintf(&b, "[Key points: %s]\n", strings.Join(c.KeyPoints, "; "))
	}
	if c.Notes != "" {
		fmt.Fprintf(&b, "[Student notes: %s]\n", c.Notes)
	}
	if b.Len() == 0 {
		return req.Message
	}
	b.WriteString("\n")
	b.WriteString(req.Message)
	return b.String()
}

// session is the per-request mutable state. The mutex serializes the read
// loop against the reasoning debounce timer so sink writes never interleave.
type session struct {
	mu       sync.Mutex
	sink     Sink
	closed   bool
	acc      *Accumulator
	mark     int // high-water mark: longest reply text emitted so far
	pending  string
	reason   strings.Builder
	timer    *time.Timer
	debounce time.Duration
}

func (s *session) emit(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(evt)
}

func (s *session) emitLocked(evt Event) {
	if s.closed {
		return
	}
	if err := s.sink.Send(evt); err != nil {
		s.closed = true
	}
}

func (s *session) addReasoning(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.reason.WriteString(fragment)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushReasoning)
}

func (s *session) flushReasoning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushReasoningLocked()
}

func (s *session) flushReasoningLocked() {
	if s.reason.Len() == 0 {
		return
	}
	s.emitLocked(ThinkingEvent(s.reason.String()))
	s.reason.Reset()
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Stream runs one relay session: persist the user message, open the upstream
// token stream, translate every frame, persist the reconstructed reply, and
// emit done. An aborted request (ctx cancelled) persists nothing further and
// surfaces no error.
func (r *Relay) Stream(ctx context.Context, req ChatRequest, sink Sink) (err error) {
	s := &session{
		sink:     sink,
		acc:      NewAccumulator(),
		debounce: r.opts.ReasoningDebounce,
	}

	// The user message is never lost, even if the upstream call fails outright.
	if _, perr := r.store.AppendMessage(req.TopicID, newMessage(store.RoleUser, req.Message)); perr != nil {
		slog.Error("Failed to persist user message", "topic", req.TopicID, "error", perr)
	}

	body, err := r.upstream.StreamMessages(ctx, r.opts.AgentID, req.prompt())
	if err != nil {
		slog.Error("Failed to open agent stream", "topic", req.TopicID, "error", err)
		s.emit(ErrorEvent("The tutor is unavailable right now. Please try again."))
		s.close()
		return err
	}
	defer body.Close()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Relay session panic", "topic", req.TopicID, "panic", rec)
			s.emit(ErrorEvent("The tutor hit an internal error. Please try again."))
			s.close()
			err = gideonerrors.Internal(fmt.Sprintf("relay panic: %v", rec))
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 8<<20)

	for scanner.Scan() {
		if ctx.Err() != nil {
			s.close()
			return nil
		}
		evt, ok := agent.ParseLine(scanner.Text())
		if !ok {
			continue
		}
		r.dispatch(req, s, evt)
	}

	if serr := scanner.Err(); serr != nil {
		if ctx.Err() != nil || errors.Is(serr, context.Canceled) {
			s.close()
			return nil
		}
		slog.Error("Agent stream read failed", "topic", req.TopicID, "error", serr)
		s.emit(ErrorEvent("Connection to the tutor was interrupted. Please try again."))
		s.close()
		return gideonerrors.Wrap(serr, "read agent stream")
	}
	if ctx.Err() != nil {
		s.close()
		return nil
	}

	r.finish(req, s)
	return nil
}

func (r *Relay) dispatch(req ChatRequest, s *session, evt agent.StreamEvent) {
	switch evt.Kind {
	case agent.EventToolCall:
		if evt.ToolName == agent.SendMessageTool {
			buf, _ := s.acc.Accumulate(evt.ToolCallID, evt.ArgumentsDelta)
			val, ok := ExtractStringField(buf, "message")
			if !ok {
				return
			}
			s.mu.Lock()
			if len(val) > s.mark {
				delta := val[s.mark:]
				s.mark = len(val)
				s.emitLocked(TextEvent(delta))
			}
			s.pending = val
			s.mu.Unlock()
			return
		}

		_, first := s.acc.Accumulate(evt.ToolCallID, evt.ArgumentsDelta)
		if first {
			s.emit(ToolEvent(evt.ToolName, "called", ""))
		}

	case agent.EventToolReturn:
		if evt.ToolName == agent.SendMessageTool || evt.ToolReturn == agent.SendMessageSentinel {
			return
		}
		category := Classify(evt.ToolName)
		if category == ActivityNone {
			return
		}

		var args map[string]interface{}
		if raw := s.acc.Get(evt.ToolCallID); raw != "" {
			// Best effort; an unparsable accumulation just loses detail.
			json.Unmarshal([]byte(raw), &args)
		}

		s.emit(ToolEvent(evt.ToolName, "completed", truncate(evt.ToolReturn, r.opts.ToolResultLimit)))

		entry := store.ActivityEntry{
			ID:        ulid.Make().String(),
			Type:      string(category),
			Details:   Describe(evt.ToolName, args),
			TopicID:   req.TopicID,
			AgentName: r.opts.AgentName,
			Timestamp: time.Now(),
		}
		if lerr := r.store.LogActivity(entry); lerr != nil {
			slog.Warn("Failed to log activity", "tool", evt.ToolName, "error", lerr)
		}

	case agent.EventReasoning:
		s.addReasoning(evt.Reasoning)

	case agent.EventAssistant:
		// Legacy format: cumulative text per frame, superseding the pending buffer.
		s.mu.Lock()
		if len(evt.Content) > s.mark {
			delta := evt.Content[s.mark:]
			s.mark = len(evt.Content)
			s.emitLocked(TextEvent(delta))
		}
		if evt.Content != "" {
			s.pending = evt.Content
		}
		s.mu.Unlock()
	}
}

func (r *Relay) finish(req ChatRequest, s *session) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.flushReasoningLocked()
	pending := s.pending
	s.mu.Unlock()

	var conv *store.Conversation
	if pending != "" {
		saved, perr := r.store.AppendMessage(req.TopicID, newMessage(store.RoleAssistant, pending))
		if perr != nil {
			// The user-visible answer has already been streamed; do not abort.
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

	s.emit(DoneEvent(conv))
	s.close()
}

func newMessage(role, content string) store.Message {
	return store.Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// truncate caps s at limit bytes without splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
