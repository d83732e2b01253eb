package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gideonlabs/gideon/internal/agent"
	"github.com/gideonlabs/gideon/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeUpstream struct {
	stream  io.ReadCloser
	openErr error
	oneShot *agent.MessagesResponse
}

func (f *fakeUpstream) StreamMessages(ctx context.Context, agentID, content string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeUpstream) SendMessage(ctx context.Context, agentID, content string) (*agent.MessagesResponse, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.oneShot, nil
}

type memStore struct {
	mu         sync.Mutex
	convs      map[string]*store.Conversation
	activities []store.ActivityEntry
	appendErr  error
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*store.Conversation)}
}

func (m *memStore) GetConversation(topicID string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[topicID]; ok {
		return conv, nil
	}
	return &store.Conversation{TopicID: topicID, Messages: []store.Message{}}, nil
}

func (m *memStore) AppendMessage(topicID string, msg store.Message) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	conv, ok := m.convs[topicID]
	if !ok {
		conv = &store.Conversation{TopicID: topicID}
		m.convs[topicID] = conv
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = time.Now()
	return conv, nil
}

func (m *memStore) LogActivity(entry store.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, entry)
	return nil
}

func (m *memStore) messages(topicID string) []store.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv, ok := m.convs[topicID]; ok {
		return append([]store.Message(nil), conv.Messages...)
	}
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Send(evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) ofKind(kind EventKind) []Event {
	var out []Event
	for _, evt := range r.all() {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

type countingNotifier struct {
	mu     sync.Mutex
	topics []string
}

func (c *countingNotifier) NotifyConversationCompleted(topicID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topicID)
}

func sseBody(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func newTestRelay(up Upstream, st ConversationStore, n CurationNotifier) *Relay {
	return New(up, st, n, Options{AgentID: "agent-1", AgentName: "Gideon"})
}

// --- tests ---

func TestStreamSplitToolCallArguments(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"reasoning_message","reasoning":"Recalling how signals work"}`,
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"{\"mess"}}`,
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"age\":\"Hello!\"}"}}`,
		`data: {"message_type":"tool_return_message","name":"send_message","tool_call_id":"c1","tool_return":"Sent message successfully."}`,
		`data: [DONE]`,
	)}
	st := newMemStore()
	notifier := &countingNotifier{}
	sink := &recordingSink{}

	err := newTestRelay(up, st, notifier).Stream(context.Background(),
		ChatRequest{TopicID: "signals", Message: "What are signals?"}, sink)
	require.NoError(t, err)

	texts := sink.ofKind(KindText)
	require.Len(t, texts, 1, "the split fragment must not produce partial garbage")
	assert.Equal(t, TextPayload{Delta: "Hello!"}, texts[0].Payload)

	thinking := sink.ofKind(KindThinking)
	require.Len(t, thinking, 1)
	assert.Equal(t, ThinkingPayload{Reasoning: "Recalling how signals work"}, thinking[0].Payload)

	assert.Empty(t, sink.ofKind(KindTool), "send_message never surfaces as a tool event")
	assert.Empty(t, sink.ofKind(KindError))

	events := sink.all()
	require.NotEmpty(t, events)
	assert.Equal(t, KindDone, events[len(events)-1].Kind)

	msgs := st.messages("signals")
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "What are signals?", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hello!", msgs[1].Content)

	assert.Equal(t, []string{"signals"}, notifier.topics)
}

func TestStreamIncrementalDeltas(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"{\"message\":\"Sig"}}`,
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"nals decouple"}}`,
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":" nodes.\"}"}}`,
	)}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "signals", Message: "hi"}, sink)
	require.NoError(t, err)

	var got strings.Builder
	for _, evt := range sink.ofKind(KindText) {
		got.WriteString(evt.Payload.(TextPayload).Delta)
	}
	assert.Equal(t, "Signals decouple nodes.", got.String(),
		"concatenated deltas reconstruct the reply with no duplication")

	msgs := st.messages("signals")
	require.Len(t, msgs, 2)
	assert.Equal(t, "Signals decouple nodes.", msgs[1].Content)
}

func TestStreamAssistantMessageCumulative(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"assistant_message","content":"Hel"}`,
		`data: {"message_type":"assistant_message","content":"Hello there"}`,
	)}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	texts := sink.ofKind(KindText)
	require.Len(t, texts, 2)
	assert.Equal(t, "Hel", texts[0].Payload.(TextPayload).Delta)
	assert.Equal(t, "lo there", texts[1].Payload.(TextPayload).Delta)

	msgs := st.messages("t")
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello there", msgs[1].Content)
}

func TestStreamToolActivity(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"tool_call_message","tool_call":{"name":"web_search","tool_call_id":"c2","arguments":"{\"query\":"}}`,
		`data: {"message_type":"tool_call_message","tool_call":{"name":"web_search","tool_call_id":"c2","arguments":"\"godot signals\"}"}}`,
		`data: {"message_type":"tool_return_message","name":"web_search","tool_call_id":"c2","tool_return":"`+strings.Repeat("r", 300)+`"}`,
	)}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "signals", Message: "find docs"}, sink)
	require.NoError(t, err)

	tools := sink.ofKind(KindTool)
	require.Len(t, tools, 2, "one called event per tool, one completed")

	called := tools[0].Payload.(ToolPayload)
	assert.Equal(t, "web_search", called.Name)
	assert.Equal(t, "called", called.Status)
	assert.Empty(t, called.Result)

	completed := tools[1].Payload.(ToolPayload)
	assert.Equal(t, "completed", completed.Status)
	assert.Len(t, completed.Result, 200, "tool results are capped")

	require.Len(t, st.activities, 1)
	entry := st.activities[0]
	assert.Equal(t, "search", entry.Type)
	assert.Equal(t, "Searched for: godot signals", entry.Details)
	assert.Equal(t, "signals", entry.TopicID)
	assert.Equal(t, "Gideon", entry.AgentName)
	assert.NotEmpty(t, entry.ID)
}

func TestStreamSuppressesSendMessageSentinel(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"tool_return_message","name":"other_tool","tool_call_id":"c9","tool_return":"Sent message successfully."}`,
	)}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	assert.Empty(t, sink.ofKind(KindTool))
	assert.Empty(t, st.activities)
}

func TestStreamCoalescesReasoning(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"reasoning_message","reasoning":"first "}`,
		`data: {"message_type":"reasoning_message","reasoning":"second"}`,
	)}
	sink := &recordingSink{}

	rly := New(&fakeUpstream{stream: up.stream}, newMemStore(), nil, Options{
		AgentID:           "agent-1",
		ReasoningDebounce: 50 * time.Millisecond,
	})
	err := rly.Stream(context.Background(), ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	thinking := sink.ofKind(KindThinking)
	require.Len(t, thinking, 1, "bursts inside the debounce window coalesce")
	assert.Equal(t, ThinkingPayload{Reasoning: "first second"}, thinking[0].Payload)
}

type timedChunk struct {
	delay time.Duration
	data  string
}

// pacedReader delivers one chunk per Read, sleeping first, so the stream
// stays open between frames the way a live upstream does.
type pacedReader struct {
	chunks []timedChunk
	idx    int
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if p.idx >= len(p.chunks) {
		return 0, io.EOF
	}
	c := p.chunks[p.idx]
	p.idx++
	time.Sleep(c.delay)
	return copy(b, c.data), nil
}

func (p *pacedReader) Close() error { return nil }

func TestStreamReasoningDebounceFiresMidStream(t *testing.T) {
	up := &fakeUpstream{stream: &pacedReader{chunks: []timedChunk{
		{0, `data: {"message_type":"reasoning_message","reasoning":"a"}` + "\n"},
		{10 * time.Millisecond, `data: {"message_type":"reasoning_message","reasoning":"b"}` + "\n"},
		// Quiet period well past the debounce, then the reply arrives.
		{250 * time.Millisecond, `data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"{\"message\":\"Hello!\"}"}}` + "\n"},
	}}}
	st := newMemStore()
	sink := &recordingSink{}

	rly := New(up, st, nil, Options{
		AgentID:           "agent-1",
		ReasoningDebounce: 60 * time.Millisecond,
	})
	err := rly.Stream(context.Background(), ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	thinking := sink.ofKind(KindThinking)
	require.Len(t, thinking, 1, "fragments inside the window coalesce, quiet period fires once")
	assert.Equal(t, ThinkingPayload{Reasoning: "ab"}, thinking[0].Payload)
	require.Len(t, sink.ofKind(KindText), 1)

	events := sink.all()
	var thinkingAt, textAt int
	for i, evt := range events {
		switch evt.Kind {
		case KindThinking:
			thinkingAt = i
		case KindText:
			textAt = i
		}
	}
	assert.Less(t, thinkingAt, textAt,
		"the debounce timer emits during the quiet period, before later frames arrive")
	assert.Equal(t, KindDone, events[len(events)-1].Kind)
}

func TestStreamAbortedRequest(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"{\"message\":\"Hello!\"}"}}`,
	)}
	st := newMemStore()
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestRelay(up, st, nil).Stream(ctx, ChatRequest{TopicID: "t", Message: "hi"}, sink)
	assert.NoError(t, err, "an abort is not an error")

	assert.Empty(t, sink.ofKind(KindDone))
	assert.Empty(t, sink.ofKind(KindError))

	msgs := st.messages("t")
	require.Len(t, msgs, 1, "only the user message persists on abort")
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestStreamUpstreamOpenFailure(t *testing.T) {
	up := &fakeUpstream{openErr: errors.New("connection refused")}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.Error(t, err)

	errs := sink.ofKind(KindError)
	require.Len(t, errs, 1)
	assert.Empty(t, sink.ofKind(KindDone))

	msgs := st.messages("t")
	require.Len(t, msgs, 1, "the user message survives an upstream failure")
}

type brokenReader struct {
	data string
	read bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if !b.read {
		b.read = true
		return copy(p, b.data), nil
	}
	return 0, errors.New("connection reset")
}

func (b *brokenReader) Close() error { return nil }

func TestStreamMidStreamDisconnect(t *testing.T) {
	up := &fakeUpstream{stream: &brokenReader{
		data: `data: {"message_type":"reasoning_message","reasoning":"partial"}` + "\n",
	}}
	st := newMemStore()
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.Error(t, err)

	require.Len(t, sink.ofKind(KindError), 1)
	assert.Empty(t, sink.ofKind(KindDone))

	msgs := st.messages("t")
	require.Len(t, msgs, 1, "no assistant message persists for a truncated reply")
}

func TestStreamMalformedFramesSkipped(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {not json`,
		`: comment line`,
		``,
		`data: {"message_type":"assistant_message","content":"ok"}`,
	)}
	sink := &recordingSink{}

	err := newTestRelay(up, newMemStore(), nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	texts := sink.ofKind(KindText)
	require.Len(t, texts, 1)
	assert.Equal(t, "ok", texts[0].Payload.(TextPayload).Delta)
}

func TestStreamPersistenceFailureDoesNotAbort(t *testing.T) {
	up := &fakeUpstream{stream: sseBody(
		`data: {"message_type":"tool_call_message","tool_call":{"name":"send_message","tool_call_id":"c1","arguments":"{\"message\":\"Hello!\"}"}}`,
	)}
	st := newMemStore()
	st.appendErr = errors.New("disk full")
	sink := &recordingSink{}

	err := newTestRelay(up, st, nil).Stream(context.Background(),
		ChatRequest{TopicID: "t", Message: "hi"}, sink)
	require.NoError(t, err)

	texts := sink.ofKind(KindText)
	require.Len(t, texts, 1)
	assert.Equal(t, "Hello!", texts[0].Payload.(TextPayload).Delta)
	require.Len(t, sink.ofKind(KindDone), 1, "the reply still completes")
}

func TestTruncateRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 200))
	assert.Len(t, truncate(strings.Repeat("r", 300), 200), 200)

	// A multi-byte rune straddling the cap is dropped whole, never split.
	s := strings.Repeat("a", 199) + "é" + "tail"
	got := truncate(s, 200)
	assert.Equal(t, strings.Repeat("a", 199), got)
	assert.True(t, utf8.ValidString(got))

	kana := strings.Repeat("あ", 100) // 3 bytes each
	got = truncate(kana, 200)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 198, len(got))
}

func TestPromptAnnotations(t *testing.T) {
	req := ChatRequest{
		TopicID: "signals",
		Message: "How do I connect one?",
		Context: &TopicContext{
			Title:     "Signals",
			Category:  "basics",
			KeyPoints: []string{"observer pattern", "decoupling"},
			Notes:     "confused about connect()",
		},
	}

	prompt := req.prompt()
	assert.Contains(t, prompt, "[Topic: Signals]")
	assert.Contains(t, prompt, "[Category: basics]")
	assert.Contains(t, prompt, "[Key points: observer pattern; decoupling]")
	assert.Contains(t, prompt, "[Student notes: confused about connect()]")
	assert.True(t, strings.HasSuffix(prompt, "How do I connect one?"))

	bare := ChatRequest{TopicID: "t", Message: "hi"}
	assert.Equal(t, "hi", bare.prompt())
}
