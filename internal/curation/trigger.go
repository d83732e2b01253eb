package curation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gideonlabs/gideon/internal/agent"
)

// Agent is the slice of the runtime client curation needs.
type Agent interface {
	SendMessage(ctx context.Context, agentID, content string) (*agent.MessagesResponse, error)
}

// Limiter is an explicit cooldown map: key to last trigger instant. It only
// exists to reduce redundant upstream load; it is reset on restart and
// provides no correctness guarantee.
type Limiter struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		last:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether key is outside its cooldown window, and records the
// trigger when it is.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}

// Trigger invokes the curator agent with synthetic prompts. Every send is
// fire-and-forget: failures are logged, never retried, never surfaced.
type Trigger struct {
	client    Agent
	curatorID string
	limiter   *Limiter
	timeout   time.Duration
}

func NewTrigger(client Agent, curatorID string, limiter *Limiter) *Trigger {
	return &Trigger{
		client:    client,
		curatorID: curatorID,
		limiter:   limiter,
		timeout:   5 * time.Minute,
	}
}

// NotifyConversationCompleted asks the curator to look at a topic whose
// conversation just finished, unless that topic is still cooling down.
func (t *Trigger) NotifyConversationCompleted(topicID string) {
	if t == nil || t.curatorID == "" {
		return
	}
	if !t.limiter.Allow(topicID) {
		slog.Debug("Curation trigger suppressed by cooldown", "topic", topicID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()

		slog.Info("Triggering topic curation", "topic", topicID)
		if _, err := t.client.SendMessage(ctx, t.curatorID, topicCurationPrompt(topicID)); err != nil {
			slog.Warn("Curation trigger failed", "topic", topicID, "error", err)
		}
	}()
}

// RunFullCuration runs a comprehensive curation session synchronously. Used
// by the cron scheduler and the curate command.
func (t *Trigger) RunFullCuration(ctx context.Context) error {
	if t.curatorID == "" {
		return fmt.Errorf("curator agent id not configured")
	}

	slog.Info("Running full curation session")
	if _, err := t.client.SendMessage(ctx, t.curatorID, fullCurationPrompt); err != nil {
		return fmt.Errorf("full curation session: %w", err)
	}
	return nil
}

// RunTopicCuration curates one topic synchronously (curate command).
func (t *Trigger) RunTopicCuration(ctx context.Context, topicID string) error {
	if t.curatorID == "" {
		return fmt.Errorf("curator agent id not configured")
	}

	slog.Info("Running topic curation", "topic", topicID)
	if _, err := t.client.SendMessage(ctx, t.curatorID, topicCurationPrompt(topicID)); err != nil {
		return fmt.Errorf("topic curation: %w", err)
	}
	return nil
}

const fullCurationPrompt = `Please perform a comprehensive curation session:

1. Use get_recent_conversations to see which topics have recent activity
2. For active topics, use get_conversation_details to understand what the student asked
3. Use get_student_progress to see overall learning status
4. Use get_current_extensions to see what has already been added
5. Based on your analysis:
   - Identify knowledge gaps or confusion points
   - Search for 2-3 high-quality resources to address these gaps
   - Add resources using add_resource
   - If you see code-related questions, create helpful examples with add_code_example
   - If there's a significant confusion, consider generating a lesson with add_lesson

Quality over quantity. Only add content that directly addresses the student's needs.`

func topicCurationPrompt(topicID string) string {
	return fmt.Sprintf(`Please curate content specifically for the topic: %[1]s

1. Use get_conversation_details('%[1]s') to see what the student asked about this topic
2. Use get_student_notes('%[1]s') to see their personal notes
3. Use get_current_extensions to check what's already been added
4. Based on the conversation and notes:
   - Identify specific questions or confusion points
   - Find 1-2 highly relevant resources
   - Create a code example if it would help clarify a concept
   - Consider generating a focused lesson if there's a pattern of confusion

Quality over quantity. Only add content that directly addresses the student's needs.`, topicID)
}
