package store

import "time"

// Message is one conversation entry. Order inside a Conversation is
// chronological and append-only; Clear is the only way to drop entries.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	TopicID   string    `json:"topicId"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotebookSummary is the per-topic digest the curator asks for. Title is
// filled in by the API layer from the topic catalogue; the store only knows ids.
type NotebookSummary struct {
	TopicID      string    `json:"topicId"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"messageCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// ActivityEntry records one agent side action for the learner-visible feed.
// Retention is capacity bounded; the newest entries win.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
	TopicID   string    `json:"topicId,omitempty"`
	AgentName string    `json:"agentName"`
	Timestamp time.Time `json:"timestamp"`
}

type TopicProgress struct {
	Completed     bool      `json:"completed"`
	ExercisesDone []string  `json:"exercisesDone,omitempty"`
	LastVisited   time.Time `json:"lastVisited"`
	Notes         string    `json:"notes,omitempty"`
}

type Progress struct {
	Topics map[string]TopicProgress `json:"topics"`
}

type Resource struct {
	TopicID string    `json:"topicId"`
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Type    string    `json:"type"`
	AddedAt time.Time `json:"addedAt"`
}

type CodeExample struct {
	TopicID     string    `json:"topicId"`
	Title       string    `json:"title"`
	Language    string    `json:"language"`
	Code        string    `json:"code"`
	Explanation string    `json:"explanation"`
	AddedAt     time.Time `json:"addedAt"`
}

// Extensions holds everything the curator has dynamically added.
type Extensions struct {
	Resources    []Resource    `json:"resources"`
	CodeExamples []CodeExample `json:"codeExamples"`
}

type LessonContent struct {
	Introduction string   `json:"introduction"`
	Concepts     []string `json:"concepts"`
	Explanation  string   `json:"explanation"`
	Exercises    []string `json:"exercises"`
	Connections  []string `json:"connections"`
}

type Lesson struct {
	ID           string        `json:"id"`
	TopicID      string        `json:"topicId"`
	Title        string        `json:"title"`
	Difficulty   string        `json:"difficulty"`
	Content      LessonContent `json:"content"`
	GeneratedFor string        `json:"generatedFor"`
	CreatedAt    time.Time     `json:"createdAt"`
}
