package relay

import "github.com/gideonlabs/gideon/internal/agent"

// Activity summarizes a tool invocation for the learner.
type Activity string

const (
	ActivityNone           Activity = ""
	ActivitySearch         Activity = "search"
	ActivityAddResource    Activity = "add_resource"
	ActivityAddCodeExample Activity = "add_code_example"
	ActivityAddLesson      Activity = "add_lesson"
	ActivityThinking       Activity = "thinking"
)

// Classify maps a tool name to its activity category. The reply-text tool
// never logs as activity (it is the answer, not a side action). Unknown
// tools fall back to the generic thinking category so a future tool is still
// visible to the learner without the relay knowing it by name.
func Classify(toolName string) Activity {
	switch toolName {
	case agent.SendMessageTool:
		return ActivityNone
	case "web_search":
		return ActivitySearch
	case "add_resource":
		return ActivityAddResource
	case "add_code_example":
		return ActivityAddCodeExample
	case "add_lesson":
		return ActivityAddLesson
	default:
		return ActivityThinking
	}
}

// Describe renders a short human-readable sentence for a tool invocation.
// args may be partially populated from an in-progress accumulation; absent
// fields degrade to a placeholder.
func Describe(toolName string, args map[string]interface{}) string {
	switch toolName {
	case "web_search":
		return "Searched for: " + stringField(args, "query")
	case "add_resource":
		return "Added resource: " + stringField(args, "title")
	case "add_code_example":
		return "Created code example: " + stringField(args, "title")
	case "add_lesson":
		return "Generated lesson: " + stringField(args, "title")
	case "get_topics":
		return "Reviewed the topic catalogue"
	case "get_recent_conversations":
		return "Reviewed recent conversations"
	case "get_conversation_details":
		return "Reviewed the conversation for: " + stringField(args, "topic_id")
	case "get_student_progress":
		return "Checked learning progress"
	case "get_student_notes":
		return "Read notes for: " + stringField(args, "topic_id")
	case "get_current_extensions":
		return "Checked existing curated content"
	case "get_lessons":
		return "Reviewed generated lessons"
	default:
		return "Used tool: " + toolName
	}
}

func stringField(args map[string]interface{}, key string) string {
	if args != nil {
		if s, ok := args[key].(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}
