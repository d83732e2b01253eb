package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gideonlabs/gideon/internal/gideonerrors"
	"github.com/gideonlabs/gideon/internal/relay"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleChatPost(w, r)
	case http.MethodDelete:
		s.handleChatClear(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatPost(w http.ResponseWriter, r *http.Request) {
	var req relay.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gideonerrors.MalformedRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.TopicID) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, gideonerrors.MalformedRequest("topicId and message are required"))
		return
	}
	if s.tutorID == "" {
		writeError(w, gideonerrors.AgentUnavailable(
			"tutor agent is not configured; set agent.tutor_id (run the agent setup script first)"))
		return
	}

	if !req.Stream {
		reply, conv, err := s.relay.Complete(r.Context(), req)
		if err != nil {
			slog.Error("Chat completion failed", "topic", req.TopicID, "error", err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"reply":        reply,
			"conversation": conv,
		})
		return
	}

	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, gideonerrors.Internal(err.Error()))
		return
	}

	// The relay reports errors to the client through error events; the
	// returned error is for the log only. Headers are long gone by now.
	if err := s.relay.Stream(r.Context(), req, sink); err != nil {
		slog.Error("Chat stream failed", "topic", req.TopicID, "error", err)
	}
}

func (s *Server) handleChatClear(w http.ResponseWriter, r *http.Request) {
	topicID := r.URL.Query().Get("topicId")
	if topicID == "" {
		writeError(w, gideonerrors.MalformedRequest("topicId query parameter is required"))
		return
	}

	if err := s.store.ClearConversation(topicID); err != nil {
		writeError(w, gideonerrors.Wrap(err, "clear conversation"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": true,
		"topicId": topicID,
	})
}
