package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gideonlabs/gideon/internal/gideonerrors"
	"github.com/gideonlabs/gideon/internal/store"

	"github.com/oklog/ulid/v2"
)

// handleLetta is the action-multiplexed endpoint the web app was built
// against: one path, an action query parameter or body field per operation.
func (s *Server) handleLetta(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleLettaGet(w, r)
	case http.MethodPost:
		s.handleLettaPost(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLettaGet(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case "topics":
		writeJSON(w, http.StatusOK, map[string]interface{}{"topics": s.catalog.All()})

	case "notebooks":
		summaries, err := s.store.ListNotebooks()
		if err != nil {
			writeError(w, gideonerrors.Wrap(err, "list notebooks"))
			return
		}
		for i := range summaries {
			if t, ok := s.catalog.Get(summaries[i].TopicID); ok {
				summaries[i].Title = t.Title
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"notebooks": summaries})

	case "notebook":
		topicID := r.URL.Query().Get("topicId")
		if topicID == "" {
			writeError(w, gideonerrors.MalformedRequest("topicId query parameter is required"))
			return
		}
		conv, err := s.store.GetConversation(topicID)
		if err != nil {
			writeError(w, gideonerrors.Wrap(err, "get notebook"))
			return
		}
		writeJSON(w, http.StatusOK, conv)

	case "extensions":
		ext, err := s.store.GetExtensions()
		if err != nil {
			writeError(w, gideonerrors.Wrap(err, "get extensions"))
			return
		}
		writeJSON(w, http.StatusOK, ext)

	default:
		writeError(w, gideonerrors.MalformedRequest("unknown action: "+action))
	}
}

type lettaPostRequest struct {
	Action      string `json:"action"`
	TopicID     string `json:"topicId"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}

func (s *Server) handleLettaPost(w http.ResponseWriter, r *http.Request) {
	var req lettaPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gideonerrors.MalformedRequest("invalid JSON body"))
		return
	}

	switch req.Action {
	case "add_resource":
		if req.TopicID == "" || req.Title == "" || req.URL == "" {
			writeError(w, gideonerrors.MalformedRequest("topicId, title and url are required"))
			return
		}
		res := store.Resource{
			TopicID: req.TopicID,
			Title:   req.Title,
			URL:     req.URL,
			Type:    req.Type,
			AddedAt: time.Now(),
		}
		if err := s.store.AddResource(res); err != nil {
			writeError(w, gideonerrors.Wrap(err, "add resource"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"added": true})

	case "add_code_example":
		if req.TopicID == "" || req.Title == "" || req.Code == "" {
			writeError(w, gideonerrors.MalformedRequest("topicId, title and code are required"))
			return
		}
		example := store.CodeExample{
			TopicID:     req.TopicID,
			Title:       req.Title,
			Language:    req.Language,
			Code:        req.Code,
			Explanation: req.Explanation,
			AddedAt:     time.Now(),
		}
		if err := s.store.AddCodeExample(example); err != nil {
			writeError(w, gideonerrors.Wrap(err, "add code example"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"added": true})

	default:
		writeError(w, gideonerrors.MalformedRequest("unknown action: "+req.Action))
	}
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		lessons, err := s.store.ListLessons(r.URL.Query().Get("topicId"))
		if err != nil {
			writeError(w, gideonerrors.Wrap(err, "list lessons"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"lessons": lessons})

	case http.MethodPost:
		var lesson store.Lesson
		if err := json.NewDecoder(r.Body).Decode(&lesson); err != nil {
			writeError(w, gideonerrors.MalformedRequest("invalid JSON body"))
			return
		}
		if lesson.TopicID == "" || lesson.Title == "" {
			writeError(w, gideonerrors.MalformedRequest("topicId and title are required"))
			return
		}
		if lesson.ID == "" {
			lesson.ID = ulid.Make().String()
		}
		if lesson.CreatedAt.IsZero() {
			lesson.CreatedAt = time.Now()
		}
		if err := s.store.AddLesson(lesson); err != nil {
			writeError(w, gideonerrors.Wrap(err, "add lesson"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"added": true, "id": lesson.ID})

	default:
		methodNotAllowed(w)
	}
}
