package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gideonlabs/gideon/internal/gideonerrors"
	"github.com/gideonlabs/gideon/internal/store"
)

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		progress, err := s.store.GetProgress()
		if err != nil {
			writeError(w, gideonerrors.Wrap(err, "get progress"))
			return
		}
		writeJSON(w, http.StatusOK, progress)

	case http.MethodPost:
		var req struct {
			TopicID string              `json:"topicId"`
			Topic   store.TopicProgress `json:"progress"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, gideonerrors.MalformedRequest("invalid JSON body"))
			return
		}
		if req.TopicID == "" {
			writeError(w, gideonerrors.MalformedRequest("topicId is required"))
			return
		}
		if _, ok := s.catalog.Get(req.TopicID); !ok {
			writeError(w, gideonerrors.NotFound("unknown topic: "+req.TopicID))
			return
		}
		if req.Topic.LastVisited.IsZero() {
			req.Topic.LastVisited = time.Now()
		}
		if err := s.store.SaveTopicProgress(req.TopicID, req.Topic); err != nil {
			writeError(w, gideonerrors.Wrap(err, "save progress"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"saved": true})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	entries, err := s.store.RecentActivity()
	if err != nil {
		writeError(w, gideonerrors.Wrap(err, "recent activity"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.store.IsRunning() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":          status,
		"tutorConfigured": s.tutorID != "",
	})
}
