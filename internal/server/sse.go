package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gideonlabs/gideon/internal/relay"
)

// sseSink writes relay events as server-sent events, flushing after each one
// so the browser sees tokens as they arrive.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The server-wide write timeout is zero, but clear any per-request
	// deadline too: a long reply must not be cut off mid-stream.
	rc := http.NewResponseController(w)
	rc.SetWriteDeadline(time.Time{})

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Send(evt relay.Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", evt.Kind, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
