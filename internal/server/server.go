// Package server exposes the daemon's control endpoints and the live
// SSE stream over HTTP. All business logic lives behind the Recorder
// interface; handlers only translate the wire protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alexander-vyh/meeting-recorder/internal/daemon"
	"github.com/alexander-vyh/meeting-recorder/internal/session"
)

const idleHeartbeatInterval = 15 * time.Second

// Recorder is the narrow daemon surface the server needs. The server
// holds no ownership of the daemon; it only borrows this interface for
// as long as both live.
type Recorder interface {
	Start(req daemon.StartRequest) (string, error)
	Stop() (daemon.StopResult, error)
	Status() daemon.StatusInfo
	Health() daemon.HealthInfo
	Subscribe() *session.Subscriber
	Unsubscribe(sub *session.Subscriber)
	Sessions() ([]session.IndexEntry, error)
}

type Server struct {
	rec  Recorder
	port int
	log  *logrus.Entry
	http *http.Server
}

func New(rec Recorder, port int) *Server {
	s := &Server{
		rec:  rec,
		port: port,
		log:  logrus.WithField("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/live", s.handleLive)

	s.http = &http.Server{Handler: mux}
	return s
}

// Listen binds the control port eagerly so a second daemon on the same
// port fails fast instead of hanging.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return nil, fmt.Errorf("port %d already in use (is another daemon running?): %w", s.port, err)
	}
	return ln, nil
}

// Serve blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.WithField("addr", ln.Addr().String()).Info("control server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req daemon.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	meetingID, err := s.rec.Start(req)
	if err != nil {
		if errors.Is(err, daemon.ErrAlreadyRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.WithError(err).Error("start failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"started":   true,
		"meetingId": meetingID,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	// The body's meetingId is only echoed back; there is at most one
	// active session regardless.
	var req struct {
		MeetingID string `json:"meetingId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.rec.Stop()
	if err != nil {
		if errors.Is(err, daemon.ErrNotRecording) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.WithError(err).Error("stop failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	meetingID := result.MeetingID
	if req.MeetingID != "" {
		meetingID = req.MeetingID
	}
	resp := map[string]any{
		"stopped":   true,
		"meetingId": meetingID,
	}
	if result.WavPath != "" {
		resp["wavPath"] = result.WavPath
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.rec.Status()
	resp := map[string]any{"recording": st.Recording}
	if st.Recording {
		resp["meetingId"] = st.MeetingID
		resp["title"] = st.Title
		resp["duration"] = st.Duration
		resp["deviceName"] = st.DeviceName
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.rec.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              h.OK,
		"uptime":          h.Uptime,
		"pythonAvailable": h.PythonAvailable,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rec.Sessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []session.IndexEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

// handleLive is the long-lived SSE endpoint. With no active session it
// sends a single idle status and degrades to heartbeats only; it does
// not attach to a future session.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.rec.Subscribe()
	if sub == nil {
		s.serveIdle(w, r, flusher)
		return
	}
	defer s.rec.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) serveIdle(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	if err := writeSSE(w, flusher, session.Event{
		Name: "status",
		Data: session.StatusData{State: "idle"},
	}); err != nil {
		return
	}

	ticker := time.NewTicker(idleHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := writeSSE(w, flusher, session.Event{}); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev session.Event) error {
	if ev.Name == "" {
		// Comment frame: keeps intermediaries from timing out the
		// connection without emitting a client-visible event.
		if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
