package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alexander-vyh/meeting-recorder/internal/metrics"
)

// subscriberHeadroom is the extra channel capacity beyond the replayed
// history, so a subscriber tolerates bursts before being dropped as slow.
const subscriberHeadroom = 256

// SpeakingRatioSource answers "what fraction of this time window was the
// local microphone speaking". Implemented by audio.MicrophoneMonitor.
type SpeakingRatioSource interface {
	SelfSpeakingRatio(from, to float64) float64
}

// Store is the live state of exactly one recording session. It owns the
// ordered segment list and the heuristics engine, tags incoming segments
// against the microphone timeline, and fans events out to subscribers.
type Store struct {
	MeetingID string
	Title     string
	Started   time.Time

	mic           SpeakingRatioSource
	selfThreshold float64
	log           *logrus.Entry

	mu       sync.Mutex
	engine   *metrics.Engine
	segments []Segment
	subs     map[*Subscriber]struct{}
	stopped  bool
}

func NewStore(meetingID, title string, mic SpeakingRatioSource, selfThreshold, monologueGap float64) *Store {
	return &Store{
		MeetingID:     meetingID,
		Title:         title,
		Started:       time.Now(),
		mic:           mic,
		selfThreshold: selfThreshold,
		engine:        metrics.NewEngine(monologueGap),
		subs:          make(map[*Subscriber]struct{}),
		log:           logrus.WithFields(logrus.Fields{"component": "session", "meeting": meetingID}),
	}
}

// AddSegment tags one transcript line and pushes a segment event
// followed by the refreshed metrics to every subscriber. Called only by
// the transcriber-reader loop, so IDs equal arrival order.
func (s *Store) AddSegment(text string, start, end float64) Segment {
	ratio := s.mic.SelfSpeakingRatio(start, end)
	speaker := SpeakerOthers
	if ratio > s.selfThreshold {
		speaker = SpeakerSelf
	}

	s.mu.Lock()
	seg := Segment{
		ID:      len(s.segments),
		Text:    text,
		Start:   start,
		End:     end,
		Speaker: speaker,
	}
	s.segments = append(s.segments, seg)
	s.engine.Add(metrics.Segment{Text: text, Start: start, End: end, Self: speaker == SpeakerSelf})
	snap := s.engine.Snapshot()

	s.broadcastLocked(Event{Name: "segment", Data: seg})
	s.broadcastLocked(Event{Name: "metrics", Data: snap})
	s.mu.Unlock()

	return seg
}

// Subscribe registers a new live-stream connection. The subscriber first
// receives a recording status event, then the full ordered segment
// history, then the current metrics snapshot, then live events.
func (s *Store) Subscribe() *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscriber(len(s.segments) + subscriberHeadroom)
	sub.ch <- Event{Name: "status", Data: StatusData{
		State:     "recording",
		MeetingID: s.MeetingID,
		Title:     s.Title,
	}}
	for _, seg := range s.segments {
		sub.ch <- Event{Name: "segment", Data: seg}
	}
	sub.ch <- Event{Name: "metrics", Data: s.engine.Snapshot()}

	s.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes one connection, typically after a client
// disconnect. Idempotent.
func (s *Store) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sub)
}

// Heartbeat sends a comment frame to every subscriber so intermediaries
// don't time out idle connections.
func (s *Store) Heartbeat() {
	s.mu.Lock()
	s.broadcastLocked(Event{})
	s.mu.Unlock()
}

// NotifyDegraded tells subscribers that capture has degraded (for
// example the device disappeared) before the session is ended.
func (s *Store) NotifyDegraded(device string) {
	s.mu.Lock()
	s.broadcastLocked(Event{Name: "status", Data: StatusData{
		State:     "degraded",
		MeetingID: s.MeetingID,
		Device:    device,
	}})
	s.mu.Unlock()
}

// NotifyStopped emits the final status event with session totals. Sent
// before subscribers are closed so clients see a clean end-of-session.
func (s *Store) NotifyStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.broadcastLocked(Event{Name: "status", Data: StatusData{
		State:         "stopped",
		MeetingID:     s.MeetingID,
		TotalSegments: len(s.segments),
		TotalDuration: time.Since(s.Started).Seconds(),
	}})
}

// RemoveAllSubscribers closes every open connection. Idempotent.
func (s *Store) RemoveAllSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		s.removeLocked(sub)
	}
}

// Segments returns a copy of the current segment list.
func (s *Store) Segments() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// Metrics returns the current snapshot.
func (s *Store) Metrics() metrics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Snapshot()
}

// Artifact is the persisted per-session JSON document.
type Artifact struct {
	MeetingID    string           `json:"meetingId"`
	Title        string           `json:"title"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      time.Time        `json:"endTime"`
	Segments     []Segment        `json:"segments"`
	FinalMetrics metrics.Snapshot `json:"finalMetrics"`
}

// Persist writes the session artifact into dir. The file name is
// derived from the meeting id and the session's start time. A write
// failure is reported to the caller for logging but loses nothing that
// was already streamed live.
func (s *Store) Persist(dir string) (string, error) {
	s.mu.Lock()
	artifact := Artifact{
		MeetingID:    s.MeetingID,
		Title:        s.Title,
		StartTime:    s.Started,
		EndTime:      time.Now(),
		Segments:     append([]Segment{}, s.segments...),
		FinalMetrics: s.engine.Snapshot(),
	}
	s.mu.Unlock()

	if artifact.Segments == nil {
		artifact.Segments = []Segment{}
	}

	path := filepath.Join(dir, ArtifactName(s.MeetingID, s.Started))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	s.log.WithField("path", path).Info("session artifact written")
	return path, nil
}

// ArtifactName returns the deterministic artifact file name for a
// meeting id and session start.
func ArtifactName(meetingID string, started time.Time) string {
	return fmt.Sprintf("meeting-%s-%s-live.json", meetingID, started.Format("20060102-150405"))
}

func (s *Store) broadcastLocked(ev Event) {
	for sub := range s.subs {
		select {
		case sub.ch <- ev:
		default:
			// A subscriber that can't keep up gets dropped rather than
			// blocking delivery to everyone else.
			s.log.Warn("dropping slow live-stream subscriber")
			s.removeLocked(sub)
		}
	}
}

func (s *Store) removeLocked(sub *Subscriber) {
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}
