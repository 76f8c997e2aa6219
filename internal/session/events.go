package session

// Speaker attribution values carried on segments and stream events.
const (
	SpeakerSelf   = "self"
	SpeakerOthers = "others"
)

// Segment is one tagged transcript segment. Immutable once created; ID
// is the stream position, so subscribers can detect gaps.
type Segment struct {
	ID      int     `json:"id"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Event is one frame on the live stream. An empty Name is a heartbeat
// comment frame.
type Event struct {
	Name string
	Data any
}

// StatusData is the payload of "status" events.
type StatusData struct {
	State         string  `json:"state"`
	MeetingID     string  `json:"meetingId,omitempty"`
	Title         string  `json:"title,omitempty"`
	Device        string  `json:"device,omitempty"`
	TotalSegments int     `json:"totalSegments,omitempty"`
	TotalDuration float64 `json:"totalDuration,omitempty"`
}

// Subscriber is one open live-stream connection. Events arrive on a
// buffered channel; the channel is closed when the store removes the
// subscriber or the session ends.
type Subscriber struct {
	ch chan Event
}

func newSubscriber(buffer int) *Subscriber {
	return &Subscriber{ch: make(chan Event, buffer)}
}

// Events yields this subscriber's event stream in order.
func (s *Subscriber) Events() <-chan Event { return s.ch }
