package session

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexander-vyh/meeting-recorder/internal/metrics"
)

// scriptedMic returns a fixed speaking ratio per queried window.
type scriptedMic struct {
	windows map[[2]float64]float64
}

func (m *scriptedMic) SelfSpeakingRatio(from, to float64) float64 {
	return m.windows[[2]float64{from, to}]
}

// silentMic never reports speech.
type silentMic struct{}

func (silentMic) SelfSpeakingRatio(from, to float64) float64 { return 0 }

func newTestStore(mic SpeakingRatioSource) *Store {
	return NewStore("test-meeting", "Test Meeting", mic, 0.3, 1.5)
}

func TestAddSegmentOrdering(t *testing.T) {
	s := newTestStore(silentMic{})
	for i := 0; i < 25; i++ {
		seg := s.AddSegment("line", float64(i), float64(i)+0.5)
		if seg.ID != i {
			t.Fatalf("segment %d got id %d", i, seg.ID)
		}
	}

	segs := s.Segments()
	for i, seg := range segs {
		if seg.ID != i {
			t.Errorf("segment at position %d has id %d", i, seg.ID)
		}
	}
}

func TestSpeakerTaggingThreshold(t *testing.T) {
	mic := &scriptedMic{windows: map[[2]float64]float64{
		{0, 1}: 0.0,
		{1, 2}: 0.3, // exactly at threshold: not a clear majority
		{2, 3}: 0.31,
		{3, 4}: 0.9,
	}}
	s := newTestStore(mic)

	cases := []struct {
		start, end float64
		want       string
	}{
		{0, 1, SpeakerOthers},
		{1, 2, SpeakerOthers},
		{2, 3, SpeakerSelf},
		{3, 4, SpeakerSelf},
	}
	for _, c := range cases {
		seg := s.AddSegment("x", c.start, c.end)
		if seg.Speaker != c.want {
			t.Errorf("window [%v,%v]: speaker = %q, want %q", c.start, c.end, seg.Speaker, c.want)
		}
	}
}

func drainPending(sub *Subscriber) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSubscriberReplayCompleteness(t *testing.T) {
	s := newTestStore(silentMic{})
	const k = 7
	for i := 0; i < k; i++ {
		s.AddSegment("hello", float64(i), float64(i)+0.5)
	}

	sub := s.Subscribe()
	events := drainPending(sub)

	if events[0].Name != "status" {
		t.Fatalf("first event = %q, want status", events[0].Name)
	}
	if st := events[0].Data.(StatusData); st.State != "recording" {
		t.Errorf("initial status state = %q", st.State)
	}

	var replayed []Segment
	for _, ev := range events[1:] {
		if ev.Name == "segment" {
			replayed = append(replayed, ev.Data.(Segment))
		}
	}
	if len(replayed) != k {
		t.Fatalf("replayed %d segments, want %d", len(replayed), k)
	}
	for i, seg := range replayed {
		if seg.ID != i {
			t.Errorf("replayed segment %d has id %d", i, seg.ID)
		}
	}
	if events[len(events)-1].Name != "metrics" {
		t.Errorf("last replay event = %q, want metrics", events[len(events)-1].Name)
	}

	// New segments arrive live, after the replay, without duplicates.
	s.AddSegment("live one", 100, 101)
	live := drainPending(sub)
	if len(live) != 2 || live[0].Name != "segment" || live[1].Name != "metrics" {
		t.Fatalf("live events = %v", live)
	}
	if got := live[0].Data.(Segment).ID; got != k {
		t.Errorf("live segment id = %d, want %d", got, k)
	}
}

func TestSegmentEventFollowedByMetrics(t *testing.T) {
	s := newTestStore(silentMic{})
	sub := s.Subscribe()
	drainPending(sub)

	s.AddSegment("first", 0, 1)
	s.AddSegment("second", 2, 3)

	events := drainPending(sub)
	want := []string{"segment", "metrics", "segment", "metrics"}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Name != want[i] {
			t.Errorf("event %d = %q, want %q", i, ev.Name, want[i])
		}
	}
}

func TestNotifyStoppedBeforeClose(t *testing.T) {
	s := newTestStore(silentMic{})
	sub := s.Subscribe()
	drainPending(sub)

	s.AddSegment("a", 0, 1)
	drainPending(sub)

	s.NotifyStopped()
	s.RemoveAllSubscribers()

	var got []Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Name != "status" {
		t.Fatalf("events before close = %v", got)
	}
	st := got[0].Data.(StatusData)
	if st.State != "stopped" || st.TotalSegments != 1 {
		t.Errorf("final status = %+v", st)
	}

	// Idempotent: a second round must not panic or emit again.
	s.NotifyStopped()
	s.RemoveAllSubscribers()
}

func TestHeartbeat(t *testing.T) {
	s := newTestStore(silentMic{})
	sub := s.Subscribe()
	drainPending(sub)

	s.Heartbeat()
	events := drainPending(sub)
	if len(events) != 1 || events[0].Name != "" {
		t.Fatalf("heartbeat events = %v", events)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestStore(silentMic{})
	sub := s.Subscribe()
	drainPending(sub)

	s.Unsubscribe(sub)
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after unsubscribe")
	}

	// Must not panic with no subscribers left.
	s.AddSegment("after", 0, 1)
	s.Unsubscribe(sub)
}

func TestPersistRoundTrip(t *testing.T) {
	mic := &scriptedMic{windows: map[[2]float64]float64{
		{10.3, 11.8}: 0.9,
		{15.0, 17.0}: 0.0,
	}}
	s := newTestStore(mic)

	s.AddSegment("Good morning", 10.3, 11.8)
	s.AddSegment("Thanks for joining", 15.0, 17.0)
	lastPushed := s.Metrics()

	dir := t.TempDir()
	path, err := s.Persist(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != ArtifactName("test-meeting", s.Started) {
		t.Errorf("artifact name = %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		t.Fatal(err)
	}

	if artifact.MeetingID != "test-meeting" || artifact.Title != "Test Meeting" {
		t.Errorf("artifact header = %+v", artifact)
	}
	if len(artifact.Segments) != 2 {
		t.Fatalf("artifact has %d segments, want 2", len(artifact.Segments))
	}
	if artifact.Segments[0].Speaker != SpeakerSelf {
		t.Errorf("segment 0 speaker = %q, want self", artifact.Segments[0].Speaker)
	}
	if artifact.Segments[1].Speaker != SpeakerOthers {
		t.Errorf("segment 1 speaker = %q, want others", artifact.Segments[1].Speaker)
	}
	for i, seg := range artifact.Segments {
		if seg.ID != i {
			t.Errorf("artifact segment %d has id %d", i, seg.ID)
		}
	}

	wantRatio := (11.8 - 10.3) / ((11.8 - 10.3) + (17.0 - 15.0))
	wantRatio = math.Round(wantRatio*1000) / 1000
	if artifact.FinalMetrics.TalkRatio != wantRatio {
		t.Errorf("final talkRatio = %v, want %v", artifact.FinalMetrics.TalkRatio, wantRatio)
	}
	if artifact.FinalMetrics.TalkRatio != lastPushed.TalkRatio {
		t.Errorf("artifact metrics diverge from last pushed: %v vs %v",
			artifact.FinalMetrics.TalkRatio, lastPushed.TalkRatio)
	}
	if artifact.FinalMetrics.SegmentCount != 2 {
		t.Errorf("final segmentCount = %d", artifact.FinalMetrics.SegmentCount)
	}
}

func TestPersistEmptySessionWritesSegmentArray(t *testing.T) {
	s := newTestStore(silentMic{})
	path, err := s.Persist(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["segments"]) == "null" {
		t.Error("segments serialized as null, want []")
	}
}

func TestMetricsSnapshotAfterSegments(t *testing.T) {
	s := newTestStore(silentMic{})
	s.AddSegment("one two", 0, 2)
	snap := s.Metrics()
	if snap.SegmentCount != 1 {
		t.Errorf("SegmentCount = %d", snap.SegmentCount)
	}
	if snap.OthersTalkTimeSec != 2.0 {
		t.Errorf("OthersTalkTimeSec = %v", snap.OthersTalkTimeSec)
	}
	var zero metrics.Snapshot
	if snap == zero {
		t.Error("snapshot is zero value")
	}
}
