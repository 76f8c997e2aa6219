package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alexander-vyh/meeting-recorder/config"
	"github.com/alexander-vyh/meeting-recorder/internal/audio"
	"github.com/alexander-vyh/meeting-recorder/internal/session"
	"github.com/alexander-vyh/meeting-recorder/internal/transcribe"
)

// testDaemon wires a daemon around a real session store and index but
// with idle audio components, so lifecycle paths can run without any
// capture hardware.
func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	idx, err := session.OpenIndex(filepath.Join(dir, "sessions.bolt"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	return &Daemon{
		cfg: &config.Config{
			RecordingsDir:      dir,
			SelfRatioThreshold: config.DefaultSelfRatioThreshold,
			MonologueGap:       config.DefaultMonologueGap,
		},
		mic:       audio.NewMicrophoneMonitor(config.DefaultVadThreshold),
		capture:   audio.NewMeetingCapture(),
		index:     idx,
		log:       logrus.WithField("component", "daemon"),
		startedAt: time.Now(),
	}
}

// startFakeSession launches a shell stand-in for the transcriber that
// waits for end-of-stream and then bursts segCount segment lines, and
// attaches it to the daemon as a live session.
func startFakeSession(t *testing.T, d *Daemon, segCount int) *session.Store {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "transcriber.sh")
	body := fmt.Sprintf(`#!/bin/sh
cat >/dev/null
i=0
while [ $i -lt %d ]; do
  printf '{"text":"seg %%d","start":%%d.0,"end":%%d.5}\n' $i $i $i
  i=$((i+1))
done
`, segCount)
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	proc, err := transcribe.Start(transcribe.Options{
		PythonBin: "/bin/sh", Script: script, Model: "test",
	})
	if err != nil {
		t.Fatal(err)
	}

	store := session.NewStore("m-drain", "Drain Test", d.mic,
		d.cfg.SelfRatioThreshold, d.cfg.MonologueGap)

	d.mu.Lock()
	d.recording = true
	d.store = store
	d.proc = proc
	d.stopHeartbeat = make(chan struct{})
	d.readerDone = make(chan struct{})
	d.mu.Unlock()

	go d.readTranscriberLines(proc.Lines(), store, d.readerDone)
	go d.heartbeatLoop(store, d.stopHeartbeat)
	return store
}

// Segments the transcriber emits after end-of-stream must land in the
// store and the persisted artifact before Stop returns.
func TestStopDrainsInFlightSegments(t *testing.T) {
	const segCount = 200
	d := testDaemon(t)
	store := startFakeSession(t, d, segCount)

	res, err := d.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.MeetingID != "m-drain" {
		t.Errorf("meetingID = %q", res.MeetingID)
	}
	if got := len(store.Segments()); got != segCount {
		t.Fatalf("store has %d segments, want %d", got, segCount)
	}

	raw, err := os.ReadFile(filepath.Join(d.cfg.RecordingsDir,
		session.ArtifactName(store.MeetingID, store.Started)))
	if err != nil {
		t.Fatal(err)
	}
	var artifact session.Artifact
	if err := json.Unmarshal(raw, &artifact); err != nil {
		t.Fatal(err)
	}
	if got := len(artifact.Segments); got != segCount {
		t.Errorf("artifact has %d segments, want %d", got, segCount)
	}
	if artifact.Segments[segCount-1].Text != fmt.Sprintf("seg %d", segCount-1) {
		t.Errorf("last segment = %+v", artifact.Segments[segCount-1])
	}

	entries, err := d.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SegmentCount != segCount {
		t.Errorf("index entries = %+v", entries)
	}
}

// A subscriber must see every segment before the stopped status event,
// even when the segments were still in flight when Stop was called.
func TestStopEmitsSegmentsBeforeStopped(t *testing.T) {
	const segCount = 50
	d := testDaemon(t)
	startFakeSession(t, d, segCount)

	sub := d.Subscribe()
	if sub == nil {
		t.Fatal("expected live subscriber")
	}

	if _, err := d.Stop(); err != nil {
		t.Fatal(err)
	}

	segments := 0
	stopped := false
	for ev := range sub.Events() {
		switch ev.Name {
		case "segment":
			if stopped {
				t.Fatal("segment delivered after stopped status")
			}
			segments++
		case "status":
			if data, ok := ev.Data.(session.StatusData); ok && data.State == "stopped" {
				stopped = true
			}
		}
		if stopped && segments == segCount {
			break
		}
	}
	if segments != segCount {
		t.Errorf("subscriber saw %d segments, want %d", segments, segCount)
	}
	if !stopped {
		t.Error("subscriber never saw stopped status")
	}
}

// While a previous session is tearing down it still owns the capture
// devices, so a new start must be rejected rather than interleave.
func TestStartRejectedDuringTeardown(t *testing.T) {
	d := testDaemon(t)
	d.mu.Lock()
	d.stopping = true
	d.mu.Unlock()

	if _, err := d.Start(StartRequest{Title: "too soon"}); err != ErrAlreadyRecording {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestStopWhenIdle(t *testing.T) {
	d := testDaemon(t)
	if _, err := d.Stop(); err != ErrNotRecording {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
}
