// Package daemon owns the recording lifecycle: it wires device
// resolution, dual-stream capture, the transcriber subprocess, and the
// live session store together, and answers status queries from the
// control server.
package daemon

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alexander-vyh/meeting-recorder/config"
	"github.com/alexander-vyh/meeting-recorder/internal/audio"
	"github.com/alexander-vyh/meeting-recorder/internal/session"
	"github.com/alexander-vyh/meeting-recorder/internal/transcribe"
)

var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
)

const (
	heartbeatInterval = 15 * time.Second
	topologyInterval  = 2 * time.Second
	// How long to wait for the transcriber after end-of-stream before
	// force-terminating it.
	transcriberGrace = 3 * time.Second
)

// StartRequest mirrors the POST /start body. Attendees and the calendar
// times are accepted for the echo/persist path but none are required.
type StartRequest struct {
	MeetingID  string   `json:"meetingId"`
	Title      string   `json:"title"`
	Attendees  []string `json:"attendees"`
	StartTime  string   `json:"startTime,omitempty"`
	EndTime    string   `json:"endTime,omitempty"`
	DeviceHint string   `json:"deviceHint,omitempty"`
}

// StopResult is what POST /stop reports back.
type StopResult struct {
	MeetingID string
	WavPath   string
}

// StatusInfo reflects in-memory recording state only.
type StatusInfo struct {
	Recording  bool
	MeetingID  string
	Title      string
	Duration   float64
	DeviceName string
}

// HealthInfo is the liveness view.
type HealthInfo struct {
	OK              bool
	Uptime          float64
	PythonAvailable bool
}

// Daemon is the orchestrator. Exactly one session may be active at a
// time; the state transition is guarded by a single mutex.
type Daemon struct {
	cfg      *config.Config
	registry *audio.Registry
	mic      *audio.MicrophoneMonitor
	capture  *audio.MeetingCapture
	index    *session.Index
	log      *logrus.Entry

	startedAt time.Time

	mu            sync.Mutex
	recording     bool
	stopping      bool
	store         *session.Store
	proc          *transcribe.Process
	deviceName    string
	deviceUID     string
	stopHeartbeat chan struct{}
	readerDone    chan struct{}
}

// New initializes the audio runtime and the session index and registers
// the device-topology watcher. Call Close to release everything.
func New(cfg *config.Config) (*Daemon, error) {
	registry, err := audio.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("initializing audio: %w", err)
	}

	index, err := session.OpenIndex(filepath.Join(cfg.RecordingsDir, "sessions.bolt"))
	if err != nil {
		registry.Close()
		return nil, err
	}

	d := &Daemon{
		cfg:       cfg,
		registry:  registry,
		mic:       audio.NewMicrophoneMonitor(cfg.MicVadThreshold),
		capture:   audio.NewMeetingCapture(),
		index:     index,
		log:       logrus.WithField("component", "daemon"),
		startedAt: time.Now(),
	}
	registry.Watch(topologyInterval, d.onTopologyChanged)
	return d, nil
}

// Close stops any active recording and releases the audio runtime.
func (d *Daemon) Close() error {
	if _, err := d.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		d.log.WithError(err).Warn("stopping recording during shutdown")
	}
	if err := d.index.Close(); err != nil {
		d.log.WithError(err).Warn("closing session index")
	}
	return d.registry.Close()
}

// Start begins a new recording session. Any partial setup is unwound on
// failure so the daemon never reports a half-started recording.
func (d *Daemon) Start(req StartRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A session still tearing down owns the capture and mic monitor;
	// a new one cannot start until that finishes.
	if d.recording || d.stopping {
		return "", ErrAlreadyRecording
	}

	meetingID := req.MeetingID
	if meetingID == "" {
		meetingID = uuid.NewString()
	}

	meetingDev, err := d.resolveMeetingDevice(req.DeviceHint)
	if err != nil {
		return "", err
	}
	micDev, err := d.resolveMicDevice()
	if err != nil {
		return "", err
	}

	vocabPrompt, err := transcribe.LoadVocabularyPrompt(d.cfg.VocabularyPath)
	if err != nil {
		d.log.WithError(err).Warn("loading vocabulary, continuing without prompt")
		vocabPrompt = ""
	}

	proc, err := transcribe.Start(transcribe.Options{
		PythonBin:   d.cfg.PythonBin,
		Script:      d.cfg.TranscriberScript,
		Model:       d.cfg.WhisperModel,
		Language:    d.cfg.Language,
		ChunkSecs:   d.cfg.ChunkSeconds,
		VocabPrompt: vocabPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("starting transcriber: %w", err)
	}

	now := time.Now()
	wavPath := filepath.Join(d.cfg.RecordingsDir,
		fmt.Sprintf("meeting-%s-%s.wav", meetingID, now.Format("20060102-150405")))

	if err := d.capture.Start(wavPath, meetingDev, proc); err != nil {
		discardAndShutdown(proc)
		return "", fmt.Errorf("starting meeting capture: %w", err)
	}

	if err := d.mic.Start(micDev); err != nil {
		d.capture.Stop()
		discardAndShutdown(proc)
		return "", fmt.Errorf("starting microphone monitor: %w", err)
	}

	store := session.NewStore(meetingID, req.Title, d.mic,
		d.cfg.SelfRatioThreshold, d.cfg.MonologueGap)

	d.recording = true
	d.store = store
	d.proc = proc
	d.deviceName = meetingDev.Name
	d.deviceUID = meetingDev.UID
	d.stopHeartbeat = make(chan struct{})
	d.readerDone = make(chan struct{})

	go d.readTranscriberLines(proc.Lines(), store, d.readerDone)
	go d.heartbeatLoop(store, d.stopHeartbeat)

	d.log.WithFields(logrus.Fields{
		"meeting": meetingID,
		"title":   req.Title,
		"device":  meetingDev.Name,
		"mic":     micDev.Name,
	}).Info("recording started")
	d.notify("Recording started: " + displayTitle(req.Title, meetingID))

	return meetingID, nil
}

// Stop finalizes the active session: end-of-stream to the transcriber
// with a bounded grace period, final events to subscribers, persistence,
// then teardown. Returns ErrNotRecording when idle.
func (d *Daemon) Stop() (StopResult, error) {
	d.mu.Lock()
	if !d.recording {
		d.mu.Unlock()
		return StopResult{}, ErrNotRecording
	}
	d.recording = false
	d.stopping = true
	store, proc := d.store, d.proc
	readerDone := d.readerDone
	wavPath := d.capture.WavPath()
	close(d.stopHeartbeat)
	d.mu.Unlock()

	d.capture.Stop()
	if err := proc.CloseSend(); err != nil {
		d.log.WithError(err).Debug("closing transcriber stdin")
	}
	proc.Shutdown(transcriberGrace)
	// The reader is still draining buffered lines; everything it adds
	// must land before the stopped event and the artifact. Shutdown has
	// already bounded this wait: the line channel is closed.
	<-readerDone
	d.mic.Stop()

	store.NotifyStopped()
	artifactPath, err := store.Persist(d.cfg.RecordingsDir)
	if err != nil {
		// Data already delivered live is not lost; the artifact is
		// best-effort.
		d.log.WithError(err).Error("persisting session artifact")
	} else {
		entry := session.IndexEntry{
			MeetingID:    store.MeetingID,
			Title:        store.Title,
			StartTime:    store.Started,
			EndTime:      time.Now(),
			SegmentCount: len(store.Segments()),
			ArtifactPath: artifactPath,
			WavPath:      wavPath,
		}
		if err := d.index.Record(entry); err != nil {
			d.log.WithError(err).Error("recording session in index")
		}
	}
	store.RemoveAllSubscribers()
	d.mic.ClearHistory()

	d.mu.Lock()
	d.stopping = false
	d.store = nil
	d.proc = nil
	d.deviceName = ""
	d.deviceUID = ""
	d.readerDone = nil
	d.mu.Unlock()

	d.log.WithField("meeting", store.MeetingID).Info("recording stopped")
	d.notify("Recording stopped: " + displayTitle(store.Title, store.MeetingID))

	return StopResult{MeetingID: store.MeetingID, WavPath: wavPath}, nil
}

// Status never touches disk.
func (d *Daemon) Status() StatusInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording || d.store == nil {
		return StatusInfo{}
	}
	return StatusInfo{
		Recording:  true,
		MeetingID:  d.store.MeetingID,
		Title:      d.store.Title,
		Duration:   time.Since(d.store.Started).Seconds(),
		DeviceName: d.deviceName,
	}
}

func (d *Daemon) Health() HealthInfo {
	return HealthInfo{
		OK:              true,
		Uptime:          time.Since(d.startedAt).Seconds(),
		PythonAvailable: transcribe.Available(d.cfg.PythonBin, d.cfg.TranscriberScript),
	}
}

// Subscribe attaches a live-stream connection to the active session, or
// returns nil when idle. An idle connection is not registered for a
// future session start; it only receives heartbeats.
func (d *Daemon) Subscribe() *session.Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording || d.store == nil {
		return nil
	}
	return d.store.Subscribe()
}

// Unsubscribe detaches a connection from the current session, if any.
func (d *Daemon) Unsubscribe(sub *session.Subscriber) {
	d.mu.Lock()
	store := d.store
	d.mu.Unlock()
	if store != nil && sub != nil {
		store.Unsubscribe(sub)
	}
}

// Sessions lists completed sessions from the index.
func (d *Daemon) Sessions() ([]session.IndexEntry, error) {
	return d.index.List()
}

func (d *Daemon) readTranscriberLines(lines <-chan transcribe.Line, store *session.Store, done chan struct{}) {
	for line := range lines {
		switch {
		case line.Status != "":
			d.log.WithField("status", line.Status).Info("transcriber lifecycle")
		case line.IsSegment():
			store.AddSegment(line.Text, line.Start, line.End)
		}
	}
	close(done)

	// Stdout closed. If we didn't initiate the stop, the subprocess
	// died or finished on its own; treat it as end-of-transcription and
	// finalize the session.
	d.mu.Lock()
	unexpected := d.recording && d.store == store
	d.mu.Unlock()
	if unexpected {
		d.log.Warn("transcriber exited, finalizing session")
		if _, err := d.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
			d.log.WithError(err).Error("finalizing after transcriber exit")
		}
	}
}

func (d *Daemon) heartbeatLoop(store *session.Store, stop chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			store.Heartbeat()
		}
	}
}

// onTopologyChanged runs off the notification path whenever the device
// set changes. Losing the meeting device mid-recording ends the session;
// it is not retried.
func (d *Daemon) onTopologyChanged() {
	d.mu.Lock()
	recording := d.recording
	uid := d.deviceUID
	name := d.deviceName
	store := d.store
	d.mu.Unlock()

	if !recording || store == nil {
		return
	}

	devices, err := d.registry.List()
	if err != nil {
		d.log.WithError(err).Warn("re-enumerating devices after topology change")
		return
	}
	for _, dev := range devices {
		if dev.UID == uid {
			return
		}
	}

	d.log.WithField("device", name).Warn("meeting device disappeared, ending session")
	store.NotifyDegraded(name)
	if _, err := d.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		d.log.WithError(err).Error("stopping after device loss")
	}
}

func (d *Daemon) resolveMeetingDevice(hint string) (*audio.Device, error) {
	if hint != "" {
		dev, err := d.registry.FindByName(hint)
		if err != nil {
			return nil, err
		}
		if dev != nil {
			return dev, nil
		}
		return nil, fmt.Errorf("no input device matching %q: %w", hint, audio.ErrDeviceUnavailable)
	}

	for _, name := range d.cfg.PreferredDevices {
		dev, err := d.registry.FindByName(name)
		if err != nil {
			return nil, err
		}
		if dev != nil {
			return dev, nil
		}
	}

	dev, err := d.registry.SystemDefaultInput()
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("no meeting audio device available: %w", audio.ErrDeviceUnavailable)
	}
	return dev, nil
}

func (d *Daemon) resolveMicDevice() (*audio.Device, error) {
	if d.cfg.MicDevice != "" {
		dev, err := d.registry.FindByName(d.cfg.MicDevice)
		if err != nil {
			return nil, err
		}
		if dev != nil {
			return dev, nil
		}
		d.log.WithField("mic", d.cfg.MicDevice).Warn("configured mic not found, using default input")
	}

	dev, err := d.registry.SystemDefaultInput()
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("no microphone available: %w", audio.ErrDeviceUnavailable)
	}
	return dev, nil
}

func (d *Daemon) notify(message string) {
	if !d.cfg.Notify {
		return
	}
	go func() {
		if err := beeep.Notify("Meeting Recorder", message, ""); err != nil {
			d.log.WithError(err).Debug("desktop notification")
		}
	}()
}

// discardAndShutdown unwinds a transcriber that never got a session
// reader attached; its output has nowhere to go but must still be
// consumed so shutdown cannot wedge on a full line channel.
func discardAndShutdown(proc *transcribe.Process) {
	go func() {
		for range proc.Lines() {
		}
	}()
	proc.CloseSend()
	proc.Shutdown(transcriberGrace)
}

func displayTitle(title, meetingID string) string {
	if title != "" {
		return title
	}
	return meetingID
}
