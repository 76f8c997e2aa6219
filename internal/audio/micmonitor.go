package audio

import (
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

const (
	micFramesPerBuffer = 1024
	// Retain roughly the last ten minutes of VAD samples so long
	// meetings don't grow the timeline without bound.
	vadRetentionSeconds = 600
)

// MicrophoneMonitor captures the local microphone and maintains a
// bounded voice-activity timeline. It never touches the meeting-audio
// session; the two streams are fully independent.
type MicrophoneMonitor struct {
	threshold float64
	timeline  *vadTimeline
	log       *logrus.Entry

	stream  *portaudio.Stream
	started time.Time
	running bool
}

func NewMicrophoneMonitor(vadThreshold float64) *MicrophoneMonitor {
	return &MicrophoneMonitor{
		threshold: vadThreshold,
		// Allocated once; the pointer is read unsynchronized from query
		// threads, so Start resizes in place instead of replacing it.
		timeline: newVadTimeline(1),
		log:      logrus.WithField("component", "micmonitor"),
	}
}

// Start opens a capture session on dev using its native sample rate.
// Calling Start while already running stops the previous session first.
func (m *MicrophoneMonitor) Start(dev *Device) error {
	if m.running {
		m.Stop()
	}
	if dev == nil || dev.info == nil {
		return ErrDeviceUnavailable
	}

	sampleRate := dev.info.DefaultSampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}

	// Callback count per second at the buffer's natural rate sets the
	// retention bound in samples.
	perSecond := sampleRate / micFramesPerBuffer
	m.timeline.reset(int(perSecond * vadRetentionSeconds))

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev.info,
			Channels: 1,
			Latency:  dev.info.DefaultHighInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: micFramesPerBuffer,
	}

	m.started = time.Now()
	stream, err := portaudio.OpenStream(params, m.onBuffer)
	if err != nil {
		return &SetupError{Op: "open mic stream", Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &SetupError{Op: "start mic stream", Err: err}
	}

	m.stream = stream
	m.running = true
	m.log.WithFields(logrus.Fields{"device": dev.Name, "rate": sampleRate}).Info("mic monitor started")
	return nil
}

// onBuffer runs on the portaudio callback thread. It must stay
// allocation-free and take only the timeline's short lock.
func (m *MicrophoneMonitor) onBuffer(in []float32) {
	var sum float64
	for _, v := range in {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(in)))

	m.timeline.append(VadSample{
		Elapsed:  time.Since(m.started).Seconds(),
		Speaking: rms >= m.threshold,
	})
}

// SelfSpeakingRatio reports the fraction of VAD samples in [from, to]
// that were speaking. Safe to call concurrently with the audio callback.
func (m *MicrophoneMonitor) SelfSpeakingRatio(from, to float64) float64 {
	return m.timeline.ratio(from, to)
}

// Stop halts capture but keeps the timeline, since a final report may
// still need the distribution after the session ends.
func (m *MicrophoneMonitor) Stop() {
	if !m.running {
		return
	}
	if err := m.stream.Stop(); err != nil {
		m.log.WithError(err).Warn("stopping mic stream")
	}
	if err := m.stream.Close(); err != nil {
		m.log.WithError(err).Warn("closing mic stream")
	}
	m.stream = nil
	m.running = false
	m.log.Info("mic monitor stopped")
}

// ClearHistory drops all retained samples. Called once persistence of
// the session artifact has completed.
func (m *MicrophoneMonitor) ClearHistory() {
	m.timeline.clear()
	m.started = time.Now()
}
