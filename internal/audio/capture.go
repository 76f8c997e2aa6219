package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

const (
	// The transcriber consumes 16kHz mono signed 16-bit PCM; capture at
	// that rate so no resampling is needed anywhere downstream.
	CaptureSampleRate     = 16000
	captureFramesPerBuf   = 1024
	captureChannelBuffers = 64
)

// MeetingCapture records the meeting-audio device to a WAV archive while
// streaming the same PCM to the transcriber's input. The portaudio
// callback only hands buffers to a channel; all file and pipe I/O happens
// on a dedicated writer goroutine.
type MeetingCapture struct {
	log *logrus.Entry

	stream  *portaudio.Stream
	wavFile *os.File
	enc     *wav.Encoder
	sink    io.Writer
	wavPath string

	buffers chan []float32
	free    chan []float32
	done    chan struct{}
	dropped atomic.Int64
	running bool
}

func NewMeetingCapture() *MeetingCapture {
	return &MeetingCapture{log: logrus.WithField("component", "capture")}
}

// Start opens dev for capture, archiving to outputFile and teeing PCM
// bytes into sink. Exactly one meeting capture may run at a time; the
// daemon enforces that.
func (c *MeetingCapture) Start(outputFile string, dev *Device, sink io.Writer) error {
	if c.running {
		return fmt.Errorf("meeting capture already running")
	}
	if dev == nil || dev.info == nil {
		return ErrDeviceUnavailable
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("creating archive %s: %w", outputFile, err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev.info,
			Channels: 1,
			Latency:  dev.info.DefaultHighInputLatency,
		},
		SampleRate:      CaptureSampleRate,
		FramesPerBuffer: captureFramesPerBuf,
	}

	stream, err := portaudio.OpenStream(params, c.onBuffer)
	if err != nil {
		f.Close()
		os.Remove(outputFile)
		return &SetupError{Op: "open meeting stream", Err: err}
	}

	c.wavFile = f
	c.wavPath = outputFile
	c.enc = wav.NewEncoder(f, CaptureSampleRate, 16, 1, 1)
	c.sink = sink
	c.buffers = make(chan []float32, captureChannelBuffers)
	c.free = make(chan []float32, captureChannelBuffers)
	for i := 0; i < captureChannelBuffers; i++ {
		c.free <- make([]float32, captureFramesPerBuf)
	}
	c.done = make(chan struct{})
	c.stream = stream
	c.dropped.Store(0)

	go c.drain()

	if err := stream.Start(); err != nil {
		stream.Close()
		close(c.buffers)
		<-c.done
		c.enc.Close()
		f.Close()
		os.Remove(outputFile)
		c.stream = nil
		return &SetupError{Op: "start meeting stream", Err: err}
	}

	c.running = true
	c.log.WithFields(logrus.Fields{"device": dev.Name, "wav": outputFile}).Info("meeting capture started")
	return nil
}

// onBuffer runs on the portaudio callback thread. The input is copied
// into a recycled buffer and handed off without blocking or allocating;
// if the writer falls behind, the chunk is dropped and counted instead
// of stalling the audio thread.
func (c *MeetingCapture) onBuffer(in []float32) {
	var buf []float32
	select {
	case buf = <-c.free:
	default:
		c.dropped.Add(1)
		return
	}
	n := len(in)
	if n > captureFramesPerBuf {
		n = captureFramesPerBuf
	}
	copy(buf[:n], in[:n])
	c.buffers <- buf[:n]
}

func (c *MeetingCapture) drain() {
	defer close(c.done)

	ints := make([]int, captureFramesPerBuf)
	raw := make([]byte, captureFramesPerBuf*2)

	for buf := range c.buffers {
		n := len(buf)
		if n > captureFramesPerBuf {
			n = captureFramesPerBuf
		}
		for i := 0; i < n; i++ {
			v := buf[i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			s := int16(v * 32767)
			ints[i] = int(s)
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
		}

		ib := &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: CaptureSampleRate},
			Data:           ints[:n],
			SourceBitDepth: 16,
		}
		if err := c.enc.Write(ib); err != nil {
			c.log.WithError(err).Error("writing wav archive")
		}
		if c.sink != nil {
			if _, err := c.sink.Write(raw[:n*2]); err != nil {
				// The transcriber may have exited; archive writing
				// continues regardless.
				c.log.WithError(err).Warn("writing pcm to transcriber")
				c.sink = nil
			}
		}
		c.free <- buf[:cap(buf)]
	}
}

// Stop halts the stream, finalizes the WAV header, and stops feeding the
// sink. The sink itself is closed by its owner.
func (c *MeetingCapture) Stop() {
	if !c.running {
		return
	}
	if err := c.stream.Stop(); err != nil {
		c.log.WithError(err).Warn("stopping meeting stream")
	}
	if err := c.stream.Close(); err != nil {
		c.log.WithError(err).Warn("closing meeting stream")
	}
	close(c.buffers)
	<-c.done

	if err := c.enc.Close(); err != nil {
		c.log.WithError(err).Error("finalizing wav archive")
	}
	if err := c.wavFile.Close(); err != nil {
		c.log.WithError(err).Error("closing wav archive")
	}

	if n := c.dropped.Load(); n > 0 {
		c.log.WithField("chunks", n).Warn("dropped audio chunks during capture")
	}

	c.stream = nil
	c.running = false
	c.log.Info("meeting capture stopped")
}

// WavPath returns the archive path of the current or last session.
func (c *MeetingCapture) WavPath() string { return c.wavPath }
