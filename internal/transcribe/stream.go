// Package transcribe supervises the external speech-to-text subprocess.
// The subprocess receives 16kHz mono s16le PCM on stdin and emits one
// JSON object per line on stdout: either a lifecycle marker
// {"status": "ready"|"done"} or a transcript segment
// {"text", "start", "end"}.
package transcribe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Line is one parsed stdout line from the transcriber.
type Line struct {
	Status       string  `json:"status"`
	Text         string  `json:"text"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	NoSpeechProb float64 `json:"no_speech_prob"`
	IsFinal      bool    `json:"is_final"`
}

// IsSegment reports whether the line carries transcript text rather than
// a lifecycle marker.
func (l Line) IsSegment() bool { return l.Status == "" && strings.TrimSpace(l.Text) != "" }

// ParseLine decodes one stdout line. Malformed and non-JSON lines return
// ok=false; the caller drops them without crashing.
func ParseLine(raw []byte) (Line, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return Line{}, false
	}
	var l Line
	if err := json.Unmarshal([]byte(trimmed), &l); err != nil {
		return Line{}, false
	}
	if l.Status == "" && strings.TrimSpace(l.Text) == "" {
		return Line{}, false
	}
	return l, true
}

// Options configures the transcriber launch.
type Options struct {
	PythonBin   string
	Script      string
	Model       string
	Language    string
	ChunkSecs   float64
	VocabPrompt string
}

// Process is a running transcriber subprocess. Write feeds it PCM;
// Lines delivers parsed output until the process exits.
type Process struct {
	cmd      *exec.Cmd
	stdin    *os.File
	lines    chan Line
	scanDone chan struct{}
	log      *logrus.Entry
}

// Start launches the transcriber and begins reading its stdout.
func Start(opts Options) (*Process, error) {
	args := []string{opts.Script, "--model", opts.Model}
	if opts.Language != "" {
		args = append(args, "--language", opts.Language)
	}
	if opts.ChunkSecs > 0 {
		args = append(args, "--buffer-seconds", strconv.FormatFloat(opts.ChunkSecs, 'f', -1, 64))
	}
	if opts.VocabPrompt != "" {
		args = append(args, "--vocab-prompt", opts.VocabPrompt)
	}

	cmd := exec.Command(opts.PythonBin, args...)
	cmd.Stderr = os.Stderr

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	cmd.Stdin = stdinR

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("starting transcriber: %w", err)
	}
	stdinR.Close()

	p := &Process{
		cmd:      cmd,
		stdin:    stdinW,
		lines:    make(chan Line, 64),
		scanDone: make(chan struct{}),
		log:      logrus.WithField("component", "transcriber"),
	}

	go func() {
		defer close(p.scanDone)
		defer close(p.lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line, ok := ParseLine(scanner.Bytes())
			if !ok {
				p.log.WithField("line", truncate(scanner.Text(), 120)).Warn("dropping malformed transcriber line")
				continue
			}
			p.lines <- line
		}
	}()

	p.log.WithFields(logrus.Fields{"model": opts.Model, "script": opts.Script}).Info("transcriber started")
	return p, nil
}

// Lines is closed when the transcriber's stdout ends.
func (p *Process) Lines() <-chan Line { return p.lines }

// Write feeds PCM bytes to the transcriber. Safe to call from the
// capture writer goroutine.
func (p *Process) Write(pcm []byte) (int, error) {
	return p.stdin.Write(pcm)
}

// CloseSend signals end-of-stream on the transcriber's stdin.
func (p *Process) CloseSend() error {
	return p.stdin.Close()
}

// Shutdown waits up to grace for the process to exit after end-of-stream,
// then force-terminates it. Stopping a recording must not hang on an
// unresponsive subprocess.
func (p *Process) Shutdown(grace time.Duration) {
	done := make(chan error, 1)
	go func() {
		// cmd.Wait closes the stdout pipe. Trailing lines still buffered
		// there would be lost if it ran while the scanner is reading, so
		// it must not start until the scanner has hit EOF.
		<-p.scanDone
		done <- p.cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			p.log.WithError(err).Warn("transcriber exited with error")
		}
	case <-time.After(grace):
		p.log.Warn("transcriber unresponsive, killing")
		if err := p.cmd.Process.Kill(); err != nil {
			p.log.WithError(err).Error("killing transcriber")
		}
		<-done
	}
}

// Available reports whether the transcriber toolchain can run: the
// python binary is on PATH and the script exists.
func Available(pythonBin, script string) bool {
	if _, err := exec.LookPath(pythonBin); err != nil {
		return false
	}
	if _, err := os.Stat(script); err != nil {
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
