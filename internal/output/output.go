package output

import (
	"fmt"
	"io"
	"time"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RecordingStarted(meetingID, title string) {
	if title == "" {
		title = meetingID
	}
	fmt.Fprintf(f.w, "⏺️  Recording started: %s\n", title)
}

func (f *Formatter) RecordingStopped(meetingID string, duration time.Duration, wavPath string) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped: %s (%s)\n", meetingID, formatDuration(duration))
	if wavPath != "" {
		fmt.Fprintf(f.w, "📁 Audio saved: %s\n", wavPath)
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) DeviceListHeader() {
	fmt.Fprintf(f.w, "🎙️  Input devices:\n\n")
}

func (f *Formatter) DeviceListItem(name string, isDefault bool) {
	marker := ""
	if isDefault {
		marker = " (default)"
	}
	fmt.Fprintf(f.w, "  %s%s\n", name, marker)
}

func (f *Formatter) SessionListHeader() {
	fmt.Fprintf(f.w, "📁 Recorded sessions:\n\n")
}

func (f *Formatter) SessionListItem(title string, start time.Time, segments int) {
	fmt.Fprintf(f.w, "  %s  %s (%d segments)\n", start.Format("2006-01-02 15:04"), title, segments)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
