// Package metrics computes rolling coaching heuristics over tagged
// transcript segments. It is pure computation: no I/O, no goroutines.
package metrics

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	// Rolling window for the words-per-minute figure, in elapsed
	// recording seconds.
	wpmWindowSeconds = 60.0
	// Below this much spoken time in the window, WPM is reported as 0
	// rather than a wildly extrapolated number.
	wpmMinSpokenSeconds = 3.0
)

// Segment is one tagged transcript segment as the engine sees it.
type Segment struct {
	Text  string
	Start float64
	End   float64
	Self  bool
}

// Snapshot is the derived metrics view pushed to stream subscribers and
// written into the final session artifact.
type Snapshot struct {
	SelfTalkTimeSec     float64 `json:"selfTalkTimeSec"`
	OthersTalkTimeSec   float64 `json:"othersTalkTimeSec"`
	TalkRatio           float64 `json:"talkRatio"`
	SilenceRatio        float64 `json:"silenceRatio"`
	SelfWpm             float64 `json:"selfWpm"`
	LongestMonologueSec float64 `json:"longestMonologueSec"`
	LongestSilenceSec   float64 `json:"longestSilenceSec"`
	SegmentCount        int     `json:"segmentCount"`
	AvgSegmentLenWords  float64 `json:"avgSegmentLenWords"`
	ElapsedSec          float64 `json:"elapsedSec"`
}

// Engine accumulates segments for one recording session.
type Engine struct {
	started      time.Time
	segments     []Segment
	monologueGap float64 // gap below this merges consecutive self segments
}

func NewEngine(monologueGap float64) *Engine {
	return &Engine{started: time.Now(), monologueGap: monologueGap}
}

func (e *Engine) Add(seg Segment) {
	e.segments = append(e.segments, seg)
}

func (e *Engine) Snapshot() Snapshot {
	return e.snapshotAt(time.Since(e.started).Seconds())
}

func (e *Engine) snapshotAt(elapsed float64) Snapshot {
	var selfTalk, othersTalk float64
	var totalWords int
	for _, s := range e.segments {
		d := s.End - s.Start
		if s.Self {
			selfTalk += d
		} else {
			othersTalk += d
		}
		totalWords += wordCount(s.Text)
	}

	talkRatio := 0.0
	if selfTalk+othersTalk > 0 {
		talkRatio = selfTalk / (selfTalk + othersTalk)
	}

	silenceRatio := 1.0
	if len(e.segments) > 0 && elapsed > 0 {
		silenceRatio = math.Max(0, 1-(selfTalk+othersTalk)/elapsed)
	}

	avgWords := 0.0
	if len(e.segments) > 0 {
		avgWords = float64(totalWords) / float64(len(e.segments))
	}

	return Snapshot{
		SelfTalkTimeSec:     round1(selfTalk),
		OthersTalkTimeSec:   round1(othersTalk),
		TalkRatio:           round3(talkRatio),
		SilenceRatio:        round3(silenceRatio),
		SelfWpm:             round1(e.selfWpm(elapsed)),
		LongestMonologueSec: round1(e.longestMonologue()),
		LongestSilenceSec:   round1(e.longestSilence()),
		SegmentCount:        len(e.segments),
		AvgSegmentLenWords:  round1(avgWords),
		ElapsedSec:          round1(elapsed),
	}
}

// selfWpm counts words in self segments whose end falls in the last 60
// seconds of elapsed recording time, divided by the minutes actually
// spoken in that window (not by the window length).
func (e *Engine) selfWpm(elapsed float64) float64 {
	windowStart := elapsed - wpmWindowSeconds
	var words int
	var spoken float64
	for _, s := range e.segments {
		if !s.Self || s.End < windowStart {
			continue
		}
		words += wordCount(s.Text)
		spoken += s.End - s.Start
	}
	if spoken < wpmMinSpokenSeconds {
		return 0
	}
	return float64(words) / (spoken / 60.0)
}

// longestMonologue finds the longest run of consecutive self segments,
// ordered by start time, where each adjacent gap is below the merge
// threshold. Merged gaps count toward the run's duration.
func (e *Engine) longestMonologue() float64 {
	var selfSegs []Segment
	for _, s := range e.segments {
		if s.Self {
			selfSegs = append(selfSegs, s)
		}
	}
	if len(selfSegs) == 0 {
		return 0
	}
	sort.Slice(selfSegs, func(i, j int) bool { return selfSegs[i].Start < selfSegs[j].Start })

	var best, run float64
	prevEnd := 0.0
	for i, s := range selfSegs {
		d := s.End - s.Start
		if i == 0 {
			run = d
		} else if gap := s.Start - prevEnd; gap < e.monologueGap {
			// Overlapping segments produce a negative gap, which
			// correctly shortens the sum back to the real span.
			run += gap + d
		} else {
			if run > best {
				best = run
			}
			run = d
		}
		prevEnd = s.End
	}
	if run > best {
		best = run
	}
	return best
}

// longestSilence is the largest gap between any two time-adjacent
// segments regardless of speaker.
func (e *Engine) longestSilence() float64 {
	if len(e.segments) < 2 {
		return 0
	}
	ordered := make([]Segment, len(e.segments))
	copy(ordered, e.segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	var longest float64
	for i := 1; i < len(ordered); i++ {
		if gap := ordered[i].Start - ordered[i-1].End; gap > longest {
			longest = gap
		}
	}
	return longest
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
