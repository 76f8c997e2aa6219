package audio

import "testing"

// Queries must be safe on a monitor that has never captured anything;
// the server answers ratio lookups while the daemon is idle.
func TestMicrophoneMonitorIdleQueries(t *testing.T) {
	m := NewMicrophoneMonitor(0.01)
	if got := m.SelfSpeakingRatio(0, 10); got != 0 {
		t.Errorf("ratio with no samples = %v, want 0", got)
	}
	m.ClearHistory()
	m.Stop()
}
