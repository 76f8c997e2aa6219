package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPPort != DefaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, DefaultHTTPPort)
	}
	if cfg.MicVadThreshold != DefaultVadThreshold {
		t.Errorf("MicVadThreshold = %v", cfg.MicVadThreshold)
	}
	if cfg.SelfRatioThreshold != DefaultSelfRatioThreshold {
		t.Errorf("SelfRatioThreshold = %v", cfg.SelfRatioThreshold)
	}
	if cfg.MonologueGap != DefaultMonologueGap {
		t.Errorf("MonologueGap = %v", cfg.MonologueGap)
	}
	if len(cfg.PreferredDevices) == 0 {
		t.Error("PreferredDevices empty")
	}

	// Load must ensure the data directories exist.
	for _, dir := range []string{cfg.RecordingsDir, cfg.TranscriptsDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory %s not created: %v", dir, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	home := isolateHome(t)

	configDir := filepath.Join(home, ".config", "meeting-recorder")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
http_port = 9001
mic_device = "MacBook Pro Microphone"
mic_vad_threshold = 0.02
preferred_devices = ["BlackHole 2ch"]
self_ratio_threshold = 0.5
language = "en"
`
	if err := os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 9001 {
		t.Errorf("HTTPPort = %d", cfg.HTTPPort)
	}
	if cfg.MicDevice != "MacBook Pro Microphone" {
		t.Errorf("MicDevice = %q", cfg.MicDevice)
	}
	if cfg.MicVadThreshold != 0.02 {
		t.Errorf("MicVadThreshold = %v", cfg.MicVadThreshold)
	}
	if len(cfg.PreferredDevices) != 1 || cfg.PreferredDevices[0] != "BlackHole 2ch" {
		t.Errorf("PreferredDevices = %v", cfg.PreferredDevices)
	}
	if cfg.SelfRatioThreshold != 0.5 {
		t.Errorf("SelfRatioThreshold = %v", cfg.SelfRatioThreshold)
	}
	if cfg.Language != "en" {
		t.Errorf("Language = %q", cfg.Language)
	}
}

func TestEnvOverrides(t *testing.T) {
	home := isolateHome(t)
	t.Setenv("MEETING_RECORDER_PORT", "9100")
	t.Setenv("MEETING_RECORDER_MIC_DEVICE", "USB Mic")
	t.Setenv("MEETING_RECORDER_RECORDINGS_DIR", filepath.Join(home, "recs"))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPPort != 9100 {
		t.Errorf("HTTPPort = %d", cfg.HTTPPort)
	}
	if cfg.MicDevice != "USB Mic" {
		t.Errorf("MicDevice = %q", cfg.MicDevice)
	}
	if cfg.RecordingsDir != filepath.Join(home, "recs") {
		t.Errorf("RecordingsDir = %q", cfg.RecordingsDir)
	}
}
