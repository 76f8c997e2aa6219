package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Defaults for the recording pipeline. The heuristic thresholds are just
// starting points, not tuned values; both can be overridden in the config
// file.
const (
	DefaultHTTPPort           = 9847
	DefaultVadThreshold       = 0.01
	DefaultChunkSeconds       = 3.0
	DefaultSelfRatioThreshold = 0.3
	DefaultMonologueGap       = 1.5
	DefaultWhisperModel       = "mlx-community/whisper-large-v3-turbo"
)

type Config struct {
	HTTPPort           int
	PreferredDevices   []string // ordered name-substring fallbacks for meeting audio
	MicDevice          string   // name substring; empty = system default input
	MicVadThreshold    float64
	ChunkSeconds       float64
	TranscriptsDir     string
	RecordingsDir      string
	PythonBin          string
	TranscriberScript  string
	WhisperModel       string
	Language           string
	VocabularyPath     string
	SelfRatioThreshold float64
	MonologueGap       float64
	Notify             bool
}

type fileConfig struct {
	HTTPPort           int      `toml:"http_port"`
	PreferredDevices   []string `toml:"preferred_devices"`
	MicDevice          string   `toml:"mic_device"`
	MicVadThreshold    float64  `toml:"mic_vad_threshold"`
	ChunkSeconds       float64  `toml:"chunk_duration_seconds"`
	TranscriptsDir     string   `toml:"transcripts_dir"`
	RecordingsDir      string   `toml:"recordings_dir"`
	PythonBin          string   `toml:"python_bin"`
	TranscriberScript  string   `toml:"transcriber_script"`
	WhisperModel       string   `toml:"whisper_model"`
	Language           string   `toml:"language"`
	VocabularyPath     string   `toml:"vocabulary_path"`
	SelfRatioThreshold float64  `toml:"self_ratio_threshold"`
	MonologueGap       float64  `toml:"monologue_gap_seconds"`
	Notify             bool     `toml:"notify"`
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:           DefaultHTTPPort,
		PreferredDevices:   []string{"BlackHole", "Loopback"},
		MicVadThreshold:    DefaultVadThreshold,
		ChunkSeconds:       DefaultChunkSeconds,
		TranscriptsDir:     filepath.Join(defaultDataDir(), "transcripts"),
		RecordingsDir:      filepath.Join(defaultDataDir(), "recordings"),
		PythonBin:          "python3",
		TranscriberScript:  filepath.Join(defaultDataDir(), "scripts", "stream_transcribe.py"),
		WhisperModel:       DefaultWhisperModel,
		SelfRatioThreshold: DefaultSelfRatioThreshold,
		MonologueGap:       DefaultMonologueGap,
	}

	if configPath := configFilePath(); configPath != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(configPath, &fc); err != nil {
			return nil, fmt.Errorf("reading %s: %w", configPath, err)
		}
		applyFile(cfg, &fc)
	}

	applyEnvOverrides(cfg)

	for _, dir := range []string{cfg.TranscriptsDir, cfg.RecordingsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.HTTPPort != 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	if len(fc.PreferredDevices) > 0 {
		cfg.PreferredDevices = fc.PreferredDevices
	}
	cfg.MicDevice = fc.MicDevice
	if fc.MicVadThreshold > 0 {
		cfg.MicVadThreshold = fc.MicVadThreshold
	}
	if fc.ChunkSeconds > 0 {
		cfg.ChunkSeconds = fc.ChunkSeconds
	}
	if fc.TranscriptsDir != "" {
		cfg.TranscriptsDir = expandTilde(fc.TranscriptsDir)
	}
	if fc.RecordingsDir != "" {
		cfg.RecordingsDir = expandTilde(fc.RecordingsDir)
	}
	if fc.PythonBin != "" {
		cfg.PythonBin = fc.PythonBin
	}
	if fc.TranscriberScript != "" {
		cfg.TranscriberScript = expandTilde(fc.TranscriberScript)
	}
	if fc.WhisperModel != "" {
		cfg.WhisperModel = fc.WhisperModel
	}
	cfg.Language = fc.Language
	if fc.VocabularyPath != "" {
		cfg.VocabularyPath = expandTilde(fc.VocabularyPath)
	}
	if fc.SelfRatioThreshold > 0 {
		cfg.SelfRatioThreshold = fc.SelfRatioThreshold
	}
	if fc.MonologueGap > 0 {
		cfg.MonologueGap = fc.MonologueGap
	}
	cfg.Notify = fc.Notify
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEETING_RECORDER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = port
		}
	}
	if v := os.Getenv("MEETING_RECORDER_MIC_DEVICE"); v != "" {
		cfg.MicDevice = v
	}
	if v := os.Getenv("MEETING_RECORDER_RECORDINGS_DIR"); v != "" {
		cfg.RecordingsDir = expandTilde(v)
	}
	if v := os.Getenv("MEETING_RECORDER_PYTHON_BIN"); v != "" {
		cfg.PythonBin = v
	}
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "meeting-recorder")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "meeting-recorder")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "meeting-recorder")
	}
	return "."
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
