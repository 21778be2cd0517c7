package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:5000" || cfg.Backend.CookieName != "session" {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Deepgram.Model != "nova-2" || cfg.Deepgram.Language != "en-US" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Speech.Voice != "en_US-amy-medium" || cfg.Speech.Provider != "piper" {
		t.Fatalf("unexpected speech config: %+v", cfg.Speech)
	}
	if cfg.Session.SettleDelay != time.Second || cfg.Session.RecognitionRetryDelay != 2*time.Second {
		t.Fatalf("unexpected session delays: %+v", cfg.Session)
	}
	if cfg.Session.ReplyCooldown != 3*time.Second || cfg.Session.RestartPause != time.Second {
		t.Fatalf("unexpected session delays: %+v", cfg.Session)
	}
	if cfg.Session.MaxRecognitionRetries != 5 || cfg.Session.MaxReplyFailures != 3 {
		t.Fatalf("unexpected retry caps: %+v", cfg.Session)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	t.Setenv("VOICECALL_BACKEND_URL", "https://sophia.example.com/")
	t.Setenv("VOICECALL_BACKEND_SESSION_COOKIE", "abc")
	t.Setenv("VOICECALL_BACKEND_SOCKS_PROXY", "127.0.0.1:8888")
	t.Setenv("DEEPGRAM_API_KEY", " test-key ")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("VOICECALL_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("VOICECALL_AUDIO_INPUT_DEVICE", "hw:1")
	t.Setenv("VOICECALL_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("VOICECALL_SPEECH_VOICE", "en_GB-alba-medium")
	t.Setenv("VOICECALL_SESSION_REPLY_COOLDOWN", "250ms")
	t.Setenv("VOICECALL_SESSION_MAX_REPLY_FAILURES", "7")
	t.Setenv("VOICECALL_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://sophia.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.SessionCookie != "abc" || cfg.Backend.ProxyAddr != "127.0.0.1:8888" {
		t.Fatalf("unexpected backend config: %+v", cfg.Backend)
	}
	if cfg.Deepgram.APIKey != "test-key" || cfg.Deepgram.Model != "nova-3" || cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "hw:1" || cfg.Audio.SampleRate != 22050 {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Speech.Voice != "en_GB-alba-medium" {
		t.Fatalf("unexpected voice: %q", cfg.Speech.Voice)
	}
	if cfg.Session.ReplyCooldown != 250*time.Millisecond || cfg.Session.MaxReplyFailures != 7 {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected lowered log level, got %q", cfg.Log.Level)
	}
}

func TestLoadOutOfRangeValuesFallback(t *testing.T) {
	t.Setenv("VOICECALL_AUDIO_SAMPLE_RATE", "0")
	t.Setenv("VOICECALL_AUDIO_CHANNELS", "-1")
	t.Setenv("VOICECALL_AUDIO_CHUNK_SIZE", "5")
	t.Setenv("VOICECALL_SESSION_MAX_RECOGNITION_RETRIES", "0")
	t.Setenv("VOICECALL_SESSION_SETTLE_DELAY", "-1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.ChunkSize != 4096 {
		t.Fatalf("unexpected audio fallbacks: %+v", cfg.Audio)
	}
	if cfg.Session.MaxRecognitionRetries != 5 {
		t.Fatalf("expected retry fallback, got %d", cfg.Session.MaxRecognitionRetries)
	}
	if cfg.Session.SettleDelay != 0 {
		t.Fatalf("expected negative delay clamped, got %s", cfg.Session.SettleDelay)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("VOICECALL_AUDIO_SAMPLE_RATE", "bad")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error for malformed integer")
	}
}

func TestLoadFileReadsDotenvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	contents := "VOICECALL_SPEECH_PROVIDER=elevenlabs\nDEEPGRAM_MODEL=nova-3\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	t.Setenv("DEEPGRAM_MODEL", "enhanced")
	t.Setenv("VOICECALL_SPEECH_PROVIDER", "")
	os.Unsetenv("VOICECALL_SPEECH_PROVIDER")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Speech.Provider != "elevenlabs" {
		t.Fatalf("expected provider from env file, got %q", cfg.Speech.Provider)
	}
	if cfg.Deepgram.Model != "enhanced" {
		t.Fatalf("expected environment to win over file, got %q", cfg.Deepgram.Model)
	}
	os.Unsetenv("VOICECALL_SPEECH_PROVIDER")
}

func TestLoadFileMissingIsIgnored(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}
