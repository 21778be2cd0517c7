package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"voicecall/internal/config"
	"voicecall/internal/domain"
)

func TestBuildSuccess(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	services, err := Build(cfg, noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if services.Controller == nil || services.Permissions == nil || services.Channel == nil {
		t.Fatalf("expected a complete graph: %+v", services)
	}
	if services.Controller.Active() {
		t.Fatalf("expected no call before start")
	}
	if got := services.Permissions.State().Microphone; got != domain.MicrophoneUnknown {
		t.Fatalf("expected unknown microphone state, got %q", got)
	}
}

func TestBuildWithSocksProxy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICECALL_BACKEND_SOCKS_PROXY", "127.0.0.1:1080")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := Build(cfg, noopEventSink{}); err != nil {
		t.Fatalf("build failed: %v", err)
	}
}

func TestBuildFailsOnInvalidLexicon(t *testing.T) {
	home := t.TempDir()
	lexicon := filepath.Join(home, "bad.lexicon")
	if err := os.WriteFile(lexicon, []byte("not a valid entry\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("VOICECALL_SPEECH_LEXICON_FILE", lexicon)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := Build(cfg, noopEventSink{}); err == nil {
		t.Fatalf("expected build error due to invalid lexicon")
	}
}

func TestBuildFailsOnInvalidBackendURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICECALL_BACKEND_URL", "ftp://example.com")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := Build(cfg, noopEventSink{}); err == nil {
		t.Fatalf("expected build error due to backend scheme")
	}
}

type noopEventSink struct{}

func (noopEventSink) CallStateChanged(_ domain.Status, _ domain.CallReason) {}
func (noopEventSink) TranscriptRecognized(_ string)                         {}
func (noopEventSink) ReplyReceived(_ domain.Reply)                          {}
func (noopEventSink) PermissionChanged(_ domain.PermissionState)            {}
func (noopEventSink) Notify(_ domain.Notice)                                {}
func (noopEventSink) CallError(_ domain.ErrorCode, _ string)                {}
