package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicecall/internal/domain"
)

func TestCheckPrintsDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/check_voice_limit" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"is_admin":false,"is_paid":true,"can_make_call":true,"remaining_minutes":12}`))
	}))
	defer server.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICECALL_BACKEND_URL", server.URL)

	out, err := execute("--env=", "check")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	for _, want := range []string{"enabled: true", "action: start_call", "role: paid", "remaining: 12 min"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestCheckReportsUnavailableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICECALL_BACKEND_URL", server.URL)

	out, err := execute("--env=", "check")
	if err != nil {
		t.Fatalf("check should not fail on backend errors: %v", err)
	}
	if !strings.Contains(out, "enabled: false") || !strings.Contains(out, "reason: Unavailable") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestHistoryPrintsMessages(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"content":"hello","is_from_user":true,"timestamp":"10:00"},
			{"content":"hi there","is_from_user":false,"timestamp":"10:01"}
		]}`))
	}))
	defer server.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOICECALL_BACKEND_URL", server.URL)

	out, err := execute("--env=", "history", "--page", "2", "--per-page", "5")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if gotQuery != "page=2&per_page=5" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if !strings.Contains(out, "10:00 you: hello") || !strings.Contains(out, "10:01 assistant: hi there") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCommandsValidateArgs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if _, err := execute("--env=", "say"); err == nil {
		t.Fatalf("expected say to require text")
	}
	if _, err := execute("--env=", "chat"); err == nil {
		t.Fatalf("expected chat to require a message")
	}
	if _, err := execute("--env=", "check", "extra"); err == nil {
		t.Fatalf("expected check to reject arguments")
	}
}

func TestRootRegistersGlobalFlags(t *testing.T) {
	t.Parallel()

	root := newRootCmd(&bytes.Buffer{})
	for _, name := range []string{"env", "log", "metrics-addr"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("expected --%s flag", name)
		}
	}
	for _, name := range []string{"check", "call", "say", "history", "chat", "permissions"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected %s command, got %v", name, err)
		}
	}
}

func TestConsoleSinkPrintsEvents(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := newConsoleSink(&buf)
	sink.CallStateChanged(domain.Status{State: domain.CallStatusListening, Message: "Listening..."}, domain.CallReasonListening)
	sink.TranscriptRecognized("hello")
	sink.ReplyReceived(domain.Reply{Text: "hi"})
	sink.Notify(domain.Notice{Title: "Microphone Access Required", Message: "allow it", Steps: []string{"Open settings", "Allow"}})

	want := "[listening] Listening...\n" +
		"you: hello\n" +
		"assistant: hi\n" +
		"Microphone Access Required: allow it\n" +
		"  1. Open settings\n" +
		"  2. Allow\n"
	if buf.String() != want {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}

	select {
	case <-sink.Ended():
		t.Fatalf("sink ended before the call did")
	default:
	}

	ended := domain.Status{State: domain.CallStatusEnded, Message: "Call ended"}
	sink.CallStateChanged(ended, domain.CallReasonUserEnded)
	sink.CallStateChanged(ended, domain.CallReasonUserEnded)
	select {
	case <-sink.Ended():
	case <-time.After(time.Second):
		t.Fatalf("expected ended signal")
	}
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
