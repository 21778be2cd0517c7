package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"voicecall/internal/domain"
)

// consoleSink prints call events for a terminal user.
type consoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	ended chan struct{}
	once  sync.Once
}

func newConsoleSink(w io.Writer) *consoleSink {
	return &consoleSink{w: w, ended: make(chan struct{})}
}

// Ended is closed once a call reaches the ended state.
func (s *consoleSink) Ended() <-chan struct{} {
	return s.ended
}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *consoleSink) CallStateChanged(status domain.Status, reason domain.CallReason) {
	message := status.Message
	if message == "" {
		message = string(reason)
	}
	s.printf("[%s] %s\n", status.State, message)
	if status.State == domain.CallStatusEnded {
		slog.Debug("Call finished", "session", status.SessionID, "reason", reason)
		s.once.Do(func() { close(s.ended) })
	}
}

func (s *consoleSink) TranscriptRecognized(text string) {
	s.printf("you: %s\n", text)
}

func (s *consoleSink) ReplyReceived(reply domain.Reply) {
	s.printf("assistant: %s\n", reply.Text)
}

func (s *consoleSink) PermissionChanged(state domain.PermissionState) {
	s.printf("microphone: %s\n", state.Microphone)
}

func (s *consoleSink) Notify(notice domain.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s: %s\n", notice.Title, notice.Message)
	for i, step := range notice.Steps {
		fmt.Fprintf(s.w, "  %d. %s\n", i+1, step)
	}
}

func (s *consoleSink) CallError(code domain.ErrorCode, detail string) {
	slog.Warn("Call error", "code", code, "detail", detail)
	s.printf("error (%s): %s\n", code, detail)
}
