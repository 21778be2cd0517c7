package usecase

import (
	"context"
	"sync"
	"time"

	"voicecall/internal/domain"
)

type callSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	done        chan struct{}
	releaseOnce sync.Once

	// emitMu keeps state events in the order the state changed.
	emitMu sync.Mutex

	mu         sync.Mutex
	state      domain.CallStatus
	finished   bool
	transcript string
	lastReply  string
	message    string
}

func newCallSession(parent context.Context, id string) *callSession {
	ctx, cancel := context.WithCancel(parent)
	return &callSession{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   domain.CallStatusIdle,
		message: "Requesting microphone",
	}
}

func (s *callSession) advance(state domain.CallStatus, message string) (domain.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.ctx.Err() != nil {
		return domain.Status{}, false
	}
	s.state = state
	s.message = message
	return s.statusLocked(), true
}

func (s *callSession) end() (domain.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return domain.Status{}, false
	}
	s.finished = true
	s.state = domain.CallStatusEnded
	s.message = "Call ended"
	return s.statusLocked(), true
}

func (s *callSession) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *callSession) setTranscript(text string) {
	s.mu.Lock()
	s.transcript = text
	s.mu.Unlock()
}

func (s *callSession) setReply(text string) {
	s.mu.Lock()
	s.lastReply = text
	s.mu.Unlock()
}

func (s *callSession) status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *callSession) statusLocked() domain.Status {
	return domain.Status{
		State:      s.state,
		Active:     !s.finished,
		SessionID:  s.id,
		Transcript: s.transcript,
		LastReply:  s.lastReply,
		Message:    s.message,
	}
}

type nopSink struct{}

func (nopSink) CallStateChanged(domain.Status, domain.CallReason) {}

func (nopSink) TranscriptRecognized(string) {}

func (nopSink) ReplyReceived(domain.Reply) {}

func (nopSink) PermissionChanged(domain.PermissionState) {}

func (nopSink) Notify(domain.Notice) {}

func (nopSink) CallError(domain.ErrorCode, string) {}

type nopRecorder struct{}

func (nopRecorder) CallStarted() {}

func (nopRecorder) CallEnded(string) {}

func (nopRecorder) TurnCompleted() {}

func (nopRecorder) RecognitionError(string) {}

func (nopRecorder) ReplyObserved(time.Duration, error) {}
