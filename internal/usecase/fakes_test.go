package usecase

import (
	"context"
	"sync"
	"time"

	"voicecall/internal/domain"
)

type listenResult struct {
	text string
	err  error
}

// scriptedInput returns results in order, then fallback forever, then blocks
// until the call is cancelled.
type scriptedInput struct {
	mu       sync.Mutex
	results  []listenResult
	fallback *listenResult
	listens  int
	stops    int
}

func (f *scriptedInput) Listen(ctx context.Context) (domain.Utterance, error) {
	f.mu.Lock()
	f.listens++
	var next *listenResult
	if len(f.results) > 0 {
		next = &f.results[0]
		f.results = f.results[1:]
	} else if f.fallback != nil {
		next = f.fallback
	}
	f.mu.Unlock()

	if next != nil {
		return domain.Utterance{Text: next.text, Timestamp: time.Now()}, next.err
	}
	<-ctx.Done()
	return domain.Utterance{}, ctx.Err()
}

func (f *scriptedInput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *scriptedInput) Listens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens
}

func (f *scriptedInput) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeReplies struct {
	mu          sync.Mutex
	block       chan struct{}
	ignoreCtx   bool
	errs        []error
	fallbackErr error
	texts       []string
}

func (f *fakeReplies) GetReply(ctx context.Context, text string) (domain.Reply, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	} else {
		err = f.fallbackErr
	}
	f.mu.Unlock()

	if f.block != nil {
		if f.ignoreCtx {
			<-f.block
		} else {
			select {
			case <-f.block:
			case <-ctx.Done():
				return domain.Reply{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return domain.Reply{}, err
	}
	return domain.Reply{Text: "reply to " + text}, nil
}

func (f *fakeReplies) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeOutput struct {
	mu     sync.Mutex
	block  bool
	err    error
	spoken []domain.Reply
	stops  int
}

func (f *fakeOutput) Speak(ctx context.Context, reply domain.Reply) (domain.SpeechPath, error) {
	f.mu.Lock()
	f.spoken = append(f.spoken, reply)
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.SpeechPathNone, ctx.Err()
	}
	if err != nil {
		return domain.SpeechPathNone, err
	}
	return domain.SpeechPathPlatform, nil
}

func (f *fakeOutput) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeOutput) Spoken() []domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Reply(nil), f.spoken...)
}

func (f *fakeOutput) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakePermissions struct {
	mu       sync.Mutex
	err      error
	block    bool
	requests int
}

func (f *fakePermissions) State() domain.PermissionState {
	return domain.PermissionState{Microphone: domain.MicrophoneUnknown}
}

func (f *fakePermissions) RequestMicrophone(ctx context.Context) (domain.InputHandle, error) {
	f.mu.Lock()
	f.requests++
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return domain.InputHandle{}, ctx.Err()
	}
	if err != nil {
		return domain.InputHandle{}, err
	}
	return domain.InputHandle{Format: "pulse", Device: "default"}, nil
}

func (f *fakePermissions) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

type fakeGate struct {
	decision domain.EntryDecision
	err      error
}

func (f *fakeGate) Check(context.Context) (domain.EntryDecision, error) {
	return f.decision, f.err
}

type stateEvent struct {
	status domain.Status
	reason domain.CallReason
}

type fakeEventSink struct {
	mu sync.Mutex

	stateLog    []stateEvent
	transcript  []string
	replyLog    []domain.Reply
	errorLog    []domain.ErrorCode
	permissions []domain.PermissionState
	notices     []domain.Notice
}

func (f *fakeEventSink) CallStateChanged(status domain.Status, reason domain.CallReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateLog = append(f.stateLog, stateEvent{status: status, reason: reason})
}

func (f *fakeEventSink) TranscriptRecognized(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcript = append(f.transcript, text)
}

func (f *fakeEventSink) ReplyReceived(reply domain.Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyLog = append(f.replyLog, reply)
}

func (f *fakeEventSink) PermissionChanged(state domain.PermissionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions = append(f.permissions, state)
}

func (f *fakeEventSink) Notify(notice domain.Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
}

func (f *fakeEventSink) CallError(code domain.ErrorCode, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errorLog = append(f.errorLog, code)
}

func (f *fakeEventSink) states() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.stateLog...)
}

func (f *fakeEventSink) last() stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stateLog) == 0 {
		return stateEvent{}
	}
	return f.stateLog[len(f.stateLog)-1]
}

func (f *fakeEventSink) reasons() []domain.CallReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CallReason, 0, len(f.stateLog))
	for _, state := range f.stateLog {
		out = append(out, state.reason)
	}
	return out
}

func (f *fakeEventSink) transcripts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcript...)
}

func (f *fakeEventSink) replies() []domain.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Reply(nil), f.replyLog...)
}

func (f *fakeEventSink) errorCodes() []domain.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ErrorCode(nil), f.errorLog...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeRecorder) add(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[key]++
}

func (f *fakeRecorder) CallStarted() { f.add("started") }

func (f *fakeRecorder) CallEnded(reason string) { f.add("ended:" + reason) }

func (f *fakeRecorder) TurnCompleted() { f.add("turn") }

func (f *fakeRecorder) RecognitionError(string) { f.add("recognition_error") }

func (f *fakeRecorder) ReplyObserved(_ time.Duration, err error) {
	if err != nil {
		f.add("reply_failed")
	}
	f.add("reply")
}

func (f *fakeRecorder) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func (f *fakeRecorder) snapshot() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.counts))
	for key, value := range f.counts {
		out[key] = value
	}
	return out
}
