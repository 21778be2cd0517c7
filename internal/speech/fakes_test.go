package speech

import (
	"context"
	"errors"
	"io"
	"sync"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

type fakeAudioSession struct {
	mu       sync.Mutex
	chunks   [][]byte
	stopped  chan struct{}
	stopOnce sync.Once
	err      error
	eof      bool
}

func newFakeAudioSession(chunks ...[]byte) *fakeAudioSession {
	return &fakeAudioSession{chunks: chunks, stopped: make(chan struct{})}
}

func (s *fakeAudioSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return copy(p, chunk), nil
	}
	eof := s.eof
	s.mu.Unlock()

	if eof {
		return 0, io.EOF
	}
	<-s.stopped
	return 0, io.EOF
}

func (s *fakeAudioSession) Close() error { return s.Stop() }

func (s *fakeAudioSession) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

func (s *fakeAudioSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type fakeCapture struct {
	session *fakeAudioSession
	err     error
	starts  int
}

func (c *fakeCapture) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	c.starts++
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

type fakeStream struct {
	events chan ports.TranscriptEvent

	mu        sync.Mutex
	sent      int
	closeOnce sync.Once
	done      chan struct{}
	waitErr   error
}

func newFakeStream(events ...ports.TranscriptEvent) *fakeStream {
	ch := make(chan ports.TranscriptEvent, len(events)+1)
	for _, event := range events {
		ch <- event
	}
	return &fakeStream{events: ch, done: make(chan struct{})}
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent += len(chunk)
	return nil
}

func (s *fakeStream) CloseSend() error { return nil }

func (s *fakeStream) Events() <-chan ports.TranscriptEvent { return s.events }

func (s *fakeStream) Wait() error {
	<-s.done
	return s.waitErr
}

func (s *fakeStream) Close() error {
	s.finish()
	return nil
}

func (s *fakeStream) finish() {
	s.closeOnce.Do(func() {
		close(s.events)
		close(s.done)
	})
}

func (s *fakeStream) sentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

type fakeProvider struct {
	stream *fakeStream
	err    error
}

func (p *fakeProvider) StartStreaming(context.Context, ports.StreamingConfig) (ports.StreamingSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.stream, nil
}

type fakeAssets struct {
	mu    sync.Mutex
	data  map[string][]byte
	refs  []string
	err   error
	block bool
}

func (a *fakeAssets) FetchAsset(ctx context.Context, ref string) ([]byte, error) {
	a.mu.Lock()
	a.refs = append(a.refs, ref)
	block := a.block
	a.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	data, ok := a.data[ref]
	if !ok {
		return nil, domain.ErrBackend
	}
	return data, nil
}

type fakeSynth struct {
	calls []string
	voice string
	ref   string
	err   error
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, voice string) (string, error) {
	s.calls = append(s.calls, text)
	s.voice = voice
	return s.ref, s.err
}

type fakePlayer struct {
	played  [][]byte
	err     error
	stopped int
}

func (p *fakePlayer) Play(_ context.Context, data []byte) error {
	p.played = append(p.played, data)
	return p.err
}

func (p *fakePlayer) StopAll() { p.stopped++ }

type fakePlatform struct {
	said     []string
	err      error
	canceled int
}

func (p *fakePlatform) Say(_ context.Context, text string) error {
	p.said = append(p.said, text)
	return p.err
}

func (p *fakePlatform) Cancel() { p.canceled++ }

type upperPronouncer struct{}

func (upperPronouncer) Apply(text string) (string, error) {
	if text == "fail" {
		return "", errors.New("boom")
	}
	return "spoken:" + text, nil
}
