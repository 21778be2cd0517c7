package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"voicecall/internal/ports"
)

var (
	errSendClosed   = errors.New("audio stream is already closed")
	errStreamClosed = errors.New("transcription stream closed")

	closeStreamFrame = []byte(`{"type":"CloseStream"}`)
	keepAliveFrame   = []byte(`{"type":"KeepAlive"}`)
)

// stream is one live transcription socket. Audio is written by one goroutine
// and results are read by another; both stop when the socket closes.
type stream struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events chan ports.TranscriptEvent
	audio  chan []byte
	stop   chan struct{}
	done   chan struct{}

	errMu sync.Mutex
	err   error

	sendMu     sync.RWMutex
	sendClosed bool
	sendOnce   sync.Once
	stopOnce   sync.Once
	closeOnce  sync.Once
}

func newStream(conn *websocket.Conn, keepAlive time.Duration) *stream {
	return &stream{
		conn:      conn,
		keepAlive: keepAlive,
		events:    make(chan ports.TranscriptEvent, 64),
		audio:     make(chan []byte, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func openStream(ctx context.Context, conn *websocket.Conn, keepAlive time.Duration) *stream {
	s := newStream(conn, keepAlive)

	// The writer finishes before the reader after CloseStream, so only a
	// failed write tears the socket down early.
	var g errgroup.Group
	g.Go(func() error {
		defer s.halt()
		return s.readLoop()
	})
	g.Go(func() error {
		err := s.writeLoop()
		if err != nil {
			_ = conn.Close()
		}
		return err
	})
	go func() {
		s.fail(g.Wait())
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *stream) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return errStreamClosed
	}
}

// CloseSend flushes queued audio and asks Deepgram to finish the stream.
func (s *stream) CloseSend() error {
	s.sendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *stream) Events() <-chan ports.TranscriptEvent {
	return s.events
}

func (s *stream) Wait() error {
	<-s.done
	return s.Err()
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.Err()
}

// Err is the first failure of the socket, or nil for a clean finish.
func (s *stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) fail(err error) {
	if err == nil || isClosed(err) {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func (s *stream) writeLoop() error {
	idle := time.NewTicker(s.keepAlive)
	defer idle.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamFrame); err != nil && !isClosed(err) {
					return fmt.Errorf("close stream: %w", err)
				}
				return nil
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
			idle.Reset(s.keepAlive)
		case <-idle.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveFrame); err != nil {
				return fmt.Errorf("send keepalive: %w", err)
			}
		case <-s.stop:
			return nil
		}
	}
}

func (s *stream) readLoop() error {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if isClosed(err) {
				return nil
			}
			return fmt.Errorf("read transcription event: %w", err)
		}

		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Debug("Ignoring malformed transcription event", "err", err)
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "error":
			return fmt.Errorf("deepgram: %s", msg.errorText())
		case "utteranceend":
			s.emit(ports.TranscriptEvent{Kind: ports.TranscriptKindUtteranceEnd, IsSpeechFinal: true})
		case "speechstarted", "metadata":
			// Informational only.
		default:
			if event, ok := msg.event(); ok {
				s.emit(event)
			}
		}
	}
}

// emit never blocks the read loop for long. Partials are dropped first when
// the consumer lags.
func (s *stream) emit(event ports.TranscriptEvent) {
	if event.Kind == ports.TranscriptKindPartial {
		select {
		case s.events <- event:
		default:
		}
		return
	}
	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case s.events <- event:
	case <-timer.C:
		slog.Warn("Dropped final transcript, consumer is not reading")
	}
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type channelResult struct {
	Alternatives []alternative `json:"alternatives"`
}

// message is any server frame. Results arrive either under channel or, for
// older API versions, under results.channels.
type message struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel channelResult `json:"channel"`
	Results struct {
		Channels []channelResult `json:"channels"`
	} `json:"results"`
}

func (m message) transcript() string {
	if len(m.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(m.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(m.Results.Channels) > 0 && len(m.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(m.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func (m message) event() (ports.TranscriptEvent, bool) {
	text := m.transcript()
	if text == "" {
		// Silence can still close an utterance.
		if m.SpeechFinal {
			return ports.TranscriptEvent{Kind: ports.TranscriptKindFinal, IsSpeechFinal: true}, true
		}
		return ports.TranscriptEvent{}, false
	}

	kind := ports.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = ports.TranscriptKindFinal
	}
	return ports.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true
}

func (m message) errorText() string {
	if text := strings.TrimSpace(m.Message); text != "" {
		return text
	}
	if text := strings.TrimSpace(m.Description); text != "" {
		return text
	}
	return "unknown error"
}
