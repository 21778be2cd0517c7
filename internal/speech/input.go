// Package speech turns microphone audio into utterances and replies into sound.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

var (
	// ErrNoSpeech means recognition ended at an utterance boundary without any text.
	ErrNoSpeech = domain.ErrNoSpeech
	// ErrListenInProgress means Listen was called while another listen is running.
	ErrListenInProgress = errors.New("a listen is already in progress")

	errUtteranceComplete = errors.New("utterance complete")
)

// RecognitionError is a transient recognition failure. The caller may listen again.
type RecognitionError struct {
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition %s: %v", e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// InputConfig controls capture and streaming for each listen.
type InputConfig struct {
	Audio            ports.AudioConfig
	Streaming        ports.StreamingConfig
	ChunkSize        int
	UtteranceTimeout time.Duration
}

// Input implements ports.SpeechInput on top of a capture device and a streaming recognizer.
type Input struct {
	capture  ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      InputConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewInput(capture ports.AudioCapture, provider ports.TranscriptionProvider, cfg InputConfig) *Input {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.UtteranceTimeout <= 0 {
		cfg.UtteranceTimeout = 30 * time.Second
	}
	return &Input{capture: capture, provider: provider, cfg: cfg}
}

// Listen captures until the recognizer marks the end of one utterance.
func (in *Input) Listen(ctx context.Context) (domain.Utterance, error) {
	listenCtx, cancel := context.WithCancel(ctx)
	in.mu.Lock()
	if in.cancel != nil {
		in.mu.Unlock()
		cancel()
		return domain.Utterance{}, ErrListenInProgress
	}
	in.cancel = cancel
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.cancel = nil
		in.mu.Unlock()
		cancel()
	}()

	stream, err := in.provider.StartStreaming(listenCtx, in.cfg.Streaming)
	if err != nil {
		if ctxErr := listenCtx.Err(); ctxErr != nil {
			return domain.Utterance{}, ctxErr
		}
		return domain.Utterance{}, &RecognitionError{Op: "connect", Err: err}
	}

	audio, err := in.capture.Start(listenCtx, in.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		if ctxErr := listenCtx.Err(); ctxErr != nil {
			return domain.Utterance{}, ctxErr
		}
		return domain.Utterance{}, captureError(err)
	}

	var transcript transcriptAggregator
	g, gctx := errgroup.WithContext(listenCtx)

	g.Go(func() error {
		<-gctx.Done()
		_ = audio.Stop()
		_ = stream.Close()
		return nil
	})
	g.Go(func() error {
		return pumpAudio(audio, stream, in.cfg.ChunkSize)
	})
	g.Go(func() error {
		return consumeTranscript(gctx, stream, &transcript, in.cfg.UtteranceTimeout)
	})

	err = g.Wait()
	switch {
	case errors.Is(err, errUtteranceComplete):
		text := transcript.Text()
		slog.Debug("Utterance recognized", "chars", len(text))
		return domain.Utterance{Text: text, Timestamp: time.Now()}, nil
	case ctx.Err() != nil:
		return domain.Utterance{}, ctx.Err()
	case listenCtx.Err() != nil:
		return domain.Utterance{}, context.Canceled
	}
	return domain.Utterance{}, err
}

// Stop aborts an in-flight Listen. It is a no-op when nothing is listening.
func (in *Input) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.cancel != nil {
		in.cancel()
	}
	return nil
}

func pumpAudio(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	defer stream.CloseSend()

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return &RecognitionError{Op: "stream audio", Err: sendErr}
			}
		}
		if err == nil {
			continue
		}

		if captureErr := audio.Err(); captureErr != nil {
			return captureError(captureErr)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		return &RecognitionError{Op: "capture", Err: err}
	}
}

// consumeTranscript gives up after timeout passes without any recognized text.
func consumeTranscript(ctx context.Context, stream ports.StreamingSession, transcript *transcriptAggregator, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if !transcript.Empty() {
				return errUtteranceComplete
			}
			return ErrNoSpeech
		case event, ok := <-events:
			if !ok {
				if !transcript.Empty() {
					return errUtteranceComplete
				}
				if err := stream.Wait(); err != nil {
					return &RecognitionError{Op: "stream", Err: err}
				}
				return ErrNoSpeech
			}

			transcript.Add(event)
			if event.Text != "" {
				timer.Reset(timeout)
			}
			if event.IsSpeechFinal || event.Kind == ports.TranscriptKindUtteranceEnd {
				if !transcript.Empty() {
					return errUtteranceComplete
				}
				if event.Kind == ports.TranscriptKindUtteranceEnd {
					return ErrNoSpeech
				}
			}
		}
	}
}

// captureError ends the call only for permission loss. A missing device is retried.
func captureError(err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) {
		return fmt.Errorf("%w: %w", domain.ErrPermissionRevoked, err)
	}
	return &RecognitionError{Op: "capture", Err: err}
}
