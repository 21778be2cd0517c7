package ports

import (
	"context"
	"io"

	"voicecall/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
// Err reports why capture ended when the recorder exited without being stopped.
type AudioSession interface {
	io.ReadCloser
	Stop() error
	Err() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
// EndpointingMS and UtteranceEndMS tune how quickly silence closes an utterance; zero keeps provider defaults.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	EndpointingMS  int
	UtteranceEndMS int
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial      TranscriptKind = "partial"
	TranscriptKindFinal        TranscriptKind = "final"
	TranscriptKindUtteranceEnd TranscriptKind = "utterance_end"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind
	Text          string
	IsSpeechFinal bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// EligibilityGate decides whether the call entry point is usable.
type EligibilityGate interface {
	Check(ctx context.Context) (domain.EntryDecision, error)
}

// PermissionNegotiator obtains microphone access for a call.
type PermissionNegotiator interface {
	State() domain.PermissionState
	RequestMicrophone(ctx context.Context) (domain.InputHandle, error)
}

// SpeechInput produces one utterance per call.
type SpeechInput interface {
	Listen(ctx context.Context) (domain.Utterance, error)
	Stop() error
}

// ReplyFetcher turns an utterance into a backend reply.
type ReplyFetcher interface {
	GetReply(ctx context.Context, text string) (domain.Reply, error)
}

// SpeechOutput voices a reply and returns when playback has finished.
type SpeechOutput interface {
	Speak(ctx context.Context, reply domain.Reply) (domain.SpeechPath, error)
	StopAll()
}

// Synthesizer requests neural speech synthesis from the backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice string) (string, error)
}

// AssetFetcher downloads a backend audio asset.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, ref string) ([]byte, error)
}

// AudioPlayer plays encoded audio through the output device.
type AudioPlayer interface {
	Play(ctx context.Context, data []byte) error
	StopAll()
}

// ToneOutput produces a short test tone on the output device.
type ToneOutput interface {
	PlayTestTone(ctx context.Context) error
}

// PlatformSpeaker is the built-in text to speech of the host.
type PlatformSpeaker interface {
	Say(ctx context.Context, text string) error
	Cancel()
}

// EventSink emits client state and events to the UI.
type EventSink interface {
	CallStateChanged(status domain.Status, reason domain.CallReason)
	TranscriptRecognized(text string)
	ReplyReceived(reply domain.Reply)
	PermissionChanged(state domain.PermissionState)
	Notify(notice domain.Notice)
	CallError(code domain.ErrorCode, detail string)
}
