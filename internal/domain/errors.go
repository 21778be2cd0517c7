package domain

import "errors"

var (
	// ErrNetwork means the backend was unreachable or answered with a non-success status.
	ErrNetwork = errors.New("backend unreachable")
	// ErrBackend means the backend answered but the payload was unusable.
	ErrBackend = errors.New("backend error")

	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrPermissionRevoked      = errors.New("microphone permission revoked")
	ErrMicrophoneUnavailable  = errors.New("microphone unavailable")
	ErrAudioOutputUnavailable = errors.New("audio output unavailable")
	ErrSpeechUnavailable      = errors.New("no speech output path succeeded")
	ErrNotEligible            = errors.New("not eligible for voice calls")
	ErrNoSpeech               = errors.New("no speech recognized")
)
