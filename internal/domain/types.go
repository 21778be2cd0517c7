package domain

import "time"

// CallStatus models the voice call lifecycle.
type CallStatus string

const (
	CallStatusIdle       CallStatus = "idle"
	CallStatusConnecting CallStatus = "connecting"
	CallStatusListening  CallStatus = "listening"
	CallStatusThinking   CallStatus = "thinking"
	CallStatusSpeaking   CallStatus = "speaking"
	CallStatusEnded      CallStatus = "ended"
)

// CallReason provides a structured reason for call state transitions.
type CallReason string

const (
	CallReasonStarted           CallReason = "call_started"
	CallReasonListening         CallReason = "listening"
	CallReasonListeningResumed  CallReason = "listening_resumed"
	CallReasonThinking          CallReason = "thinking"
	CallReasonSpeaking          CallReason = "speaking"
	CallReasonUserEnded         CallReason = "user_ended"
	CallReasonPermissionDenied  CallReason = "permission_denied"
	CallReasonPermissionRevoked CallReason = "permission_revoked"
	CallReasonNotEligible       CallReason = "not_eligible"
	CallReasonRecognitionFailed CallReason = "recognition_failed"
	CallReasonReplyFailed       CallReason = "reply_failed"
	CallReasonRecognitionRetry  CallReason = "recognition_retry"
	CallReasonReplyCooldown     CallReason = "reply_cooldown"
)

// ErrorCode identifies non-fatal and fatal client errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeEligibility ErrorCode = "eligibility"
	ErrorCodePermission  ErrorCode = "permission"
	ErrorCodeRecognition ErrorCode = "recognition"
	ErrorCodeReply       ErrorCode = "reply"
	ErrorCodeSpeech      ErrorCode = "speech"
	ErrorCodeAudioOutput ErrorCode = "audio_output"
	ErrorCodeChat        ErrorCode = "chat"
)

// Role is the caller's entitlement tier.
type Role string

const (
	RoleAdmin Role = "admin"
	RolePaid  Role = "paid"
	RoleFree  Role = "free"
)

// EligibilityStatus is the caller's voice call entitlement for the current check.
type EligibilityStatus struct {
	Role             Role   `json:"role"`
	Eligible         bool   `json:"eligible"`
	Unlimited        bool   `json:"unlimited"`
	RemainingMinutes int    `json:"remainingMinutes"`
	Message          string `json:"message"`
}

// EntryAction is what the call entry point does when activated.
type EntryAction string

const (
	EntryActionStartCall  EntryAction = "start_call"
	EntryActionShowUpsell EntryAction = "show_upsell"
	EntryActionNone       EntryAction = "none"
)

// EntryDecision is the UI state derived from an eligibility check.
type EntryDecision struct {
	Enabled   bool              `json:"enabled"`
	Unlimited bool              `json:"unlimited"`
	Reason    string            `json:"reason,omitempty"`
	Indicator string            `json:"indicator,omitempty"`
	Action    EntryAction       `json:"action"`
	Status    EligibilityStatus `json:"status"`
}

// MicrophoneState tracks the microphone permission.
type MicrophoneState string

const (
	MicrophoneUnknown    MicrophoneState = "unknown"
	MicrophoneRequesting MicrophoneState = "requesting"
	MicrophoneGranted    MicrophoneState = "granted"
	MicrophoneDenied     MicrophoneState = "denied"
)

// PermissionState is owned by the permission negotiator for the lifetime of the view.
type PermissionState struct {
	Microphone    MicrophoneState `json:"microphone"`
	SpeakerTested bool            `json:"speakerTested"`
}

// InputHandle identifies a microphone the platform granted access to.
type InputHandle struct {
	Format string `json:"format"`
	Device string `json:"device"`
}

// Utterance is one recognized span of user speech.
type Utterance struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Reply is the backend's answer to one utterance.
type Reply struct {
	Text     string `json:"text"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// SpeechPath names the output strategy that voiced a reply.
type SpeechPath string

const (
	SpeechPathNone         SpeechPath = "none"
	SpeechPathBackendAudio SpeechPath = "backend_audio"
	SpeechPathNeuralTTS    SpeechPath = "neural_tts"
	SpeechPathPlatform     SpeechPath = "platform"
)

// NoticeKind mirrors the severity of a user facing notice.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message shown to the user outside the call view.
type Notice struct {
	Kind        NoticeKind    `json:"kind"`
	Title       string        `json:"title"`
	Message     string        `json:"message"`
	Steps       []string      `json:"steps,omitempty"`
	AutoDismiss time.Duration `json:"autoDismiss,omitempty"`
}

// Status summarizes the current call.
type Status struct {
	State      CallStatus `json:"state"`
	Active     bool       `json:"active"`
	SessionID  string     `json:"sessionId,omitempty"`
	Transcript string     `json:"transcript,omitempty"`
	LastReply  string     `json:"lastReply,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// ChatMessage is one entry of the stored conversation.
type ChatMessage struct {
	Content   string `json:"content"`
	FromUser  bool   `json:"fromUser"`
	Timestamp string `json:"timestamp"`
}

// ChatResponse is a server push on the duplex chat channel.
type ChatResponse struct {
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}
