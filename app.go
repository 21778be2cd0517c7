package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"voicecall/internal/bootstrap"
	"voicecall/internal/config"
	"voicecall/internal/domain"
	"voicecall/internal/logging"
)

const (
	eventCall       = "voicecall:call"
	eventTranscript = "voicecall:transcript"
	eventReply      = "voicecall:reply"
	eventPermission = "voicecall:permission"
	eventNotice     = "voicecall:notice"
	eventError      = "voicecall:error"
	eventChat       = "voicecall:chat"

	envFile = ".env"
)

// App is the Wails application root.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	emit   func(ctx context.Context, name string, data ...interface{})

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	cfg, err := config.LoadFile(envFile)
	if err != nil {
		a.fail(err)
		return
	}
	logging.Setup(cfg.Log.Level)

	services, err := bootstrap.Build(cfg, a)
	if err != nil {
		a.fail(err)
		return
	}
	a.services = &services

	go func() {
		if err := services.Permissions.Watch(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Microphone permission watch stopped", "err", err)
		}
	}()
	go func() {
		if err := services.Channel.Run(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Chat channel stopped", "err", err)
		}
	}()
	go a.forwardChat()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := services.Metrics.Serve(a.ctx, cfg.Metrics.Addr); err != nil {
				slog.Warn("Metrics endpoint stopped", "err", err)
			}
		}()
	}

	a.CallStateChanged(services.Controller.Status(), "")
}

func (a *App) shutdown(context.Context) {
	if a.services != nil {
		a.services.Controller.End()
		_ = a.services.Channel.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *App) fail(err error) {
	a.bootErr = err
	slog.Error("Startup failed", "err", err)
	a.CallError(domain.ErrorCodeStartup, err.Error())
}

func (a *App) forwardChat() {
	for response := range a.services.Channel.Responses() {
		a.send(eventChat, response)
	}
}

// StartCall places a voice call. It resolves once the call is connecting.
func (a *App) StartCall() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// EndCall hangs up. It is safe to call with no call in progress.
func (a *App) EndCall() domain.Status {
	if a.requireReady() != nil {
		return a.GetStatus()
	}
	a.services.Controller.End()
	return a.services.Controller.Status()
}

// ToggleCall is bound to the call button.
func (a *App) ToggleCall() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Toggle(a.ctx); err != nil {
		return a.services.Controller.Status(), err
	}
	return a.services.Controller.Status(), nil
}

// CheckEligibility decides how the call entry point renders. Backend failures
// come back as a disabled decision rather than an error.
func (a *App) CheckEligibility() (domain.EntryDecision, error) {
	if err := a.requireReady(); err != nil {
		return domain.EntryDecision{}, err
	}
	// Failures are logged by the gate and come back as a disabled decision.
	decision, _ := a.services.Gate.Check(a.ctx)
	return decision, nil
}

// RequestPermissions asks for the microphone and plays a test tone.
func (a *App) RequestPermissions() (domain.PermissionState, error) {
	if err := a.requireReady(); err != nil {
		return domain.PermissionState{}, err
	}
	_, speakerErr, err := a.services.Permissions.RequestPermissions(a.ctx)
	a.speakerFailed(speakerErr)
	return a.services.Permissions.State(), err
}

// TestSpeaker plays the output test tone.
func (a *App) TestSpeaker() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.services.Permissions.TestAudioOutput(a.ctx)
	a.speakerFailed(err)
	return err
}

func (a *App) speakerFailed(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	a.CallError(domain.ErrorCodeAudioOutput, err.Error())
}

// GetPermissionState returns the current microphone and speaker state.
func (a *App) GetPermissionState() domain.PermissionState {
	if a.services == nil {
		return domain.PermissionState{Microphone: domain.MicrophoneUnknown}
	}
	return a.services.Permissions.State()
}

// SetUserAgent selects the browser specific permission instructions.
func (a *App) SetUserAgent(userAgent string) {
	if a.services != nil {
		a.services.Permissions.SetUserAgent(userAgent)
	}
}

// GetStatus returns the current call status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.CallStatusIdle, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.CallStatusIdle, Active: false}
	}
	return a.services.Controller.Status()
}

// GetChatHistory returns one page of the stored conversation.
func (a *App) GetChatHistory(page int, perPage int) ([]domain.ChatMessage, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	messages, err := a.services.Backend.ChatHistory(a.ctx, page, perPage)
	if err != nil {
		a.CallError(domain.ErrorCodeChat, err.Error())
		return nil, err
	}
	return messages, nil
}

// SendChatMessage sends text over the chat channel. The reply arrives as a
// voicecall:chat event.
func (a *App) SendChatMessage(message string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	id, err := a.services.Channel.Send(a.ctx, message)
	if err != nil {
		a.CallError(domain.ErrorCodeChat, err.Error())
		return "", err
	}
	return id, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"backend":          cfg.Backend.BaseURL,
		"proxied":          strconv.FormatBool(cfg.Backend.ProxyAddr != ""),
		"provider":         "Deepgram",
		"model":            cfg.Deepgram.Model,
		"language":         cfg.Deepgram.Language,
		"voice":            cfg.Speech.Voice,
		"ttsProvider":      cfg.Speech.Provider,
		"lexiconFile":      cfg.Speech.LexiconPath,
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) send(name string, data interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

// CallStateChanged emits call lifecycle updates to the frontend.
func (a *App) CallStateChanged(status domain.Status, reason domain.CallReason) {
	a.send(eventCall, map[string]interface{}{
		"state":   string(status.State),
		"active":  status.Active,
		"reason":  string(reason),
		"message": callReasonMessage(reason, status.Message),
		"status":  status,
	})
}

// TranscriptRecognized emits what the user said.
func (a *App) TranscriptRecognized(text string) {
	a.send(eventTranscript, map[string]string{"text": text})
}

// ReplyReceived emits the backend's reply text.
func (a *App) ReplyReceived(reply domain.Reply) {
	a.send(eventReply, reply)
}

// PermissionChanged emits microphone permission updates.
func (a *App) PermissionChanged(state domain.PermissionState) {
	a.send(eventPermission, state)
}

// Notify emits a transient notice.
func (a *App) Notify(notice domain.Notice) {
	a.send(eventNotice, map[string]interface{}{
		"kind":        string(notice.Kind),
		"title":       notice.Title,
		"message":     notice.Message,
		"steps":       notice.Steps,
		"autoDismiss": notice.AutoDismiss.Milliseconds(),
	})
}

// CallError emits backend errors to the UI.
func (a *App) CallError(code domain.ErrorCode, detail string) {
	a.send(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func callReasonMessage(reason domain.CallReason, fallback string) string {
	switch reason {
	case domain.CallReasonStarted:
		return "Connecting..."
	case domain.CallReasonListening, domain.CallReasonListeningResumed:
		return "Listening..."
	case domain.CallReasonThinking:
		return "Thinking..."
	case domain.CallReasonSpeaking:
		return "Speaking..."
	case domain.CallReasonUserEnded:
		return "Call ended"
	case domain.CallReasonPermissionDenied:
		return "Microphone access denied"
	case domain.CallReasonPermissionRevoked:
		return "Microphone access was revoked"
	case domain.CallReasonNotEligible:
		return "Voice calls are not available"
	case domain.CallReasonRecognitionFailed:
		return "Speech recognition kept failing"
	case domain.CallReasonReplyFailed:
		return "The assistant is not responding"
	case domain.CallReasonReplyCooldown:
		return "Error occurred"
	default:
		return fallback
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeEligibility:
		return "Could not check voice call access"
	case domain.ErrorCodePermission:
		return "Microphone permission issue"
	case domain.ErrorCodeRecognition:
		return "Speech recognition error"
	case domain.ErrorCodeReply:
		return "Reply failed"
	case domain.ErrorCodeSpeech:
		return "Speech output failed"
	case domain.ErrorCodeAudioOutput:
		return "Audio output issue"
	case domain.ErrorCodeChat:
		return "Chat error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
