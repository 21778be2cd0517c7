package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

// Apology is shown in place of a reply the backend could not produce.
const Apology = "I'm sorry, I couldn't process your request right now."

// Config controls call pacing and retry caps.
type Config struct {
	SettleDelay           time.Duration
	RestartPause          time.Duration
	RecognitionRetryDelay time.Duration
	ReplyCooldown         time.Duration
	MaxRecognitionRetries int
	MaxReplyFailures      int
}

// Recorder receives call metrics.
type Recorder interface {
	CallStarted()
	CallEnded(reason string)
	TurnCompleted()
	RecognitionError(kind string)
	ReplyObserved(elapsed time.Duration, err error)
}

// Deps are the collaborators of a Controller. Gate and Permissions may be nil.
type Deps struct {
	Gate        ports.EligibilityGate
	Permissions ports.PermissionNegotiator
	Input       ports.SpeechInput
	Replies     ports.ReplyFetcher
	Output      ports.SpeechOutput
	Events      ports.EventSink
	Metrics     Recorder
}

// Controller owns at most one call at a time.
type Controller struct {
	gate        ports.EligibilityGate
	permissions ports.PermissionNegotiator
	input       ports.SpeechInput
	replies     ports.ReplyFetcher
	output      ports.SpeechOutput
	events      ports.EventSink
	metrics     Recorder
	cfg         Config

	mu      sync.Mutex
	current *callSession
}

func NewController(deps Deps, cfg Config) *Controller {
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if cfg.MaxRecognitionRetries <= 0 {
		cfg.MaxRecognitionRetries = 5
	}
	if cfg.MaxReplyFailures <= 0 {
		cfg.MaxReplyFailures = 3
	}
	return &Controller{
		gate:        deps.Gate,
		permissions: deps.Permissions,
		input:       deps.Input,
		replies:     deps.Replies,
		output:      deps.Output,
		events:      deps.Events,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
}

// Start begins a call. It returns nil without doing anything when a call is
// already active. Eligibility and microphone permission are settled before it
// returns; the conversation itself runs in the background.
func (c *Controller) Start(ctx context.Context) error {
	session, err := c.reserve(ctx)
	if err != nil || session == nil {
		return err
	}

	spawned := false
	defer func() {
		if !spawned {
			c.release(session)
		}
	}()

	c.metrics.CallStarted()
	slog.Info("Call starting", "session", session.id)

	if c.gate != nil {
		decision, err := c.gate.Check(session.ctx)
		if session.ctx.Err() != nil {
			return c.interrupted(session)
		}
		if err != nil {
			c.events.CallError(domain.ErrorCodeEligibility, err.Error())
			c.finish(session, domain.CallReasonNotEligible)
			return fmt.Errorf("%w: %w", domain.ErrNotEligible, err)
		}
		if !decision.Enabled {
			c.finish(session, domain.CallReasonNotEligible)
			return fmt.Errorf("%w: %s", domain.ErrNotEligible, decision.Reason)
		}
	}

	if c.permissions != nil {
		if _, err := c.permissions.RequestMicrophone(session.ctx); err != nil {
			if session.ctx.Err() != nil {
				return c.interrupted(session)
			}
			slog.Warn("Call blocked by microphone permission", "session", session.id, "err", err)
			c.events.CallError(domain.ErrorCodePermission, err.Error())
			c.finish(session, domain.CallReasonPermissionDenied)
			return err
		}
	}

	if !c.transition(session, domain.CallStatusConnecting, domain.CallReasonStarted, "Connecting...") {
		return c.interrupted(session)
	}

	spawned = true
	go c.run(session)
	return nil
}

// Toggle ends an active call or starts a new one.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.Active() {
		c.End()
		return nil
	}
	return c.Start(ctx)
}

// End stops the active call from any state. Calling it again, or with no
// call, does nothing.
func (c *Controller) End() {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	if session == nil {
		return
	}
	if !c.finish(session, domain.CallReasonUserEnded) {
		return
	}

	if c.input != nil {
		if err := c.input.Stop(); err != nil {
			slog.Debug("Ignoring recognition stop failure", "err", err)
		}
	}
	if c.output != nil {
		c.output.StopAll()
	}
	slog.Info("Call ended", "session", session.id)
}

// Active reports whether a call is in progress.
func (c *Controller) Active() bool {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	return session != nil && !session.isFinished()
}

// Status returns the current call state. With no call it reports idle.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	session := c.current
	c.mu.Unlock()
	if session == nil {
		return domain.Status{State: domain.CallStatusIdle}
	}
	return session.status()
}

func (c *Controller) run(session *callSession) {
	defer c.release(session)
	defer c.abandon(session)

	if wait(session.ctx, c.cfg.SettleDelay) != nil {
		return
	}

	reason := domain.CallReasonListening
	recognitionFailures := 0
	replyFailures := 0

	for {
		if !c.transition(session, domain.CallStatusListening, reason, "Listening...") {
			return
		}

		utterance, err := c.input.Listen(session.ctx)
		if session.ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(utterance.Text)
		if err == nil && text == "" {
			err = domain.ErrNoSpeech
		}
		if err != nil {
			next, ok := c.recognitionFailed(session, err, &recognitionFailures)
			if !ok {
				return
			}
			reason = next
			continue
		}
		recognitionFailures = 0

		session.setTranscript(text)
		c.events.TranscriptRecognized(text)
		if !c.transition(session, domain.CallStatusThinking, domain.CallReasonThinking, "Thinking...") {
			return
		}

		started := time.Now()
		reply, err := c.replies.GetReply(session.ctx, text)
		if session.ctx.Err() != nil {
			return
		}
		c.metrics.ReplyObserved(time.Since(started), err)
		if err != nil {
			replyFailures++
			slog.Warn("Reply failed", "session", session.id, "failures", replyFailures, "err", err)
			session.setReply(Apology)
			c.events.ReplyReceived(domain.Reply{Text: Apology})
			c.events.CallError(domain.ErrorCodeReply, err.Error())
			if replyFailures >= c.cfg.MaxReplyFailures {
				c.finish(session, domain.CallReasonReplyFailed)
				return
			}
			if !c.transition(session, domain.CallStatusThinking, domain.CallReasonReplyCooldown, "Error occurred") {
				return
			}
			if wait(session.ctx, c.cfg.ReplyCooldown) != nil {
				return
			}
			reason = domain.CallReasonListeningResumed
			continue
		}
		replyFailures = 0

		session.setReply(reply.Text)
		c.events.ReplyReceived(reply)
		if !c.transition(session, domain.CallStatusSpeaking, domain.CallReasonSpeaking, "Speaking...") {
			return
		}

		path, err := c.output.Speak(session.ctx, reply)
		if session.ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Warn("Reply could not be spoken", "session", session.id, "err", err)
			c.events.CallError(domain.ErrorCodeSpeech, err.Error())
		} else {
			slog.Debug("Reply spoken", "session", session.id, "path", path)
		}
		c.metrics.TurnCompleted()
		reason = domain.CallReasonListeningResumed
	}
}

// recognitionFailed decides whether the loop listens again and with which reason.
func (c *Controller) recognitionFailed(session *callSession, err error, failures *int) (domain.CallReason, bool) {
	switch {
	case errors.Is(err, domain.ErrPermissionRevoked):
		c.metrics.RecognitionError("permission_revoked")
		slog.Warn("Microphone permission lost during call", "session", session.id, "err", err)
		c.events.CallError(domain.ErrorCodePermission, err.Error())
		c.finish(session, domain.CallReasonPermissionRevoked)
		return "", false

	case errors.Is(err, domain.ErrNoSpeech):
		if wait(session.ctx, c.cfg.RestartPause) != nil {
			return "", false
		}
		return domain.CallReasonListeningResumed, true
	}

	*failures++
	c.metrics.RecognitionError("transient")
	if *failures >= c.cfg.MaxRecognitionRetries {
		slog.Warn("Recognition kept failing", "session", session.id, "failures", *failures, "err", err)
		c.events.CallError(domain.ErrorCodeRecognition, err.Error())
		c.finish(session, domain.CallReasonRecognitionFailed)
		return "", false
	}

	slog.Debug("Recognition failed, retrying", "session", session.id, "failures", *failures, "err", err)
	if !c.transition(session, domain.CallStatusListening, domain.CallReasonRecognitionRetry, "Error: "+err.Error()) {
		return "", false
	}
	if wait(session.ctx, c.cfg.RecognitionRetryDelay) != nil {
		return "", false
	}
	return domain.CallReasonListeningResumed, true
}

// reserve claims the call slot. A call that has ended but not yet released its
// devices is waited for.
func (c *Controller) reserve(ctx context.Context) (*callSession, error) {
	for {
		c.mu.Lock()
		previous := c.current
		if previous == nil {
			session := newCallSession(ctx, uuid.NewString())
			c.current = session
			c.mu.Unlock()
			return session, nil
		}
		c.mu.Unlock()

		if !previous.isFinished() {
			return nil, nil
		}
		select {
		case <-previous.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Controller) release(session *callSession) {
	session.releaseOnce.Do(func() {
		c.mu.Lock()
		if c.current == session {
			c.current = nil
		}
		c.mu.Unlock()
		close(session.done)
	})
}

// transition publishes a new state unless the call has already ended.
func (c *Controller) transition(session *callSession, state domain.CallStatus, reason domain.CallReason, message string) bool {
	session.emitMu.Lock()
	defer session.emitMu.Unlock()

	status, ok := session.advance(state, message)
	if !ok {
		return false
	}
	c.events.CallStateChanged(status, reason)
	return true
}

// finish ends the call once. It reports whether this call did the ending.
func (c *Controller) finish(session *callSession, reason domain.CallReason) bool {
	session.emitMu.Lock()
	defer session.emitMu.Unlock()

	status, ok := session.end()
	if !ok {
		return false
	}
	session.cancel()
	c.metrics.CallEnded(string(reason))
	c.events.CallStateChanged(status, reason)
	return true
}

func (c *Controller) abandon(session *callSession) bool {
	return c.finish(session, domain.CallReasonUserEnded)
}

// interrupted is the result of Start when the call was cancelled before it
// connected. A deliberate End is not an error.
func (c *Controller) interrupted(session *callSession) error {
	if !c.abandon(session) {
		return nil
	}
	return session.ctx.Err()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
