// Package permission negotiates microphone access and tests audio output.
package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

// ErrRequestInProgress is returned while an earlier request is still waiting on the platform.
var ErrRequestInProgress = errors.New("microphone request already in progress")

const successDismiss = 2 * time.Second

// Access is the externally observed microphone permission.
type Access string

const (
	AccessGranted Access = "granted"
	AccessDenied  Access = "denied"
)

// Change is one observation from Platform.Watch. Handle is set when access is granted.
type Change struct {
	Access Access
	Handle domain.InputHandle
}

// Platform is the host permission system.
// RequestMicrophone fails with domain.ErrPermissionDenied when the host refuses access.
type Platform interface {
	RequestMicrophone(ctx context.Context) (domain.InputHandle, error)
	Watch(ctx context.Context) (<-chan Change, error)
}

// Options tunes a Negotiator.
type Options struct {
	Grace     time.Duration
	UserAgent string
	GOOS      string
}

// Negotiator owns the permission state for the lifetime of the view.
type Negotiator struct {
	platform Platform
	tone     ports.ToneOutput
	events   ports.EventSink
	grace    time.Duration
	goos     string

	mu        sync.Mutex
	state     domain.PermissionState
	handle    domain.InputHandle
	userAgent string
}

func NewNegotiator(platform Platform, tone ports.ToneOutput, events ports.EventSink, opts Options) *Negotiator {
	if events == nil {
		events = nopSink{}
	}
	if opts.Grace < 0 {
		opts.Grace = 0
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	return &Negotiator{
		platform:  platform,
		tone:      tone,
		events:    events,
		grace:     opts.Grace,
		goos:      opts.GOOS,
		state:     domain.PermissionState{Microphone: domain.MicrophoneUnknown},
		userAgent: opts.UserAgent,
	}
}

func (n *Negotiator) State() domain.PermissionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetUserAgent changes which agent recovery guides are written for.
func (n *Negotiator) SetUserAgent(userAgent string) {
	n.mu.Lock()
	n.userAgent = userAgent
	n.mu.Unlock()
}

// Agent is the agent recovery guides are currently written for.
func (n *Negotiator) Agent() Agent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return DetectAgent(n.userAgent, n.goos)
}

// RequestMicrophone asks the platform for microphone access. A granted permission
// returns the cached handle without asking again.
func (n *Negotiator) RequestMicrophone(ctx context.Context) (domain.InputHandle, error) {
	n.mu.Lock()
	switch n.state.Microphone {
	case domain.MicrophoneGranted:
		handle := n.handle
		n.mu.Unlock()
		return handle, nil
	case domain.MicrophoneRequesting:
		n.mu.Unlock()
		return domain.InputHandle{}, ErrRequestInProgress
	}
	previous := n.state.Microphone
	n.state.Microphone = domain.MicrophoneRequesting
	state := n.state
	n.mu.Unlock()

	n.events.PermissionChanged(state)
	n.events.Notify(domain.Notice{
		Kind:    domain.NoticeInfo,
		Title:   "Voice Call Permission",
		Message: "Your system will ask permission to use your microphone for voice calling.",
		Steps:   []string{`Please click "Allow" if a permission dialog appears.`},
	})

	if err := wait(ctx, n.grace); err != nil {
		n.setMicrophone(previous)
		return domain.InputHandle{}, err
	}

	handle, err := n.platform.RequestMicrophone(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		n.setMicrophone(previous)
		return domain.InputHandle{}, ctxErr
	}

	if err == nil {
		n.mu.Lock()
		n.state.Microphone = domain.MicrophoneGranted
		n.handle = handle
		state = n.state
		n.mu.Unlock()

		n.events.PermissionChanged(state)
		n.events.Notify(domain.Notice{
			Kind:        domain.NoticeSuccess,
			Title:       "Microphone access granted",
			AutoDismiss: successDismiss,
		})
		return handle, nil
	}

	n.setMicrophone(domain.MicrophoneDenied)
	if errors.Is(err, domain.ErrPermissionDenied) {
		slog.Warn("Microphone permission denied", "err", err)
		n.events.Notify(Instructions(n.Agent(), DeviceMicrophone))
		return domain.InputHandle{}, err
	}

	slog.Warn("Microphone request failed", "err", err)
	n.events.Notify(domain.Notice{
		Kind:    domain.NoticeError,
		Title:   "Error",
		Message: err.Error(),
	})
	if !errors.Is(err, domain.ErrMicrophoneUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrMicrophoneUnavailable, err)
	}
	return domain.InputHandle{}, err
}

// TestAudioOutput plays a near-silent tone. Microphone state is left alone.
func (n *Negotiator) TestAudioOutput(ctx context.Context) error {
	var err error
	if n.tone == nil {
		err = errors.New("no audio output configured")
	} else {
		err = n.tone.PlayTestTone(ctx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		slog.Warn("Speaker test failed", "err", err)
		n.events.Notify(Instructions(n.Agent(), DeviceSpeaker))
		if !errors.Is(err, domain.ErrAudioOutputUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrAudioOutputUnavailable, err)
		}
		return err
	}

	n.mu.Lock()
	n.state.SpeakerTested = true
	state := n.state
	n.mu.Unlock()
	n.events.PermissionChanged(state)
	return nil
}

// RequestPermissions requests the microphone and then tests the speaker. A
// failed speaker test is reported through speakerErr and does not undo the grant.
func (n *Negotiator) RequestPermissions(ctx context.Context) (handle domain.InputHandle, speakerErr error, err error) {
	handle, err = n.RequestMicrophone(ctx)
	if err != nil {
		return domain.InputHandle{}, nil, err
	}
	return handle, n.TestAudioOutput(ctx), nil
}

// Watch follows external permission changes until ctx is done or the platform
// stops reporting.
func (n *Negotiator) Watch(ctx context.Context) error {
	changes, err := n.platform.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch microphone permission: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			n.observe(change)
		}
	}
}

func (n *Negotiator) observe(change Change) {
	n.mu.Lock()
	current := n.state.Microphone
	if current == domain.MicrophoneRequesting {
		n.mu.Unlock()
		return
	}

	var next domain.MicrophoneState
	switch change.Access {
	case AccessGranted:
		if current == domain.MicrophoneGranted {
			n.mu.Unlock()
			return
		}
		next = domain.MicrophoneGranted
		n.handle = change.Handle
	case AccessDenied:
		if current == domain.MicrophoneDenied {
			n.mu.Unlock()
			return
		}
		next = domain.MicrophoneDenied
		n.handle = domain.InputHandle{}
	default:
		n.mu.Unlock()
		return
	}
	n.state.Microphone = next
	state := n.state
	n.mu.Unlock()

	slog.Info("Microphone permission changed", "state", next)
	n.events.PermissionChanged(state)
	if next == domain.MicrophoneDenied {
		n.events.Notify(Instructions(n.Agent(), DeviceMicrophone))
	}
}

func (n *Negotiator) setMicrophone(value domain.MicrophoneState) {
	n.mu.Lock()
	n.state.Microphone = value
	state := n.state
	n.mu.Unlock()
	n.events.PermissionChanged(state)
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

type nopSink struct{}

func (nopSink) CallStateChanged(domain.Status, domain.CallReason) {}
func (nopSink) TranscriptRecognized(string)                       {}
func (nopSink) ReplyReceived(domain.Reply)                        {}
func (nopSink) PermissionChanged(domain.PermissionState)          {}
func (nopSink) Notify(domain.Notice)                              {}
func (nopSink) CallError(domain.ErrorCode, string)                {}
