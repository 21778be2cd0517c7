package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

// Strategy is one way of voicing a reply. Applies decides whether it is tried at all.
type Strategy struct {
	Name    domain.SpeechPath
	Applies func(reply domain.Reply) bool
	Speak   func(ctx context.Context, text string, reply domain.Reply) error
}

// Pronouncer rewrites reply text before synthesis.
type Pronouncer interface {
	Apply(text string) (string, error)
}

// Recorder observes each strategy attempt.
type Recorder interface {
	SpeechAttempt(path string, err error)
}

// OutputDeps are the collaborators of the default strategy chain.
type OutputDeps struct {
	Assets      ports.AssetFetcher
	Synthesizer ports.Synthesizer
	Player      ports.AudioPlayer
	Platform    ports.PlatformSpeaker
	Voice       string
	Pronouncer  Pronouncer
	Recorder    Recorder
}

// Output tries its strategies in order until one voices the reply.
type Output struct {
	strategies []Strategy
	player     ports.AudioPlayer
	platform   ports.PlatformSpeaker
	pronouncer Pronouncer
	recorder   Recorder
}

// NewOutput builds the backend audio, neural TTS, platform synthesis chain.
func NewOutput(deps OutputDeps) *Output {
	out := &Output{
		player:     deps.Player,
		platform:   deps.Platform,
		pronouncer: deps.Pronouncer,
		recorder:   deps.Recorder,
	}

	if deps.Assets != nil && deps.Player != nil {
		out.strategies = append(out.strategies, BackendAudio(deps.Assets, deps.Player))
		if deps.Synthesizer != nil {
			out.strategies = append(out.strategies, NeuralTTS(deps.Synthesizer, deps.Assets, deps.Player, deps.Voice))
		}
	}
	if deps.Platform != nil {
		out.strategies = append(out.strategies, Platform(deps.Platform))
	}
	return out
}

// Speak blocks until the reply has been voiced. Cancellation stops the chain at once.
func (o *Output) Speak(ctx context.Context, reply domain.Reply) (domain.SpeechPath, error) {
	text := o.spokenText(reply.Text)

	var failures []error
	for _, strategy := range o.strategies {
		if strategy.Applies != nil && !strategy.Applies(reply) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return domain.SpeechPathNone, err
		}

		err := strategy.Speak(ctx, text, reply)
		if o.recorder != nil {
			o.recorder.SpeechAttempt(string(strategy.Name), err)
		}
		if err == nil {
			return strategy.Name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.SpeechPathNone, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return domain.SpeechPathNone, err
		}

		slog.Warn("Speech strategy failed, falling back", "path", strategy.Name, "err", err)
		failures = append(failures, fmt.Errorf("%s: %w", strategy.Name, err))
	}

	return domain.SpeechPathNone, errors.Join(append([]error{domain.ErrSpeechUnavailable}, failures...)...)
}

// StopAll halts playback and platform synthesis.
func (o *Output) StopAll() {
	if o.player != nil {
		o.player.StopAll()
	}
	if o.platform != nil {
		o.platform.Cancel()
	}
}

func (o *Output) spokenText(text string) string {
	if o.pronouncer == nil {
		return text
	}
	spoken, err := o.pronouncer.Apply(text)
	if err != nil || strings.TrimSpace(spoken) == "" {
		return text
	}
	return spoken
}

// BackendAudio plays the asset the chat endpoint already synthesized.
func BackendAudio(assets ports.AssetFetcher, player ports.AudioPlayer) Strategy {
	return Strategy{
		Name: domain.SpeechPathBackendAudio,
		Applies: func(reply domain.Reply) bool {
			return reply.AudioURL != ""
		},
		Speak: func(ctx context.Context, _ string, reply domain.Reply) error {
			return playAsset(ctx, assets, player, reply.AudioURL)
		},
	}
}

// NeuralTTS asks the backend to synthesize replies that arrived without audio.
func NeuralTTS(synth ports.Synthesizer, assets ports.AssetFetcher, player ports.AudioPlayer, voice string) Strategy {
	return Strategy{
		Name: domain.SpeechPathNeuralTTS,
		Applies: func(reply domain.Reply) bool {
			return reply.AudioURL == "" && strings.TrimSpace(reply.Text) != ""
		},
		Speak: func(ctx context.Context, text string, _ domain.Reply) error {
			ref, err := synth.Synthesize(ctx, text, voice)
			if err != nil {
				return err
			}
			return playAsset(ctx, assets, player, ref)
		},
	}
}

// Platform speaks through the host synthesizer. It applies to any reply with text.
func Platform(speaker ports.PlatformSpeaker) Strategy {
	return Strategy{
		Name: domain.SpeechPathPlatform,
		Applies: func(reply domain.Reply) bool {
			return strings.TrimSpace(reply.Text) != ""
		},
		Speak: func(ctx context.Context, text string, _ domain.Reply) error {
			return speaker.Say(ctx, text)
		},
	}
}

func playAsset(ctx context.Context, assets ports.AssetFetcher, player ports.AudioPlayer, ref string) error {
	data, err := assets.FetchAsset(ctx, ref)
	if err != nil {
		return err
	}
	return player.Play(ctx, data)
}
