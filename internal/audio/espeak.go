package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"voicecall/internal/domain"
)

const voiceLookupTimeout = 3 * time.Second

var femaleHints = []string{"female", "woman", "girl"}

// Voice is one entry of the synthesizer's voice list.
type Voice struct {
	Language string
	Gender   string
	Name     string
	File     string
}

// ESpeakSpeaker speaks text through the espeak-ng command line synthesizer.
type ESpeakSpeaker struct {
	command  string
	language string

	voiceMu       sync.Mutex
	voiceResolved bool
	voice         string

	mu      sync.Mutex
	current *exec.Cmd
}

func NewESpeakSpeaker(command string, language string) *ESpeakSpeaker {
	if command == "" {
		command = "espeak-ng"
	}
	if language == "" {
		language = "en"
	}
	return &ESpeakSpeaker{command: command, language: language}
}

// Say blocks until the utterance has been spoken. Cancel or ctx interrupts it.
func (s *ESpeakSpeaker) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	args := []string{}
	if voice := s.Voice(); voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, "--", text)

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	s.mu.Lock()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w: %w", s.command, err, domain.ErrSpeechUnavailable)
	}
	s.current = cmd
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	if s.current == cmd {
		s.current = nil
	}
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && !exitErr.Exited() {
			return context.Canceled
		}
		return fmt.Errorf("%s failed: %w: %s", s.command, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Cancel kills the utterance currently being spoken, if any.
func (s *ESpeakSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Process != nil {
		_ = s.current.Process.Kill()
	}
}

// Voice resolves the preferred voice. An empty result means the synthesizer
// default. A failed lookup is tried again on the next call.
func (s *ESpeakSpeaker) Voice() string {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	if s.voiceResolved {
		return s.voice
	}

	ctx, cancel := context.WithTimeout(context.Background(), voiceLookupTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, s.command, "--voices="+s.language).Output()
	if err != nil {
		slog.Debug("Voice list unavailable, using default voice", "err", err)
		return ""
	}

	s.voiceResolved = true
	if voice, ok := PreferFemale(ParseVoices(string(out))); ok {
		s.voice = voice.File
		if s.voice == "" {
			s.voice = voice.Name
		}
		slog.Debug("Selected platform voice", "voice", s.voice)
	}
	return s.voice
}

// ParseVoices reads the table printed by `espeak-ng --voices`.
func ParseVoices(output string) []Voice {
	var voices []Voice
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || strings.EqualFold(fields[0], "pty") {
			continue
		}

		gender := fields[2]
		if idx := strings.LastIndex(gender, "/"); idx >= 0 {
			gender = gender[idx+1:]
		}
		voice := Voice{Language: fields[1], Gender: strings.ToUpper(gender), Name: fields[3]}
		if len(fields) > 4 {
			voice.File = fields[4]
		}
		voices = append(voices, voice)
	}
	return voices
}

// PreferFemale picks a female-presenting voice by gender metadata, then by name.
func PreferFemale(voices []Voice) (Voice, bool) {
	for _, voice := range voices {
		if voice.Gender == "F" {
			return voice, true
		}
	}
	for _, voice := range voices {
		name := strings.ToLower(voice.Name)
		for _, hint := range femaleHints {
			if strings.Contains(name, hint) {
				return voice, true
			}
		}
	}
	return Voice{}, false
}
