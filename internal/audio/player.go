package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"voicecall/internal/domain"
)

const (
	outputSampleRate = beep.SampleRate(44100)
	resampleQuality  = 4

	toneFrequency = 440.0
	toneGain      = 0.01
	toneDuration  = 10 * time.Millisecond
)

// ErrUnsupportedFormat means an asset was not mp3, wav or ogg vorbis.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

type outputDevice interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
}

type speakerDevice struct{}

func (speakerDevice) Init(rate beep.SampleRate, bufferSize int) error {
	return speaker.Init(rate, bufferSize)
}

func (speakerDevice) Play(s beep.Streamer) { speaker.Play(s) }

func (speakerDevice) Clear() { speaker.Clear() }

// Player plays backend audio assets and the speaker test tone.
type Player struct {
	device outputDevice

	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool

	mu     sync.Mutex
	active map[chan struct{}]struct{}
}

func NewPlayer() *Player {
	return newPlayer(speakerDevice{})
}

func newPlayer(device outputDevice) *Player {
	return &Player{device: device, active: make(map[chan struct{}]struct{})}
}

// Play decodes data and blocks until playback finishes, ctx ends or StopAll is called.
func (p *Player) Play(ctx context.Context, data []byte) error {
	stream, format, err := decode(data)
	if err != nil {
		return err
	}
	defer stream.Close()

	var source beep.Streamer = stream
	if format.SampleRate != outputSampleRate {
		source = beep.Resample(resampleQuality, format.SampleRate, outputSampleRate, stream)
	}
	return p.run(ctx, source)
}

// PlayTestTone emits a short, near-silent sine wave.
func (p *Player) PlayTestTone(ctx context.Context) error {
	if err := p.run(ctx, tone(outputSampleRate, toneDuration)); err != nil {
		return fmt.Errorf("test tone: %w", err)
	}
	return nil
}

// StopAll cuts every playing stream and releases blocked callers.
func (p *Player) StopAll() {
	p.mu.Lock()
	for stopped := range p.active {
		close(stopped)
		delete(p.active, stopped)
	}
	p.mu.Unlock()

	if p.initialized.Load() {
		p.device.Clear()
	}
}

func (p *Player) run(ctx context.Context, source beep.Streamer) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	p.mu.Lock()
	p.active[stopped] = struct{}{}
	p.mu.Unlock()
	defer p.release(stopped)

	p.device.Play(beep.Seq(source, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-stopped:
		return context.Canceled
	case <-ctx.Done():
		p.device.Clear()
		return ctx.Err()
	}
}

func (p *Player) release(stopped chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, stopped)
}

func (p *Player) ready() error {
	p.initOnce.Do(func() {
		if err := p.device.Init(outputSampleRate, outputSampleRate.N(time.Second/10)); err != nil {
			slog.Warn("Audio output init failed", "err", err)
			p.initErr = fmt.Errorf("%w: %v", domain.ErrAudioOutputUnavailable, err)
			return
		}
		p.initialized.Store(true)
	})
	return p.initErr
}

func decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	rc := io.NopCloser(bytes.NewReader(data))

	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch sniff(data) {
	case "wav":
		stream, format, err = wav.Decode(rc)
	case "ogg":
		stream, format, err = vorbis.Decode(rc)
	case "mp3":
		stream, format, err = mp3.Decode(rc)
	default:
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode audio: %w", err)
	}
	return stream, format, nil
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

func tone(rate beep.SampleRate, d time.Duration) beep.Streamer {
	step := 2 * math.Pi * toneFrequency / float64(rate)
	var phase float64
	sine := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := toneGain * math.Sin(phase)
			samples[i][0] = v
			samples[i][1] = v
			phase += step
		}
		return len(samples), true
	})
	return beep.Take(rate.N(d), sine)
}
