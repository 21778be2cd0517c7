package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"voicecall/internal/domain"
	"voicecall/internal/ports"
)

const (
	settleDelay  = 100 * time.Millisecond
	pollInterval = 5 * time.Second
)

// Prober opens the capture device once and releases it.
type Prober interface {
	Probe(ctx context.Context, cfg ports.AudioConfig) error
}

// CapturePlatform treats a successful capture probe as a microphone grant and
// watches the device directory for access changes.
type CapturePlatform struct {
	prober    Prober
	audio     ports.AudioConfig
	deviceDir string
	access    func(dir string) Access
}

func NewCapturePlatform(prober Prober, audio ports.AudioConfig, deviceDir string) *CapturePlatform {
	return &CapturePlatform{
		prober:    prober,
		audio:     audio,
		deviceDir: deviceDir,
		access:    deviceAccess,
	}
}

func (p *CapturePlatform) RequestMicrophone(ctx context.Context) (domain.InputHandle, error) {
	if err := p.prober.Probe(ctx, p.audio); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrMicrophoneUnavailable) {
			return domain.InputHandle{}, err
		}
		return domain.InputHandle{}, fmt.Errorf("probe microphone: %w: %w", err, domain.ErrMicrophoneUnavailable)
	}
	return p.handle(), nil
}

// Watch reports the current access and every change after it. When the
// directory cannot be watched it falls back to polling.
func (p *CapturePlatform) Watch(ctx context.Context) (<-chan Change, error) {
	if p.deviceDir == "" {
		return nil, errors.New("no device directory configured")
	}
	if _, err := os.Stat(p.deviceDir); err != nil {
		return nil, fmt.Errorf("stat device directory: %w", err)
	}

	changes := make(chan Change, 1)
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(p.deviceDir); err != nil {
			_ = watcher.Close()
		}
	}
	if err != nil {
		slog.Warn("Falling back to polling for device access", "path", p.deviceDir, "err", err)
		go p.poll(ctx, changes)
		return changes, nil
	}

	go p.follow(ctx, watcher, changes)
	return changes, nil
}

func (p *CapturePlatform) follow(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- Change) {
	defer close(changes)
	defer watcher.Close()

	last := p.access(p.deviceDir)
	if !p.send(ctx, changes, last) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Chmod|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Dir(event.Name) != filepath.Clean(p.deviceDir) {
				continue
			}
			// udev applies permissions shortly after the node appears
			if wait(ctx, settleDelay) != nil {
				return
			}
			current := p.access(p.deviceDir)
			if current == last {
				continue
			}
			last = current
			if !p.send(ctx, changes, current) {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Device watcher error", "err", err)
		}
	}
}

func (p *CapturePlatform) poll(ctx context.Context, changes chan<- Change) {
	defer close(changes)

	last := p.access(p.deviceDir)
	if !p.send(ctx, changes, last) {
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := p.access(p.deviceDir)
			if current == last {
				continue
			}
			last = current
			if !p.send(ctx, changes, current) {
				return
			}
		}
	}
}

func (p *CapturePlatform) send(ctx context.Context, changes chan<- Change, access Access) bool {
	change := Change{Access: access}
	if access == AccessGranted {
		change.Handle = p.handle()
	}
	select {
	case changes <- change:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *CapturePlatform) handle() domain.InputHandle {
	return domain.InputHandle{Format: p.audio.InputFormat, Device: p.audio.InputDevice}
}
