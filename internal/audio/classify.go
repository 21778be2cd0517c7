package audio

import (
	"errors"
	"fmt"
	"strings"

	"voicecall/internal/domain"
)

// ErrCaptureFailed is a recorder exit that matched no known cause.
var ErrCaptureFailed = errors.New("audio capture failed")

var deniedMarkers = []string{
	"permission denied",
	"operation not permitted",
	"access denied",
	"not authorized",
	"eacces",
}

var unavailableMarkers = []string{
	"no such file or directory",
	"no such device",
	"no such entity",
	"connection refused",
	"device or resource busy",
	"cannot open audio device",
	"input/output error",
}

// ClassifyCaptureFailure maps a recorder failure onto the domain sentinels.
func ClassifyCaptureFailure(exitErr error, stderr string) error {
	detail := firstLine(stderr)
	lowered := strings.ToLower(stderr)

	kind := ErrCaptureFailed
	switch {
	case containsAny(lowered, deniedMarkers):
		kind = domain.ErrPermissionDenied
	case containsAny(lowered, unavailableMarkers):
		kind = domain.ErrMicrophoneUnavailable
	}

	switch {
	case detail != "" && exitErr != nil:
		return fmt.Errorf("%w: %s (%v)", kind, detail, exitErr)
	case detail != "":
		return fmt.Errorf("%w: %s", kind, detail)
	case exitErr != nil:
		return fmt.Errorf("%w: %v", kind, exitErr)
	default:
		return kind
	}
}

func firstLine(input string) string {
	for _, line := range strings.Split(input, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func containsAny(input string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(input, marker) {
			return true
		}
	}
	return false
}
