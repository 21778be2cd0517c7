//go:build unix

package permission

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// deviceAccess reports granted when at least one capture node in dir can be
// opened for reading and writing by this process.
func deviceAccess(dir string) Access {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return AccessDenied
	}
	for _, entry := range entries {
		if entry.IsDir() || !isCaptureNode(entry.Name()) {
			continue
		}
		if unix.Access(filepath.Join(dir, entry.Name()), unix.R_OK|unix.W_OK) == nil {
			return AccessGranted
		}
	}
	return AccessDenied
}

// isCaptureNode matches ALSA capture PCM nodes such as pcmC0D0c.
func isCaptureNode(name string) bool {
	return strings.HasPrefix(name, "pcmC") && strings.HasSuffix(name, "c")
}
