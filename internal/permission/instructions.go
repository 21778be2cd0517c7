package permission

import (
	"fmt"
	"strings"

	"voicecall/internal/domain"
)

// Agent is the surface whose settings hold the microphone permission.
type Agent string

const (
	AgentChrome  Agent = "chrome"
	AgentEdge    Agent = "edge"
	AgentOpera   Agent = "opera"
	AgentFirefox Agent = "firefox"
	AgentSafari  Agent = "safari"
	AgentLinux   Agent = "linux"
	AgentMacOS   Agent = "darwin"
	AgentWindows Agent = "windows"
	AgentUnknown Agent = "unknown"
)

// Device names the permission a guide is for.
type Device string

const (
	DeviceMicrophone Device = "microphone"
	DeviceSpeaker    Device = "speaker"
)

// DetectAgent picks the agent from a user-agent string. Edge and Opera carry
// "chrome" in their user agent so they are checked first. A blank user agent
// falls back to the desktop OS.
func DetectAgent(userAgent string, goos string) Agent {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		switch goos {
		case "linux", "freebsd", "openbsd", "netbsd":
			return AgentLinux
		case "darwin":
			return AgentMacOS
		case "windows":
			return AgentWindows
		}
		return AgentUnknown
	}

	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		return AgentEdge
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return AgentOpera
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "chromium") || strings.Contains(ua, "crios"):
		return AgentChrome
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return AgentFirefox
	case strings.Contains(ua, "safari"):
		return AgentSafari
	}
	return AgentUnknown
}

// Steps returns the recovery steps for re-enabling device on agent. It never
// returns an empty list.
func Steps(agent Agent, device Device) []string {
	name := string(device)
	if device == DeviceSpeaker {
		return speakerSteps(agent)
	}

	switch agent {
	case AgentChrome:
		return []string{
			"Click the lock icon in the address bar.",
			`Select "Site settings".`,
			fmt.Sprintf(`Find "%s" in the permissions list and set it to "Allow".`, name),
		}
	case AgentEdge:
		return []string{
			"Click the lock icon in the address bar.",
			`Select "Permissions for this site".`,
			fmt.Sprintf(`Set "%s" to "Allow".`, name),
		}
	case AgentOpera:
		return []string{
			"Click the lock icon in the address bar.",
			`Open "Site settings".`,
			fmt.Sprintf(`Set "%s" to "Allow".`, name),
		}
	case AgentFirefox:
		return []string{
			"Click the shield icon in the address bar.",
			`Select "Connection Secure".`,
			fmt.Sprintf(`Find "%s" in the permissions section and allow access.`, name),
		}
	case AgentSafari:
		return []string{
			"Click Safari in the menu bar.",
			fmt.Sprintf(`Open "Preferences > Websites > %s".`, title(name)),
			`Set this website to "Allow".`,
		}
	case AgentLinux:
		return []string{
			`Make sure your user may open the capture device (usually membership of the "audio" group).`,
			"Open your sound settings and check that an input device is selected and unmuted.",
			"Start the call again.",
		}
	case AgentMacOS:
		return []string{
			"Open System Settings > Privacy & Security > Microphone.",
			"Turn on access for this application.",
			"Start the call again.",
		}
	case AgentWindows:
		return []string{
			"Open Settings > Privacy & security > Microphone.",
			`Turn on "Let desktop apps access your microphone".`,
			"Start the call again.",
		}
	}
	return []string{
		fmt.Sprintf("Check your settings to allow %s access for this application.", name),
		"Start the call again.",
	}
}

func speakerSteps(agent Agent) []string {
	switch agent {
	case AgentChrome, AgentEdge, AgentOpera:
		return []string{
			"Click the lock icon in the address bar.",
			`Set "Sound" to "Allow".`,
			"Check that the tab is not muted.",
		}
	case AgentFirefox:
		return []string{
			"Open Settings > Privacy & Security > Autoplay.",
			`Choose "Allow Audio and Video" for this site.`,
		}
	case AgentSafari:
		return []string{
			"Click Safari in the menu bar.",
			`Open "Preferences > Websites > Auto-Play" and set this website to "Allow All Auto-Play".`,
		}
	case AgentLinux:
		return []string{
			"Open your sound settings and select an output device.",
			"Check that the output is not muted and the volume is up.",
		}
	case AgentMacOS:
		return []string{
			"Open System Settings > Sound > Output.",
			"Select an output device and raise the volume.",
		}
	case AgentWindows:
		return []string{
			"Open Settings > System > Sound.",
			"Choose an output device and check that it is not muted.",
		}
	}
	return []string{"Check that an audio output device is connected and not muted."}
}

// Instructions is the warning notice shown after a denial or failed test.
func Instructions(agent Agent, device Device) domain.Notice {
	heading := "Microphone Access Required"
	if device == DeviceSpeaker {
		heading = "Audio Access Required"
	}
	return domain.Notice{
		Kind:    domain.NoticeWarning,
		Title:   heading,
		Message: fmt.Sprintf("To use voice calling, the app needs permission to access your %s.", device),
		Steps:   Steps(agent, device),
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
