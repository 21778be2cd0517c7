package permission

import (
	"strings"
	"testing"

	"voicecall/internal/domain"
)

func TestDetectAgent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		userAgent string
		goos      string
		want      Agent
	}{
		{
			name:      "edge before chrome",
			userAgent: "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
			want:      AgentEdge,
		},
		{
			name:      "opera before chrome",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/119.0 Safari/537.36 OPR/105.0",
			want:      AgentOpera,
		},
		{
			name:      "chrome",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			want:      AgentChrome,
		},
		{
			name:      "firefox",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want:      AgentFirefox,
		},
		{
			name:      "safari",
			userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 Version/17.2 Safari/605.1.15",
			want:      AgentSafari,
		},
		{name: "unmatched agent", userAgent: "curl/8.5.0", goos: "linux", want: AgentUnknown},
		{name: "linux desktop", goos: "linux", want: AgentLinux},
		{name: "mac desktop", goos: "darwin", want: AgentMacOS},
		{name: "windows desktop", goos: "windows", want: AgentWindows},
		{name: "unknown desktop", goos: "plan9", want: AgentUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := DetectAgent(tc.userAgent, tc.goos); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestStepsAreNeverEmpty(t *testing.T) {
	t.Parallel()

	agents := []Agent{
		AgentChrome, AgentEdge, AgentOpera, AgentFirefox, AgentSafari,
		AgentLinux, AgentMacOS, AgentWindows, AgentUnknown, Agent("lynx"),
	}
	for _, agent := range agents {
		for _, device := range []Device{DeviceMicrophone, DeviceSpeaker} {
			if steps := Steps(agent, device); len(steps) == 0 {
				t.Fatalf("expected steps for %s/%s", agent, device)
			}
		}
	}
}

func TestSafariStepsNameTheDevice(t *testing.T) {
	t.Parallel()

	steps := Steps(AgentSafari, DeviceMicrophone)
	if !strings.Contains(strings.Join(steps, " "), "Preferences > Websites > Microphone") {
		t.Fatalf("expected safari preferences path, got %v", steps)
	}
}

func TestInstructionsNotice(t *testing.T) {
	t.Parallel()

	mic := Instructions(AgentChrome, DeviceMicrophone)
	if mic.Kind != domain.NoticeWarning || mic.Title != "Microphone Access Required" {
		t.Fatalf("unexpected microphone notice: %+v", mic)
	}
	if !strings.Contains(mic.Message, "microphone") {
		t.Fatalf("expected device in message, got %q", mic.Message)
	}

	speaker := Instructions(AgentUnknown, DeviceSpeaker)
	if speaker.Title != "Audio Access Required" || len(speaker.Steps) == 0 {
		t.Fatalf("unexpected speaker notice: %+v", speaker)
	}
}
