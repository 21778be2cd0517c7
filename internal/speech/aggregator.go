package speech

import (
	"strings"

	"voicecall/internal/ports"
)

// transcriptAggregator joins the final segments of one utterance.
// The latest partial is kept as a fallback for streams that close before finalizing.
type transcriptAggregator struct {
	finals     []string
	lastSpoken string
}

func (a *transcriptAggregator) Add(event ports.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == ports.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.lastSpoken = ""
	}
}

func (a *transcriptAggregator) Text() string {
	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}
	return joined
}

func (a *transcriptAggregator) Empty() bool {
	return a.Text() == ""
}
