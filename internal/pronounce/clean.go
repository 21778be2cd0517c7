package pronounce

import (
	"regexp"
	"strings"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	bareURL      = regexp.MustCompile(`https?://\S+`)
	emoteAside   = regexp.MustCompile(`\*[^*\n]{1,80}\*`)
	markup       = strings.NewReplacer("__", "", "`", "", "#", "", "~~", "")
	whitespace   = regexp.MustCompile(`\s+`)
)

// clean strips formatting a chat reply carries but a voice should not read.
// Roleplay asides such as *smiles* are dropped entirely.
func clean(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1")
	text = bareURL.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "**", "")
	text = emoteAside.ReplaceAllString(text, " ")
	text = markup.Replace(text)
	text = strings.Map(func(r rune) rune {
		if isPictograph(r) {
			return -1
		}
		return r
	}, text)
	return collapseSpace(text)
}

func collapseSpace(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r == 0xFE0F || r == 0x200D:
		return true
	}
	return false
}
