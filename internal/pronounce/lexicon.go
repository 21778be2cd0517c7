// Package pronounce rewrites reply text into something a synthesizer reads aloud well.
package pronounce

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type entry interface {
	Apply(input string) (output string, changed bool)
}

// EntryParser parses one lexicon line.
type EntryParser interface {
	CanParse(line string) bool
	Parse(line string) (entry, error)
}

// Lexicon cleans reply text for speech and applies user pronunciation entries.
type Lexicon struct {
	entries   []entry
	loopLimit int
}

// Load reads a lexicon file. A blank or missing path yields the built-in cleanup only.
func Load(path string, loopLimit int) (*Lexicon, error) {
	return LoadWithParsers(path, loopLimit, defaultParsers())
}

func LoadWithParsers(path string, loopLimit int, parsers []EntryParser) (*Lexicon, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	if len(parsers) == 0 {
		parsers = defaultParsers()
	}

	if strings.TrimSpace(path) == "" {
		return &Lexicon{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Lexicon{loopLimit: loopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read lexicon %q: %w", path, err)
	}

	entries, err := parseEntries(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse lexicon %q: %w", path, err)
	}

	return &Lexicon{entries: entries, loopLimit: loopLimit}, nil
}

// Apply returns the spoken form of text. Entries are applied until the text is stable
// or the loop limit is reached.
func (l *Lexicon) Apply(text string) (string, error) {
	result := clean(text)
	if l == nil || len(l.entries) == 0 {
		return result, nil
	}

	for i := 0; i < l.loopLimit; i++ {
		changed := false
		for _, e := range l.entries {
			next, entryChanged := e.Apply(result)
			if entryChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return collapseSpace(result), nil
}

// Len is the number of user entries loaded.
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

func parseEntries(contents string, parsers []EntryParser) ([]entry, error) {
	lines := strings.Split(contents, "\n")
	entries := make([]entry, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			e, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			entries = append(entries, e)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported entry format", index+1)
		}
	}

	return entries, nil
}

func defaultParsers() []EntryParser {
	return []EntryParser{patternParser{}, wordParser{}}
}

// wordParser reads `written => spoken` entries. Matching is whole-word and case-insensitive.
type wordParser struct{}

func (wordParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (wordParser) Parse(line string) (entry, error) {
	return parseWordEntry(line)
}

type patternParser struct{}

func (patternParser) CanParse(line string) bool {
	return looksLikePattern(line)
}

func (patternParser) Parse(line string) (entry, error) {
	return parsePatternEntry(line)
}

type wordEntry struct {
	spoken string
	re     *regexp.Regexp
}

func parseWordEntry(line string) (entry, error) {
	parts := strings.SplitN(line, "=>", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid word entry")
	}
	written := strings.TrimSpace(parts[0])
	spoken := strings.TrimSpace(parts[1])
	if written == "" {
		return nil, errors.New("written form cannot be empty")
	}

	pattern := regexp.QuoteMeta(written)
	if isWordByte(written[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(written[len(written)-1]) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid written form: %w", err)
	}

	return wordEntry{spoken: spoken, re: re}, nil
}

func (w wordEntry) Apply(input string) (string, bool) {
	output := w.re.ReplaceAllLiteralString(input, w.spoken)
	return output, output != input
}

type patternEntry struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parsePatternEntry(line string) (entry, error) {
	if len(line) < 2 {
		return nil, errors.New("invalid pattern entry")
	}
	delim := line[1]
	if isAlphaNumericOrSpace(delim) {
		return nil, errors.New("pattern delimiter must be non-alphanumeric")
	}

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement: %w", err)
	}
	flags := strings.TrimSpace(line[pos:])

	flagState := struct {
		ignoreCase bool
		global     bool
		multiLine  bool
		dotAll     bool
	}{
		ignoreCase: true,
		global:     false,
	}

	for _, flag := range flags {
		switch flag {
		case 'i':
			flagState.ignoreCase = true
		case 'g':
			flagState.global = true
		case 'm':
			flagState.multiLine = true
		case 's':
			flagState.dotAll = true
		case ' ':
			continue
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q", flag)
		}
	}

	prefixFlags := ""
	if flagState.ignoreCase {
		prefixFlags += "i"
	}
	if flagState.multiLine {
		prefixFlags += "m"
	}
	if flagState.dotAll {
		prefixFlags += "s"
	}
	if prefixFlags != "" {
		pattern = "(?" + prefixFlags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}

	return patternEntry{re: re, replacement: replacement, global: flagState.global}, nil
}

func (r patternEntry) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}

	segment := input[loc[0]:loc[1]]
	replaced := r.re.ReplaceAllString(segment, r.replacement)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == '_'
}

func looksLikePattern(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isAlphaNumericOrSpace(line[1])
}
