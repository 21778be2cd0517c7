package pronounce

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLexicon(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pronounce.lexicon")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write lexicon: %v", err)
	}
	return path
}

func TestLexiconWordAndPatternEntries(t *testing.T) {
	t.Parallel()

	path := writeLexicon(t, `
# word
GIF => jif
# pattern with default case-insensitive
s/\b(\d+)\s*min\b/$1 minutes/g
`)

	lexicon, err := Load(path, 30)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}
	if lexicon.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", lexicon.Len())
	}

	output, err := lexicon.Apply("Send a gif in 5 min")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "Send a jif in 5 minutes" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestLexiconWordEntriesMatchWholeWords(t *testing.T) {
	t.Parallel()

	lexicon, err := Load(writeLexicon(t, "ok => okay\n"), 30)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}

	output, _ := lexicon.Apply("ok, the book is OK")
	if output != "okay, the book is okay" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestLexiconIteratesUntilStable(t *testing.T) {
	t.Parallel()

	lexicon, err := Load(writeLexicon(t, "a => b\nb => c\n"), 5)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}

	output, err := lexicon.Apply("a")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestLexiconWordStartingWithS(t *testing.T) {
	t.Parallel()

	lexicon, err := Load(writeLexicon(t, "sql => sequel\n"), 30)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}

	output, _ := lexicon.Apply("I love SQL")
	if output != "I love sequel" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestLexiconSupportsParserExtension(t *testing.T) {
	t.Parallel()

	path := writeLexicon(t, "name:Sophia=>So-fee-ah\n")
	parsers := append([]EntryParser{nameParser{}}, defaultParsers()...)
	lexicon, err := LoadWithParsers(path, 5, parsers)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}

	output, _ := lexicon.Apply("I'm sophia")
	if output != "I'm So-fee-ah" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestLexiconBuiltInCleanup(t *testing.T) {
	t.Parallel()

	lexicon, err := Load("", 30)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}

	tests := []struct {
		input string
		want  string
	}{
		{input: "*smiles warmly* Hello **there** 😊", want: "Hello there"},
		{input: "Read [the guide](https://example.com) ok", want: "Read the guide ok"},
		{input: "See https://example.com/x for more", want: "See for more"},
		{input: "# Title\n\n`code` and ~~old~~ text", want: "Title code and old text"},
		{input: "  plain   text  ", want: "plain text"},
		{input: "I *really* mean it", want: "I mean it"},
	}
	for _, tt := range tests {
		got, _ := lexicon.Apply(tt.input)
		if got != tt.want {
			t.Fatalf("clean %q: expected %q, got %q", tt.input, tt.want, got)
		}
	}
}

func TestLoadMissingFileUsesCleanupOnly(t *testing.T) {
	t.Parallel()

	lexicon, err := Load(filepath.Join(t.TempDir(), "missing"), 0)
	if err != nil {
		t.Fatalf("expected missing lexicon to be ignored, got %v", err)
	}
	if lexicon.Len() != 0 || lexicon.loopLimit != 30 {
		t.Fatalf("unexpected lexicon: %+v", lexicon)
	}
}

func TestNilLexiconStillCleans(t *testing.T) {
	t.Parallel()

	var lexicon *Lexicon
	got, err := lexicon.Apply("*waves* hi")
	if err != nil || got != "hi" {
		t.Fatalf("unexpected nil lexicon result: %q %v", got, err)
	}
}

func TestPatternWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	e, err := parsePatternEntry(`s/foo/bar/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	output, changed := e.Apply("foo foo")
	if !changed {
		t.Fatalf("expected changed=true")
	}
	if output != "bar foo" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParsePatternUnsupportedFlag(t *testing.T) {
	t.Parallel()

	if _, err := parsePatternEntry(`s/foo/bar/x`); err == nil {
		t.Fatalf("expected unsupported flag error")
	}
}

func TestParseEntriesUnsupportedLine(t *testing.T) {
	t.Parallel()

	_, err := parseEntries("not-an-entry", defaultParsers())
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected unsupported entry error, got %v", err)
	}
}

type nameParser struct{}

func (nameParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "name:")
}

func (nameParser) Parse(line string) (entry, error) {
	payload := strings.TrimPrefix(line, "name:")
	parts := strings.SplitN(payload, "=>", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid name entry")
	}
	return parseWordEntry(parts[0] + " => " + parts[1])
}
