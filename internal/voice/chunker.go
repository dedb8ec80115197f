package voice

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkFunc re-assembles a fragment sequence into speakable chunks.
type ChunkFunc func(fragments iter.Seq[string]) iter.Seq[string]

var (
	// A chunk is complete once the buffer ends with one of these.
	chunkBoundarySuffixes = []string{".", "?", "!", ";", ":", "—", "-", "(", ")", "[", "]", "}", " "}
	// Fragments starting with one of these attach without an inserted space.
	attachingPrefixes = []string{" ", "'", `"`, ",", ".", "?", "!", ";", ":", "—", "-", "(", ")", "[", "]", "}"}
)

// Chunker merges model output fragments into chunks that end on clause
// punctuation or whitespace. The zero value is ready to use.
type Chunker struct {
	buffer string
}

// Push merges one fragment and reports a completed chunk, if any.
func (c *Chunker) Push(fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}
	startsWithSpace := strings.HasPrefix(fragment, " ")
	text := strings.TrimLeftFunc(fragment, unicode.IsSpace)
	if strings.HasPrefix(text, `" `) {
		text = `"` + text[2:]
	}

	switch {
	case strings.HasSuffix(c.buffer, ` "`) && (text == "" || startsWithLetter(text)):
		c.buffer += text
	case c.buffer == "" || c.buffer == " ":
		c.buffer += text
	case !startsWithSpace && endsWithLetter(c.buffer) && (text == "" || startsWithLetter(text)):
		c.buffer += text
	case !strings.HasSuffix(c.buffer, " ") && (startsWithSpace || !hasAnyPrefix(text, attachingPrefixes)):
		c.buffer += " " + text
	default:
		c.buffer += text
	}

	if c.buffer == " " || !hasAnySuffix(c.buffer, chunkBoundarySuffixes) {
		return "", false
	}
	chunk := c.buffer
	c.buffer = " "
	return chunk, true
}

// Flush returns the trimmed remainder once the input is exhausted.
func (c *Chunker) Flush() (string, bool) {
	rest := strings.TrimSpace(c.buffer)
	c.buffer = ""
	return rest, rest != ""
}

// ChunkText is the ChunkFunc backed by Chunker.
func ChunkText(fragments iter.Seq[string]) iter.Seq[string] {
	return func(yield func(string) bool) {
		var c Chunker
		for fragment := range fragments {
			if chunk, ok := c.Push(fragment); ok {
				if !yield(chunk) {
					return
				}
			}
		}
		if rest, ok := c.Flush(); ok {
			yield(rest)
		}
	}
}

func startsWithLetter(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsLetter(r)
}

func endsWithLetter(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r != utf8.RuneError && unicode.IsLetter(r)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, p := range suffixes {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}
