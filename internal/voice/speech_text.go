package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	speechURLPattern          = regexp.MustCompile(`https?://\S+`)
	speechInlineCodePattern   = regexp.MustCompile("`[^`]*`")
	speechMarkdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)

	speechMarkupReplacer = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"\\", " ",
		"|", " ",
		"#", " ",
		"~", " ",
		"`", " ",
		"<", " ",
		">", " ",
	)
)

// speakableChunk strips markup and symbol noise from a chunk before it is
// sent for synthesis. The leading and trailing space of the chunk survive so
// consecutive chunks still join as words.
func speakableChunk(chunk string) string {
	if strings.TrimSpace(chunk) == "" {
		return ""
	}
	lead := strings.HasPrefix(chunk, " ")
	trail := strings.HasSuffix(chunk, " ")

	out := speechInlineCodePattern.ReplaceAllString(chunk, " ")
	out = speechMarkdownLinkPattern.ReplaceAllString(out, "$1")
	out = speechURLPattern.ReplaceAllString(out, " ")
	out = speechMarkupReplacer.Replace(out)

	var b strings.Builder
	b.Grow(len(out))
	pendingSpace := false
	for _, r := range out {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sk):
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}

	text := b.String()
	if text == "" {
		return ""
	}
	if lead {
		text = " " + text
	}
	if trail {
		text += " "
	}
	return text
}
