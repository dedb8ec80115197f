package voice

import (
	"slices"
	"strings"
	"testing"
)

func TestChunkTextMergesFragments(t *testing.T) {
	cases := []struct {
		name      string
		fragments []string
		want      []string
	}{
		{
			name:      "inserts space for leading-space fragment",
			fragments: []string{"Hello", " world."},
			want:      []string{"Hello world."},
		},
		{
			name:      "continues word without leading space",
			fragments: []string{"Hello", "world"},
			want:      []string{"Helloworld"},
		},
		{
			name:      "emits on terminal punctuation and resets to a space",
			fragments: []string{"The", " answer", " is", " 42", ".", " Next", " one", "!"},
			want:      []string{"The answer is 42.", " Next one!"},
		},
		{
			name:      "comma does not end a chunk",
			fragments: []string{"Well", ",", " maybe"},
			want:      []string{"Well, maybe"},
		},
		{
			name:      "skips empty fragments",
			fragments: []string{"", "Hi", "", "."},
			want:      []string{"Hi."},
		},
		{
			name:      "quote continuation",
			fragments: []string{"He said", ` "`, "hi", `"`},
			want:      []string{`He said "hi"`},
		},
		{
			name:      "whitespace-only fragment ends the word",
			fragments: []string{"Hello", " ", "world"},
			want:      []string{"Hello ", "world"},
		},
		{
			name:      "quote-space prefix is normalized",
			fragments: []string{"Say", ` " `, "yes"},
			want:      []string{`Say "yes`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := slices.Collect(ChunkText(slices.Values(tc.fragments)))
			if !slices.Equal(got, tc.want) {
				t.Fatalf("ChunkText(%q) = %q, want %q", tc.fragments, got, tc.want)
			}
		})
	}
}

func TestChunkTextPreservesCharacters(t *testing.T) {
	fragments := []string{"I", " think", " so", ".", " Do", " you", "?", " Let", "'s", " see", ":", " one", ",", " two", "."}
	chunks := slices.Collect(ChunkText(slices.Values(fragments)))

	got := strings.TrimSpace(strings.Join(chunks, ""))
	want := "I think so. Do you? Let's see: one, two."
	if got != want {
		t.Fatalf("joined chunks = %q, want %q", got, want)
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("chunks = %q, want no blank chunk", chunks)
		}
	}
}

func TestChunkTextStopsWhenConsumerBreaks(t *testing.T) {
	pulled := 0
	fragments := func(yield func(string) bool) {
		for _, f := range []string{"One.", " Two.", " Three."} {
			pulled++
			if !yield(f) {
				return
			}
		}
	}

	for chunk := range ChunkText(fragments) {
		if chunk != "One." {
			t.Fatalf("first chunk = %q, want %q", chunk, "One.")
		}
		break
	}
	if pulled != 1 {
		t.Fatalf("fragments pulled = %d, want 1", pulled)
	}
}

func TestChunkerFlushReturnsTrimmedRemainder(t *testing.T) {
	var c Chunker
	if _, ok := c.Push("  trailing words "); !ok {
		t.Fatalf("Push() ok = false, want chunk ending in space")
	}
	if _, ok := c.Flush(); ok {
		t.Fatalf("Flush() ok = true after reset buffer, want false")
	}

	c.Push("tail")
	rest, ok := c.Flush()
	if !ok || rest != "tail" {
		t.Fatalf("Flush() = %q, %v, want %q, true", rest, ok, "tail")
	}
}
