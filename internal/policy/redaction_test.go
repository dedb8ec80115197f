package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out := RedactPII(input)
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if !ContainsPII(input) {
		t.Fatalf("ContainsPII() = false, want true")
	}
}

func TestRedactPIILeavesPlainPrompts(t *testing.T) {
	in := "what time is it in Lisbon"
	if got := RedactPII(in); got != in {
		t.Fatalf("RedactPII(%q) = %q, want unchanged", in, got)
	}
	if ContainsPII(in) {
		t.Fatalf("ContainsPII(%q) = true, want false", in)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"short", "****"},
		{"sk-abcdefghijklmnop", "****mnop"},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
