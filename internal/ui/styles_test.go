package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlainOutputWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	if IsTerminal(&buf) {
		t.Fatal("a buffer is not a terminal")
	}
	Init(&buf)

	for _, render := range []func(string) string{RenderAccent, RenderPass, RenderWarn, RenderFail, RenderMuted} {
		if got := render("ok"); got != "ok" {
			t.Errorf("render(%q) = %q, want plain text", "ok", got)
		}
	}
}

func TestDetails(t *testing.T) {
	Init(&bytes.Buffer{})

	out := Details("Ada", []Field{
		{Label: "Grade", Value: "3"},
		{Label: "Coins", Value: "250"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if !strings.Contains(lines[0], "Ada") {
		t.Errorf("first line %q should hold the title", lines[0])
	}
	for _, want := range []string{"Grade", "3", "Coins", "250"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// Values start in the same column.
	g := strings.Index(out[strings.Index(out, "Grade"):], "3")
	c := strings.Index(out[strings.Index(out, "Coins"):], "250")
	if g != c {
		t.Errorf("values not aligned: %d vs %d\n%s", g, c, out)
	}
}
