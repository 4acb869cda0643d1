package jsonutil

import (
	"bytes"
	"testing"
)

func TestWriteIndents(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, map[string]int{"sent": 1}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if got := buf.String(); got != "{\n  \"sent\": 1\n}\n" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestCompactAndPrettyKeepInvalidInput(t *testing.T) {
	if got := Compact([]byte(`{ "id": "a",  "action": "add" }`)); got != `{"id":"a","action":"add"}` {
		t.Errorf("unexpected compact output %q", got)
	}
	if got := Pretty([]byte("not json")); got != "not json" {
		t.Errorf("invalid input changed: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghij", 8, "abcde..."},
		{"abcdef", 2, "ab"},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.max); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}
