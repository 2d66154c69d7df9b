package merge

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text untouched", "line1\nline2", "line1\nline2"},
		{"crlf to lf", "line1\r\nline2\r\n", "line1\nline2\n"},
		{"trailing spaces stripped", "line1   \nline2", "line1\nline2"},
		{"trailing tabs stripped", "line1\t\t\nline2\t", "line1\nline2"},
		{"mixed trailing whitespace", "a \t \nb", "a\nb"},
		{"crlf and trailing spaces together", "a  \r\nb\t\r\n", "a\nb\n"},
		{"leading whitespace preserved", "  indented\n\tdeep", "  indented\n\tdeep"},
		{"interior whitespace preserved", "a  b\nc\td", "a  b\nc\td"},
		{"whitespace only line becomes empty", "a\n   \nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	in := "foo  \r\nbar\t\r\n\r\nbaz"
	once := Normalize(in)
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize not idempotent: %q vs %q", once, twice)
	}
}
