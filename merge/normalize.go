package merge

import "strings"

// Normalize prepares text for comparison and substitution: CRLF line endings
// become LF and trailing spaces and tabs are stripped from every line. It is
// pure and deterministic, and it is applied identically to the original
// document, every search anchor, and every replacement, so matching is never
// sensitive to line-ending or trailing-whitespace drift introduced by the
// producer or the editor.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
