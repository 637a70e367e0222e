package log

import "strings"

// controlCharReplacer escapes characters that can forge log entries (CWE-117).
var controlCharReplacer = strings.NewReplacer(
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// SanitizeString escapes newline, carriage return and tab characters.
func SanitizeString(s string) string {
	return controlCharReplacer.Replace(s)
}
