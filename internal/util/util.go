// Package util provides small string helpers for the command boundary.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArgs trims whitespace and quoting from every argument in place.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = FixEscapeQuotes(TrimQuotes(strings.TrimSpace(v)))
	}
	return args
}

// SplitCommand splits a command line into its command and arguments.
// Arguments are separated by whitespace; a double-quoted argument may
// contain spaces and escaped quotes ("").
func SplitCommand(line string) (string, []string) {
	var fields []string
	var b strings.Builder
	inQuotes := false
	started := false

	flush := func() {
		if started {
			fields = append(fields, b.String())
		}
		b.Reset()
		started = false
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(line) && line[i+1] == '"':
			b.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
			started = true
		case (c == ' ' || c == '\t') && !inQuotes:
			flush()
		default:
			b.WriteByte(c)
			started = true
		}
	}
	flush()

	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
