// Package lineio provides line-oriented input helpers and the parse error
// type shared by the conf, hba and pgpass parsers.
package lineio

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Stdin is the reader used when a file argument is "-". Tests may swap it.
var Stdin io.Reader = os.Stdin

// ReadLines reads a file (or stdin when path is "-") and returns its raw
// lines. Line endings are preserved so that untouched lines survive a
// round trip byte for byte.
func ReadLines(path string) ([]string, error) {
	if path == "-" {
		return ReaderLines(Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitKeepEnds(string(data)), nil
}

// ReaderLines drains r and splits it into raw lines, endings preserved.
func ReaderLines(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return SplitKeepEnds(string(data)), nil
}

// SplitKeepEnds splits s into lines, keeping the trailing newline on each
// line. A trailing newline on the final line does not produce an empty
// extra line.
func SplitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
		if s == "" {
			break
		}
	}
	return lines
}

// ParseError reports a line that failed its format grammar. Lineno is
// 1-based. The error aborts the whole parse; there is no partial result.
type ParseError struct {
	Lineno  int
	Line    string
	Message string
}

func (e *ParseError) Error() string {
	line := strings.TrimSpace(e.Line)
	if len(line) > 32 {
		line = line[:32]
	}
	return fmt.Sprintf("bad line #%d '%s': %s", e.Lineno, line, e.Message)
}
