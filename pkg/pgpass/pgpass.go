// Package pgpass reads and writes libpq password files (.pgpass):
// colon-separated hostname:port:database:username:password lines with
// backslash escaping, plus a stable sort from most to least precise entry.
//
// https://www.postgresql.org/docs/current/libpq-pgpass.html
package pgpass

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/flanksource/pgtoolkit/pkg/lineio"
)

// escapedSplit splits line on sep, honoring backslash escapes. The
// escape character is kept in the output fields so that unescape can
// undo it later.
func escapedSplit(line, sep string) []string {
	var fields []string
	var field strings.Builder
	escaped := false
	for _, c := range line {
		if escaped {
			field.WriteRune(c)
			escaped = false
			continue
		}
		switch {
		case string(c) == sep:
			fields = append(fields, field.String())
			field.Reset()
		case c == '\\':
			field.WriteRune(c)
			escaped = true
		default:
			field.WriteRune(c)
		}
	}
	fields = append(fields, field.String())
	return fields
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\:`, `:`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `:`, `\:`)
}

// Line is one .pgpass line, either a Comment or an *Entry.
type Line interface {
	fmt.Stringer
}

// Comment is a comment or blank line kept verbatim, newline excluded.
type Comment string

func (c Comment) String() string { return string(c) }

// Text returns the comment body with leading markers and whitespace
// stripped.
func (c Comment) Text() string {
	return strings.TrimSpace(strings.TrimLeft(string(c), "#"))
}

// Entry is one password entry. Port stays a string so that the '*'
// wildcard and plain integers share a field; ParseEntry validates
// numeric ports.
type Entry struct {
	Hostname string
	Port     string
	Database string
	Username string
	Password string
}

// ParseEntry parses one entry line.
func ParseEntry(line string) (*Entry, error) {
	fields := escapedSplit(strings.TrimSpace(line), ":")
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, found %d", len(fields))
	}
	for i, f := range fields {
		fields[i] = unescape(f)
	}
	port := fields[1]
	if port != "*" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid port '%s'", port)
		}
	}
	return &Entry{
		Hostname: fields[0],
		Port:     port,
		Database: fields[2],
		Username: fields[3],
		Password: fields[4],
	}, nil
}

// String serializes the entry, escaping backslashes and colons.
func (e *Entry) String() string {
	fields := []string{e.Hostname, e.Port, e.Database, e.Username, e.Password}
	for i, f := range fields {
		fields[i] = escape(f)
	}
	return strings.Join(fields, ":")
}

// connectionFields are the fields identifying an entry; the password is
// deliberately excluded from comparison and matching.
func (e *Entry) connectionFields() [4]string {
	return [4]string{e.Hostname, e.Port, e.Database, e.Username}
}

// Equal reports whether both entries identify the same connection,
// passwords ignored.
func (e *Entry) Equal(other *Entry) bool {
	return e.connectionFields() == other.connectionFields()
}

// Matches reports whether every provided attribute equals the entry's
// corresponding field. Password is not matchable.
func (e *Entry) Matches(attrs map[string]string) (bool, error) {
	for name := range attrs {
		switch name {
		case "hostname", "port", "database", "username":
		default:
			return false, fmt.Errorf("%s is not a valid attribute", name)
		}
	}
	for name, want := range attrs {
		var got string
		switch name {
		case "hostname":
			got = e.Hostname
		case "port":
			got = e.Port
		case "database":
			got = e.Database
		case "username":
			got = e.Username
		}
		if got != want {
			return false, nil
		}
	}
	return true, nil
}

// sortKey orders entries from most to least precise: fewer wildcards
// first, then lexically with '*' sorted last within each field.
func (e *Entry) sortKey() string {
	fields := e.connectionFields()
	wildcards := 0
	keyed := make([]string, len(fields))
	for i, f := range fields {
		if f == "*" {
			wildcards++
			keyed[i] = "\xff"
		} else {
			keyed[i] = f
		}
	}
	return fmt.Sprintf("%d:%s", wildcards, strings.Join(keyed, ":"))
}

// File is an ordered mix of entries and comment lines.
type File struct {
	Lines []Line
	Path  string
}

// Parse reads a .pgpass from r.
func Parse(r io.Reader) (*File, error) {
	lines, err := lineio.ReaderLines(r)
	if err != nil {
		return nil, err
	}
	return ParseLines(lines)
}

// ParseLines parses an in-memory line sequence.
func ParseLines(lines []string) (*File, error) {
	f := &File{}
	for i, raw := range lines {
		trimmed := strings.TrimRight(raw, "\r\n")
		stripped := strings.TrimSpace(trimmed)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			f.Lines = append(f.Lines, Comment(trimmed))
			continue
		}
		entry, err := ParseEntry(trimmed)
		if err != nil {
			return nil, &lineio.ParseError{Lineno: i + 1, Line: raw, Message: err.Error()}
		}
		f.Lines = append(f.Lines, entry)
	}
	return f, nil
}

// ParseFile parses the file at path ("-" reads stdin).
func ParseFile(path string) (*File, error) {
	lines, err := lineio.ReadLines(path)
	if err != nil {
		return nil, err
	}
	f, err := ParseLines(lines)
	if err != nil {
		return nil, err
	}
	if path != "-" {
		f.Path = path
	}
	return f, nil
}

// Entries returns the password entries, comments skipped.
func (f *File) Entries() []*Entry {
	var entries []*Entry
	for _, line := range f.Lines {
		if e, ok := line.(*Entry); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// Upsert replaces the password of the entry matching e's connection
// fields, or appends e when no entry matches.
func (f *File) Upsert(e *Entry) {
	for _, line := range f.Lines {
		if existing, ok := line.(*Entry); ok && existing.Equal(e) {
			existing.Password = e.Password
			return
		}
	}
	f.Lines = append(f.Lines, e)
}

// Remove drops the entries for which filter returns true. Commented
// lines that parse as entries are dropped too when they match. It
// reports whether anything was removed.
func (f *File) Remove(filter func(*Entry) bool) bool {
	kept := f.Lines[:0]
	for _, line := range f.Lines {
		switch l := line.(type) {
		case *Entry:
			if filter(l) {
				continue
			}
		case Comment:
			if e, err := ParseEntry(l.Text()); err == nil && filter(e) {
				continue
			}
		}
		kept = append(kept, line)
	}
	changed := len(kept) != len(f.Lines)
	f.Lines = kept
	return changed
}

// RemoveMatching drops entries matching all provided attributes.
func (f *File) RemoveMatching(attrs map[string]string) (bool, error) {
	if len(attrs) == 0 {
		return false, fmt.Errorf("attributes cannot be empty")
	}
	var invalid error
	changed := f.Remove(func(e *Entry) bool {
		ok, err := e.Matches(attrs)
		if err != nil {
			invalid = err
			return false
		}
		return ok
	})
	if invalid != nil {
		return false, invalid
	}
	return changed, nil
}

// Sort reorders entries from most to least precise, as libpq reads the
// first matching line. A commented line that parses as an entry sorts by
// that entry; other comments travel with the entry written below them.
// Trailing comments stay at the end of the file.
func (f *File) Sort() {
	type unit struct {
		comments []Line
		line     Line
		key      string
	}
	var units []unit
	var pending []Line
	for _, line := range f.Lines {
		switch l := line.(type) {
		case Comment:
			if e, err := ParseEntry(l.Text()); err == nil {
				units = append(units, unit{comments: pending, line: l, key: e.sortKey()})
				pending = nil
				continue
			}
			pending = append(pending, l)
		case *Entry:
			units = append(units, unit{comments: pending, line: l, key: l.sortKey()})
			pending = nil
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].key < units[j].key
	})
	f.Lines = f.Lines[:0]
	for _, u := range units {
		f.Lines = append(f.Lines, u.comments...)
		f.Lines = append(f.Lines, u.line)
	}
	f.Lines = append(f.Lines, pending...)
}

// WriteTo writes entries and comments in order.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, line := range f.Lines {
		written, err := io.WriteString(w, line.String()+"\n")
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Save writes the file back to its source path.
func (f *File) Save() error {
	if f.Path == "" {
		return fmt.Errorf("no path associated with this file")
	}
	return f.SaveTo(f.Path)
}

// SaveTo writes the file to path.
func (f *File) SaveTo(path string) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Edit opens or creates the file at path, applies fn and saves the
// result when fn succeeds. A missing file starts empty.
func Edit(path string, fn func(*File) error) error {
	f, err := ParseFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		f = &File{Path: path}
	}
	if err := fn(f); err != nil {
		return err
	}
	return f.Save()
}
