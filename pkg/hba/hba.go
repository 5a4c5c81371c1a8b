// Package hba implements the pg_hba.conf file format: quote-aware record
// tokenization, positional-then-keyword field assignment, and
// column-aligned rendering matching PostgreSQL's default file layout.
//
// https://www.postgresql.org/docs/current/auth-pg-hba-conf.html
package hba

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/flanksource/pgtoolkit/pkg/lineio"
)

// ConnectionTypes are the valid values of a record's first field.
var ConnectionTypes = []string{
	"local",
	"host",
	"hostssl",
	"hostnossl",
	"hostgssenc",
	"hostnogssenc",
}

// commonFields are the positional record fields, in order.
var commonFields = []string{"conntype", "database", "user", "address", "netmask", "method"}

// columnWidths are the alignment widths of the common fields, taken from
// PostgreSQL's default pg_hba.conf header. The method column is free.
var columnWidths = []int{8, 16, 16, 16, 8}

// FieldError reports access to a field the record does not carry, such as
// the address of a local record.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("record has no %s field", e.Field)
}

// Option is one key=value auth option, order preserved.
type Option struct {
	Name  string
	Value string
}

// Record is one pg_hba.conf record: positional common fields, keyword
// auth options and an optional trailing comment. Address and netmask are
// optional; accessing them on records that carry none fails with a
// FieldError rather than returning a default.
type Record struct {
	ConnType string
	Database string
	User     string
	Method   string
	Options  []Option
	Comment  string

	address    string
	hasAddress bool
	netmask    string
	hasNetmask bool
}

// NewRecord builds a record without address or netmask, as used for local
// connections.
func NewRecord(conntype, database, user, method string) *Record {
	return &Record{ConnType: conntype, Database: database, User: user, Method: method}
}

// NewHostRecord builds a TCP record carrying an address.
func NewHostRecord(conntype, database, user, address, method string) *Record {
	r := NewRecord(conntype, database, user, method)
	r.SetAddress(address)
	return r
}

func (r *Record) SetAddress(address string) {
	r.address = address
	r.hasAddress = true
}

func (r *Record) SetNetmask(netmask string) {
	r.netmask = netmask
	r.hasNetmask = true
}

// GetAddress returns the address field. Local records carry none.
func (r *Record) GetAddress() (string, error) {
	if !r.hasAddress {
		return "", &FieldError{Field: "address"}
	}
	return r.address, nil
}

// GetNetmask returns the netmask field, present only in the long
// address-plus-netmask record form.
func (r *Record) GetNetmask() (string, error) {
	if !r.hasNetmask {
		return "", &FieldError{Field: "netmask"}
	}
	return r.netmask, nil
}

// Databases splits the database field on commas.
func (r *Record) Databases() []string {
	return strings.Split(r.Database, ",")
}

// Users splits the user field on commas.
func (r *Record) Users() []string {
	return strings.Split(r.User, ",")
}

// Option returns the value of the named auth option.
func (r *Record) Option(name string) (string, bool) {
	for _, o := range r.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

func (r *Record) field(name string) (string, bool) {
	switch name {
	case "conntype":
		return r.ConnType, true
	case "database":
		return r.Database, true
	case "user":
		return r.User, true
	case "address":
		return r.address, r.hasAddress
	case "netmask":
		return r.netmask, r.hasNetmask
	case "method":
		return r.Method, true
	}
	return "", false
}

// Matches reports whether every provided attribute equals the record's
// corresponding common field. Unknown attribute names fail; absent fields
// never match.
func (r *Record) Matches(attrs map[string]string) (bool, error) {
	for name := range attrs {
		if !lo.Contains(commonFields, name) {
			return false, fmt.Errorf("%s is not a valid attribute", name)
		}
	}
	for name, want := range attrs {
		got, present := r.field(name)
		if !present || got != want {
			return false, nil
		}
	}
	return true, nil
}

// String serializes the record with the common fields aligned to the
// default pg_hba.conf column widths.
func (r *Record) String() string {
	var sb strings.Builder
	for i, name := range commonFields {
		width := 0
		if i < len(columnWidths) {
			width = columnWidths[i]
		}
		value, present := r.field(name)
		if !present {
			sb.WriteString(strings.Repeat(" ", width))
			continue
		}
		if width > 0 {
			fmt.Fprintf(&sb, "%-*s ", width-1, value)
		} else {
			sb.WriteString(value + " ")
		}
	}
	line := sb.String()
	for _, o := range r.Options {
		line += fmt.Sprintf(" %s=%q", o.Name, o.Value)
	}
	if r.Comment != "" {
		line = strings.TrimRight(line, " ") + "  # " + r.Comment
	}
	return strings.TrimRight(line, " ")
}

// tokenRe splits a record on whitespace while keeping double-quoted runs
// whole.
var tokenRe = regexp.MustCompile(`(?:"+.*?"+|\S)+`)

// ParseRecord parses one record line.
func ParseRecord(line string) (*Record, error) {
	values := []string{}
	for _, v := range tokenRe.FindAllString(strings.TrimSpace(line), -1) {
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}

	comment := ""
	if idx := lo.IndexOf(values, "#"); idx >= 0 {
		comment = strings.Join(values[idx+1:], " ")
		values = values[:idx]
	}
	if len(values) < 3 {
		return nil, fmt.Errorf("truncated record")
	}
	if !lo.Contains(ConnectionTypes, values[0]) {
		return nil, fmt.Errorf("unknown connection type '%s'", values[0])
	}

	fields := []string{"conntype", "database", "user"}
	if values[0] != "local" {
		fields = append(fields, "address")
	}
	positional := lo.CountBy(values, func(v string) bool { return !strings.Contains(v, "=") })
	if positional >= 6 {
		fields = append(fields, "netmask")
	}
	fields = append(fields, "method")
	if len(values) < len(fields) {
		return nil, fmt.Errorf("missing %s field", fields[len(values)])
	}

	r := &Record{Comment: comment}
	for i, name := range fields {
		switch name {
		case "conntype":
			r.ConnType = values[i]
		case "database":
			r.Database = values[i]
		case "user":
			r.User = values[i]
		case "address":
			r.SetAddress(values[i])
		case "netmask":
			r.SetNetmask(values[i])
		case "method":
			r.Method = values[i]
		}
	}
	for _, opt := range values[len(fields):] {
		name, value, found := strings.Cut(opt, "=")
		if !found {
			return nil, fmt.Errorf("invalid auth option '%s'", opt)
		}
		value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
		r.Options = append(r.Options, Option{Name: name, Value: value})
	}
	return r, nil
}

// Line is one pg_hba.conf line: either a Comment or a *Record.
type Line interface {
	fmt.Stringer
}

// Comment is a comment or blank line kept verbatim, newline excluded.
type Comment string

func (c Comment) String() string { return string(c) }

// File is an ordered mix of records and comment lines.
type File struct {
	Lines []Line
	Path  string
}

// Parse reads a pg_hba.conf from r.
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
	if err := f.parse(lines); err != nil {
		return nil, err
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

func (f *File) parse(lines []string) error {
	for i, raw := range lines {
		trimmed := strings.TrimRight(raw, "\r\n")
		stripped := strings.TrimLeft(trimmed, " \t")
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			f.Lines = append(f.Lines, Comment(trimmed))
			continue
		}
		record, err := ParseRecord(trimmed)
		if err != nil {
			return &lineio.ParseError{Lineno: i + 1, Line: raw, Message: err.Error()}
		}
		f.Lines = append(f.Lines, record)
	}
	return nil
}

// Records returns the meaningful records, comments skipped.
func (f *File) Records() []*Record {
	var records []*Record
	for _, line := range f.Lines {
		if r, ok := line.(*Record); ok {
			records = append(records, r)
		}
	}
	return records
}

// Remove drops the records for which filter returns true, keeping
// comments. It reports whether anything was removed.
func (f *File) Remove(filter func(*Record) bool) bool {
	kept := f.Lines[:0]
	for _, line := range f.Lines {
		if r, ok := line.(*Record); ok && filter(r) {
			continue
		}
		kept = append(kept, line)
	}
	changed := len(kept) != len(f.Lines)
	f.Lines = kept
	return changed
}

// RemoveMatching drops records matching all provided attributes.
func (f *File) RemoveMatching(attrs map[string]string) (bool, error) {
	if len(attrs) == 0 {
		return false, fmt.Errorf("attributes cannot be empty")
	}
	var invalid error
	changed := f.Remove(func(r *Record) bool {
		ok, err := r.Matches(attrs)
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

// Merge folds other into f: records matching an existing one on
// conntype, database, user and address replace it in place, carrying the
// comments written above them; everything else is appended at the end.
// It reports whether the file changed.
func (f *File) Merge(other *File) bool {
	before := renderLines(f.Lines)
	newLines := append([]Line(nil), other.Lines...)
	snapshot := append([]Line(nil), f.Lines...)
	offset := 0
	for i, line := range snapshot {
		record, ok := line.(*Record)
		if !ok {
			continue
		}
		var pending []Line
		for _, nl := range newLines {
			newRecord, isRecord := nl.(*Record)
			if !isRecord {
				// Preserve comments until the next record.
				pending = append(pending, nl)
				continue
			}
			attrs := map[string]string{
				"conntype": newRecord.ConnType,
				"database": newRecord.Database,
				"user":     newRecord.User,
			}
			if addr, err := newRecord.GetAddress(); err == nil {
				attrs["address"] = addr
			}
			if ok, _ := record.Matches(attrs); ok {
				replacement := append(append([]Line(nil), pending...), nl)
				idx := i + offset
				f.Lines = append(f.Lines[:idx], append(replacement, f.Lines[idx+1:]...)...)
				offset += len(replacement) - 1
				for _, used := range replacement {
					newLines = removeLine(newLines, used)
				}
				break
			}
			pending = pending[:0]
		}
	}
	f.Lines = append(f.Lines, newLines...)
	return before != renderLines(f.Lines)
}

func removeLine(lines []Line, target Line) []Line {
	for i, l := range lines {
		if l == target {
			return append(lines[:i], lines[i+1:]...)
		}
	}
	return lines
}

func renderLines(lines []Line) string {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteTo writes records and comments in order, records re-aligned.
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
