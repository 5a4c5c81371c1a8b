// Package conf implements the postgresql.conf file format: parsing with
// value-type inference, include-directive resolution, and line-level
// round-trip editing that leaves untouched lines byte for byte intact.
package conf

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/flanksource/pgtoolkit/pkg/lineio"
)

// Assignment grammar: dotted lowercase name, then either '=' (spaces
// optional) or bare whitespace, then the value, then an optional trailing
// comment. Two expressions stand in for the reference lookahead form.
var (
	eqAssignRe    = regexp.MustCompile(`^([a-z_.]+)[ \t]*=[ \t]*(.*?)[ \t]*(#.*)?$`)
	spaceAssignRe = regexp.MustCompile(`^([a-z_.]+)[ \t]+(.*?)[ \t]*(#.*)?$`)
)

func splitAssignment(line string) (name, value, comment string, ok bool) {
	m := eqAssignRe.FindStringSubmatch(line)
	if m == nil {
		m = spaceAssignRe.FindStringSubmatch(line)
	}
	if m == nil {
		return "", "", "", false
	}
	comment = strings.TrimLeft(strings.TrimLeft(m[3], "#"), " \t")
	return m[1], m[2], comment, true
}

// Entry is one meaningful configuration line: a named, typed value with
// its formatting metadata. A commented entry is a line that parses as an
// assignment behind a leading '#'.
type Entry struct {
	Name      string
	Value     Value
	Commented bool
	Comment   string

	// Index of the serialized line in the owning Configuration, -1 when
	// the entry has no line slot (merged from an included file).
	line int
}

// String serializes the entry as a configuration line, without newline.
func (e *Entry) String() string {
	line := e.Name + " = " + e.Value.Serialize()
	if e.Comment != "" {
		line += "  # " + e.Comment
	}
	if e.Commented {
		line = "#" + line
	}
	return line
}

func (e *Entry) equal(o *Entry) bool {
	return e.Name == o.Name &&
		e.Value == o.Value &&
		e.Comment == o.Comment &&
		e.Commented == o.Commented
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// Configuration holds a parsed postgresql.conf: the verbatim line
// sequence plus a name-indexed view of the meaningful entries. Every live
// entry tracks the index of its serialized line; mutations rewrite that
// single line and leave the rest of the file untouched.
type Configuration struct {
	Path string

	lines   []string
	entries map[string]*Entry
	order   []string
}

// New returns an empty Configuration.
func New() *Configuration {
	return &Configuration{entries: map[string]*Entry{}}
}

// Parse reads a configuration from r. Include directives are rejected:
// resolving them requires a filesystem path, use ParseFile instead.
func Parse(r io.Reader) (*Configuration, error) {
	lines, err := lineio.ReaderLines(r)
	if err != nil {
		return nil, err
	}
	return ParseLines(lines)
}

// ParseLines parses an in-memory line sequence. Include directives are
// rejected, as with Parse.
func ParseLines(lines []string) (*Configuration, error) {
	c := New()
	includes, err := c.parse(lines)
	if err != nil {
		return nil, err
	}
	if len(includes) > 0 {
		return nil, fmt.Errorf("cannot process include directives without a file path: %s", includes[0].path)
	}
	return c, nil
}

// ParseFile parses the file at path ("-" reads stdin, without include
// support), resolving include, include_dir and include_if_exists
// directives recursively. Entries from included files are merged into the
// returned Configuration; its line sequence stays that of the top file.
func ParseFile(path string) (*Configuration, error) {
	lines, err := lineio.ReadLines(path)
	if err != nil {
		return nil, err
	}
	if path == "-" {
		return ParseLines(lines)
	}
	c := New()
	c.Path = path
	includes, err := c.parse(lines)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, inc := range includes {
		if err := c.processInclude(inc.path, inc.typ, path, inc.line, seen); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// parse consumes raw lines and returns the include directives found, in
// order. Raw lines are kept verbatim; only assignment lines produce
// entries.
func (c *Configuration) parse(lines []string) ([]includeRef, error) {
	var includes []includeRef
	for i, raw := range lines {
		c.lines = append(c.lines, raw)
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		commented := false
		if strings.HasPrefix(line, "#") {
			line = strings.TrimLeft(strings.TrimLeft(line, "#"), " \t")
			commented = true
		}
		name, rawValue, comment, ok := splitAssignment(line)
		if !ok {
			if commented {
				// A real comment.
				continue
			}
			return nil, &lineio.ParseError{Lineno: i + 1, Line: raw, Message: "invalid syntax"}
		}
		value, err := ParseValue(rawValue)
		if err != nil {
			return nil, &lineio.ParseError{Lineno: i + 1, Line: raw, Message: err.Error()}
		}
		if typ, isInclude := includeTypeFromName(name); isInclude {
			if commented {
				continue
			}
			path, err := value.Text()
			if err != nil {
				return nil, &lineio.ParseError{Lineno: i + 1, Line: raw, Message: "include path must be a string"}
			}
			includes = append(includes, includeRef{path: path, typ: typ, line: len(c.lines) - 1})
			continue
		}
		if commented {
			// A later commented occurrence never overrides a live entry;
			// the raw line is kept as a plain comment.
			if prev, exists := c.entries[name]; exists && !prev.Commented {
				continue
			}
		}
		c.put(&Entry{
			Name:      name,
			Value:     value,
			Commented: commented,
			Comment:   comment,
			line:      len(c.lines) - 1,
		})
	}
	return includes, nil
}

func (c *Configuration) put(e *Entry) {
	if _, exists := c.entries[e.Name]; !exists {
		c.order = append(c.order, e.Name)
	}
	c.entries[e.Name] = e
}

// Get returns the value of a live or commented entry.
func (c *Configuration) Get(name string) (Value, bool) {
	e, ok := c.entries[name]
	if !ok {
		return Value{}, false
	}
	return e.Value, true
}

// Entry returns the full entry for name, formatting metadata included.
func (c *Configuration) Entry(name string) (*Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Contains reports whether an entry with this name exists.
func (c *Configuration) Contains(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Names returns entry names in file order.
func (c *Configuration) Names() []string {
	return append([]string(nil), c.order...)
}

// AsMap returns the live (uncommented) entries as a name-to-value map.
// Include directives never appear here; they are consumed during parse.
func (c *Configuration) AsMap() map[string]Value {
	m := make(map[string]Value, len(c.entries))
	for name, e := range c.entries {
		if !e.Commented {
			m[name] = e.Value
		}
	}
	return m
}

// Set stores a value under name, updating the entry's single serialized
// line in place or appending a new line for a new name. Setting a
// commented entry uncomments it. Reserved include-directive names are
// rejected.
func (c *Configuration) Set(name string, value Value) error {
	if _, isInclude := includeTypeFromName(name); isInclude {
		return fmt.Errorf("cannot set include directive %q as a configuration key", name)
	}
	if e, ok := c.entries[name]; ok {
		e.Value = value
		e.Commented = false
		c.rewriteLine(e)
		return nil
	}
	c.appendEntry(&Entry{Name: name, Value: value})
	return nil
}

// SetRaw parses raw with ParseValue and stores the result under name. The
// aggregate is left unmodified when the value fails to decode.
func (c *Configuration) SetRaw(name, raw string) error {
	value, err := ParseValue(raw)
	if err != nil {
		return err
	}
	return c.Set(name, value)
}

// Delete removes the entry and its line. It reports whether an entry was
// removed.
func (c *Configuration) Delete(name string) bool {
	e, ok := c.entries[name]
	if !ok {
		return false
	}
	delete(c.entries, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.removeLine(e.line)
	return true
}

// Merge returns a new Configuration combining the entries of c and other,
// other winning on conflicts. Source formatting is discarded: the result
// serializes its entries in order, one per line.
func (c *Configuration) Merge(other *Configuration) *Configuration {
	merged := New()
	for _, src := range []*Configuration{c, other} {
		for _, name := range src.order {
			e := src.entries[name].clone()
			e.line = -1
			merged.put(e)
		}
	}
	for _, name := range merged.order {
		merged.rewriteLine(merged.entries[name])
	}
	return merged
}

func (c *Configuration) appendEntry(e *Entry) {
	e.line = len(c.lines)
	c.lines = append(c.lines, e.String()+"\n")
	c.put(e)
}

func (c *Configuration) rewriteLine(e *Entry) {
	if e.line < 0 {
		// Entry came from an included file or a lines-discarding merge
		// and has no slot in this file; give it one at the end.
		e.line = len(c.lines)
		c.lines = append(c.lines, e.String()+"\n")
		return
	}
	c.lines[e.line] = e.String() + "\n"
}

func (c *Configuration) removeLine(idx int) {
	if idx < 0 {
		return
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	for _, e := range c.entries {
		if e.line > idx {
			e.line--
		}
	}
}

// EntriesProxy is the mutable view handed to an Edit callback. It holds
// deep copies; nothing touches the Configuration until the callback
// returns nil.
type EntriesProxy struct {
	entries map[string]*Entry
	order   []string
}

// Get returns the proxied entry for name. The entry may be mutated in
// place.
func (p *EntriesProxy) Get(name string) (*Entry, bool) {
	e, ok := p.entries[name]
	return e, ok
}

// Add creates a new entry. Adding an existing name fails.
func (p *EntriesProxy) Add(name string, value Value) (*Entry, error) {
	if _, isInclude := includeTypeFromName(name); isInclude {
		return nil, fmt.Errorf("cannot add include directive %q", name)
	}
	if _, exists := p.entries[name]; exists {
		return nil, fmt.Errorf("%q key already present", name)
	}
	e := &Entry{Name: name, Value: value, line: -1}
	p.entries[name] = e
	p.order = append(p.order, name)
	return e, nil
}

// Delete drops name from the proxy; the entry and its line are removed
// from the Configuration at reconcile time.
func (p *EntriesProxy) Delete(name string) {
	if _, exists := p.entries[name]; !exists {
		return
	}
	delete(p.entries, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Names returns proxied entry names in order.
func (p *EntriesProxy) Names() []string {
	return append([]string(nil), p.order...)
}

// Edit runs fn against a snapshot of all entries and reconciles the
// result back on success: changed entries are rewritten in place, new
// ones appended, absent ones deleted. When fn returns an error nothing is
// applied and the Configuration is left exactly as it was.
func (c *Configuration) Edit(fn func(*EntriesProxy) error) error {
	proxy := &EntriesProxy{
		entries: make(map[string]*Entry, len(c.entries)),
		order:   append([]string(nil), c.order...),
	}
	for name, e := range c.entries {
		proxy.entries[name] = e.clone()
	}
	if err := fn(proxy); err != nil {
		return err
	}
	for _, name := range proxy.order {
		e := proxy.entries[name]
		old, exists := c.entries[name]
		switch {
		case !exists:
			c.appendEntry(e)
		case !old.equal(e):
			e.line = old.line
			if old.Commented {
				// Setting a value on a commented entry uncomments it.
				e.Commented = false
			}
			c.entries[name] = e
			c.rewriteLine(e)
		}
	}
	for _, name := range c.Names() {
		if _, kept := proxy.entries[name]; !kept {
			c.Delete(name)
		}
	}
	return nil
}

// WriteTo writes the line sequence verbatim.
func (c *Configuration) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, line := range c.lines {
		written, err := io.WriteString(w, line)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Save writes the configuration back to its source path.
func (c *Configuration) Save() error {
	if c.Path == "" {
		return fmt.Errorf("no path associated with this configuration")
	}
	return c.SaveTo(c.Path)
}

// SaveTo writes the configuration to the file at path. Untouched lines
// are reproduced byte for byte; included files are never written.
func (c *Configuration) SaveTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := c.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
