// Package service reads and writes connection service files
// (pg_service.conf): INI sections named after services, each carrying
// libpq connection parameters.
//
// https://www.postgresql.org/docs/current/libpq-pgservice.html
package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/ini.v1"
)

// Parameter is one connection parameter, order preserved.
type Parameter struct {
	Name  string
	Value string
}

// Service is one named section of a service file.
type Service struct {
	Name       string
	Parameters []Parameter
}

// Get returns the value of the named parameter.
func (s *Service) Get(name string) (string, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Set updates or appends a parameter.
func (s *Service) Set(name, value string) {
	for i, p := range s.Parameters {
		if p.Name == name {
			s.Parameters[i].Value = value
			return
		}
	}
	s.Parameters = append(s.Parameters, Parameter{Name: name, Value: value})
}

// File is an ordered collection of services.
type File struct {
	services []*Service
	Path     string
}

// iniLoadOptions configure the parser for libpq's dialect: '#' comments
// only, no value quoting or interpolation.
var iniLoadOptions = ini.LoadOptions{
	IgnoreInlineComment: true,
}

// Parse reads a service file from r.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseBytes(data)
}

// ParseFile parses the file at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parseBytes(data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

func parseBytes(data []byte) (*File, error) {
	source, err := ini.LoadSources(iniLoadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("reading service file: %w", err)
	}
	f := &File{}
	for _, section := range source.Sections() {
		if section.Name() == ini.DefaultSection {
			if len(section.Keys()) > 0 {
				return nil, fmt.Errorf("parameter '%s' outside any service section", section.Keys()[0].Name())
			}
			continue
		}
		s := &Service{Name: section.Name()}
		for _, key := range section.Keys() {
			s.Parameters = append(s.Parameters, Parameter{Name: key.Name(), Value: key.Value()})
		}
		f.services = append(f.services, s)
	}
	return f, nil
}

// Get returns the named service.
func (f *File) Get(name string) (*Service, bool) {
	for _, s := range f.services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Add inserts or replaces a service by name.
func (f *File) Add(s *Service) {
	for i, existing := range f.services {
		if existing.Name == s.Name {
			f.services[i] = s
			return
		}
	}
	f.services = append(f.services, s)
}

// Remove drops the named service, reporting whether it existed.
func (f *File) Remove(name string) bool {
	for i, s := range f.services {
		if s.Name == name {
			f.services = append(f.services[:i], f.services[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the service names in file order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.services))
	for _, s := range f.services {
		names = append(names, s.Name)
	}
	return names
}

// Services returns the services in file order.
func (f *File) Services() []*Service {
	return f.services
}

// WriteTo renders the file in the strict form libpq reads: bare
// [section] headers and unquoted, unpadded key=value lines.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for i, s := range f.services {
		if i > 0 {
			written, err := io.WriteString(w, "\n")
			n += int64(written)
			if err != nil {
				return n, err
			}
		}
		written, err := fmt.Fprintf(w, "[%s]\n", s.Name)
		n += int64(written)
		if err != nil {
			return n, err
		}
		for _, p := range s.Parameters {
			written, err := fmt.Fprintf(w, "%s=%s\n", p.Name, p.Value)
			n += int64(written)
			if err != nil {
				return n, err
			}
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

// Find locates the effective service file the way libpq does:
// PGSERVICEFILE if set, then ~/.pg_service.conf, then
// pg_service.conf under PGSYSCONFDIR.
func Find() (string, error) {
	if path := os.Getenv("PGSERVICEFILE"); path != "" {
		return path, nil
	}
	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".pg_service.conf"))
	}
	if sysconfdir := os.Getenv("PGSYSCONFDIR"); sysconfdir != "" {
		candidates = append(candidates, filepath.Join(sysconfdir, "pg_service.conf"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no service file found (candidates: %v)", candidates)
}

// SortedNames returns the service names sorted alphabetically.
func (f *File) SortedNames() []string {
	names := f.Names()
	sort.Strings(names)
	return names
}
