package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/pgtoolkit/pkg/lineio"
)

// IncludeType discriminates the three include directives.
//
// https://www.postgresql.org/docs/current/config-setting.html#CONFIG-INCLUDES
type IncludeType int

const (
	Include IncludeType = iota
	IncludeDir
	IncludeIfExists
)

func includeTypeFromName(name string) (IncludeType, bool) {
	switch name {
	case "include":
		return Include, true
	case "include_dir":
		return IncludeDir, true
	case "include_if_exists":
		return IncludeIfExists, true
	}
	return 0, false
}

type includeRef struct {
	path string
	typ  IncludeType
	// Index of the directive's line in the referencing file. Settings
	// written after the directive override the included file's.
	line int
}

// IncludeError reports an include target that does not exist. It names
// both the missing path and the referencing file, and unwraps to
// os.ErrNotExist.
type IncludeError struct {
	Path string
	From string
	Dir  bool
}

func (e *IncludeError) Error() string {
	kind := "file"
	if e.Dir {
		kind = "directory"
	}
	return fmt.Sprintf("%s '%s', included from '%s', not found", kind, e.Path, e.From)
}

func (e *IncludeError) Unwrap() error { return os.ErrNotExist }

// IncludeLoopError reports a cycle in include directives.
type IncludeLoopError struct {
	Path string
}

func (e *IncludeLoopError) Error() string {
	return fmt.Sprintf("loop detected in include directive for '%s'", e.Path)
}

// processInclude resolves one include directive found at line afterLine
// of the file at from. Relative paths resolve against the referencing
// file's directory. seen tracks resolved absolute paths for cycle
// detection.
func (c *Configuration) processInclude(path string, typ IncludeType, from string, afterLine int, seen map[string]bool) error {
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(from), path)
	}

	switch typ {
	case IncludeDir:
		fi, err := os.Stat(path)
		if err != nil || !fi.IsDir() {
			return &IncludeError{Path: path, From: from, Dir: true}
		}
		names, err := confFilesIn(path)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := c.processInclude(filepath.Join(path, name), Include, from, afterLine, seen); err != nil {
				return err
			}
		}
		return nil

	case IncludeIfExists:
		if _, err := os.Stat(path); err != nil {
			logger.Debugf("include_if_exists %s: missing, skipped", path)
			return nil
		}
		return c.processInclude(path, Include, from, afterLine, seen)
	}

	if _, err := os.Stat(path); err != nil {
		return &IncludeError{Path: path, From: from}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if seen[abs] {
		return &IncludeLoopError{Path: abs}
	}
	seen[abs] = true

	logger.Debugf("including %s from %s", path, from)
	lines, err := lineio.ReadLines(path)
	if err != nil {
		return err
	}
	sub := New()
	sub.Path = path
	includes, err := sub.parse(lines)
	if err != nil {
		var perr *lineio.ParseError
		if errors.As(err, &perr) {
			perr.Message = fmt.Sprintf("%s (in %s)", perr.Message, path)
		}
		return err
	}
	for _, inc := range includes {
		if err := sub.processInclude(inc.path, inc.typ, path, inc.line, seen); err != nil {
			return err
		}
	}
	// Merge entries only; the parent's line sequence never carries
	// included files' contents. A live setting written after the
	// directive keeps precedence over the included file's.
	for _, name := range sub.order {
		if existing, ok := c.entries[name]; ok && !existing.Commented && existing.line > afterLine {
			continue
		}
		e := sub.entries[name].clone()
		e.line = -1
		c.put(e)
	}
	return nil
}

// confFilesIn lists *.conf files in dir, dotfiles excluded, sorted.
func confFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".conf") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
