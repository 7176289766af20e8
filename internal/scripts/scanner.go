// Package scripts enumerates and resolves the launchable scripts in the
// configured script directory.
package scripts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownScript is returned by Resolve for names that are not a script in
// the directory.
var ErrUnknownScript = errors.New("unknown script")

// Script describes one launchable file. Name is the bare file name including
// the extension.
type Script struct {
	Name string
	Path string
}

// DirectoryAccessError reports a script directory that is missing, unreadable
// or not a directory.
type DirectoryAccessError struct {
	Dir string
	Err error
}

func (e *DirectoryAccessError) Error() string {
	return fmt.Sprintf("script directory %s: %v", e.Dir, e.Err)
}

func (e *DirectoryAccessError) Unwrap() error { return e.Err }

// Scanner lists files with a given extension in a single directory.
// Results are recomputed on every call.
type Scanner struct {
	Dir string
	Ext string
}

// NewScanner returns a Scanner for dir. An empty ext means ".py".
func NewScanner(dir, ext string) *Scanner {
	if ext == "" {
		ext = ".py"
	}
	return &Scanner{Dir: dir, Ext: ext}
}

// List returns the scripts in the directory sorted by name. Subdirectories are
// not descended into. An empty directory yields an empty, non-nil slice.
func (s *Scanner) List() ([]Script, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, &DirectoryAccessError{Dir: s.Dir, Err: err}
	}
	out := make([]Script, 0, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || !s.Matches(ent.Name()) {
			continue
		}
		out = append(out, Script{Name: ent.Name(), Path: filepath.Join(s.Dir, ent.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Matches reports whether a bare file name carries the script extension.
func (s *Scanner) Matches(name string) bool {
	return strings.HasSuffix(name, s.Ext) && len(name) > len(s.Ext)
}

// Resolve turns an operator-selected name into a Script. The name must be a
// plain file name in the directory; anything with a path component is
// rejected so a crafted callback cannot point outside the directory.
func (s *Scanner) Resolve(name string) (Script, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name ||
		!s.Matches(name) {
		return Script{}, fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}
	dirInfo, err := os.Stat(s.Dir)
	if err != nil {
		return Script{}, &DirectoryAccessError{Dir: s.Dir, Err: err}
	}
	if !dirInfo.IsDir() {
		return Script{}, &DirectoryAccessError{Dir: s.Dir, Err: errors.New("not a directory")}
	}
	path := filepath.Join(s.Dir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return Script{}, fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}
	return Script{Name: name, Path: path}, nil
}
