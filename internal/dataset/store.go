// Package dataset serves the JSON data sets written by the P1 reader.
//
// A data set name maps to <base dir>/<name>.json by plain concatenation.
// Markup characters in the name are escaped before the path is built, so
// the path echoed back for a missing file never carries raw markup.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidSet is returned in strict mode for names that would leave the
// base directory.
var ErrInvalidSet = errors.New("invalid data set name")

const fileSuffix = ".json"

var setEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#039;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeSet neutralizes HTML-significant characters in a data set name.
func EscapeSet(set string) string {
	return setEscaper.Replace(set)
}

// MissingMessage is the body returned when no file exists at path.
func MissingMessage(path string) string {
	return fmt.Sprintf("The file %s does not exist", path)
}

// Result is the outcome of a lookup. Body is set only when Found.
type Result struct {
	Path  string
	Found bool
	Body  []byte
}

// Store resolves data set names against a base directory. It keeps no state
// between lookups; file existence is checked on every call.
type Store struct {
	baseDir  string
	strict   bool
	readFile func(string) ([]byte, error)
}

func NewStore(baseDir string, strict bool) *Store {
	return &Store{baseDir: baseDir, strict: strict, readFile: os.ReadFile}
}

// Path returns the file path for a data set name.
func (s *Store) Path(set string) string {
	return strings.TrimRight(s.baseDir, "/") + "/" + EscapeSet(set) + fileSuffix
}

// Lookup reads the data set file. A missing or non-regular file is reported
// through Result.Found; only read failures on an existing file are errors.
func (s *Store) Lookup(set string) (Result, error) {
	if s.strict {
		if err := validateSet(set); err != nil {
			return Result{}, err
		}
	}

	path := s.Path(set)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Result{Path: path}, nil
	}

	body, err := s.readFile(path)
	if err != nil {
		return Result{Path: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return Result{Path: path, Found: true, Body: body}, nil
}

// validateSet quotes rejected names in escaped form; the message reaches
// the client.
func validateSet(set string) error {
	switch {
	case set == "":
		return fmt.Errorf("%w: empty", ErrInvalidSet)
	case strings.ContainsAny(set, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSet, EscapeSet(set))
	case strings.Contains(set, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrInvalidSet, EscapeSet(set))
	}
	return nil
}
