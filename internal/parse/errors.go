package parse

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrUnsupported is returned for files no registered parser handles.
var ErrUnsupported = errors.New("unsupported file type")

// Kind classifies why a file could not be parsed.
type Kind int

const (
	NotFound Kind = iota
	NotReadable
	Corrupted
	UnsupportedEncoding
	PasswordProtected
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotReadable:
		return "not readable"
	case Corrupted:
		return "corrupted"
	case UnsupportedEncoding:
		return "unsupported encoding"
	case PasswordProtected:
		return "password protected"
	default:
		return "unknown"
	}
}

// Error is a classified parse failure for a single file.
type Error struct {
	Path string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(path string, kind Kind, err error) *Error {
	return &Error{Path: path, Kind: kind, Err: err}
}

// fileError classifies an error returned while opening or reading a file.
func fileError(path string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, fs.ErrNotExist) {
		return newError(path, NotFound, err)
	}
	return newError(path, NotReadable, err)
}

// KindOf returns the kind of a parse failure. ok is false if err is not a
// classified parse failure.
func KindOf(err error) (kind Kind, ok bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return 0, false
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(path, err)
	}
	return data, nil
}
