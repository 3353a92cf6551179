// Package upload pulls a single named file field out of a buffered multipart body and
// stores it as a request-scoped temp file.
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrMissingBoundary = errors.New("missing multipart boundary")
	ErrTooLarge        = errors.New("upload too large")
	ErrMissingFile     = errors.New("missing file field")
	ErrUnsupportedType = errors.New("unsupported file type")
)

const (
	DefaultFieldName = "csv"
	DefaultExtension = ".csv"
	defaultFileName  = "upload.csv"
	maxFileNameLen   = 180
)

// Options controls Extract.
type Options struct {
	Dir       string // temp directory, created if missing
	MaxBytes  int64  // body ceiling
	FieldName string
	Extension string // required filename suffix, compared case-insensitively
}

func (o Options) withDefaults() Options {
	if o.FieldName == "" {
		o.FieldName = DefaultFieldName
	}
	if o.Extension == "" {
		o.Extension = DefaultExtension
	}
	if o.Dir == "" {
		o.Dir = os.TempDir()
	}
	return o
}

// File is an upload stored on local disk for the lifetime of one request.
type File struct {
	Path         string
	OriginalName string
	Size         int64
}

// Remove deletes the temp file. A missing file is not an error.
func (f *File) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Extract reads body (at most opts.MaxBytes), finds the first part named opts.FieldName
// and writes its content to a new temp file. Nothing is written on failure.
func Extract(contentType string, body io.Reader, opts Options) (*File, error) {
	opts = opts.withDefaults()

	boundary := Boundary(contentType)
	if boundary == "" {
		return nil, ErrMissingBoundary
	}

	data, err := readLimited(body, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	s := NewScanner(data, boundary)
	for s.Next() {
		part := s.Part()
		if part.FormName() != opts.FieldName {
			continue
		}

		name := SanitizeFilename(part.FileName())
		if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(opts.Extension)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, name)
		}
		return writeTemp(opts.Dir, name, part.Content)
	}
	return nil, fmt.Errorf("%w %q", ErrMissingFile, opts.FieldName)
}

func readLimited(body io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		data, err := io.ReadAll(body)
		return data, translateReadErr(err)
	}

	data, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return nil, translateReadErr(err)
	}
	if int64(len(data)) > max {
		return nil, ErrTooLarge
	}
	return data, nil
}

func translateReadErr(err error) error {
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrTooLarge
	}
	return fmt.Errorf("read upload body: %w", err)
}

func writeTemp(dir, name string, content []byte) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate upload token: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), token, name))

	if err := os.WriteFile(path, content, 0o600); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return &File{Path: path, OriginalName: name, Size: int64(len(content))}, nil
}

// SanitizeFilename replaces path and shell-hostile characters with '_' and caps the
// length. An empty name becomes "upload.csv".
func SanitizeFilename(name string) string {
	if name == "" {
		name = defaultFileName
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '?', '%', '*', ':', '|', '"', '<', '>':
			return '_'
		}
		return r
	}, name)

	if r := []rune(name); len(r) > maxFileNameLen {
		name = string(r[:maxFileNameLen])
	}
	return name
}
