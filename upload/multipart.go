package upload

import (
	"bytes"
	"mime"
	"strings"
)

var (
	crlf       = []byte("\r\n")
	headerSep  = []byte("\r\n\r\n")
	closeDelim = []byte("--")
)

// Part is one body part of a multipart message.
type Part struct {
	Header  map[string]string // lower-cased header names
	Content []byte
}

// FormName returns the name parameter of the part's Content-Disposition.
func (p Part) FormName() string {
	return dispositionParams(p.Header["content-disposition"])["name"]
}

// FileName returns the filename parameter of the part's Content-Disposition.
func (p Part) FileName() string {
	return dispositionParams(p.Header["content-disposition"])["filename"]
}

// Scanner walks the parts of a fully buffered multipart body.
//
//	s := NewScanner(body, boundary)
//	for s.Next() {
//		part := s.Part()
//	}
type Scanner struct {
	body   []byte
	delim  []byte
	cursor int
	part   Part
	done   bool
}

// NewScanner returns a scanner for body using boundary (without the leading dashes).
func NewScanner(body []byte, boundary string) *Scanner {
	return &Scanner{body: body, delim: []byte("--" + boundary)}
}

// Next advances to the next well-formed part. It returns false once the closing
// delimiter is reached or no further complete part exists.
func (s *Scanner) Next() bool {
	for !s.done {
		start := indexFrom(s.body, s.delim, s.cursor)
		if start < 0 {
			s.done = true
			return false
		}
		end := indexFrom(s.body, s.delim, start+len(s.delim))
		if end < 0 {
			s.done = true
			return false
		}
		s.cursor = end

		raw := s.body[start+len(s.delim) : end]
		raw = bytes.TrimPrefix(raw, crlf)
		if bytes.HasPrefix(raw, closeDelim) {
			s.done = true
			return false
		}

		headerEnd := bytes.Index(raw, headerSep)
		if headerEnd < 0 {
			continue
		}

		s.part = Part{
			Header:  parseHeaderBlock(raw[:headerEnd]),
			Content: bytes.TrimSuffix(raw[headerEnd+len(headerSep):], crlf),
		}
		return true
	}
	return false
}

// Part returns the part found by the last successful call to Next.
func (s *Scanner) Part() Part {
	return s.part
}

func indexFrom(b, sep []byte, from int) int {
	if from >= len(b) {
		return -1
	}
	i := bytes.Index(b[from:], sep)
	if i < 0 {
		return -1
	}
	return from + i
}

func parseHeaderBlock(block []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\r\n") {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(line[:idx]))] = strings.TrimSpace(line[idx+1:])
	}
	return headers
}

// dispositionParams parses a Content-Disposition value. Values mime rejects (unquoted
// spaces, stray separators) are split leniently on ';' and '='.
func dispositionParams(v string) map[string]string {
	if _, params, err := mime.ParseMediaType(v); err == nil {
		return params
	}

	params := make(map[string]string)
	for _, p := range strings.Split(v, ";") {
		p = strings.TrimSpace(p)
		eq := strings.IndexByte(p, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(p[:eq]))
		params[key] = strings.Trim(strings.TrimSpace(p[eq+1:]), `"`)
	}
	return params
}

// Boundary extracts the boundary parameter from a multipart Content-Type.
func Boundary(contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		return params["boundary"]
	}
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "boundary=")
	if idx < 0 {
		return ""
	}
	b := contentType[idx+len("boundary="):]
	if semi := strings.IndexByte(b, ';'); semi >= 0 {
		b = b[:semi]
	}
	return strings.Trim(strings.TrimSpace(b), `"`)
}
