package upload

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boundary = "----formBoundary7MA4YWxk"

func part(name, filename, content string) string {
	disp := `form-data; name="` + name + `"`
	if filename != "" {
		disp += `; filename="` + filename + `"`
	}
	return "--" + boundary + "\r\n" +
		"Content-Disposition: " + disp + "\r\n" +
		"Content-Type: text/csv\r\n\r\n" +
		content + "\r\n"
}

func body(parts ...string) string {
	return strings.Join(parts, "") + "--" + boundary + "--\r\n"
}

const contentType = "multipart/form-data; boundary=" + boundary

func TestExtract_WritesNamedPart(t *testing.T) {
	dir := t.TempDir()
	b := body(
		part("note", "", "hello"),
		part("csv", "products.csv", "Product Code,Product Description\r\nA1,Widget"),
	)

	f, err := Extract(contentType, strings.NewReader(b), Options{Dir: dir, MaxBytes: 1 << 20})
	require.NoError(t, err)

	assert.Equal(t, "products.csv", f.OriginalName)
	assert.True(t, strings.HasSuffix(f.Path, "-products.csv"))
	assert.Equal(t, dir, filepath.Dir(f.Path))

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "Product Code,Product Description\r\nA1,Widget", string(data))
	assert.Equal(t, int64(len(data)), f.Size)

	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, f.Remove())
}

func TestExtract_FirstMatchingPartWins(t *testing.T) {
	b := body(part("csv", "a.csv", "first"), part("csv", "b.csv", "second"))
	f, err := Extract(contentType, strings.NewReader(b), Options{Dir: t.TempDir(), MaxBytes: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, "a.csv", f.OriginalName)
}

func TestExtract_Errors(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		max         int64
		want        error
	}{
		{"no boundary", "multipart/form-data", body(part("csv", "a.csv", "x")), 1 << 20, ErrMissingBoundary},
		{"not multipart", "application/json", "{}", 1 << 20, ErrMissingBoundary},
		{"too large", contentType, body(part("csv", "a.csv", strings.Repeat("x", 100))), 50, ErrTooLarge},
		{"missing field", contentType, body(part("file", "a.csv", "x")), 1 << 20, ErrMissingFile},
		{"wrong extension", contentType, body(part("csv", "a.xlsx", "x")), 1 << 20, ErrUnsupportedType},
		{"empty body", contentType, "", 1 << 20, ErrMissingFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			_, err := Extract(tc.contentType, strings.NewReader(tc.body), Options{Dir: dir, MaxBytes: tc.max})
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			entries, _ := os.ReadDir(dir)
			assert.Empty(t, entries)
		})
	}
}

func TestExtract_MaxBytesReader(t *testing.T) {
	w := httptest.NewRecorder()
	r := http.MaxBytesReader(w, ioNopCloser{strings.NewReader(strings.Repeat("x", 64))}, 10)

	_, err := Extract(contentType, r, Options{Dir: t.TempDir()})
	assert.ErrorIs(t, err, ErrTooLarge)
}

type ioNopCloser struct{ *strings.Reader }

func (ioNopCloser) Close() error { return nil }

func TestExtract_DefaultsFilenameAndAllowsUpperCaseExtension(t *testing.T) {
	b := body(part("csv", "EXPORT.CSV", "x"))
	f, err := Extract(contentType, strings.NewReader(b), Options{Dir: t.TempDir(), MaxBytes: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, "EXPORT.CSV", f.OriginalName)

	raw := "--" + boundary + "\r\nContent-Disposition: form-data; name=\"csv\"\r\n\r\nx\r\n--" + boundary + "--\r\n"
	f, err = Extract(contentType, strings.NewReader(raw), Options{Dir: t.TempDir(), MaxBytes: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, "upload.csv", f.OriginalName)
}

func TestScanner_SkipsMalformedPartsAndStopsAtClose(t *testing.T) {
	raw := "preamble\r\n" +
		"--b\r\nno header terminator\r\n" +
		"--b\r\nContent-Disposition: form-data; name=\"x\"\r\n\r\n1\r\n" +
		"--b--\r\n" +
		"--b\r\nContent-Disposition: form-data; name=\"y\"\r\n\r\n2\r\n--b\r\n"

	s := NewScanner([]byte(raw), "b")
	var names []string
	for s.Next() {
		names = append(names, s.Part().FormName())
	}
	assert.Equal(t, []string{"x"}, names)
}

func TestScanner_ContentKeepsInnerCRLF(t *testing.T) {
	raw := "--b\r\nContent-Disposition: form-data; name=\"csv\"\r\n\r\na\r\nb\r\n\r\n--b--"
	s := NewScanner([]byte(raw), "b")
	require.True(t, s.Next())
	assert.Equal(t, "a\r\nb\r\n", string(s.Part().Content))
	assert.False(t, s.Next())
}

func TestBoundary(t *testing.T) {
	assert.Equal(t, "abc", Boundary(`multipart/form-data; boundary="abc"`))
	assert.Equal(t, "abc", Boundary("multipart/form-data; boundary=abc; charset=utf-8"))
	assert.Equal(t, "", Boundary("text/plain"))
	assert.Equal(t, "", Boundary(""))
}

func TestDispositionParams_Lenient(t *testing.T) {
	p := dispositionParams(`form-data; name=csv; filename=my products.csv`)
	assert.Equal(t, "csv", p["name"])
	assert.Equal(t, "my products.csv", p["filename"])
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "upload.csv", SanitizeFilename(""))
	assert.Equal(t, "a_b_c_.csv", SanitizeFilename(`a/b\c?.csv`))
	assert.Equal(t, "_______.csv", SanitizeFilename(`%*:|"<>.csv`))

	long := SanitizeFilename(strings.Repeat("é", 300))
	assert.Equal(t, 180, len([]rune(long)))
}

func TestReadLimited_ExactCeiling(t *testing.T) {
	data, err := readLimited(bytes.NewReader(make([]byte, 10)), 10)
	require.NoError(t, err)
	assert.Len(t, data, 10)
}
