// Package source turns uploaded or on-disk documents into UTF-8 roll text.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmpty is returned for documents with no text content.
	ErrEmpty = errors.New("empty document")

	// ErrNotText is returned when text is requested from a binary document.
	ErrNotText = errors.New("document is not text")
)

const (
	mimePDF   = "application/pdf"
	mimeOctet = "application/octet-stream"
)

// Document is raw document content plus its detected media type.
type Document struct {
	Name string
	MIME string
	Data []byte
}

// Load reads a document from disk and detects its media type.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return FromBytes(filepath.Base(path), data), nil
}

// FromReader reads at most limit bytes from r. A limit of zero or less
// reads everything.
func FromReader(name string, r io.Reader, limit int64) (*Document, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, limit)
	}
	return FromBytes(name, data), nil
}

// FromBytes wraps in-memory content.
func FromBytes(name string, data []byte) *Document {
	return &Document{Name: name, MIME: DetectMIME(data), Data: data}
}

// DetectMIME sniffs the media type of content.
func DetectMIME(head []byte) string {
	if len(head) == 0 {
		return mimeOctet
	}
	mt := http.DetectContentType(head)
	if mt != mimeOctet {
		return mt
	}
	return mimetype.Detect(head).String()
}

// IsPDF reports whether the document is a PDF.
func (d *Document) IsPDF() bool {
	return strings.HasPrefix(strings.ToLower(d.MIME), mimePDF)
}

// Text decodes the document to normalized UTF-8 text.
func (d *Document) Text() (string, error) {
	if d.IsPDF() {
		return "", fmt.Errorf("%s: %w (%s)", d.Name, ErrNotText, d.MIME)
	}
	text, err := Decode(d.Data, d.MIME)
	if err != nil {
		return "", fmt.Errorf("%s: %w", d.Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", d.Name, ErrEmpty)
	}
	return text, nil
}

// Decode converts data to normalized UTF-8. Valid UTF-8 passes through;
// anything else is transcoded from the encoding named by contentType or
// sniffed from the content.
func Decode(data []byte, contentType string) (string, error) {
	if utf8.Valid(data) {
		return Normalize(string(data)), nil
	}
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	reader := transform.NewReader(bytes.NewReader(data), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	if !utf8.Valid(decoded) {
		return "", fmt.Errorf("transcoded result invalid utf-8")
	}
	return Normalize(string(decoded)), nil
}

// Normalize drops a byte order mark, unifies line endings and composes
// characters to NFC so keyword matching sees one form of each letter.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return norm.NFC.String(s)
}
