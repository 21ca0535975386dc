package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"insight-agents/internal/document"
)

// sniffLen is how much of the buffer content sniffing may inspect.
const sniffLen = 512

var extensionTypes = map[string]document.FileType{
	".csv":  document.FileTypeCSV,
	".json": document.FileTypeJSON,
	".log":  document.FileTypeLog,
	".txt":  document.FileTypeText,
}

var mimeTypes = map[string]document.FileType{
	"text/csv":                 document.FileTypeCSV,
	"application/vnd.ms-excel": document.FileTypeCSV,
	"application/json":         document.FileTypeJSON,
	"text/plain":               document.FileTypeText,
}

// ErrUnsupportedType is returned for uploads outside the accepted extension and MIME tables.
var ErrUnsupportedType = errors.New("unsupported file type; allowed: CSV, JSON, TXT, LOG")

// CheckAccepted enforces the upload boundary: the extension or the MIME type must be allowed.
func CheckAccepted(filename, mimeType string) error {
	if _, ok := extensionTypes[extension(filename)]; ok {
		return nil
	}
	if _, ok := mimeTypes[normalizeMIME(mimeType)]; ok {
		return nil
	}
	return fmt.Errorf("%w (got %q, %q)", ErrUnsupportedType, filepath.Ext(filename), mimeType)
}

// DetectType classifies buf. Extension wins over MIME type, which wins over content sniffing.
func DetectType(buf []byte, filename, mimeType string) document.FileType {
	ext := extension(filename)
	if ft, ok := extensionTypes[ext]; ok {
		return ft
	}
	if ft, ok := mimeTypes[normalizeMIME(mimeType)]; ok {
		return ft
	}

	head := buf
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	text := strings.TrimSpace(string(head))
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return document.FileTypeJSON
	}
	if looksLikeCSV(text) {
		return document.FileTypeCSV
	}
	// Extension is absent or unrecognized at this point.
	if strings.ContainsAny(text, "{[") {
		return document.FileTypeJSON
	}
	return document.FileTypeText
}

func looksLikeCSV(head string) bool {
	return strings.Contains(head, ",") && strings.Contains(head, "\n")
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func normalizeMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// normalizeNewlines converts CRLF line endings to LF and strips a UTF-8 byte order mark.
func normalizeNewlines(buf []byte) string {
	buf = bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf"))
	return strings.ReplaceAll(string(buf), "\r\n", "\n")
}
