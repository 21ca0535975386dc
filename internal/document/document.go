// Package document defines the normalized representation of an uploaded file.
package document

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// FileType is the classification assigned to an uploaded buffer.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeJSON FileType = "json"
	FileTypeLog  FileType = "log"
	FileTypeText FileType = "txt"
)

// ParsedDocument is the result of parsing one uploaded buffer.
type ParsedDocument struct {
	FileType        FileType `json:"filetype"`
	Data            Data     `json:"data"`
	RecordCount     int      `json:"record_count"`
	DetectedColumns []string `json:"detected_columns"`
	Description     string   `json:"description"`
}

// Metadata combines parse results with upload context. It is never mutated after construction.
type Metadata struct {
	Filename        string    `json:"filename"`
	FileType        FileType  `json:"filetype"`
	SizeKB          float64   `json:"size_kb"`
	UploadTimestamp time.Time `json:"upload_timestamp"`
	RecordCount     int       `json:"record_count"`
	DetectedColumns []string  `json:"detected_columns"`
}

// NewMetadata builds the metadata view of doc for an upload of size bytes.
func NewMetadata(doc ParsedDocument, filename string, size int64, uploadedAt time.Time) Metadata {
	cols := make([]string, len(doc.DetectedColumns))
	copy(cols, doc.DetectedColumns)
	return Metadata{
		Filename:        filename,
		FileType:        doc.FileType,
		SizeKB:          ToKB(size),
		UploadTimestamp: uploadedAt.UTC(),
		RecordCount:     doc.RecordCount,
		DetectedColumns: cols,
	}
}

// ToKB converts bytes to kilobytes rounded to one decimal place.
func ToKB(size int64) float64 {
	return math.Round(float64(size)/1024*10) / 10
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is a JSON object whose key order is preserved when marshaled.
type Record []Field

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
