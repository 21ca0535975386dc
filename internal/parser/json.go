package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"insight-agents/internal/document"
)

// ParseJSON parses a JSON buffer. Arrays count their elements, objects count as one record and
// scalars are wrapped as {"value": <scalar>}. Invalid JSON is a ParseError; nothing is recovered.
func ParseJSON(buf []byte) (document.ParsedDocument, error) {
	buf = bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf"))

	var raw json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return document.ParsedDocument{}, &ParseError{FileType: document.FileTypeJSON, Err: err}
	}
	data, err := document.DataFromJSON(raw)
	if err != nil {
		return document.ParsedDocument{}, &ParseError{FileType: document.FileTypeJSON, Err: err}
	}

	doc := document.ParsedDocument{FileType: document.FileTypeJSON, Data: data}
	switch data.Shape {
	case document.ShapeRecords, document.ShapeLines:
		doc.RecordCount = data.Len()
		doc.DetectedColumns = data.Keys()
		doc.Description = fmt.Sprintf("JSON array with %d records", doc.RecordCount)
	case document.ShapeObject:
		doc.RecordCount = 1
		doc.DetectedColumns = data.Keys()
		doc.Description = fmt.Sprintf("JSON object with %d keys", len(doc.DetectedColumns))
	case document.ShapePrimitive:
		doc.RecordCount = 1
		doc.DetectedColumns = []string{"value"}
		doc.Description = "Primitive JSON value"
	}
	return doc, nil
}
