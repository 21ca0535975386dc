// Package parser classifies uploaded buffers and normalizes them into documents.
package parser

import (
	"fmt"
	"time"

	"insight-agents/internal/document"
)

// ParseError reports malformed CSV or JSON input. It aborts the whole parse.
type ParseError struct {
	FileType document.FileType
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.FileType, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Input is an uploaded buffer plus the client's naming hints.
type Input struct {
	Buffer   []byte
	Filename string
	MIMEType string
}

// Parser turns uploaded buffers into documents. The zero value is ready to use.
type Parser struct {
	// Now is the ingestion clock used for synthetic log timestamps.
	Now func() time.Time
}

// New returns a parser using the wall clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

// Parse detects the type of in and dispatches to the matching format parser.
func (p *Parser) Parse(in Input) (document.ParsedDocument, error) {
	ft := DetectType(in.Buffer, in.Filename, in.MIMEType)
	switch ft {
	case document.FileTypeCSV:
		return ParseCSV(in.Buffer)
	case document.FileTypeJSON:
		return ParseJSON(in.Buffer)
	default:
		return ParseText(in.Buffer, ft, p.now())
	}
}

func (p *Parser) now() time.Time {
	if p == nil || p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
