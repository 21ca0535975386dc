package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"insight-agents/internal/document"
)

// ParseCSV parses a comma-separated buffer into records keyed by column name.
// The first line is a header when any of its tokens contains a letter; otherwise columns are
// positional (column_1, column_2, ...).
func ParseCSV(buf []byte) (document.ParsedDocument, error) {
	text := normalizeNewlines(buf)
	header := hasHeader(firstLine(text))

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		columns []string
		rows    []document.Record
	)
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return document.ParsedDocument{}, &ParseError{FileType: document.FileTypeCSV, Err: err}
		}
		trimFields(fields)
		if columns == nil {
			if header {
				columns = headerColumns(fields)
			} else {
				columns = positionalColumns(len(fields))
			}
			continue
		}
		if allEmpty(fields) {
			continue
		}
		if len(fields) > len(columns) {
			line, _ := r.FieldPos(0)
			return document.ParsedDocument{}, &ParseError{
				FileType: document.FileTypeCSV,
				Err:      fmt.Errorf("line %d: %d fields, expected at most %d", line, len(fields), len(columns)),
			}
		}
		rec := make(document.Record, len(columns))
		for i, col := range columns {
			val := ""
			if i < len(fields) {
				val = fields[i]
			}
			rec[i] = document.Field{Name: col, Value: val}
		}
		rows = append(rows, rec)
	}

	if rows == nil {
		rows = []document.Record{}
	}
	data, err := document.NewData(document.ShapeRecords, rows)
	if err != nil {
		return document.ParsedDocument{}, &ParseError{FileType: document.FileTypeCSV, Err: err}
	}
	detected := []string{}
	if len(rows) > 0 {
		detected = rows[0].Names()
	}
	return document.ParsedDocument{
		FileType:        document.FileTypeCSV,
		Data:            data,
		RecordCount:     len(rows),
		DetectedColumns: detected,
		Description:     fmt.Sprintf("CSV with %d columns and %d rows", len(detected), len(rows)),
	}, nil
}

// hasHeader reports whether any comma-delimited, quote-stripped token contains a letter.
func hasHeader(line string) bool {
	for _, tok := range strings.Split(line, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimPrefix(tok, `"`)
		tok = strings.TrimSuffix(tok, `"`)
		for _, r := range tok {
			if unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}

// headerColumns keeps header names distinct by suffixing repeats with _2, _3, ...
func headerColumns(fields []string) []string {
	cols := make([]string, len(fields))
	seen := make(map[string]int, len(fields))
	for i, name := range fields {
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		cols[i] = name
	}
	return cols
}

func positionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = "column_" + strconv.Itoa(i+1)
	}
	return cols
}

func trimFields(fields []string) {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
}

func allEmpty(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
