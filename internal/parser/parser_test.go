package parser

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"insight-agents/internal/document"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		name     string
		buf      string
		filename string
		mime     string
		want     document.FileType
	}{
		{"extension beats csv-looking content", "a,b\n1,2\n", "data.json", "", document.FileTypeJSON},
		{"extension beats mime", `{"a":1}`, "data.csv", "application/json", document.FileTypeCSV},
		{"log extension", "hello", "server.LOG", "", document.FileTypeLog},
		{"txt extension", "a,b\n1,2", "notes.txt", "", document.FileTypeText},
		{"mime csv", "x", "upload", "text/csv", document.FileTypeCSV},
		{"mime excel", "x", "upload", "application/vnd.ms-excel", document.FileTypeCSV},
		{"mime json with params", "x", "", "application/json; charset=utf-8", document.FileTypeJSON},
		{"mime plain", "{", "", "text/plain", document.FileTypeText},
		{"sniff object", "  \n{\"a\":1}", "blob.bin", "", document.FileTypeJSON},
		{"sniff array", "[1,2]", "", "", document.FileTypeJSON},
		{"sniff csv", "a,b\n1,2", "", "", document.FileTypeCSV},
		{"sniff brace anywhere", "payload {x}", "", "", document.FileTypeJSON},
		{"sniff plain", "just words", "", "", document.FileTypeText},
		{"comma without newline", "a,b", "", "", document.FileTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectType([]byte(tt.buf), tt.filename, tt.mime); got != tt.want {
				t.Errorf("DetectType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectTypeOnlyScansPrefix(t *testing.T) {
	buf := strings.Repeat("a", sniffLen) + ",\n{"
	if got := DetectType([]byte(buf), "", ""); got != document.FileTypeText {
		t.Errorf("expected txt when markers are past the sniff window, got %s", got)
	}
}

func TestCheckAccepted(t *testing.T) {
	tests := []struct {
		filename, mime string
		ok             bool
	}{
		{"a.csv", "", true},
		{"a.JSON", "application/octet-stream", true},
		{"a.bin", "text/plain", true},
		{"a.xlsx", "application/vnd.ms-excel", true},
		{"a.pdf", "application/pdf", false},
		{"", "", false},
	}
	for _, tt := range tests {
		err := CheckAccepted(tt.filename, tt.mime)
		if (err == nil) != tt.ok {
			t.Errorf("CheckAccepted(%q, %q) = %v, want ok=%v", tt.filename, tt.mime, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("expected ErrUnsupportedType, got %v", err)
		}
	}
}

func TestParseCSVWithHeader(t *testing.T) {
	doc, err := ParseCSV([]byte("name,age\r\nAlice,30\r\nBob,40"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RecordCount != 2 {
		t.Errorf("expected 2 records, got %d", doc.RecordCount)
	}
	if !reflect.DeepEqual(doc.DetectedColumns, []string{"name", "age"}) {
		t.Errorf("unexpected columns %v", doc.DetectedColumns)
	}
	if doc.Description != "CSV with 2 columns and 2 rows" {
		t.Errorf("unexpected description %q", doc.Description)
	}
	want := `[{"name":"Alice","age":"30"},{"name":"Bob","age":"40"}]`
	if string(doc.Data.Raw) != want {
		t.Errorf("data = %s, want %s", doc.Data.Raw, want)
	}
	if doc.Data.Shape != document.ShapeRecords {
		t.Errorf("expected records shape, got %s", doc.Data.Shape)
	}
}

func TestParseCSVHeaderless(t *testing.T) {
	doc, err := ParseCSV([]byte("1,2\n3,4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RecordCount != 1 {
		t.Fatalf("expected 1 record, got %d", doc.RecordCount)
	}
	if !reflect.DeepEqual(doc.DetectedColumns, []string{"column_1", "column_2"}) {
		t.Errorf("unexpected columns %v", doc.DetectedColumns)
	}
	if string(doc.Data.Raw) != `[{"column_1":"3","column_2":"4"}]` {
		t.Errorf("unexpected data %s", doc.Data.Raw)
	}
}

func TestParseCSVTrimsAndSkipsEmptyLines(t *testing.T) {
	doc, err := ParseCSV([]byte("\"id\", \"city\"\n\n 1 ,  Paris \n,\n2,\"Oslo, NO\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `[{"id":"1","city":"Paris"},{"id":"2","city":"Oslo, NO"}]`
	if string(doc.Data.Raw) != want {
		t.Errorf("data = %s, want %s", doc.Data.Raw, want)
	}
}

func TestParseCSVShortRowsArePadded(t *testing.T) {
	doc, err := ParseCSV([]byte("a,b,c\n1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(doc.Data.Raw) != `[{"a":"1","b":"","c":""}]` {
		t.Errorf("unexpected data %s", doc.Data.Raw)
	}
}

func TestParseCSVDuplicateHeaders(t *testing.T) {
	doc, err := ParseCSV([]byte("id,id\n1,2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(doc.DetectedColumns, []string{"id", "id_2"}) {
		t.Errorf("unexpected columns %v", doc.DetectedColumns)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated quote", "name,age\n\"Alice,30\n"},
		{"too many fields", "name,age\nAlice,30,extra\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseCSV([]byte(tt.input))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.FileType != document.FileTypeCSV {
				t.Errorf("unexpected file type %s", pe.FileType)
			}
			if doc.RecordCount != 0 || doc.Data.Raw != nil {
				t.Error("expected no partial result")
			}
		})
	}
}

func TestParseCSVEmpty(t *testing.T) {
	doc, err := ParseCSV([]byte("name,age\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RecordCount != 0 || len(doc.DetectedColumns) != 0 {
		t.Errorf("expected no records and no columns, got %d / %v", doc.RecordCount, doc.DetectedColumns)
	}
	if string(doc.Data.Raw) != "[]" {
		t.Errorf("expected empty array, got %s", doc.Data.Raw)
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		shape       document.Shape
		count       int
		columns     []string
		description string
		data        string
	}{
		{
			name:        "array of objects",
			input:       `[{"b":1,"a":2},{"c":3}]`,
			shape:       document.ShapeRecords,
			count:       2,
			columns:     []string{"b", "a"},
			description: "JSON array with 2 records",
			data:        `[{"b":1,"a":2},{"c":3}]`,
		},
		{
			name:        "array of strings",
			input:       `["x", "y", "z"]`,
			shape:       document.ShapeLines,
			count:       3,
			columns:     []string{},
			description: "JSON array with 3 records",
			data:        `["x","y","z"]`,
		},
		{
			name:        "empty array",
			input:       `[]`,
			shape:       document.ShapeRecords,
			count:       0,
			columns:     []string{},
			description: "JSON array with 0 records",
			data:        `[]`,
		},
		{
			name:        "object keeps key order",
			input:       "{\n  \"zeta\": 1,\n  \"alpha\": {\"n\": [1, 2]}\n}",
			shape:       document.ShapeObject,
			count:       1,
			columns:     []string{"zeta", "alpha"},
			description: "JSON object with 2 keys",
			data:        `{"zeta":1,"alpha":{"n":[1,2]}}`,
		},
		{
			name:        "primitive number",
			input:       `42`,
			shape:       document.ShapePrimitive,
			count:       1,
			columns:     []string{"value"},
			description: "Primitive JSON value",
			data:        `{"value":42}`,
		},
		{
			name:        "primitive null",
			input:       `null`,
			shape:       document.ShapePrimitive,
			count:       1,
			columns:     []string{"value"},
			description: "Primitive JSON value",
			data:        `{"value":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.FileType != document.FileTypeJSON {
				t.Errorf("unexpected file type %s", doc.FileType)
			}
			if doc.Data.Shape != tt.shape {
				t.Errorf("shape = %s, want %s", doc.Data.Shape, tt.shape)
			}
			if doc.RecordCount != tt.count {
				t.Errorf("record count = %d, want %d", doc.RecordCount, tt.count)
			}
			if !reflect.DeepEqual(doc.DetectedColumns, tt.columns) {
				t.Errorf("columns = %v, want %v", doc.DetectedColumns, tt.columns)
			}
			if doc.Description != tt.description {
				t.Errorf("description = %q, want %q", doc.Description, tt.description)
			}
			if string(doc.Data.Raw) != tt.data {
				t.Errorf("data = %s, want %s", doc.Data.Raw, tt.data)
			}
		})
	}
}

func TestParseJSONRoundTrip(t *testing.T) {
	doc, err := ParseJSON([]byte(`[{"id":1,"tags":["a","b"],"price":12.50,"big":12345678901234567890}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded, err := json.Marshal(doc.Data)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var again document.Data
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if string(again.Raw) != string(doc.Data.Raw) || again.Shape != doc.Data.Shape {
		t.Errorf("round trip changed data: %s -> %s", doc.Data.Raw, again.Raw)
	}
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON([]byte(`{"a": 1,}`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestParseTextLogLine(t *testing.T) {
	doc, err := ParseText([]byte("2024-01-01 10:00:00 ERROR 500 failed"), document.FileTypeLog, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `[{"timestamp":"2024-01-01 10:00:00","message":"2024-01-01 10:00:00 ERROR 500 failed","http_status":500,"level":"ERROR"}]`
	if string(doc.Data.Raw) != want {
		t.Errorf("data = %s\nwant  %s", doc.Data.Raw, want)
	}
	if doc.Description != "Log/TXT file with 1 lines; statuses: 500" {
		t.Errorf("unexpected description %q", doc.Description)
	}
}

func TestParseTextTimestamps(t *testing.T) {
	input := "[2024-03-05T07:08:09.123Z] info started\r\n" +
		"Mar  5 07:08:10 host sshd: accepted\n" +
		"\n" +
		"no timestamp here\n" +
		"still none\n"
	ingested := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	doc, err := ParseText([]byte(input), document.FileTypeText, ingested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.FileType != document.FileTypeText {
		t.Errorf("unexpected file type %s", doc.FileType)
	}
	if doc.RecordCount != 4 {
		t.Fatalf("expected 4 records, got %d", doc.RecordCount)
	}
	var rows []map[string]any
	if err := json.Unmarshal(doc.Data.Raw, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	wantTS := []string{
		"2024-03-05T07:08:09.123Z",
		"Mar  5 07:08:10",
		"2024-06-01T12:00:02.000Z",
		"2024-06-01T12:00:03.000Z",
	}
	for i, w := range wantTS {
		if rows[i]["timestamp"] != w {
			t.Errorf("row %d timestamp = %v, want %s", i, rows[i]["timestamp"], w)
		}
	}
	if rows[0]["level"] != "INFO" {
		t.Errorf("expected level INFO, got %v", rows[0]["level"])
	}
	if _, ok := rows[1]["http_status"]; ok {
		t.Error("did not expect http_status on syslog line")
	}
	if !reflect.DeepEqual(doc.DetectedColumns, []string{"timestamp", "message"}) {
		t.Errorf("unexpected columns %v", doc.DetectedColumns)
	}
	if doc.Description != "Log/TXT file with 4 lines" {
		t.Errorf("unexpected description %q", doc.Description)
	}
}

func TestParseTextStatusSet(t *testing.T) {
	input := "GET / 500 x\nGET / 200 y\nGET / 500 z\n"
	doc, err := ParseText([]byte(input), document.FileTypeLog, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Description != "Log/TXT file with 3 lines; statuses: 200, 500" {
		t.Errorf("unexpected description %q", doc.Description)
	}
}

func TestParseTextEmpty(t *testing.T) {
	doc, err := ParseText([]byte("\n \n"), document.FileTypeLog, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.RecordCount != 0 || len(doc.DetectedColumns) != 0 {
		t.Errorf("expected empty document, got %d / %v", doc.RecordCount, doc.DetectedColumns)
	}
}

func TestParserDispatch(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &Parser{Now: func() time.Time { return fixed }}

	tests := []struct {
		name string
		in   Input
		want document.FileType
	}{
		{"csv", Input{Buffer: []byte("a,b\n1,2"), Filename: "x.csv"}, document.FileTypeCSV},
		{"json", Input{Buffer: []byte(`{"a":1}`), Filename: "x.json"}, document.FileTypeJSON},
		{"log", Input{Buffer: []byte("line"), Filename: "x.log"}, document.FileTypeLog},
		{"txt", Input{Buffer: []byte("line"), Filename: "x.txt"}, document.FileTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Parse(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.FileType != tt.want {
				t.Errorf("file type = %s, want %s", doc.FileType, tt.want)
			}
		})
	}

	doc, err := p.Parse(Input{Buffer: []byte("hello"), Filename: "x.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(doc.Data.Raw), `"2024-01-01T00:00:00.000Z"`) {
		t.Errorf("expected synthetic timestamp from injected clock, got %s", doc.Data.Raw)
	}
}
