package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"insight-agents/internal/document"
)

var (
	timestampPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?)\]?`),
		regexp.MustCompile(`^(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})`),
	}
	httpStatusPattern = regexp.MustCompile(`\s(\d{3})\s`)
	levelPattern      = regexp.MustCompile(`(?i)\b(INFO|WARN|ERROR|DEBUG|FATAL|TRACE)\b`)
)

// syntheticLayout matches the millisecond ISO-8601 form used for generated timestamps.
const syntheticLayout = "2006-01-02T15:04:05.000Z"

// LogColumns is the declared schema of every log/text document.
var LogColumns = []string{"timestamp", "message"}

// ParseText splits a log or plain-text buffer into one record per non-empty line.
// Lines without a recognizable leading timestamp get ingestedAt plus their index in seconds.
func ParseText(buf []byte, ft document.FileType, ingestedAt time.Time) (document.ParsedDocument, error) {
	if ft != document.FileTypeLog {
		ft = document.FileTypeText
	}
	text := normalizeNewlines(buf)

	rows := []document.Record{}
	statuses := make(map[int]struct{})
	base := ingestedAt.UTC()
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := len(rows)
		ts, ok := leadingTimestamp(line)
		if !ok {
			ts = base.Add(time.Duration(idx) * time.Second).Format(syntheticLayout)
		}
		rec := document.Record{
			{Name: "timestamp", Value: ts},
			{Name: "message", Value: line},
		}
		if m := httpStatusPattern.FindStringSubmatch(line); m != nil {
			code, _ := strconv.Atoi(m[1])
			statuses[code] = struct{}{}
			rec = append(rec, document.Field{Name: "http_status", Value: code})
		}
		if m := levelPattern.FindStringSubmatch(line); m != nil {
			rec = append(rec, document.Field{Name: "level", Value: strings.ToUpper(m[1])})
		}
		rows = append(rows, rec)
	}

	data, err := document.NewData(document.ShapeRecords, rows)
	if err != nil {
		return document.ParsedDocument{}, err
	}
	columns := []string{}
	if len(rows) > 0 {
		columns = append(columns, LogColumns...)
	}
	return document.ParsedDocument{
		FileType:        ft,
		Data:            data,
		RecordCount:     len(rows),
		DetectedColumns: columns,
		Description:     describeLines(len(rows), statuses),
	}, nil
}

func leadingTimestamp(line string) (string, bool) {
	for _, re := range timestampPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func describeLines(n int, statuses map[int]struct{}) string {
	desc := fmt.Sprintf("Log/TXT file with %d lines", n)
	if len(statuses) == 0 {
		return desc
	}
	codes := make([]int, 0, len(statuses))
	for c := range statuses {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return desc + "; statuses: " + strings.Join(parts, ", ")
}
