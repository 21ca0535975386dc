// Package sample reduces parsed data to a bounded text payload for model prompts.
package sample

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"insight-agents/internal/document"
)

const (
	// DefaultBudget is the character budget for prompt payloads.
	DefaultBudget = 6000
	// LargeBudget is used where the text is shown to people rather than sent to a model.
	LargeBudget = 120000
)

const truncationMarker = "\n\n[Truncated for summarization: original length %d chars]"

// Options controls structural sampling.
type Options struct {
	MaxRows    int
	MaxColumns int
	MaxLines   int
	MaxKeys    int
}

// DefaultOptions returns the standard sampling caps.
func DefaultOptions() Options {
	return Options{MaxRows: 10, MaxColumns: 20, MaxLines: 20, MaxKeys: 20}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxRows <= 0 {
		o.MaxRows = def.MaxRows
	}
	if o.MaxColumns <= 0 {
		o.MaxColumns = def.MaxColumns
	}
	if o.MaxLines <= 0 {
		o.MaxLines = def.MaxLines
	}
	if o.MaxKeys <= 0 {
		o.MaxKeys = def.MaxKeys
	}
	return o
}

// Structure returns a reduced copy of d. The input is never modified.
//
//	records   -> {"columns": [...], "rows": [first N rows], "total_rows": n}
//	lines     -> {"items": [first M items], "total_items": n}
//	object    -> {"fields": {first K keys, nested values as placeholders}, "total_keys": n}
//	primitive -> the wrapped value as is
func Structure(d document.Data, opts Options) document.Record {
	opts = opts.withDefaults()
	root := gjson.ParseBytes(d.Raw)

	switch d.Shape {
	case document.ShapeRecords:
		rows := []json.RawMessage{}
		columns := []string{}
		seen := make(map[string]struct{})
		root.ForEach(func(_, row gjson.Result) bool {
			if len(rows) >= opts.MaxRows {
				return false
			}
			rows = append(rows, json.RawMessage(row.Raw))
			for _, k := range document.ObjectKeys(row) {
				if _, ok := seen[k]; ok || len(columns) >= opts.MaxColumns {
					continue
				}
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
			return true
		})
		return document.Record{
			{Name: "columns", Value: columns},
			{Name: "rows", Value: rows},
			{Name: "total_rows", Value: d.Len()},
		}

	case document.ShapeLines:
		items := []json.RawMessage{}
		root.ForEach(func(_, item gjson.Result) bool {
			if len(items) >= opts.MaxLines {
				return false
			}
			items = append(items, json.RawMessage(item.Raw))
			return true
		})
		return document.Record{
			{Name: "items", Value: items},
			{Name: "total_items", Value: d.Len()},
		}

	case document.ShapeObject:
		fields := document.Record{}
		total := 0
		root.ForEach(func(k, v gjson.Result) bool {
			total++
			if len(fields) < opts.MaxKeys {
				fields = append(fields, document.Field{Name: k.String(), Value: placeholder(v)})
			}
			return true
		})
		return document.Record{
			{Name: "fields", Value: fields},
			{Name: "total_keys", Value: total},
		}
	}

	return document.Record{{Name: "value", Value: rawValue(root.Get("value"))}}
}

func rawValue(v gjson.Result) json.RawMessage {
	if v.Raw == "" {
		return nil
	}
	return json.RawMessage(v.Raw)
}

// placeholder renders nested containers as a short description instead of expanding them.
func placeholder(v gjson.Result) any {
	switch {
	case v.IsArray():
		return fmt.Sprintf("[array: %d items]", len(v.Array()))
	case v.IsObject():
		return fmt.Sprintf("{object: %d keys}", len(document.ObjectKeys(v)))
	default:
		return rawValue(v)
	}
}

// Truncate hard-caps text at budget characters and appends a marker with the original length.
func Truncate(text string, budget int) string {
	n := utf8.RuneCountInString(text)
	if budget <= 0 || n <= budget {
		return text
	}
	cut := 0
	for i := range text {
		if cut == budget {
			return text[:i] + fmt.Sprintf(truncationMarker, n)
		}
		cut++
	}
	return text
}

// Text serializes the structural sample of d and truncates it to budget.
func Text(d document.Data, opts Options, budget int) (string, error) {
	b, err := json.Marshal(Structure(d, opts))
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	return Truncate(string(b), budget), nil
}

// JSON truncates the JSON encoding of any value to budget.
func JSON(v any, budget int) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode sample: %w", err)
	}
	return Truncate(string(b), budget), nil
}
