// Package summary defines the insight summary produced for a document.
package summary

import (
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"insight-agents/internal/document"
)

// Notes attached to data_overview.notes to record where a summary came from.
const (
	NoteStub      = "source: offline stub (no model configured)"
	NoteHeuristic = "source: heuristic fallback (model unavailable)"
	NoteText      = "source: model text (response was not JSON)"
)

// WrapLimit is how many characters of free-form model text are kept.
const WrapLimit = 800

// DataOverview describes the shape of the summarized data.
type DataOverview struct {
	Records int      `json:"records"`
	Columns []string `json:"columns"`
	Notes   []string `json:"notes"`
}

// Result is the structured summary of one document.
type Result struct {
	Summary        string       `json:"summary"`
	FileTypeGuess  string       `json:"file_type_guess"`
	ProbableDomain string       `json:"probable_domain"`
	KeyFields      []string     `json:"key_fields"`
	Insights       []string     `json:"insights"`
	Anomalies      []string     `json:"anomalies"`
	DataOverview   DataOverview `json:"data_overview"`
}

// IsEmpty reports whether no field of r is populated. Empty results are not valid summaries.
func (r Result) IsEmpty() bool {
	return r.Summary == "" &&
		r.FileTypeGuess == "" &&
		r.ProbableDomain == "" &&
		len(r.KeyFields) == 0 &&
		len(r.Insights) == 0 &&
		len(r.Anomalies) == 0 &&
		r.DataOverview.Records == 0 &&
		len(r.DataOverview.Columns) == 0 &&
		len(r.DataOverview.Notes) == 0
}

// Normalize replaces nil slices with empty ones so the result encodes as [] rather than null.
func (r Result) Normalize() Result {
	r.KeyFields = orEmpty(r.KeyFields)
	r.Insights = orEmpty(r.Insights)
	r.Anomalies = orEmpty(r.Anomalies)
	r.DataOverview.Columns = orEmpty(r.DataOverview.Columns)
	r.DataOverview.Notes = orEmpty(r.DataOverview.Notes)
	return r
}

// Stub is the minimal summary returned when no model is configured.
func Stub(meta document.Metadata) Result {
	return Result{
		Summary:       "AI summarization unavailable (no model credential configured).",
		FileTypeGuess: string(meta.FileType),
		Insights:      []string{"Sample-based parsing completed"},
		DataOverview: DataOverview{
			Records: meta.RecordCount,
			Columns: meta.DetectedColumns,
			Notes:   []string{NoteStub},
		},
	}.Normalize()
}

// WrapText keeps the first WrapLimit characters of free-form model output as the summary.
func WrapText(text string, meta document.Metadata) Result {
	if utf8.RuneCountInString(text) > WrapLimit {
		text = string([]rune(text)[:WrapLimit])
	}
	return Result{
		Summary:       text,
		FileTypeGuess: string(meta.FileType),
		DataOverview: DataOverview{
			Records: meta.RecordCount,
			Columns: meta.DetectedColumns,
			Notes:   []string{NoteText},
		},
	}.Normalize()
}

// FromJSON leniently maps a model-produced JSON object onto a Result. Unknown keys are ignored,
// scalars are accepted where lists are expected and non-string list items are stringified.
func FromJSON(raw []byte) Result {
	obj := gjson.ParseBytes(raw)
	r := Result{
		Summary:        text(obj.Get("summary")),
		FileTypeGuess:  text(obj.Get("file_type_guess")),
		ProbableDomain: text(obj.Get("probable_domain")),
		KeyFields:      list(obj.Get("key_fields")),
		Insights:       list(obj.Get("insights")),
		Anomalies:      list(obj.Get("anomalies")),
	}
	if ov := obj.Get("data_overview"); ov.IsObject() {
		r.DataOverview = DataOverview{
			Records: int(ov.Get("records").Int()),
			Columns: list(ov.Get("columns")),
			Notes:   list(ov.Get("notes")),
		}
	}
	return r.Normalize()
}

func text(v gjson.Result) string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return ""
	case v.IsObject() || v.IsArray():
		return v.Raw
	default:
		return v.String()
	}
}

func list(v gjson.Result) []string {
	out := []string{}
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			if s := text(item); s != "" {
				out = append(out, s)
			}
			return true
		})
	case v.Exists():
		if s := text(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
