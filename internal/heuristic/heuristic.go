// Package heuristic derives a summary from column names and counts without calling a model.
package heuristic

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"insight-agents/internal/document"
	"insight-agents/internal/summary"
)

const (
	DomainLogs    = "logs"
	DomainGeneral = "general"

	maxKeyFields = 10
)

//go:embed rules.yaml
var rulesYAML []byte

// Domain is one keyword set from rules.yaml.
type Domain struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Hint     string   `yaml:"hint"`
}

// Rules is the ordered list of domains; the first match wins.
type Rules struct {
	Domains []Domain `yaml:"domains"`
}

var defaultRules = mustLoadRules(rulesYAML)

// LoadRules parses a rules document.
func LoadRules(b []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse domain rules: %w", err)
	}
	for i, d := range r.Domains {
		if d.Name == "" {
			return Rules{}, fmt.Errorf("domain rule %d has no name", i)
		}
	}
	return r, nil
}

func mustLoadRules(b []byte) Rules {
	r, err := LoadRules(b)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRules returns the embedded domain rules.
func DefaultRules() Rules { return defaultRules }

// Match returns the first domain any column belongs to.
func (r Rules) Match(columns []string) (Domain, bool) {
	lower := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		lower[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, d := range r.Domains {
		for _, kw := range d.Keywords {
			if _, ok := lower[strings.ToLower(kw)]; ok {
				return d, true
			}
		}
	}
	return Domain{}, false
}

// Summarize builds a summary with the embedded rules. It is deterministic and never fails.
func Summarize(meta document.Metadata, data document.Data) summary.Result {
	return DefaultRules().Summarize(meta, data)
}

// Summarize builds a summary from meta and data using r.
func (r Rules) Summarize(meta document.Metadata, data document.Data) summary.Result {
	columns := meta.DetectedColumns
	if len(columns) == 0 {
		columns = data.Keys()
	}
	records := meta.RecordCount
	logLike := hasLogColumns(columns)

	domainName := DomainGeneral
	domain, matched := r.Match(columns)
	switch {
	case matched:
		domainName = domain.Name
	case logLike:
		domainName = DomainLogs
	}

	fileType := string(meta.FileType)
	if fileType == "" {
		fileType = "unknown"
		if logLike {
			fileType = string(document.FileTypeLog)
		}
	}

	keyFields := columns
	if len(keyFields) > maxKeyFields {
		keyFields = keyFields[:maxKeyFields]
	}

	insights := []string{}
	if records > 0 {
		insights = append(insights, fmt.Sprintf("Contains %d records.", records))
	} else {
		insights = append(insights, "No records were parsed from the file.")
	}
	if len(columns) > 0 {
		insights = append(insights, fmt.Sprintf("Detected %d columns: %s.", len(columns), strings.Join(keyFields, ", ")))
	}
	if logLike {
		insights = append(insights, "Log-like structure: every record carries a timestamp and a message.")
		insights = append(insights, levelInsights(data)...)
	}
	if matched && domain.Hint != "" {
		insights = append(insights, domain.Hint)
	}

	return summary.Result{
		Summary: fmt.Sprintf("Heuristic overview of %s data with %d records and %d columns (probable domain: %s).",
			fileType, records, len(columns), domainName),
		FileTypeGuess:  fileType,
		ProbableDomain: domainName,
		KeyFields:      append([]string{}, keyFields...),
		Insights:       insights,
		Anomalies:      columnAnomalies(columns),
		DataOverview: summary.DataOverview{
			Records: records,
			Columns: append([]string{}, columns...),
			Notes:   []string{summary.NoteHeuristic},
		},
	}.Normalize()
}

func hasLogColumns(columns []string) bool {
	var ts, msg bool
	for _, c := range columns {
		switch strings.ToLower(c) {
		case "timestamp":
			ts = true
		case "message":
			msg = true
		}
	}
	return ts && msg
}

// levelInsights counts error levels and 5xx statuses in record-shaped log data.
func levelInsights(data document.Data) []string {
	if data.Shape != document.ShapeRecords {
		return nil
	}
	var errs, serverErrs int
	gjson.ParseBytes(data.Raw).ForEach(func(_, row gjson.Result) bool {
		switch strings.ToUpper(row.Get("level").String()) {
		case "ERROR", "FATAL":
			errs++
		}
		if code := row.Get("http_status").Int(); code >= 500 && code <= 599 {
			serverErrs++
		}
		return true
	})
	var out []string
	if errs > 0 {
		out = append(out, fmt.Sprintf("%d lines are at ERROR or FATAL level.", errs))
	}
	if serverErrs > 0 {
		out = append(out, fmt.Sprintf("%d lines carry a 5xx HTTP status.", serverErrs))
	}
	return out
}

func columnAnomalies(columns []string) []string {
	out := []string{}
	for i, c := range columns {
		name := strings.ToLower(strings.TrimSpace(c))
		switch {
		case name == "":
			out = append(out, fmt.Sprintf("Column %d has an empty name.", i+1))
		case name == "unnamed" || strings.HasPrefix(name, "unnamed:"):
			out = append(out, fmt.Sprintf("Column %q looks like an unnamed placeholder.", c))
		case strings.HasPrefix(name, "column"):
			out = append(out, fmt.Sprintf("Column %q looks like a positional placeholder; the file may lack a header.", c))
		}
	}
	return out
}
