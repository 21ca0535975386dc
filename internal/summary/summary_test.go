package summary

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"insight-agents/internal/document"
)

var meta = document.Metadata{
	Filename:        "a.csv",
	FileType:        document.FileTypeCSV,
	RecordCount:     3,
	DetectedColumns: []string{"a", "b"},
}

func TestIsEmpty(t *testing.T) {
	if !(Result{}).IsEmpty() {
		t.Error("zero result must be empty")
	}
	if !(Result{}).Normalize().IsEmpty() {
		t.Error("normalized zero result must be empty")
	}
	if (Result{Anomalies: []string{"x"}}).IsEmpty() {
		t.Error("result with anomalies is not empty")
	}
	if (Result{DataOverview: DataOverview{Records: 1}}).IsEmpty() {
		t.Error("result with a record count is not empty")
	}
}

func TestStub(t *testing.T) {
	r := Stub(meta)
	if r.IsEmpty() {
		t.Fatal("stub must be a valid summary")
	}
	if !strings.Contains(r.Summary, "unavailable") {
		t.Errorf("stub summary should state unavailability: %q", r.Summary)
	}
	if !reflect.DeepEqual(r.DataOverview.Notes, []string{NoteStub}) {
		t.Errorf("unexpected notes %v", r.DataOverview.Notes)
	}
	b, _ := json.Marshal(r)
	if strings.Contains(string(b), "null") {
		t.Errorf("stub should encode without nulls: %s", b)
	}
}

func TestWrapText(t *testing.T) {
	long := strings.Repeat("ü", 900)
	r := WrapText(long, meta)
	if got := len([]rune(r.Summary)); got != WrapLimit {
		t.Errorf("expected %d characters, got %d", WrapLimit, got)
	}
	if r.DataOverview.Records != 3 || r.FileTypeGuess != "csv" {
		t.Errorf("unexpected overview %+v", r)
	}
	if WrapText("short", meta).Summary != "short" {
		t.Error("short text must be kept whole")
	}
}

func TestFromJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Result
	}{
		{
			name: "full object",
			in: `{"summary":"s","file_type_guess":"csv","probable_domain":"finance","key_fields":["a"],
				"insights":["i1","i2"],"anomalies":[],"data_overview":{"records":5,"columns":["a"],"notes":["n"]}}`,
			want: Result{
				Summary: "s", FileTypeGuess: "csv", ProbableDomain: "finance",
				KeyFields: []string{"a"}, Insights: []string{"i1", "i2"}, Anomalies: []string{},
				DataOverview: DataOverview{Records: 5, Columns: []string{"a"}, Notes: []string{"n"}},
			},
		},
		{
			name: "lenient types",
			in:   `{"summary":{"text":"x"},"insights":"one","anomalies":[1,null,"two"],"data_overview":"n/a"}`,
			want: Result{
				Summary: `{"text":"x"}`, KeyFields: []string{}, Insights: []string{"one"}, Anomalies: []string{"1", "two"},
				DataOverview: DataOverview{Columns: []string{}, Notes: []string{}},
			},
		},
		{
			name: "unknown keys only",
			in:   `{"foo":"bar"}`,
			want: Result{}.Normalize(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromJSON([]byte(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got  %+v\nwant %+v", got, tt.want)
			}
		})
	}
}
