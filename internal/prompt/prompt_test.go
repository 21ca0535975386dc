package prompt

import (
	"strings"
	"testing"
	"time"

	"insight-agents/internal/document"
)

func fixture(t *testing.T) (document.Metadata, document.Data) {
	t.Helper()
	data, err := document.DataFromJSON([]byte(`[{"name":"Alice","age":"30"},{"name":"Bob","age":"40"}]`))
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	meta := document.Metadata{
		Filename:        "people.csv",
		FileType:        document.FileTypeCSV,
		SizeKB:          0.1,
		UploadTimestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RecordCount:     2,
		DetectedColumns: []string{"name", "age"},
	}
	return meta, data
}

func TestBuildIsDeterministic(t *testing.T) {
	meta, data := fixture(t)
	b := NewBuilder()
	first, err := b.Build(meta, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := b.Build(meta, data)
	if first != second {
		t.Error("identical inputs produced different prompts")
	}
}

func TestBuildContents(t *testing.T) {
	meta, data := fixture(t)
	got, err := NewBuilder().Build(meta, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Respond ONLY with one valid JSON object",
		"Do not infer",
		`"probable_domain"`,
		`"filename":"people.csv"`,
		`"record_count":2`,
		`Sample (records`,
		`{"columns":["name","age"],"rows":[{"name":"Alice","age":"30"},{"name":"Bob","age":"40"}],"total_rows":2}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildTruncatesSeparately(t *testing.T) {
	meta, _ := fixture(t)
	meta.DetectedColumns = []string{strings.Repeat("c", 5000)}
	data, _ := document.DataFromJSON([]byte(`["` + strings.Repeat("x", 9000) + `"]`))

	b := NewBuilder()
	b.MetadataBudget = 100
	b.SampleBudget = 200
	got, err := b.Build(meta, data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(got, "[Truncated for summarization"); n != 2 {
		t.Errorf("expected metadata and sample to be truncated independently, got %d markers", n)
	}
	if len(got) > len(instruction)+2000 {
		t.Errorf("prompt too long: %d", len(got))
	}
}
