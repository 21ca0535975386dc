// Package prompt composes the summarization request sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"insight-agents/internal/document"
	"insight-agents/internal/sample"
)

// DefaultMetadataBudget caps the serialized metadata block.
const DefaultMetadataBudget = 1500

const instruction = `You are a data analyst. Summarize the uploaded data described below.

Rules:
- Respond ONLY with one valid JSON object. No markdown, no prose outside the object.
- Base every statement strictly on the metadata and sample provided. Do not infer values, columns or trends that are not visible in the sample.
- The sample may be truncated; record counts in the metadata are authoritative.
- Use empty strings or empty arrays for fields you cannot fill.

Schema:
{
  "summary": "string",
  "file_type_guess": "string",
  "probable_domain": "string",
  "key_fields": ["string"],
  "insights": ["string"],
  "anomalies": ["string"],
  "data_overview": {
    "records": number,
    "columns": ["string"],
    "notes": ["string"]
  }
}`

// Builder renders prompts with fixed sampling limits.
type Builder struct {
	Sample         sample.Options
	SampleBudget   int
	MetadataBudget int
}

// NewBuilder returns a builder with the default limits.
func NewBuilder() *Builder {
	return &Builder{
		Sample:         sample.DefaultOptions(),
		SampleBudget:   sample.DefaultBudget,
		MetadataBudget: DefaultMetadataBudget,
	}
}

// Build renders the prompt for meta and data. Identical inputs always yield an identical string.
func (b *Builder) Build(meta document.Metadata, data document.Data) (string, error) {
	metaText, err := sample.JSON(meta, b.metadataBudget())
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	sampleText, err := sample.Text(data, b.Sample, b.sampleBudget())
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\nMetadata:\n")
	sb.WriteString(metaText)
	fmt.Fprintf(&sb, "\n\nSample (%s, sampled and truncated if large):\n", data.Shape)
	sb.WriteString(sampleText)
	sb.WriteString("\n")
	return sb.String(), nil
}

func (b *Builder) sampleBudget() int {
	if b.SampleBudget <= 0 {
		return sample.DefaultBudget
	}
	return b.SampleBudget
}

func (b *Builder) metadataBudget() int {
	if b.MetadataBudget <= 0 {
		return DefaultMetadataBudget
	}
	return b.MetadataBudget
}
