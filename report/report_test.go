package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sardine-ai/go-config-advisor/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *model.Report {
	return &model.Report{
		ID:     "r-1",
		Source: "application.properties",
		Profile: model.Profile{
			Name: "api", Environment: model.EnvProduction, CPUs: 4,
			Memory: 8 * model.GiB, Instances: 2,
		},
		Findings: []model.Finding{
			{
				Rule: "JVM001", Severity: model.SeverityCritical, Keys: []string{"jvm.xmx"},
				Message: "maximum heap 16g is not smaller than host memory 8.0 GiB", Suggestion: "set -Xmx to at most 6g",
				Origin: model.Origin{File: "application.properties", Line: 3},
			},
			{
				Rule: "JPA001", Severity: model.SeverityWarning, Keys: []string{"spring.jpa.open-in-view"},
				Message: "open-in-view keeps a database connection for the whole web request",
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "md": FormatMarkdown, "pretty": FormatPretty} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "2 findings: 1 critical, 1 warning", Summary(sampleReport()))
	assert.Equal(t, "no findings", Summary(&model.Report{}))
}

func TestText(t *testing.T) {
	out := Text(sampleReport())
	assert.Contains(t, out, "api (production, 4 CPUs, 8.0 GiB RAM, 2 instances): 2 findings")
	assert.Contains(t, out, "CRITICAL JVM001")
	assert.Contains(t, out, "[application.properties:3]")
	assert.Contains(t, out, "-> set -Xmx to at most 6g")
}

func TestMarkdown(t *testing.T) {
	out := Markdown(sampleReport())
	assert.Contains(t, out, "## application.properties")
	assert.Contains(t, out, "| Severity | Rule |")
	assert.Contains(t, out, "`spring.jpa.open-in-view`")
	assert.Contains(t, Markdown(&model.Report{}), "no findings")
}

func TestWriteJSON(t *testing.T) {
	var one bytes.Buffer
	require.NoError(t, Write(&one, FormatJSON, sampleReport()))
	var decoded model.Report
	require.NoError(t, json.Unmarshal(one.Bytes(), &decoded))
	assert.Equal(t, "r-1", decoded.ID)

	var many bytes.Buffer
	require.NoError(t, Write(&many, FormatJSON, sampleReport(), sampleReport()))
	var list []model.Report
	require.NoError(t, json.Unmarshal(many.Bytes(), &list))
	assert.Len(t, list, 2)

	var none bytes.Buffer
	require.NoError(t, Write(&none, FormatJSON))
	assert.Equal(t, "[]\n", none.String())
}

func TestWritePretty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatPretty, sampleReport()))
	assert.Contains(t, buf.String(), "JVM001")
}
