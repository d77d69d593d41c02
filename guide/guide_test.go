package guide

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sardine-ai/go-config-advisor/model"
)

// Fences are written as ''' so the guide fits in a raw string.
var sampleGuide = strings.ReplaceAll(`# Tuning guide

Intro text.

## Connection pool

'''properties
spring.datasource.hikari.maximum-pool-size=60
spring.datasource.hikari.minimum-idle=10
'''

## PostgreSQL memory

'''conf
shared_buffers = 4GB
work_mem = 64MB
'''

'''sql
ALTER SYSTEM SET max_connections = 1000;
SELECT pg_reload_conf();
'''

## JVM

'''bash
java -Xmx7500m -jar app.jar
'''

'''java
spring:
  jpa:
    open-in-view: true
'''

'''
no tag here
'''

'''yaml
key: [unclosed
'''
`, "'''", "```")

func TestParse(t *testing.T) {
	snippets, err := Parse("GUIDE.md", []byte(sampleGuide))
	require.NoError(t, err)
	require.Len(t, snippets, 7)

	assert.Equal(t, Snippet{
		File:     "GUIDE.md",
		Language: "properties",
		Content:  "spring.datasource.hikari.maximum-pool-size=60\nspring.datasource.hikari.minimum-idle=10\n",
		Line:     7,
		Section:  "Connection pool",
	}, snippets[0])

	var lines, languages, sections []interface{}
	for _, s := range snippets {
		lines = append(lines, s.Line)
		languages = append(languages, s.Language)
		sections = append(sections, s.Section)
	}
	assert.Equal(t, []interface{}{7, 14, 19, 26, 30, 36, 40}, lines)
	assert.Equal(t, []interface{}{"properties", "conf", "sql", "bash", "java", "", "yaml"}, languages)
	assert.Equal(t, "PostgreSQL memory", sections[2])
	assert.Equal(t, "JVM", sections[6])
}

func TestParseEmptyDocument(t *testing.T) {
	snippets, err := Parse("empty.md", []byte("# Nothing here\n\nJust prose.\n"))
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Kind
	}{
		{"properties", "server.port=8080\nspring.jpa.open-in-view=false\n", KindProperties},
		{"properties with colon", "spring.cache.type: caffeine\n", KindProperties},
		{"nested yaml", "spring:\n  datasource:\n    url: jdbc:postgresql://db/app\n", KindYAML},
		{"pipeline yaml", "name: build\non: push\njobs:\n  test:\n    steps:\n      - run: mvn test\n", KindYAML},
		{"postgresql.conf", "# memory\nshared_buffers = 2GB\neffective_cache_size = 6GB\n", KindPostgreSQL},
		{"jvm flags", "-Xms2g\n-Xmx2g\n-XX:+UseG1GC\n", KindJVM},
		{"java command", "java -XX:MaxRAMPercentage=75.0 -jar app.jar\n", KindJVM},
		{"sql", "-- check\nSELECT name, setting FROM pg_settings;\n", KindSQL},
		{"sql set", "ALTER SYSTEM SET work_mem = '16MB';\n", KindSQL},
		{"java", "@Configuration\npublic class CacheConfig {\n}\n", KindJava},
		{"dockerfile", "FROM eclipse-temurin:17-jre\nCOPY app.jar /app.jar\nENTRYPOINT [\"java\", \"-jar\", \"/app.jar\"]\n", KindDockerfile},
		{"shell", "$ curl localhost:8080/actuator/health\n", KindShell},
		{"json", "{\"status\": \"UP\"}\n", KindJSON},
		{"xml", "<dependency>\n  <groupId>org.postgresql</groupId>\n</dependency>\n", KindXML},
		{"yaml key named update", "update: true\n", KindYAML},
		{"prose", "just some words\n", KindUnknown},
		{"empty", "\n\n", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.content))
		})
	}
}

func TestDeclaredKind(t *testing.T) {
	kind, ok := DeclaredKind("yml", KindUnknown)
	assert.True(t, ok)
	assert.Equal(t, KindYAML, kind)

	kind, _ = DeclaredKind("conf", KindPostgreSQL)
	assert.Equal(t, KindPostgreSQL, kind)
	kind, _ = DeclaredKind("ini", KindProperties)
	assert.Equal(t, KindProperties, kind)

	kind, _ = DeclaredKind("postgresql", KindSQL)
	assert.Equal(t, KindSQL, kind)
	kind, _ = DeclaredKind("postgresql", KindPostgreSQL)
	assert.Equal(t, KindPostgreSQL, kind)

	kind, _ = DeclaredKind("console", KindJVM)
	assert.Equal(t, KindShell, kind)
	kind, _ = DeclaredKind("docker", KindDockerfile)
	assert.Equal(t, KindDockerfile, kind)

	_, ok = DeclaredKind("text", KindUnknown)
	assert.False(t, ok)
	_, ok = DeclaredKind("", KindYAML)
	assert.False(t, ok)
}

func TestLint(t *testing.T) {
	snippets, err := Parse("GUIDE.md", []byte(sampleGuide))
	require.NoError(t, err)

	findings := Lint(snippets)
	require.Len(t, findings, 3)

	assert.Equal(t, RuleTagMismatch, findings[0].Rule)
	assert.Equal(t, model.SeverityWarning, findings[0].Severity)
	assert.Equal(t, model.Origin{File: "GUIDE.md", Line: 30}, findings[0].Origin)
	assert.Contains(t, findings[0].Message, `"java"`)
	assert.Equal(t, "tag it as yaml", findings[0].Suggestion)

	assert.Equal(t, RuleMissingTag, findings[1].Rule)
	assert.Equal(t, model.SeverityInfo, findings[1].Severity)
	assert.Equal(t, 36, findings[1].Origin.Line)

	assert.Equal(t, RuleParseError, findings[2].Rule)
	assert.Equal(t, 40, findings[2].Origin.Line)
}

func TestExtract(t *testing.T) {
	snippets, err := Parse("GUIDE.md", []byte(sampleGuide))
	require.NoError(t, err)

	extracted := Extract(snippets)
	require.Len(t, extracted, 5)

	kinds := make([]Kind, 0, len(extracted))
	for _, e := range extracted {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []Kind{KindProperties, KindPostgreSQL, KindSQL, KindJVM, KindYAML}, kinds)

	pool, ok := extracted[0].Props.Get("spring.datasource.hikari.maximum-pool-size")
	require.True(t, ok)
	assert.Equal(t, "60", pool.Value)
	assert.Equal(t, model.Origin{File: "GUIDE.md", Line: 8}, pool.Origin)

	workMem, ok := extracted[1].Props.Get("postgres.work_mem")
	require.True(t, ok)
	assert.Equal(t, 16, workMem.Origin.Line)

	maxConns, ok := extracted[2].Props.Get("postgres.max_connections")
	require.True(t, ok)
	assert.Equal(t, "1000", maxConns.Value)
	assert.Equal(t, 20, maxConns.Origin.Line)

	assert.Equal(t, "7500m", extracted[3].Props.Value("jvm.xmx"))

	openInView, ok := extracted[4].Props.Get("spring.jpa.open-in-view")
	require.True(t, ok)
	assert.Equal(t, 33, openInView.Origin.Line)
}

func TestParseSQLSettings(t *testing.T) {
	set := parseSQLSettings("tuning.sql", "ALTER SYSTEM SET work_mem = '16MB';\nSET statement_timeout TO 5000;\nSELECT 1;\n")
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "16MB", set.Value("postgres.work_mem"))
	assert.Equal(t, "5000", set.Value("postgres.statement_timeout"))
}
