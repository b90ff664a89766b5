package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunPrintsDocsAndUpdate(t *testing.T) {
	dir := t.TempDir()
	mappingPath := writeFile(t, dir, "mapping.json", `{"tweet": {"properties": {"user": {"type": "nested"}}}}`)
	docPath := writeFile(t, dir, "doc.json", `{"msg": "hi", "user": [{"name": "ann"}]}`)

	var out bytes.Buffer
	err := run([]string{"-type", "tweet", "-id", "9", "-mapping", mappingPath, "-merged", docPath}, nil, &out)
	require.NoError(t, err)

	var got report
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "tweet#9", got.UID)
	require.Len(t, got.Docs, 2)
	assert.False(t, got.Docs[0].Root)
	assert.Equal(t, "user.", got.Docs[0].Prefix)
	assert.True(t, got.Docs[1].Root)

	require.NotNil(t, got.DynamicUpdate)
	assert.Contains(t, out.String(), `"msg"`)
	assert.Contains(t, got.Mapping, "tweet")
}

func TestRunReadsYAMLFromStdin(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-type", "doc", "-format", "yaml", "-"}, strings.NewReader("a: 1\nb: [x, y]\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"name": "b"`)
}

func TestRunDump(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"-dump", "-"}, strings.NewReader(`{"a": true}`), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ParsedDocument")
}

func TestRunErrors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(nil, nil, &out), "missing document")
	assert.Error(t, run([]string{"-"}, strings.NewReader(`[1, 2]`), &out), "not an object")
	assert.Error(t, run([]string{"/does/not/exist.json"}, nil, &out))
}

func TestParseFlagsGuessesFormat(t *testing.T) {
	o, err := parseFlags([]string{"doc.yml"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "yaml", o.format)

	o, err = parseFlags([]string{"-format", "json", "doc.yml"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "json", o.format)
}
