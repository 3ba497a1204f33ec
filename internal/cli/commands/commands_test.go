package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSource(t *testing.T, readerType string) string {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(data, "events"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "events", "e1.csv"), []byte("id,kind\n1,click\n2,view\n"), 0o644))

	path := filepath.Join(dir, "source.yaml")
	body := fmt.Sprintf(`
name: events
storage:
  type: local
  rootPath: %s
table:
  mapping:
    type: directory
readers:
  - type: %s
`, data, readerType)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDiscoverCommand(t *testing.T) {
	path := writeSource(t, "csv")

	out, err := run(t, "discover", "-f", path, "--samples", "1", "-o", "json")
	require.NoError(t, err)
	var result struct {
		Source string `json:"source"`
		Tables []struct {
			Name          string           `json:"name"`
			SampleRecords []map[string]any `json:"sampleRecords"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "events", result.Source)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "events", result.Tables[0].Name)
	assert.Len(t, result.Tables[0].SampleRecords, 1)

	out, err = run(t, "discover", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Source: events")
	assert.Contains(t, out, "kind")
}

func TestDiscoverCommand_Unsuccessful(t *testing.T) {
	path := writeSource(t, "parquet")

	out, err := run(t, "discover", "-f", path, "-o", "yaml")
	assert.ErrorIs(t, err, ErrUnsuccessful)

	var result map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result["issues"])
}

func TestVerifyCommand(t *testing.T) {
	path := writeSource(t, "csv")
	_, err := run(t, "verify", "-f", path)
	require.NoError(t, err)

	out, err := run(t, "verify", "-f", path, "--deep", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"tables"`)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: ''\nstorage:\n  type: local\n  rootPath: /tmp\nreaders: []\n"), 0o644))
	out, err = run(t, "verify", "-f", bad)
	assert.ErrorIs(t, err, ErrUnsuccessful)
	assert.Contains(t, out, "Source name must not be blank")
}

func TestPluginsCommand(t *testing.T) {
	out, err := run(t, "plugins", "-o", "json")
	require.NoError(t, err)
	var kinds map[string][]string
	require.NoError(t, json.Unmarshal([]byte(out), &kinds))
	assert.Contains(t, kinds["storage"], "s3")
	assert.Contains(t, kinds["format"], "avro")
	assert.Contains(t, kinds["mapping"], "regex")
}

func TestCommandErrors(t *testing.T) {
	_, err := run(t, "discover")
	assert.Error(t, err, "missing --file")

	_, err = run(t, "plugins", "-o", "xml")
	assert.Error(t, err)

	_, err = run(t, "discover", "-f", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsuccessful)
}
