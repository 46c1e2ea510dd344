package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AGENT_HOME", dir)
	path := filepath.Join(dir, "agent.ini")
	body := fmt.Sprintf(`[Agent]
DBDriver = sqlite
DBPath = %s
LogDir = %s
LogLevel = ERROR
%s`, filepath.Join(dir, "agent.db"), filepath.Join(dir, "log"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	console = io.Discard
	t.Cleanup(func() { console = nil })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "harvestagent")
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, "")
	out, err := run(t, "", "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid.")

	bad := writeConfig(t, "NewRecordLimit = -1\nCMSUrl = not-a-url\n")
	out, err = run(t, "", "--config", bad, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "NewRecordLimit")
	assert.Contains(t, out, "CMSUrl")
}

func TestConfig_MissingFile(t *testing.T) {
	t.Setenv("AGENT_HOME", t.TempDir())
	_, err := run(t, "", "--config", filepath.Join(t.TempDir(), "nope.ini"), "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t, "APIToken = s3cret-token\n")

	out, err := run(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[Agent]")
	assert.Contains(t, out, "DBDriver = sqlite")
	assert.Contains(t, out, "APIToken = ********")
	assert.NotContains(t, out, "s3cret-token")

	out, err = run(t, "", "--config", path, "config", "show", "--reveal", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "s3cret-token")
	assert.Contains(t, out, "key: DBDriver")

	_, err = run(t, "", "--config", path, "config", "show", "--format", "toml")
	assert.Error(t, err)

	out, err = run(t, "", "--config", path, "config", "get", "dbdriver")
	require.NoError(t, err)
	assert.Equal(t, "sqlite\n", out)
}

func TestDBInit_Refused(t *testing.T) {
	path := writeConfig(t, "")
	out, err := run(t, "I am Chuck Norris\n", "--config", path, "db", "init")
	require.NoError(t, err)
	assert.Contains(t, out, ResetPhrase)
	assert.Contains(t, out, "You chickened out. Wise move.")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "agent.db"))
}

func TestDBInit_Confirmed(t *testing.T) {
	path := writeConfig(t, "")
	out, err := run(t, ResetPhrase+"\n", "--config", path, "db", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialised")
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "agent.db"))
}

func TestCommandsOnEmptyDatabase(t *testing.T) {
	path := writeConfig(t, "")
	_, err := run(t, "", "--config", path, "db", "init", "--yes")
	require.NoError(t, err)

	out, err := run(t, "", "--config", path, "harvesters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No harvesters.")

	out, err = run(t, "", "--config", path, "harvesters", "list", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	out, err = run(t, "", "--config", path, "run-due")
	require.NoError(t, err)
	assert.Contains(t, out, "No harvesters are due.")

	_, err = run(t, "", "--config", path, "records", "list", "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harvester h1 not found")

	out, err = run(t, "", "--config", path, "db", "history", "harvester", "h1")
	require.NoError(t, err)
	assert.Contains(t, out, "No archived versions of harvester h1.")

	_, err = run(t, "", "--config", path, "db", "history", "widget", "h1")
	assert.Error(t, err)

	out, err = run(t, "", "--config", path, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Database:  sqlite:")
	assert.Contains(t, out, "Harvesters: 0 active, 0 inactive, 0 deleted; 0 due")
}

func TestInvoke_RequiresFlags(t *testing.T) {
	path := writeConfig(t, "")
	_, err := run(t, "", "--config", path, "invoke", "-H", "h1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
