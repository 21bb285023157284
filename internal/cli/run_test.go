package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTextGolden(t *testing.T) {
	buf, err := runCommand(t, "text", NewRunCommand, filepath.Join("testdata", "query.yaml"))
	require.NoError(t, err)
	golden(t).Assert(t, "run_text", buf.Bytes())
}

func TestRunJSONGolden(t *testing.T) {
	buf, err := runCommand(t, "json", NewRunCommand, filepath.Join("testdata", "query.yaml"))
	require.NoError(t, err)
	golden(t).Assert(t, "run_json", buf.Bytes())
}

func TestRunDistinctAndHead(t *testing.T) {
	dir := t.TempDir()
	csv := "city\nAustin\nBoston\nAustin\nChicago\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cities.csv"), []byte(csv), 0o644))
	query := `tables:
  cities:
    schema: "{city: string}"
    csv: cities.csv
query:
  from: cities
  ops:
    - distinct: true
    - head: 2
`
	queryPath := filepath.Join(dir, "query.yaml")
	require.NoError(t, os.WriteFile(queryPath, []byte(query), 0o644))

	buf, err := runCommand(t, "text", NewRunCommand, queryPath)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Austin")
	assert.Contains(t, buf.String(), "Boston")
	assert.NotContains(t, buf.String(), "Chicago")
	assert.Contains(t, buf.String(), "(2 row(s))")
}

func TestRunMissingQueryFile(t *testing.T) {
	buf, err := runCommand(t, "text", NewRunCommand, "/nonexistent/query.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestRunUnknownSourceTable(t *testing.T) {
	dir := t.TempDir()
	query := `tables:
  accounts:
    schema: "{name: string}"
    csv: accounts.csv
query:
  from: missing
`
	queryPath := filepath.Join(dir, "query.yaml")
	require.NoError(t, os.WriteFile(queryPath, []byte(query), 0o644))

	buf, err := runCommand(t, "text", NewRunCommand, queryPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "missing")
}

func TestRunUnknownColumnFailsBuild(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.csv"),
		[]byte("name\nAlice\n"), 0o644))
	query := `tables:
  accounts:
    schema: "{name: string}"
    csv: accounts.csv
query:
  from: accounts
  ops:
    - project: [balance]
`
	queryPath := filepath.Join(dir, "query.yaml")
	require.NoError(t, os.WriteFile(queryPath, []byte(query), 0o644))

	buf, err := runCommand(t, "text", NewRunCommand, queryPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeBadExpression)
	assert.Contains(t, buf.String(), "balance")
}

func TestRunCSVTypeMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.csv"),
		[]byte("name,amount\nAlice,not-a-number\n"), 0o644))
	query := `tables:
  accounts:
    schema: "{name: string, amount: int}"
    csv: accounts.csv
query:
  from: accounts
`
	queryPath := filepath.Join(dir, "query.yaml")
	require.NoError(t, os.WriteFile(queryPath, []byte(query), 0o644))

	buf, err := runCommand(t, "text", NewRunCommand, queryPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "amount")
}
