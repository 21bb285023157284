package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func runCommand(t *testing.T, format string, newCmd func(*RootOptions) *cobra.Command, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestValidateTextGolden(t *testing.T) {
	buf, err := runCommand(t, "text", NewValidateCommand, filepath.Join("testdata", "schemas.cue"))
	require.NoError(t, err)
	golden(t).Assert(t, "validate_text", buf.Bytes())
}

func TestValidateJSONGolden(t *testing.T) {
	buf, err := runCommand(t, "json", NewValidateCommand, filepath.Join("testdata", "schemas.cue"))
	require.NoError(t, err)
	golden(t).Assert(t, "validate_json", buf.Bytes())
}

func TestValidateMissingPath(t *testing.T) {
	buf, err := runCommand(t, "text", NewValidateCommand, "/nonexistent/schemas.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestValidateBadRecordLiteral(t *testing.T) {
	tmpDir := t.TempDir()
	bad := `package schemas

tables: accounts: "{name: string, amount: money}"
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(bad), 0o644))

	buf, err := runCommand(t, "text", NewValidateCommand, tmpDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Validation failed")
	assert.Contains(t, buf.String(), ErrCodeBadSchema)
	assert.Contains(t, buf.String(), "accounts")
}

func TestValidateNoTablesDeclared(t *testing.T) {
	tmpDir := t.TempDir()
	empty := `package schemas

other: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "empty.cue"), []byte(empty), 0o644))

	buf, err := runCommand(t, "text", NewValidateCommand, tmpDir)
	require.Error(t, err)
	assert.Contains(t, buf.String(), ErrCodeNoTables)
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf, err := runCommand(t, "text", NewValidateCommand, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "no CUE files found")
}
