package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iniWithAddopts = `[pytest]
# keep this comment
testpaths = tests
addopts = -p no:cacheprovider
    --strict-markers
markers =
    high: high priority

[other]
addopts = untouched
`

func TestFixPytestIni(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, pytestIniFile)
	require.NoError(t, os.WriteFile(path, []byte(iniWithAddopts), 0644))

	restore, err := FixPytestIni(dir, log.New())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[pytest]
# keep this comment
testpaths = tests
markers =
    high: high priority

[other]
addopts = untouched
`, string(data))
	assert.FileExists(t, filepath.Join(dir, pytestIniBackupFile))

	require.NoError(t, restore())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, iniWithAddopts, string(data))
	assert.NoFileExists(t, filepath.Join(dir, pytestIniBackupFile))
}

func TestFixPytestIni_NothingToDo(t *testing.T) {
	t.Run("no ini file", func(t *testing.T) {
		restore, err := FixPytestIni(t.TempDir(), log.New())
		require.NoError(t, err)
		assert.NoError(t, restore())
	})

	t.Run("no addopts", func(t *testing.T) {
		dir := t.TempDir()
		content := "[pytest]\ntestpaths = tests\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, pytestIniFile), []byte(content), 0644))

		restore, err := FixPytestIni(dir, log.New())
		require.NoError(t, err)
		assert.NoFileExists(t, filepath.Join(dir, pytestIniBackupFile))
		require.NoError(t, restore())

		data, err := os.ReadFile(filepath.Join(dir, pytestIniFile))
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})
}

func TestRemoveAddopts_ColonSeparator(t *testing.T) {
	got := removeAddopts("[pytest]\r\naddopts: -q\r\nxfail_strict = true\r\n")
	assert.Equal(t, "[pytest]\r\nxfail_strict = true\r\n", got)
}
