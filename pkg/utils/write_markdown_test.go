package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMarkdown(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "600000.SH")

	path, err := WriteMarkdown(dir, "report.md", "# 600000.SH\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# 600000.SH\n", string(data))
}
