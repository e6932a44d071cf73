package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPathPrefersLocal(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	t.Setenv("WAMCP_HOME", home)
	t.Chdir(work)

	p, err := ConfigPath()
	require.NoError(t, err)
	assert.Empty(t, p)

	require.NoError(t, os.WriteFile(filepath.Join(home, "wamcp.toml"), []byte(""), 0600))
	p, err = ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "wamcp.toml"), p)

	require.NoError(t, os.WriteFile(filepath.Join(work, "wamcp.yaml"), []byte(""), 0600))
	p, err = ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "wamcp.yaml", filepath.Base(p))
	assert.True(t, filepath.IsAbs(p))
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandTilde("~/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x"), got)

	got, err = ExpandTilde("/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", got)
}
