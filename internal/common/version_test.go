package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFullVersion(t *testing.T) {
	origVersion, origBuild, origCommit := Version, Build, GitCommit
	t.Cleanup(func() { Version, Build, GitCommit = origVersion, origBuild, origCommit })

	Version, Build, GitCommit = "1.2.3", "20260824", "abc1234"
	assert.Equal(t, "1.2.3 (build: 20260824, commit: abc1234)", GetFullVersion())
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestLoadVersionFromFile(t *testing.T) {
	origVersion := Version
	t.Cleanup(func() { Version = origVersion })

	exePath, err := os.Executable()
	require.NoError(t, err)
	versionFile := filepath.Join(filepath.Dir(exePath), ".version")

	// no file: compiled-in version stands
	require.NoError(t, os.RemoveAll(versionFile))
	Version = "dev"
	assert.Equal(t, "dev", LoadVersionFromFile())

	if err := os.WriteFile(versionFile, []byte("2.0.1\n"), 0644); err != nil {
		t.Skipf("executable directory not writable: %v", err)
	}
	t.Cleanup(func() { os.Remove(versionFile) })

	assert.Equal(t, "2.0.1", LoadVersionFromFile())
	assert.Equal(t, "2.0.1", Version)

	// blank file leaves the version alone
	require.NoError(t, os.WriteFile(versionFile, []byte("  \n"), 0644))
	assert.Equal(t, "2.0.1", LoadVersionFromFile())
}
