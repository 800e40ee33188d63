package configparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/stackpr/config"
)

func TestOwnerAndNameFromRemoteSSH(t *testing.T) {
	owner, name, err := ownerAndNameFromRemote("git@github.com:corvidworks/stackpr.git")
	require.NoError(t, err)
	assert.Equal(t, "corvidworks", owner)
	assert.Equal(t, "stackpr", name)
}

func TestOwnerAndNameFromRemoteHTTPS(t *testing.T) {
	owner, name, err := ownerAndNameFromRemote("https://github.com/corvidworks/stackpr.git")
	require.NoError(t, err)
	assert.Equal(t, "corvidworks", owner)
	assert.Equal(t, "stackpr", name)
}

func TestOwnerAndNameFromRemoteHTTPSNoSuffix(t *testing.T) {
	owner, name, err := ownerAndNameFromRemote("https://github.com/corvidworks/stackpr")
	require.NoError(t, err)
	assert.Equal(t, "corvidworks", owner)
	assert.Equal(t, "stackpr", name)
}

func TestOwnerAndNameFromRemoteUnrecognized(t *testing.T) {
	_, _, err := ownerAndNameFromRemote("not a remote url")
	assert.Error(t, err)
}

func TestParseConfigDerivesOwnerAndName(t *testing.T) {
	cfg, err := ParseConfig(t.TempDir(), "git@github.com:corvidworks/stackpr.git")
	require.NoError(t, err)
	assert.Equal(t, "corvidworks", cfg.Repo.GitHubRepoOwner)
	assert.Equal(t, "stackpr", cfg.Repo.GitHubRepoName)
	assert.Equal(t, "main", cfg.Repo.GitHubBranch)
}

func TestParseConfigReadsRepoFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".spr.yaml"),
		[]byte("github_branch: develop\nmerge_queue: true\n"), 0o644))

	cfg, err := ParseConfig(dir, "git@github.com:corvidworks/stackpr.git")
	require.NoError(t, err)
	assert.Equal(t, "develop", cfg.Repo.GitHubBranch)
	assert.True(t, cfg.Repo.MergeQueue)
}

func TestParseConfigRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".spr.yaml"),
		[]byte("github_brnach: develop\n"), 0o644))

	_, err := ParseConfig(dir, "git@github.com:corvidworks/stackpr.git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestCheckConfigRequiresCoordinates(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Error(t, CheckConfig(cfg))

	cfg.Repo.GitHubRepoOwner = "corvidworks"
	cfg.Repo.GitHubRepoName = "stackpr"
	assert.NoError(t, CheckConfig(cfg))

	cfg.Repo.MergeMethod = "frobnicate"
	assert.Error(t, CheckConfig(cfg))
}
