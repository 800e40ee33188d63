package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyConfig(t *testing.T) {
	cfg := EmptyConfig()
	assert.Equal(t, &Config{
		Repo:  &RepoConfig{},
		User:  &UserConfig{},
		State: &InternalState{MergeCheckCommit: map[string]string{}},
	}, cfg)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "origin", cfg.Repo.GitHubRemote)
	assert.Equal(t, "main", cfg.Repo.GitHubBranch)
	assert.Equal(t, "main", cfg.Repo.GitHubBranchTarget)
	assert.Equal(t, "github.com", cfg.Repo.GitHubHost)
	assert.True(t, cfg.Repo.RequireChecks)
	assert.True(t, cfg.Repo.RequireApproval)
	assert.Equal(t, "squash", cfg.Repo.MergeMethod)
	assert.False(t, cfg.Repo.ShowPrTitlesInStack)
	assert.Equal(t, map[string]string{}, cfg.State.MergeCheckCommit)
}
