// Package config holds the typed configuration record the engine reads
// from and the small amount of persistent local state the engine
// writes back (the merge-check gate, nothing else). Loading and
// validation live in config/configparser.
package config

// Config is the root configuration record passed to every component.
type Config struct {
	Repo  *RepoConfig
	User  *UserConfig
	State *InternalState
}

// RepoConfig holds repository-level settings, normally checked in as
// .spr.yaml at the repository root.
type RepoConfig struct {
	GitHubRepoOwner string `yaml:"github_repo_owner"`
	GitHubRepoName  string `yaml:"github_repo_name"`
	GitHubRemote    string `yaml:"github_remote"`
	GitHubHost      string `yaml:"github_host"`

	// GitHubBranch is the trunk branch name used to compose stacked
	// branch names (spr/<GitHubBranch>/<commit-id>).
	GitHubBranch string `yaml:"github_branch"`

	// GitHubBranchTarget is the branch PRs are ultimately merged into.
	// It defaults to the same value as GitHubBranch but the two are
	// tracked separately: the merge driver looks up the bottom PR's base
	// against GitHubBranchTarget while branch names are always composed
	// from GitHubBranch.
	GitHubBranchTarget string `yaml:"github_branch_target"`

	BranchPrefix string `yaml:"branch_prefix"`

	RequireChecks   bool   `yaml:"require_checks"`
	RequireApproval bool   `yaml:"require_approval"`
	MergeMethod     string `yaml:"merge_method"`
	MergeQueue      bool   `yaml:"merge_queue"`
	MergeCheck      string `yaml:"merge_check"`

	ShowPrTitlesInStack     bool `yaml:"show_pr_titles_in_stack"`
	BranchPushIndividually  bool `yaml:"branch_push_individually"`
	AutoCloseClosedCommits  bool `yaml:"auto_close_prs"`
	ForceFetchTags          bool `yaml:"force_fetch_tags"`

	Labels []string `yaml:"labels"`

	PRTemplatePath        string `yaml:"pr_template_path"`
	PRTemplateInsertStart string `yaml:"pr_template_insert_start"`
	PRTemplateInsertEnd   string `yaml:"pr_template_insert_end"`
}

// UserConfig holds per-user settings, sourced from environment
// variables (see config/configparser).
type UserConfig struct {
	NoRebase    bool `yaml:"no_rebase"`
	BestEffort  bool `yaml:"best_effort"`
	Concurrency int  `yaml:"concurrency"`
	Pretend     bool `yaml:"pretend"`

	LogGitCommands bool `yaml:"log_git_commands"`
	LogGitHubCalls bool `yaml:"log_github_calls"`

	CreateDraftPRs       bool `yaml:"create_draft_prs"`
	PreserveTitleAndBody bool `yaml:"preserve_title_and_body"`

	// IndexLockWaitSeconds bounds how long the state-restoration guard
	// waits for a stale index.lock to be released before removing it.
	IndexLockWaitSeconds int `yaml:"index_lock_wait_seconds"`
}

// InternalState is the small amount of state persisted locally between
// invocations (~/.spr.yml). Branch names and PR bodies remain the
// source of truth for the stack model itself; this is only a cache for
// the merge-check gate.
type InternalState struct {
	// MergeCheckCommit maps a repository key (RepoConfig.Key()) to the
	// commit hash that last passed `stackpr check`, or "SKIP" if checks
	// are disabled for that repo.
	MergeCheckCommit map[string]string `yaml:"merge_check_commit"`
}

// Key identifies this repository for the purposes of keying
// InternalState.MergeCheckCommit, since the same user config can be
// reused across repository clones.
func (r *RepoConfig) Key() string {
	return r.GitHubHost + "/" + r.GitHubRepoOwner + "/" + r.GitHubRepoName
}

// EmptyConfig returns a Config with all zero-valued fields.
func EmptyConfig() *Config {
	return &Config{
		Repo:  &RepoConfig{},
		User:  &UserConfig{},
		State: &InternalState{MergeCheckCommit: map[string]string{}},
	}
}

// DefaultConfig returns the Config used before any repo/user overrides
// are applied.
func DefaultConfig() *Config {
	return &Config{
		Repo: &RepoConfig{
			GitHubRemote:        "origin",
			GitHubBranch:        "main",
			GitHubBranchTarget:  "main",
			GitHubHost:          "github.com",
			BranchPrefix:        "pyspr/",
			RequireChecks:       true,
			RequireApproval:     true,
			MergeMethod:         "squash",
			ShowPrTitlesInStack: false,
		},
		User: &UserConfig{
			Concurrency:          0,
			IndexLockWaitSeconds: 5,
		},
		State: &InternalState{MergeCheckCommit: map[string]string{}},
	}
}
