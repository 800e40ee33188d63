// Package configparser loads config.Config in layers: defaults, then
// .spr.yaml checked into the repo, then environment variables, then
// repo owner/name derived from the origin remote URL, via
// github.com/ejoffe/rake.
package configparser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ejoffe/rake"
	"gopkg.in/yaml.v3"

	"github.com/corvidworks/stackpr/config"
)

const repoConfigFileName = ".spr.yaml"

// InternalConfigFilePath is where persisted InternalState is written
// and read back (the merge-check gate cache).
func InternalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".spr.yml")
}

// ParseConfig loads a full config.Config for the repository rooted at
// gitRootDir. It layers config.DefaultConfig(), then .spr.yaml at the
// repo root, then environment variables (STACKPR_ prefixed), then fills
// in GitHubRepoOwner/GitHubRepoName by parsing the origin remote URL if
// they were not set explicitly.
func ParseConfig(gitRootDir string, remoteURL string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	repoConfigPath := filepath.Join(gitRootDir, repoConfigFileName)
	if err := rejectUnknownKeys(repoConfigPath); err != nil {
		return nil, err
	}
	rake.LoadSources(cfg.Repo,
		rake.YamlFileSource(repoConfigPath),
		rake.EnvSource("STACKPR"),
	)
	rake.LoadSources(cfg.User,
		rake.EnvSource("STACKPR"),
	)
	rake.LoadSources(cfg.State,
		rake.YamlFileSource(InternalConfigFilePath()),
	)

	if cfg.Repo.GitHubRepoOwner == "" || cfg.Repo.GitHubRepoName == "" {
		owner, name, err := ownerAndNameFromRemote(remoteURL)
		if err != nil {
			return nil, fmt.Errorf("deriving github owner/name from remote %q: %w", remoteURL, err)
		}
		cfg.Repo.GitHubRepoOwner = owner
		cfg.Repo.GitHubRepoName = name
	}

	if cfg.Repo.GitHubBranchTarget == "" {
		cfg.Repo.GitHubBranchTarget = cfg.Repo.GitHubBranch
	}

	return cfg, nil
}

// rejectUnknownKeys fails the load when .spr.yaml carries a key the
// typed RepoConfig does not recognize, instead of silently defaulting
// a typo'd setting.
func rejectUnknownKeys(repoConfigPath string) error {
	b, err := os.ReadFile(repoConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", repoConfigPath, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var rc config.RepoConfig
	if err := dec.Decode(&rc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid %s: %w", repoConfigPath, err)
	}
	return nil
}

// ownerAndNameFromRemote derives owner/name the same way
// pyspr.config.config_parser does: split the host prefix off an SSH or
// HTTPS origin URL, then split the remaining "owner/name[.git]" on "/".
func ownerAndNameFromRemote(remoteURL string) (owner string, name string, err error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return "", "", fmt.Errorf("empty remote url")
	}

	var repoPart string
	switch {
	case strings.Contains(remoteURL, "github.com/"):
		// HTTPS form: https://github.com/owner/name[.git]
		idx := strings.Index(remoteURL, "github.com/")
		repoPart = remoteURL[idx+len("github.com/"):]
	case strings.Contains(remoteURL, "@"):
		// SSH form: git@github.com:owner/name[.git]
		parts := strings.Split(remoteURL, ":")
		repoPart = parts[len(parts)-1]
	default:
		return "", "", fmt.Errorf("unrecognized remote url form: %s", remoteURL)
	}

	repoPart = strings.TrimSuffix(repoPart, ".git")
	repoPart = strings.Trim(repoPart, "/")
	segments := strings.Split(repoPart, "/")
	if len(segments) < 2 {
		return "", "", fmt.Errorf("could not split owner/name out of %q", repoPart)
	}
	owner = segments[len(segments)-2]
	name = segments[len(segments)-1]
	return owner, name, nil
}

// CheckConfig reports the first missing required field, mirroring the
// fail-fast validation the CLI runs right after loading config, before
// any network or git state has been touched.
func CheckConfig(cfg *config.Config) error {
	switch {
	case cfg.Repo.GitHubRepoOwner == "":
		return fmt.Errorf("github_repo_owner is not set")
	case cfg.Repo.GitHubRepoName == "":
		return fmt.Errorf("github_repo_name is not set")
	case cfg.Repo.GitHubRemote == "":
		return fmt.Errorf("github_remote is not set")
	case cfg.Repo.GitHubBranch == "":
		return fmt.Errorf("github_branch is not set")
	case cfg.Repo.MergeMethod != "rebase" && cfg.Repo.MergeMethod != "squash" && cfg.Repo.MergeMethod != "merge":
		return fmt.Errorf("merge_method must be one of rebase, squash, merge (got %q)", cfg.Repo.MergeMethod)
	}
	return nil
}

// SaveState persists cfg.State back to InternalConfigFilePath(), the
// only configuration this tool ever writes.
func SaveState(cfg *config.Config) {
	rake.LoadSources(cfg.State,
		rake.YamlFileWriter(InternalConfigFilePath()))
}
