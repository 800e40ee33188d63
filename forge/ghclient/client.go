// Package ghclient is the production forge.Client: one GraphQL query
// (via the genqlient runtime client) for the read-mostly snapshot
// path, and the go-github REST client for every mutation.
package ghclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Khan/genqlient/graphql"
	gogithub "github.com/google/go-github/v69/github"
	"github.com/rs/zerolog/log"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
)

type authedTransport struct {
	token   string
	wrapped http.RoundTripper
}

func (t *authedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "bearer "+t.token)
	return t.wrapped.RoundTrip(req)
}

const tokenHelpText = `
No GitHub token found! Set the GITHUB_TOKEN environment variable to a
personal access token created at https://%s/settings/tokens.
`

// Client is the real forge.Client.
type Client struct {
	cfg        *config.Config
	gitcmd     git.Interface
	goghclient *gogithub.Client
	gclient    graphql.Client
}

// New constructs a Client authenticated with the GITHUB_TOKEN
// environment variable. Both the GraphQL and the REST endpoint are
// api.github.com; cfg.Repo.GitHubHost only appears in the help text.
func New(cfg *config.Config, gitcmd git.Interface) *Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		fmt.Printf(tokenHelpText, cfg.Repo.GitHubHost)
		os.Exit(2)
	}

	httpClient := &http.Client{
		Transport: &authedTransport{token: token, wrapped: http.DefaultTransport},
	}
	gclient := graphql.NewClient("https://api.github.com/graphql", httpClient)
	goghclient := gogithub.NewClient(nil).WithAuthToken(token)

	return &Client{
		cfg:        cfg,
		gitcmd:     gitcmd,
		goghclient: goghclient,
		gclient:    gclient,
	}
}

func (c *Client) GetAuthenticatedUserLogin(ctx context.Context) (string, error) {
	var resp snapshotResponse
	req := &graphql.Request{
		OpName: "StackSnapshot",
		Query:  snapshotQuery,
		Variables: map[string]any{
			"owner": c.cfg.Repo.GitHubRepoOwner,
			"name":  c.cfg.Repo.GitHubRepoName,
		},
	}
	if err := c.gclient.MakeRequest(ctx, req, &graphql.Response{Data: &resp}); err != nil {
		return "", check(err)
	}
	return resp.Viewer.Login, nil
}

// GetSnapshot runs the snapshot query and converts every node authored
// by login whose head branch matches git.BranchNameRegex and that has
// at least one commit into a forge.PullRequest. A failed query is
// returned as an error; there is no REST fallback enumeration.
func (c *Client) GetSnapshot(ctx context.Context, login string) (*forge.Snapshot, error) {
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github fetch pull requests\n")
	}

	var resp snapshotResponse
	req := &graphql.Request{
		OpName: "StackSnapshot",
		Query:  snapshotQuery,
		Variables: map[string]any{
			"owner": c.cfg.Repo.GitHubRepoOwner,
			"name":  c.cfg.Repo.GitHubRepoName,
		},
	}
	if err := c.gclient.MakeRequest(ctx, req, &graphql.Response{Data: &resp}); err != nil {
		return nil, check(err)
	}

	var prs []*forge.PullRequest
	for _, node := range resp.Repository.PullRequests.Nodes {
		if node.Author.Login != login {
			continue
		}
		matches := git.BranchNameRegex.FindStringSubmatch(node.HeadRefName)
		if matches == nil {
			continue
		}
		commitNodes := node.Commits.Nodes
		if len(commitNodes) == 0 {
			continue
		}
		tip := commitNodes[len(commitNodes)-1].Commit

		checkStatus := forge.CheckStatusPass
		if tip.StatusCheckRollup != nil && tip.StatusCheckRollup.State != "" {
			switch tip.StatusCheckRollup.State {
			case "SUCCESS":
				checkStatus = forge.CheckStatusPass
			case "PENDING", "EXPECTED":
				checkStatus = forge.CheckStatusPending
			default:
				checkStatus = forge.CheckStatusFail
			}
		}

		inQueue := node.MergeQueueEntry != nil && node.MergeQueueEntry.ID != ""

		prs = append(prs, &forge.PullRequest{
			ID:         node.ID,
			DatabaseID: node.DatabaseID,
			Number:     node.Number,
			Title:      node.Title,
			Body:       node.Body,
			FromBranch: node.HeadRefName,
			ToBranch:   node.BaseRefName,
			InQueue:    inQueue,
			Commit: git.Commit{
				CommitID:   matches[2],
				CommitHash: tip.Oid,
				Subject:    tip.MessageHeadline,
				Body:       tip.MessageBody,
			},
			MergeStatus: forge.MergeStatus{
				ChecksPass:     checkStatus,
				ReviewApproved: node.ReviewDecision == "APPROVED",
				NoConflicts:    node.Mergeable == "MERGEABLE",
			},
		})
	}

	log.Debug().Int("count", len(prs)).Msg("GetSnapshot")
	return &forge.Snapshot{PullRequests: prs}, nil
}

func (c *Client) GetAssignableUsers(ctx context.Context) (map[string]string, error) {
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github get assignable users\n")
	}

	users := make(map[string]string)
	var after string
	for {
		var resp assignableUsersResponse
		req := &graphql.Request{
			OpName: "AssignableUsers",
			Query:  assignableUsersQuery,
			Variables: map[string]any{
				"owner": c.cfg.Repo.GitHubRepoOwner,
				"name":  c.cfg.Repo.GitHubRepoName,
				"after": after,
			},
		}
		if err := c.gclient.MakeRequest(ctx, req, &graphql.Response{Data: &resp}); err != nil {
			return nil, check(err)
		}
		for _, node := range resp.Repository.AssignableUsers.Nodes {
			users[node.Login] = node.ID
		}
		if !resp.Repository.AssignableUsers.PageInfo.HasNextPage {
			break
		}
		after = resp.Repository.AssignableUsers.PageInfo.EndCursor
	}
	return users, nil
}

func (c *Client) CreatePullRequest(ctx context.Context, cfg *config.Config, commit git.Commit, fromBranch, toBranch string, prevBody string) (*forge.PullRequest, error) {
	body := prevBody
	if cfg.Repo.PRTemplatePath != "" {
		tmpl, err := readPRTemplate(c.gitcmd, cfg.Repo.PRTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("reading PR template: %w", err)
		}
		body, err = InsertBodyIntoPRTemplate(body, tmpl, cfg.Repo, nil)
		if err != nil {
			return nil, fmt.Errorf("inserting body into PR template: %w", err)
		}
	}

	ghpr, _, err := c.goghclient.PullRequests.Create(ctx, cfg.Repo.GitHubRepoOwner, cfg.Repo.GitHubRepoName, &gogithub.NewPullRequest{
		Title: gogithub.Ptr(commit.Subject),
		Head:  gogithub.Ptr(fromBranch),
		Base:  gogithub.Ptr(toBranch),
		Body:  gogithub.Ptr(body),
		Draft: gogithub.Ptr(cfg.User.CreateDraftPRs),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}

	pr := &forge.PullRequest{
		DatabaseID: ghpr.GetID(),
		Number:     ghpr.GetNumber(),
		Title:      commit.Subject,
		Body:       body,
		FromBranch: fromBranch,
		ToBranch:   toBranch,
		Commit:     commit,
	}

	if cfg.User.LogGitHubCalls {
		fmt.Printf("> github create %d : %s\n", pr.Number, pr.Title)
	}
	return pr, nil
}

func (c *Client) UpdatePullRequest(ctx context.Context, cfg *config.Config, pr *forge.PullRequest, commit git.Commit, toBranch string, stackBody string) error {
	if cfg.User.LogGitHubCalls {
		fmt.Printf("> github update %d : %s\n", pr.Number, pr.Title)
	}

	title := commit.Subject
	body := stackBody
	if cfg.Repo.PRTemplatePath != "" {
		tmpl, err := readPRTemplate(c.gitcmd, cfg.Repo.PRTemplatePath)
		if err != nil {
			return fmt.Errorf("reading PR template: %w", err)
		}
		body, err = InsertBodyIntoPRTemplate(body, tmpl, cfg.Repo, pr)
		if err != nil {
			return fmt.Errorf("inserting body into PR template: %w", err)
		}
	}
	if cfg.User.PreserveTitleAndBody {
		title = pr.Title
		body = pr.Body
	}

	update := &gogithub.PullRequest{
		Title: gogithub.Ptr(title),
		Body:  gogithub.Ptr(body),
	}
	if !pr.InQueue {
		update.Base = &gogithub.PullRequestBranch{Ref: gogithub.Ptr(toBranch)}
	}

	_, _, err := c.goghclient.PullRequests.Edit(ctx, cfg.Repo.GitHubRepoOwner, cfg.Repo.GitHubRepoName, pr.Number, update)
	if err != nil {
		return fmt.Errorf("updating pull request %d: %w", pr.Number, err)
	}
	pr.Title = title
	pr.Body = body
	pr.ToBranch = toBranch
	return nil
}

func (c *Client) AddReviewers(ctx context.Context, pr *forge.PullRequest, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, _, err := c.goghclient.PullRequests.RequestReviewers(ctx, c.cfg.Repo.GitHubRepoOwner, c.cfg.Repo.GitHubRepoName, pr.Number, gogithub.ReviewersRequest{
		Reviewers: userIDs,
	})
	if err != nil {
		return fmt.Errorf("requesting reviewers on %d: %w", pr.Number, err)
	}
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github add reviewers %d : %s - %+v\n", pr.Number, pr.Title, userIDs)
	}
	return nil
}

func (c *Client) AddLabels(ctx context.Context, pr *forge.PullRequest, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := c.goghclient.Issues.AddLabelsToIssue(ctx, c.cfg.Repo.GitHubRepoOwner, c.cfg.Repo.GitHubRepoName, pr.Number, labels)
	if err != nil {
		return fmt.Errorf("adding labels to %d: %w", pr.Number, err)
	}
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github add labels %d : %v\n", pr.Number, labels)
	}
	return nil
}

func (c *Client) EnableAutoMerge(ctx context.Context, cfg *config.Config, pr *forge.PullRequest) error {
	req := &graphql.Request{
		OpName: "EnablePullRequestAutoMerge",
		Query:  enableAutoMergeMutation,
		Variables: map[string]any{
			"pullRequestId": pr.ID,
			"mergeMethod":   strings.ToUpper(cfg.Repo.MergeMethod),
		},
	}
	if err := c.gclient.MakeRequest(ctx, req, &graphql.Response{}); err != nil {
		return fmt.Errorf("enabling auto-merge on %d: %w", pr.Number, err)
	}
	pr.InQueue = true
	return nil
}

func (c *Client) GetPRForBranch(ctx context.Context, headBranch string) (*forge.PullRequest, error) {
	opts := &gogithub.PullRequestListOptions{
		Head:  c.cfg.Repo.GitHubRepoOwner + ":" + headBranch,
		State: "open",
	}
	prs, _, err := c.goghclient.PullRequests.List(ctx, c.cfg.Repo.GitHubRepoOwner, c.cfg.Repo.GitHubRepoName, opts)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for branch %s: %w", headBranch, err)
	}
	if len(prs) == 0 {
		return nil, fmt.Errorf("no open pull request found for branch %s", headBranch)
	}
	ghpr := prs[0]
	return &forge.PullRequest{
		DatabaseID: ghpr.GetID(),
		Number:     ghpr.GetNumber(),
		Title:      ghpr.GetTitle(),
		Body:       ghpr.GetBody(),
		FromBranch: ghpr.GetHead().GetRef(),
		ToBranch:   ghpr.GetBase().GetRef(),
	}, nil
}

func (c *Client) CommentPullRequest(ctx context.Context, pr *forge.PullRequest, comment string) error {
	_, _, err := c.goghclient.Issues.CreateComment(ctx, c.cfg.Repo.GitHubRepoOwner, c.cfg.Repo.GitHubRepoName, pr.Number, &gogithub.IssueComment{
		Body: gogithub.Ptr(comment),
	})
	if err != nil {
		return fmt.Errorf("commenting on %d: %w", pr.Number, err)
	}
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github add comment %d : %s\n", pr.Number, pr.Title)
	}
	return nil
}

func (c *Client) MergePullRequest(ctx context.Context, cfg *config.Config, pr *forge.PullRequest) error {
	opts := &gogithub.PullRequestOptions{
		SHA:         pr.Commit.CommitHash,
		MergeMethod: cfg.Repo.MergeMethod,
	}
	_, _, err := c.goghclient.PullRequests.Merge(ctx, cfg.Repo.GitHubRepoOwner, cfg.Repo.GitHubRepoName, pr.Number, "", opts)
	if err != nil {
		return fmt.Errorf("merging %d: %w", pr.Number, err)
	}
	if cfg.User.LogGitHubCalls {
		fmt.Printf("> github merge %d : %s\n", pr.Number, pr.Title)
	}
	pr.Merged = true
	return nil
}

func (c *Client) ClosePullRequest(ctx context.Context, pr *forge.PullRequest) error {
	_, _, err := c.goghclient.PullRequests.Edit(ctx, c.cfg.Repo.GitHubRepoOwner, c.cfg.Repo.GitHubRepoName, pr.Number, &gogithub.PullRequest{
		State: gogithub.Ptr("closed"),
	})
	if err != nil {
		return fmt.Errorf("closing %d: %w", pr.Number, err)
	}
	if c.cfg.User.LogGitHubCalls {
		fmt.Printf("> github close %d : %s\n", pr.Number, pr.Title)
	}
	pr.Closed = true
	return nil
}

func formatStackMarkdown(commit git.Commit, stack []*forge.PullRequest, showPrTitlesInStack bool) string {
	var buf bytes.Buffer
	for i := len(stack) - 1; i >= 0; i-- {
		suffix := ""
		if stack[i].Commit.CommitID == commit.CommitID {
			suffix = " ⬅"
		}
		prTitle := ""
		if showPrTitlesInStack {
			prTitle = fmt.Sprintf("%s ", stack[i].Title)
		}
		buf.WriteString(fmt.Sprintf("- %s#%d%s\n", prTitle, stack[i].Number, suffix))
	}
	return buf.String()
}

// FormatBody renders the PR body shown to reviewers: the commit body
// followed by a "**Stack**:" listing for multi-PR stacks, bare
// otherwise.
func FormatBody(commit git.Commit, stack []*forge.PullRequest, showPrTitlesInStack bool) string {
	if len(stack) <= 1 {
		return strings.TrimSpace(commit.Body)
	}
	if strings.TrimSpace(commit.Body) == "" {
		return fmt.Sprintf("**Stack**:\n%s", addManualMergeNotice(formatStackMarkdown(commit, stack, showPrTitlesInStack)))
	}
	return fmt.Sprintf("%s\n\n---\n\n**Stack**:\n%s",
		commit.Body,
		addManualMergeNotice(formatStackMarkdown(commit, stack, showPrTitlesInStack)))
}

func addManualMergeNotice(body string) string {
	return body + "\n\n" +
		"⚠️ *Part of a stack managed by stackpr. Do not merge manually using the UI - doing so may have unexpected results.*"
}

func readPRTemplate(gitcmd git.Interface, templatePath string) (string, error) {
	fullPath := filepath.Clean(path.Join(gitcmd.RootDir(), templatePath))
	b, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("%w: unable to read template %v", err, fullPath)
	}
	return string(b), nil
}

const (
	BeforeMatch = iota
	AfterMatch
)

// InsertBodyIntoPRTemplate splices body into prTemplate (or, on
// update, the PR's existing body) between
// repo.PRTemplateInsertStart/End markers.
func InsertBodyIntoPRTemplate(body, prTemplate string, repo *config.RepoConfig, pr *forge.PullRequest) (string, error) {
	base := prTemplate
	if pr != nil && pr.Body != "" {
		base = pr.Body
	}

	before, err := sectionOfTemplate(base, repo.PRTemplateInsertStart, BeforeMatch)
	if err != nil {
		return "", fmt.Errorf("%w: PR template insert start = %q", err, repo.PRTemplateInsertStart)
	}
	after, err := sectionOfTemplate(base, repo.PRTemplateInsertEnd, AfterMatch)
	if err != nil {
		return "", fmt.Errorf("%w: PR template insert end = %q", err, repo.PRTemplateInsertEnd)
	}

	return fmt.Sprintf("%v%v\n%v\n\n%v%v", before, repo.PRTemplateInsertStart, body, repo.PRTemplateInsertEnd, after), nil
}

func sectionOfTemplate(text, searchString string, which int) (string, error) {
	split := strings.Split(text, searchString)
	switch len(split) {
	case 2:
		if which == BeforeMatch {
			return split[0], nil
		}
		return split[1], nil
	case 1:
		return "", fmt.Errorf("no matches found")
	default:
		return "", fmt.Errorf("multiple matches found")
	}
}

func check(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "401") {
		return fmt.Errorf("401 Unauthorized: check that GITHUB_TOKEN is set to a valid token (https://github.com/settings/tokens): %w", err)
	}
	return err
}
