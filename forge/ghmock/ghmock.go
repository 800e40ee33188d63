// Package ghmock is an ordered-expectation test double for
// forge.Client.
package ghmock

import (
	"context"
	"testing"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/mock"
)

const (
	OpGetAuthenticatedUserLogin mock.Operation = "GetAuthenticatedUserLogin"
	OpGetSnapshot               mock.Operation = "GetSnapshot"
	OpCreatePullRequest         mock.Operation = "CreatePullRequest"
	OpUpdatePullRequest         mock.Operation = "UpdatePullRequest"
	OpAddReviewers              mock.Operation = "AddReviewers"
	OpAddLabels                 mock.Operation = "AddLabels"
	OpCommentPullRequest        mock.Operation = "CommentPullRequest"
	OpMergePullRequest          mock.Operation = "MergePullRequest"
	OpEnableAutoMerge           mock.Operation = "EnableAutoMerge"
	OpClosePullRequest          mock.Operation = "ClosePullRequest"
	OpGetPRForBranch            mock.Operation = "GetPRForBranch"
	OpGetAssignableUsers        mock.Operation = "GetAssignableUsers"
)

// Mock implements forge.Client against a shared *mock.Expectations
// queue so git and forge calls can be interleaved in one test.
type Mock struct {
	exp *mock.Expectations
}

func New(t *testing.T, exp *mock.Expectations) *Mock {
	return &Mock{exp: exp}
}

func (m *Mock) GetAuthenticatedUserLogin(ctx context.Context) (string, error) {
	e := m.exp.Next(OpGetAuthenticatedUserLogin, nil)
	s, _ := e.Output.(string)
	return s, e.Err
}

func (m *Mock) GetSnapshot(ctx context.Context, login string) (*forge.Snapshot, error) {
	e := m.exp.Next(OpGetSnapshot, login)
	if snap, ok := e.Output.(*forge.Snapshot); ok {
		return snap, e.Err
	}
	return &forge.Snapshot{}, e.Err
}

type CreatePullRequestInput struct {
	Commit     git.Commit
	FromBranch string
	ToBranch   string
	PrevBody   string
}

func (m *Mock) CreatePullRequest(ctx context.Context, cfg *config.Config, commit git.Commit, fromBranch, toBranch string, prevBody string) (*forge.PullRequest, error) {
	e := m.exp.Next(OpCreatePullRequest, CreatePullRequestInput{commit, fromBranch, toBranch, prevBody})
	pr, _ := e.Output.(*forge.PullRequest)
	return pr, e.Err
}

type UpdatePullRequestInput struct {
	PR        *forge.PullRequest
	Commit    git.Commit
	ToBranch  string
	StackBody string
}

func (m *Mock) UpdatePullRequest(ctx context.Context, cfg *config.Config, pr *forge.PullRequest, commit git.Commit, toBranch string, stackBody string) error {
	e := m.exp.Next(OpUpdatePullRequest, UpdatePullRequestInput{pr, commit, toBranch, stackBody})
	return e.Err
}

func (m *Mock) AddReviewers(ctx context.Context, pr *forge.PullRequest, userIDs []string) error {
	e := m.exp.Next(OpAddReviewers, userIDs)
	return e.Err
}

func (m *Mock) AddLabels(ctx context.Context, pr *forge.PullRequest, labels []string) error {
	e := m.exp.Next(OpAddLabels, labels)
	return e.Err
}

func (m *Mock) CommentPullRequest(ctx context.Context, pr *forge.PullRequest, comment string) error {
	e := m.exp.Next(OpCommentPullRequest, comment)
	return e.Err
}

func (m *Mock) MergePullRequest(ctx context.Context, cfg *config.Config, pr *forge.PullRequest) error {
	e := m.exp.Next(OpMergePullRequest, pr.Number)
	return e.Err
}

func (m *Mock) EnableAutoMerge(ctx context.Context, cfg *config.Config, pr *forge.PullRequest) error {
	e := m.exp.Next(OpEnableAutoMerge, pr.Number)
	return e.Err
}

func (m *Mock) ClosePullRequest(ctx context.Context, pr *forge.PullRequest) error {
	e := m.exp.Next(OpClosePullRequest, pr.Number)
	return e.Err
}

func (m *Mock) GetPRForBranch(ctx context.Context, headBranch string) (*forge.PullRequest, error) {
	e := m.exp.Next(OpGetPRForBranch, headBranch)
	pr, _ := e.Output.(*forge.PullRequest)
	return pr, e.Err
}

func (m *Mock) GetAssignableUsers(ctx context.Context) (map[string]string, error) {
	e := m.exp.Next(OpGetAssignableUsers, nil)
	if users, ok := e.Output.(map[string]string); ok {
		return users, e.Err
	}
	return map[string]string{}, e.Err
}
