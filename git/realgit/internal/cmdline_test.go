package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientGitError(t *testing.T) {
	assert.True(t, isTransientGitError("error: gpg failed to sign the data"))
	assert.True(t, isTransientGitError("fatal: cannot lock ref 'refs/heads/main'"))
	assert.True(t, isTransientGitError("GPG: signing failed: agent timeout"))
	assert.False(t, isTransientGitError("CONFLICT (content): Merge conflict in pkg/file.go"))
	assert.False(t, isTransientGitError(""))
}
