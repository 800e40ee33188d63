package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesWrappedKind(t *testing.T) {
	err := ForgeTransient("GetSnapshot", errors.New("boom"))
	assert.True(t, Is(err, KindForgeTransient))
	assert.False(t, Is(err, KindConfiguration))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, Is(wrapped, KindForgeTransient))
}

func TestNilErrorsStayNil(t *testing.T) {
	assert.NoError(t, GitTransient("Fetch", nil))
	assert.False(t, Is(nil, KindGitTransient))
}

func TestErrorStringCarriesKindAndOp(t *testing.T) {
	err := WorkingTree("Rebase", errors.New("conflict"))
	assert.Equal(t, "working-tree: Rebase: conflict", err.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("underlying")
	err := MergeConflict("cherry-pick", cause)
	assert.ErrorIs(t, err, cause)
}
