package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	base := stderrors.New("boom")

	err := asseterrors.NewError("publish", base)
	assert.Equal(t, "assets.publish: boom", err.Error())
	assert.ErrorIs(t, err, base)

	err = asseterrors.NewError("publish", base).WithAssetID("asset1:dest")
	assert.Equal(t, "assets.publish asset1:dest: boom", err.Error())
}

func TestIsAborted(t *testing.T) {
	t.Parallel()

	wrapped := asseterrors.NewError("publish", asseterrors.ErrAborted)
	assert.True(t, asseterrors.IsAborted(wrapped))
	assert.False(t, asseterrors.IsAborted(stderrors.New("boom")))
}

func TestPublishErrorAggregatesMessages(t *testing.T) {
	t.Parallel()

	err := &asseterrors.PublishError{Messages: []string{"first", "second"}}
	assert.Equal(t, "error publishing: first, second", err.Error())
}
