package prompt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError(nil))
	assert.ErrorIs(t, wrapError(promptui.ErrInterrupt), ErrAborted)
	assert.ErrorIs(t, wrapError(fmt.Errorf("run: %w", promptui.ErrAbort)), ErrAborted)

	other := errors.New("tty closed")
	assert.Equal(t, other, wrapError(other))
}

func TestConfirmWithForce(t *testing.T) {
	ok, err := ConfirmWithForce("Discard?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectWithoutOptions(t *testing.T) {
	_, err := Select("Transfer", nil)
	assert.ErrorIs(t, err, ErrNoOptions)
}

func TestContainsFold(t *testing.T) {
	assert.True(t, containsFold("Upload /data/File.bin", "file"))
	assert.False(t, containsFold("download", "upload"))
}
