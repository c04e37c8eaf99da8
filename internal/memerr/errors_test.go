package memerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ExtractsKindThroughWrapping(t *testing.T) {
	base := NotFound("get_episode", "ep-1")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
}

func TestKindOf_NonMemErrReturnsFalse(t *testing.T) {
	_, ok := KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestIs_ComparesByKindOnly(t *testing.T) {
	a := CommitFailed("write_through", "ep-1", errors.New("disk full"))
	b := CommitFailed("write_through", "ep-2", nil)
	assert.True(t, errors.Is(a, b))

	c := NotFound("get_episode", "ep-1")
	assert.False(t, errors.Is(a, c))
}

func TestRetriable_OnlyStorageUnavailable(t *testing.T) {
	assert.True(t, Retriable(Unavailable("write", errors.New("timeout"))))
	assert.False(t, Retriable(NotFound("get", "ep-1")))
	assert.False(t, Retriable(errors.New("plain error")))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Validation("start_episode", cause)

	var me *Error
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, cause, errors.Unwrap(me))
}

func TestUnsupportedVersion_MessageNamesBothVersions(t *testing.T) {
	err := UnsupportedVersion("get_episode", 3, 1)
	assert.Contains(t, err.Error(), "3")
	assert.Contains(t, err.Error(), "1")
}
