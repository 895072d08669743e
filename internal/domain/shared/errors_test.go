package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesKindAndCause(t *testing.T) {
	cause := errors.New("403 Forbidden")
	err := WrapError("platform", "AddRole", ErrForbidden, "missing permission", cause)

	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransientExternal(fmt.Errorf("sync: %w", err)))
	assert.Equal(t, "platform.AddRole: missing permission: 403 Forbidden", err.Error())
}

func TestConnectionError_Is(t *testing.T) {
	rl := &ConnectionError{Category: CategoryRateLimited, Err: errors.New("429")}
	other := &ConnectionError{Category: CategoryHTTP}

	assert.ErrorIs(t, rl, ErrConnectionFailure)
	assert.ErrorIs(t, rl, ErrRateLimited)
	assert.ErrorIs(t, other, ErrConnectionFailure)
	assert.NotErrorIs(t, other, ErrRateLimited)
	assert.Equal(t, "connection http", other.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrQuestNotFound))
	assert.False(t, IsNotFound(ErrPlatformForbidden))
}
