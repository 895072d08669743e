package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecovery_PassesErrorsThrough(t *testing.T) {
	r := NewRecovery(DefaultRecoveryConfig())
	want := errors.New("boom")

	info, err := r.Run(context.Background(), "message", "u1", func(context.Context) error { return want })
	assert.Nil(t, info)
	assert.ErrorIs(t, err, want)
}

func TestRecovery_RecoversPanic(t *testing.T) {
	var seen *PanicInfo
	cfg := DefaultRecoveryConfig()
	cfg.OnPanic = func(_ context.Context, info *PanicInfo) { seen = info }
	r := NewRecovery(cfg)

	info, err := r.Run(context.Background(), "checkin", "u1", func(context.Context) error {
		panic("nil map")
	})

	require.NotNil(t, info)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, "checkin", info.Handler)
	assert.Equal(t, "u1", info.UserID)
	assert.NotEmpty(t, info.StackTrace)
	assert.Same(t, info, seen)
}

func TestRecovery_WrapsPanickedErrors(t *testing.T) {
	r := NewRecovery(DefaultRecoveryConfig())
	sentinel := errors.New("sentinel")

	_, err := r.Run(context.Background(), "h", "", func(context.Context) error { panic(sentinel) })
	assert.ErrorIs(t, err, sentinel)
}

func TestRecovery_LimitsDetailedLogging(t *testing.T) {
	calls := 0
	r := NewRecovery(RecoveryConfig{
		MaxPanicsPerMinute: 2,
		OnPanic:            func(context.Context, *PanicInfo) { calls++ },
	})

	for i := 0; i < 5; i++ {
		info, _ := r.Run(context.Background(), "h", "", func(context.Context) error { panic(i) })
		require.NotNil(t, info)
	}
	assert.Equal(t, 2, calls)
}
