package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type connector bool

func (c connector) Connected() bool { return bool(c) }

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	assert.True(t, c.Check(context.Background()).Healthy)

	c.AddCheck("store", NewPingCheck(pinger{}))
	c.AddCheck("gateway", NewConnectedCheck(connector(true)))
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Len(t, status.Checks, 2)
	assert.Equal(t, "All checks passed", status.Message)

	c.AddCheck("gateway", NewConnectedCheck(connector(false)))
	c.AddCheck("cache", NewPingCheck(pinger{err: errors.New("dial tcp: refused")}))
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: cache, gateway", status.Message)
	assert.Equal(t, "not connected", status.Checks["gateway"].Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.SetTimeout(10 * time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestBearerAuth(t *testing.T) {
	_, err := NewBearerAuth("")
	assert.ErrorIs(t, err, ErrNoAdminToken)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := NewBearerAuth(string(hash))
	require.NoError(t, err)

	assert.True(t, auth.Valid("secret"))
	assert.False(t, auth.Valid("Secret"))
	assert.False(t, auth.Valid(""))

	ok := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for header, want := range map[string]int{
		"":              http.StatusUnauthorized,
		"Basic secret":  http.StatusUnauthorized,
		"Bearer nope":   http.StatusUnauthorized,
		"Bearer secret": http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		ok.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, header)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 10
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
