package cli

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigTokenRoundTrip(t *testing.T) {
	c := &Config{TokenFile: filepath.Join(t.TempDir(), "nested", "token")}

	require.NoError(t, c.LoadToken())
	assert.Empty(t, c.Token)

	require.NoError(t, c.SaveToken("sess_abc"))

	loaded := &Config{TokenFile: c.TokenFile}
	require.NoError(t, loaded.LoadToken())
	assert.Equal(t, "sess_abc", loaded.Token)

	require.NoError(t, loaded.ClearToken())
	_, err := os.Stat(c.TokenFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, loaded.ClearToken())
}

func TestClientCapturesIssuedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "lazyctl-test", r.UserAgent())
		assert.Equal(t, "admin", r.Header.Get(adminTokenHeader))
		w.Header().Set(sessionHeader, "sess_new")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","username":"abc","is_lazy":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "")
	c.SetUserAgent("lazyctl-test")
	c.SetAdminToken("admin")

	var u User
	require.NoError(t, c.Get("/api/v1/users/me", &u))
	assert.Equal(t, "sess_new", c.IssuedToken())
	assert.True(t, u.IsLazy)
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_REQUEST","message":"too short","field":"password"}}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Post("/api/v1/users/convert", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, "password: too short (INVALID_REQUEST)", err.Error())
}

func TestOutputText(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{format: "text", w: &buf}

	out.Print(User{ID: "u1", Username: "alice", Email: "alice@example.com", IsLazy: false})
	assert.Equal(t, "User: alice (u1)\nEmail: alice@example.com\nLazy: no\n", buf.String())

	buf.Reset()
	out.Print(ClassifyResult{UserAgent: "Googlebot", Blacklisted: true})
	assert.Equal(t, "User-Agent: Googlebot\nBlacklisted: yes\n", buf.String())
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{format: "json", w: &buf}

	out.PrintMessage("Logged out")
	assert.JSONEq(t, `{"message":"Logged out"}`, buf.String())
}

func TestOlderThanQuery(t *testing.T) {
	assert.Empty(t, olderThanQuery(0))
	assert.Equal(t, "?older_than=1h0m0s", olderThanQuery(time.Hour))
}
