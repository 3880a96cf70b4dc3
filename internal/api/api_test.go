package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/lazysignup-go/internal/api"
	"github.com/mcoot/lazysignup-go/internal/api/apierr"
	"github.com/mcoot/lazysignup-go/internal/api/middleware"
	"github.com/mcoot/lazysignup-go/internal/api/response"
	"github.com/mcoot/lazysignup-go/internal/factory"
	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/storage"
	"github.com/mcoot/lazysignup-go/internal/storage/memory"
	"github.com/mcoot/lazysignup-go/internal/testutil"
)

const (
	adminToken = "admin-secret"
	browserUA  = "Mozilla/5.0 (X11; Linux x86_64) Firefox/130.0"
	botUA      = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithApp(factory.NewTestApp())
}

func newTestServerWithApp(app *factory.TestApp) *testServer {
	router := api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		AuthService: app.AuthService,
		LazyService: app.LazyService,
		Classifier:  app.Classifier,
		Metrics:     app.Metrics,
		Gatherer:    app.Registry,
		AdminToken:  adminToken,
		LazyTTL:     24 * time.Hour,
	})

	return &testServer{handler: router, app: app}
}

type requestOpts struct {
	token     string
	userAgent string
	admin     bool
}

func (ts *testServer) request(method, path string, body any, opts requestOpts) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if opts.userAgent == "" {
		opts.userAgent = browserUA
	}
	req.Header.Set("User-Agent", opts.userAgent)
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.admin {
		req.Header.Set(middleware.AdminTokenHeader, adminToken)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// lazyVisit makes an anonymous request that creates a lazy user
func (ts *testServer) lazyVisit(t *testing.T) (string, response.User) {
	t.Helper()
	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{})
	require.Equal(t, http.StatusOK, rr.Code)

	token := rr.Header().Get(middleware.SessionHeader)
	require.NotEmpty(t, token)

	var user response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	return token, user
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apierr.APIError {
	t.Helper()
	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func convertBody(username string) map[string]string {
	return map[string]string{
		"username":         username,
		"password":         "password123",
		"password_confirm": "password123",
		"email":            username + "@example.com",
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, requestOpts{})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestAnonymousVisitGetsLazyUser(t *testing.T) {
	ts := newTestServer(t)
	ts.app.MockRandom.QueueString("0123456789abcdef0123456789abcd")

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{})
	require.Equal(t, http.StatusOK, rr.Code)

	var user response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.True(t, user.IsLazy)
	assert.Equal(t, "0123456789abcdef0123456789abcd", user.Username)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.SessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, cookies[0].Value, rr.Header().Get(middleware.SessionHeader))
}

func TestSessionReusesLazyUser(t *testing.T) {
	ts := newTestServer(t)
	token, first := ts.lazyVisit(t)

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get(middleware.SessionHeader))

	var again response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.Equal(t, first.ID, again.ID)
}

func TestSessionCookieIsAccepted(t *testing.T) {
	ts := newTestServer(t)
	token, first := ts.lazyVisit(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var again response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	assert.Equal(t, first.ID, again.ID)
}

func TestBlacklistedAgentGetsNoLazyUser(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{userAgent: botUA})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	markers, err := ts.app.Storage.ListLazy(t.Context(), ts.app.MockClock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestConvertLazyUser(t *testing.T) {
	ts := newTestServer(t)
	token, lazyUser := ts.lazyVisit(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alice"), requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)

	var converted response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &converted))
	assert.Equal(t, lazyUser.ID, converted.ID)
	assert.Equal(t, "alice", converted.Username)
	assert.False(t, converted.IsLazy)

	// Same session now sees a real user
	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	var me response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.False(t, me.IsLazy)
	assert.Equal(t, "alice@example.com", me.Email)

	// And the new credentials work
	rr = ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "password123",
	}, requestOpts{})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestConvertTwiceIsRefused(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.lazyVisit(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alice"), requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alicia"), requestOpts{token: token})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNotLazy, decodeError(t, rr).Code)
}

func TestConvertInOneRequest(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alice"), requestOpts{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.SessionHeader))

	var converted response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &converted))
	assert.False(t, converted.IsLazy)
}

func TestConvertValidationError(t *testing.T) {
	ts := newTestServer(t)
	token, lazyUser := ts.lazyVisit(t)

	body := convertBody("alice")
	body["password_confirm"] = "different123"
	rr := ts.request(http.MethodPost, "/api/v1/users/convert", body, requestOpts{token: token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	apiErr := decodeError(t, rr)
	assert.Equal(t, apierr.CodeInvalidRequest, apiErr.Code)
	assert.Equal(t, "password_confirm", apiErr.Field)

	lazy, err := ts.app.LazyService.IsLazy(t.Context(), model.UserID(lazyUser.ID))
	require.NoError(t, err)
	assert.True(t, lazy)
}

func TestConvertOverlongPassword(t *testing.T) {
	ts := newTestServer(t)
	token, lazyUser := ts.lazyVisit(t)

	body := convertBody("alice")
	body["password"] = strings.Repeat("a", auth.MaxPasswordLength+1)
	body["password_confirm"] = body["password"]
	rr := ts.request(http.MethodPost, "/api/v1/users/convert", body, requestOpts{token: token})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	apiErr := decodeError(t, rr)
	assert.Equal(t, apierr.CodeInvalidRequest, apiErr.Code)
	assert.Equal(t, "password", apiErr.Field)

	lazy, err := ts.app.LazyService.IsLazy(t.Context(), model.UserID(lazyUser.ID))
	require.NoError(t, err)
	assert.True(t, lazy)
}

func TestConvertUsernameTaken(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.request(http.MethodPost, "/api/v1/users/register", convertBody("alice"), requestOpts{})
	require.Equal(t, http.StatusCreated, rr.Code)

	token, lazyUser := ts.lazyVisit(t)
	rr = ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alice"), requestOpts{token: token})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeUsernameExists, decodeError(t, rr).Code)

	lazy, err := ts.app.LazyService.IsLazy(t.Context(), model.UserID(lazyUser.ID))
	require.NoError(t, err)
	assert.True(t, lazy)
}

func TestConvertInvalidBody(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.lazyVisit(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/convert", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRegisteredUserCannotConvert(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/register", convertBody("bob"), requestOpts{})
	require.Equal(t, http.StatusCreated, rr.Code)

	var registered response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registered))
	assert.False(t, registered.User.IsLazy)

	rr = ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("robert"), requestOpts{token: registered.SessionToken})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNotLazy, decodeError(t, rr).Code)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/register", convertBody("alice"), requestOpts{})
	require.Equal(t, http.StatusCreated, rr.Code)

	var registerResp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &registerResp))

	rr = ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice",
		"password": "password123",
	}, requestOpts{})
	require.Equal(t, http.StatusOK, rr.Code)

	var loginResp response.AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &loginResp))
	assert.Equal(t, registerResp.User.ID, loginResp.User.ID)
	assert.NotEqual(t, registerResp.SessionToken, loginResp.SessionToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "nobody",
		"password": "password123",
	}, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apierr.CodeInvalidCredentials, decodeError(t, rr).Code)
}

func TestLogoutRequiresRealUser(t *testing.T) {
	ts := newTestServer(t)
	token, _ := ts.lazyVisit(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/logout", nil, requestOpts{token: token})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apierr.CodeLazyUser, decodeError(t, rr).Code)

	rr = ts.request(http.MethodPost, "/api/v1/users/convert", convertBody("alice"), requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodPost, "/api/v1/users/logout", nil, requestOpts{token: token})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	_, err := ts.app.AuthService.ValidateSession(token)
	assert.Error(t, err)
}

func TestLogoutWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/users/logout", nil, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name        string
		userAgent   string
		blacklisted bool
	}{
		{name: "browser", userAgent: browserUA, blacklisted: false},
		{name: "googlebot", userAgent: botUA, blacklisted: true},
		{name: "slurp", userAgent: "Mozilla/5.0 (compatible; Yahoo! Slurp)", blacklisted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodGet, "/api/v1/classify", nil, requestOpts{userAgent: tt.userAgent})
			require.Equal(t, http.StatusOK, rr.Code)

			var resp response.ClassifyResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.userAgent, resp.UserAgent)
			assert.Equal(t, tt.blacklisted, resp.Blacklisted)
		})
	}
}

func TestAdminRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/admin/lazy", nil, requestOpts{})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminListAndCleanupStaleLazyUsers(t *testing.T) {
	ts := newTestServer(t)
	_, old := ts.lazyVisit(t)
	ts.app.MockClock.Advance(48 * time.Hour)
	freshToken, fresh := ts.lazyVisit(t)

	rr := ts.request(http.MethodGet, "/api/v1/admin/lazy", nil, requestOpts{admin: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var list response.LazyUsersResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Users, 1)
	assert.Equal(t, old.ID, list.Users[0].UserID)

	rr = ts.request(http.MethodGet, "/api/v1/admin/lazy?older_than=0s", nil, requestOpts{admin: true})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Users, 1, "markers created at the current instant are not older than zero")

	rr = ts.request(http.MethodPost, "/api/v1/admin/lazy/cleanup?older_than=24h", nil, requestOpts{admin: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var cleanup response.CleanupResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cleanup))
	assert.Equal(t, 1, cleanup.Deleted)
	assert.Equal(t, []string{old.ID}, cleanup.UserIDs)

	_, err := ts.app.Storage.GetUser(t.Context(), model.UserID(old.ID))
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{token: freshToken})
	require.Equal(t, http.StatusOK, rr.Code)
	var me response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, fresh.ID, me.ID)
}

// listHookStorage runs afterList once the stale markers have been read
type listHookStorage struct {
	storage.Storage
	afterList func(markers []model.LazyMarker)
}

func (l *listHookStorage) ListLazy(ctx context.Context, createdBefore time.Time) ([]model.LazyMarker, error) {
	markers, err := l.Storage.ListLazy(ctx, createdBefore)
	if err == nil && l.afterList != nil {
		l.afterList(markers)
	}
	return markers, err
}

func TestAdminCleanupSkipsUserConvertedAfterListing(t *testing.T) {
	store := &listHookStorage{Storage: memory.New()}
	ts := newTestServerWithApp(factory.NewTestAppWithStorage(store))
	token, lazyUser := ts.lazyVisit(t)
	ts.app.MockClock.Advance(48 * time.Hour)

	store.afterList = func(markers []model.LazyMarker) {
		require.Len(t, markers, 1)
		user, err := ts.app.Storage.GetUser(t.Context(), markers[0].UserID)
		require.NoError(t, err)
		signup, err := ts.app.AuthService.NewSignup(user.ID, auth.SignupInput{Username: "alice", Password: "password123"})
		require.NoError(t, err)
		_, err = ts.app.LazyService.Convert(t.Context(), user, signup)
		require.NoError(t, err)
	}

	rr := ts.request(http.MethodPost, "/api/v1/admin/lazy/cleanup?older_than=24h", nil, requestOpts{admin: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var cleanup response.CleanupResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cleanup))
	assert.Equal(t, 0, cleanup.Deleted)
	assert.Empty(t, cleanup.UserIDs)

	stored, err := ts.app.Storage.GetUser(t.Context(), model.UserID(lazyUser.ID))
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)

	store.afterList = nil
	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	var me response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, lazyUser.ID, me.ID)
	assert.False(t, me.IsLazy)
}

func TestAdminInvalidOlderThan(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/admin/lazy?older_than=soon", nil, requestOpts{admin: true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminDeleteUser(t *testing.T) {
	ts := newTestServer(t)
	token, user := ts.lazyVisit(t)

	rr := ts.request(http.MethodDelete, "/api/v1/admin/users/"+user.ID, nil, requestOpts{admin: true})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, "/api/v1/admin/users/"+user.ID, nil, requestOpts{admin: true})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeUserNotFound, decodeError(t, rr).Code)

	// The deleted user's session is gone; a new lazy user is issued instead
	rr = ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{token: token})
	require.Equal(t, http.StatusOK, rr.Code)
	var me response.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.NotEqual(t, user.ID, me.ID)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.lazyVisit(t)
	ts.request(http.MethodGet, "/api/v1/users/me", nil, requestOpts{userAgent: botUA})

	rr := ts.request(http.MethodGet, "/metrics", nil, requestOpts{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "lazysignup_lazy_users_created_total 1")
	assert.Contains(t, rr.Body.String(), "lazysignup_blacklisted_requests_total 1")
}
