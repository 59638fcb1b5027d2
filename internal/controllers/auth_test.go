package controllers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authsvc/internal/config"
	"authsvc/internal/middleware"
	"authsvc/internal/models"
	"authsvc/internal/store"
	"authsvc/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore is an in-memory UserStore with the same uniqueness semantics as
// the Postgres-backed one.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]models.User{}}
}

func (f *fakeStore) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return store.ErrDuplicateEmail
	}
	f.users[u.Email] = *u
	return nil
}

func (f *fakeStore) ByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

func (f *fakeStore) ByVerificationToken(_ context.Context, tok string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.VerificationToken != nil && *u.VerificationToken == tok {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeStore) MarkVerified(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return store.ErrUserNotFound
	}
	u.IsVerified = true
	u.VerificationToken = nil
	u.TokenExpiresAt = nil
	f.users[email] = u
	return nil
}

func (f *fakeStore) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, email)
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	ch chan sentMail
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan sentMail, 8)}
}

func (f *fakeSender) Send(to, subject, body string) error {
	f.ch <- sentMail{to: to, subject: subject, body: body}
	return nil
}

func (f *fakeSender) wait(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-f.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no email dispatched")
		return sentMail{}
	}
}

// fakeStates mirrors the Redis-backed state store.
type fakeStates struct {
	mu     sync.Mutex
	states map[string]string
	n      int
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: map[string]string{}}
}

func (f *fakeStates) Create(_ context.Context, next string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	state := fmt.Sprintf("state-%d", f.n)
	f.states[state] = next
	return state, nil
}

func (f *fakeStates) Consume(_ context.Context, state string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, ok := f.states[state]
	if !ok {
		return "", fmt.Errorf("oauth state not found")
	}
	delete(f.states, state)
	return next, nil
}

type fakeExchanger struct {
	email string
	err   error
}

func (f *fakeExchanger) Exchange(context.Context, string) (Identity, error) {
	if f.err != nil {
		return Identity{}, f.err
	}
	return Identity{Email: f.email}, nil
}

type testEnv struct {
	router *gin.Engine
	store  *fakeStore
	sender *fakeSender
	states *fakeStates
	tokens *token.Manager
	google *GoogleController
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		BaseURL:           "http://test.local",
		VerifyTokenTTLMin: 30,
		CookieSecure:      false,
	}

	st := newFakeStore()
	sender := newFakeSender()
	states := newFakeStates()
	tokens := token.NewManager("test-secret", 60)

	auth := NewAuthController(st, sender, tokens, log, cfg)
	google := NewGoogleController(st, states, tokens, log, cfg)

	r := gin.New()
	r.POST("/users/register", auth.Register)
	r.GET("/users/verify-email", auth.VerifyEmail)
	r.POST("/users/login", auth.Login)
	r.POST("/users/logout", auth.Logout)

	me := r.Group("/users")
	me.Use(middleware.Auth(tokens))
	me.GET("/me", auth.Me)

	r.GET("/auth/google/login", google.Login)
	r.GET("/auth/google/callback", google.Callback)
	r.GET("/auth/google/logout", google.Logout)

	return &testEnv{router: r, store: st, sender: sender, states: states, tokens: tokens, google: google}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req := httptest.NewRequest(http.MethodPost, "/users/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func (e *testEnv) login(email, password string) *httptest.ResponseRecorder {
	q := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/users/login?"+q.Encode(), nil)
	return e.do(req)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.CookieName {
			return ck
		}
	}
	t.Fatal("no access_token cookie set")
	return nil
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.register(t, "a@x.com", "pw1234")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.register(t, "a@x.com", "other-pw")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
	assert.Equal(t, 1, env.store.count())
}

func TestRegisterDispatchesVerificationEmail(t *testing.T) {
	env := newTestEnv(t)

	w := env.register(t, "a@x.com", "pw1234")
	require.Equal(t, http.StatusOK, w.Code)

	mail := env.sender.wait(t)
	assert.Equal(t, "a@x.com", mail.to)
	assert.Equal(t, "Verify Your Email", mail.subject)

	u, err := env.store.ByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, u.VerificationToken)
	assert.Contains(t, mail.body, "http://test.local/users/verify-email?token="+*u.VerificationToken)
}

func TestRegisterRejectsBadPayload(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"email":"not-an-email","password":"pw1234"}`,
		`{"email":"a@x.com"}`,
		`{}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/users/register", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %s", body)
	}
}

func TestLoginRequiresVerification(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.register(t, "a@x.com", "pw1234").Code)

	w := env.login("a@x.com", "pw1234")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "not verified")
}

func TestRegisterVerifyLoginMe(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.register(t, "a@x.com", "pw1").Code)

	u, err := env.store.ByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, u.VerificationToken)
	require.NotNil(t, u.TokenExpiresAt)
	verifyTok := *u.VerificationToken

	w := env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email?token="+verifyTok, nil))
	require.Equal(t, http.StatusOK, w.Code)

	u, err = env.store.ByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Nil(t, u.VerificationToken)
	assert.Nil(t, u.TokenExpiresAt)

	// The consumed token is gone, not "already verified".
	w = env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email?token="+verifyTok, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")

	w = env.login("a@x.com", "pw1")
	require.Equal(t, http.StatusOK, w.Code)
	ck := sessionCookie(t, w)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(ck)
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email":"a@x.com","is_verified":true}`, w.Body.String())
}

func TestVerifyExpiredTokenDeletesAccount(t *testing.T) {
	env := newTestEnv(t)

	tok := "expired-token"
	past := time.Now().Add(-time.Minute)
	require.NoError(t, env.store.Create(context.Background(), &models.User{
		Email:             "a@x.com",
		PasswordHash:      "x",
		VerificationToken: &tok,
		TokenExpiresAt:    &past,
		AuthProvider:      models.ProviderLocal,
	}))

	w := env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email?token="+tok, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")

	_, err := env.store.ByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, store.ErrUserNotFound)

	// Account is gone, so the same token is now merely invalid.
	w = env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email?token="+tok, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestVerifyUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email?token=nope", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/users/verify-email", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.register(t, "a@x.com", "pw1234").Code)
	require.NoError(t, env.store.MarkVerified(context.Background(), "a@x.com"))

	w := env.login("a@x.com", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.login("nobody@x.com", "pw1234")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginJSONBodyFallback(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.register(t, "a@x.com", "pw1234").Code)
	require.NoError(t, env.store.MarkVerified(context.Background(), "a@x.com"))

	req := httptest.NewRequest(http.MethodPost, "/users/login",
		strings.NewReader(`{"email":"a@x.com","password":"pw1234"}`))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	sessionCookie(t, w)
}

func TestLoginGoogleUserMustUseOAuth(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Create(context.Background(), &models.User{
		Email:        "g@x.com",
		PasswordHash: "placeholder",
		IsVerified:   true,
		AuthProvider: models.ProviderGoogle,
	}))

	w := env.login("g@x.com", "anything")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Google OAuth")
}

func TestMeUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	// no token at all
	w := env.do(httptest.NewRequest(http.MethodGet, "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// expired token, same secret
	expired := token.NewManager("test-secret", -1)
	tok, err := expired.Issue("a@x.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: tok})
	w = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// valid token for a user that no longer exists
	tok, err = env.tokens.Issue("ghost@x.com")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: tok})
	w = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeBearerHeaderFallback(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.store.Create(context.Background(), &models.User{
		Email:        "a@x.com",
		PasswordHash: "x",
		IsVerified:   true,
		AuthProvider: models.ProviderLocal,
	}))
	tok, err := env.tokens.Issue("a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := env.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/users/logout", nil))
	require.Equal(t, http.StatusOK, w.Code)

	ck := sessionCookie(t, w)
	assert.Empty(t, ck.Value)
	assert.Less(t, ck.MaxAge, 1)
}
