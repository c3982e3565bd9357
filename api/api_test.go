package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/notify"
	"github.com/MrEthical07/authgate/password"
)

var linkToken = regexp.MustCompile(`/(?:verify|reset-password)/([A-Za-z0-9_-]+)`)

type testServer struct {
	mr     *miniredis.Miniredis
	srv    *httptest.Server
	engine *authgate.Engine
	store  *identity.MemoryStore
	mail   chan notify.Message
}

func newTestServer(t *testing.T, mutate func(*authgate.Config), opts Options) *testServer {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authgate.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	cfg.Password.Algorithm = authgate.PasswordBcrypt
	cfg.Password.BcryptCost = 4
	cfg.Verification.AppBaseURL = "https://app.test"
	cfg.Cookies.Secure = false
	if mutate != nil {
		mutate(&cfg)
	}

	ts := &testServer{
		mr:    mr,
		store: identity.NewMemoryStore(),
		mail:  make(chan notify.Message, 16),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine, err := authgate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(ts.store).
		WithNotifier(notify.NotifierFunc(func(_ context.Context, msg notify.Message) error {
			ts.mail <- msg
			return nil
		})).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	ts.engine = engine

	if opts.Logger == nil {
		opts.Logger = logger
	}
	ts.srv = httptest.NewServer(NewServer(engine, opts))
	t.Cleanup(ts.srv.Close)
	return ts
}

type browser struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func (ts *testServer) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: ts.srv.URL, http: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path string, body any) (*http.Response, map[string]any) {
	b.t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, b.base+path, rdr)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	if b.csrf != "" {
		req.Header.Set("X-CSRF-Token", b.csrf)
	}

	resp, err := b.http.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(b.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (b *browser) cookie(name string) string {
	u, _ := http.NewRequest(http.MethodGet, b.base, nil)
	for _, c := range b.http.Jar.Cookies(u.URL) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (ts *testServer) nextToken(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-ts.mail:
		m := linkToken.FindStringSubmatch(msg.Text)
		require.Len(t, m, 2, "no link in %q", msg.Text)
		return m[1]
	case <-time.After(2 * time.Second):
		t.Fatal("no email delivered")
		return ""
	}
}

func (ts *testServer) signup(t *testing.T, b *browser, username, email, pass string) {
	t.Helper()
	resp, _ := b.do(http.MethodPost, "/auth/register", map[string]string{
		"username": username, "email": email, "password": pass,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := b.do(http.MethodPost, "/auth/verify/"+ts.nextToken(t), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, body["identity"])
}

func (b *browser) login(email, pass string) {
	b.t.Helper()
	resp, body := b.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": pass})
	require.Equal(b.t, http.StatusOK, resp.StatusCode, "login body: %v", body)
	b.csrf, _ = body["csrfToken"].(string)
	require.NotEmpty(b.t, b.csrf)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)

	resp, body := b.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", body["redis"])

	ts.mr.Close()
	resp, body = b.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "down", body["redis"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)
	ts.signup(t, b, "alice", "alice@example.com", "Password1!")

	b.login("Alice@Example.com", "Password1!")
	assert.NotEmpty(t, b.cookie("accessToken"))
	assert.NotEmpty(t, b.cookie("refreshToken"))
	assert.Equal(t, b.csrf, b.cookie("csrfToken"))

	resp, body := b.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ident := body["identity"].(map[string]any)
	assert.Equal(t, "alice", ident["username"])
	assert.NotContains(t, ident, "passwordHash")

	oldRefresh := b.cookie("refreshToken")
	resp, body = b.do(http.MethodPost, "/auth/refresh-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEqual(t, oldRefresh, b.cookie("refreshToken"))

	resp, body = b.do(http.MethodPost, "/auth/refresh-csrf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newCSRF := body["csrfToken"].(string)
	assert.NotEqual(t, b.csrf, newCSRF)
	b.csrf = newCSRF

	resp, _ = b.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, b.cookie("accessToken"))
	assert.Empty(t, b.cookie("refreshToken"))

	resp, body = b.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, authgate.CodeUnauthenticated, body["code"])
}

func TestVerifyReplayAndExpiredLink(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)

	resp, _ := b.do(http.MethodPost, "/auth/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "Password1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := ts.nextToken(t)

	resp, _ = b.do(http.MethodPost, "/auth/verify/"+token, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := b.do(http.MethodPost, "/auth/verify/"+token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Email already verified", body["message"])

	resp, body = b.do(http.MethodPost, "/auth/verify/not-a-real-token", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, authgate.CodeLinkExpired, body["code"])
}

func TestVerifyConcurrentClicks(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)

	resp, _ := b.do(http.MethodPost, "/auth/register", map[string]string{
		"username": "carl", "email": "carl@example.com", "password": "Password1!",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	url := ts.srv.URL + "/auth/verify/" + ts.nextToken(t)

	const clicks = 10
	statuses := make(chan int, clicks)
	var wg sync.WaitGroup
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				statuses <- 0
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for status := range statuses {
		counts[status]++
	}
	assert.Equal(t, map[int]int{http.StatusCreated: 1, http.StatusOK: clicks - 1}, counts)
}

func TestRegisterValidationAndDuplicates(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)

	resp, body := b.do(http.MethodPost, "/auth/register", map[string]string{
		"username": "a!", "email": "nope", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, authgate.CodeValidationFailed, body["code"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "username")
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	ts.signup(t, b, "carol", "carol@example.com", "Password1!")
	resp, body = b.do(http.MethodPost, "/auth/register", map[string]string{
		"username": "carol2", "email": "carol@example.com", "password": "Password1!",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, authgate.CodeDuplicateIdentity, body["code"])
}

func TestCheckUsername(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)
	ts.signup(t, b, "dave", "dave@example.com", "Password1!")

	resp, body := b.do(http.MethodGet, "/auth/check-username?username=ab", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["available"])

	resp, body = b.do(http.MethodGet, "/auth/check-username?username=DAVE", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["available"])

	resp, body = b.do(http.MethodGet, "/auth/check-username?username=erin", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["available"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)
	ts.signup(t, b, "frank", "frank@example.com", "Password1!")

	for _, creds := range []map[string]string{
		{"email": "frank@example.com", "password": "WrongPass1!"},
		{"email": "ghost@example.com", "password": "Password1!"},
	} {
		resp, body := b.do(http.MethodPost, "/auth/login", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, authgate.CodeInvalidCredentials, body["code"])
	}
	assert.Empty(t, b.cookie("accessToken"))
}

func TestRefreshWithoutCookieClearsCookies(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)

	resp, body := b.do(http.MethodPost, "/auth/refresh-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, authgate.CodeSessionExpired, body["code"])

	cleared := 0
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared++
		}
	}
	assert.Equal(t, 3, cleared)
}

func TestSupersededSessionIsRejected(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	first := ts.browser(t)
	ts.signup(t, first, "gina", "gina@example.com", "Password1!")
	first.login("gina@example.com", "Password1!")

	second := ts.browser(t)
	second.login("gina@example.com", "Password1!")

	resp, body := first.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, authgate.CodeSessionSuperseded, body["code"])
	assert.Empty(t, first.cookie("refreshToken"))

	resp, _ = second.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutRequiresCSRFWhenIssued(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)
	ts.signup(t, b, "hank", "hank@example.com", "Password1!")
	b.login("hank@example.com", "Password1!")

	token := b.csrf
	b.csrf = ""
	resp, body := b.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, authgate.CodeCSRFMissing, body["code"])

	b.csrf = "forged"
	resp, body = b.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, authgate.CodeCSRFInvalid, body["code"])

	b.csrf = token
	resp, _ = b.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRouteRequiresRole(t *testing.T) {
	ts := newTestServer(t, nil, Options{})

	hash, err := password.NewBcrypt(4).Hash("Password1!")
	require.NoError(t, err)
	require.NoError(t, ts.store.Create(context.Background(), &identity.Identity{
		Username:     "root",
		Email:        "root@example.com",
		PasswordHash: hash,
		Role:         "admin",
	}))

	user := ts.browser(t)
	ts.signup(t, user, "ivan", "ivan@example.com", "Password1!")
	user.login("ivan@example.com", "Password1!")
	resp, body := user.do(http.MethodGet, "/admin/ping", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, authgate.CodeForbidden, body["code"])

	admin := ts.browser(t)
	admin.login("root@example.com", "Password1!")
	resp, body = admin.do(http.MethodGet, "/admin/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", body["message"])

	anon := ts.browser(t)
	resp, _ = anon.do(http.MethodGet, "/admin/ping", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t, nil, Options{})
	b := ts.browser(t)
	ts.signup(t, b, "judy", "judy@example.com", "Password1!")

	resp, body := b.do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	generic := body["message"]

	resp, body = b.do(http.MethodPost, "/auth/forgot-password", map[string]string{"email": "judy@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, generic, body["message"])
	token := ts.nextToken(t)

	resp, body = b.do(http.MethodPost, "/auth/reset-password/"+token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, authgate.CodeValidationFailed, body["code"])

	resp, _ = b.do(http.MethodPost, "/auth/reset-password/"+token, map[string]string{"password": "NewPassword2@"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = b.do(http.MethodPost, "/auth/reset-password/"+token, map[string]string{"password": "NewPassword3#"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, authgate.CodeLinkExpired, body["code"])

	b.login("judy@example.com", "NewPassword2@")
}

func TestGlobalRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *authgate.Config) {
		cfg.RateLimit.Global = authgate.RatePolicy{Limit: 3, Window: time.Minute}
	}, Options{})
	b := ts.browser(t)

	for i := 0; i < 3; i++ {
		resp, _ := b.do(http.MethodGet, "/auth/check-username?username=someone", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := b.do(http.MethodGet, "/auth/check-username?username=someone", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, authgate.CodeRateLimited, body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp, _ = b.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsAndNotFound(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "authgate_login_success_total 0\n")
	})
	ts := newTestServer(t, nil, Options{MetricsHandler: metrics})
	b := ts.browser(t)

	resp, _ := b.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := b.do(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestFailLogsServerErrors(t *testing.T) {
	var buf bytes.Buffer
	s := &Server{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	rec := httptest.NewRecorder()
	s.fail(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), authgate.ErrInternal)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "/auth/login")

	buf.Reset()
	rec = httptest.NewRecorder()
	s.fail(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil), authgate.ErrInvalidCredentials)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, buf.String())

	var out middleware.ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, authgate.CodeInvalidCredentials, out.Code)
}
