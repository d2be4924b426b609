package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"wanderplan/internal/config"
	"wanderplan/internal/database"
	"wanderplan/internal/models"
	"wanderplan/internal/session"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
)

const knownSession = "6f1c2c1e-8d1f-4a53-9b0e-2f1f6d3a9c11"

type memoryStore struct {
	tokens map[string]string
}

func (m *memoryStore) SaveToken(id, token string) error {
	m.tokens[id] = token
	return nil
}

func (m *memoryStore) LoadToken(id string) (string, error) {
	if token, ok := m.tokens[id]; ok {
		return token, nil
	}
	return "", database.ErrNoToken
}

func (m *memoryStore) ClearToken(id string) error {
	delete(m.tokens, id)
	return nil
}

func (m *memoryStore) ClearTokenValue(token string) ([]string, error) {
	var ids []string
	for id, t := range m.tokens {
		if t == token {
			delete(m.tokens, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type stubAuth struct{}

func (stubAuth) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	return nil, errors.New("not used")
}

func (stubAuth) Register(ctx context.Context, name, email, password string) (*models.AuthResult, error) {
	return nil, errors.New("not used")
}

func (stubAuth) CurrentUser(ctx context.Context) (*models.User, error) {
	return &models.User{ID: 1, Name: "Adrenalin", Email: "adrenalin@gmail.com"}, nil
}

func (stubAuth) Logout(ctx context.Context) error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(env string) *config.Config {
	return &config.Config{Environment: env, SessionDuration: time.Hour}
}

func newRouter(cfg *config.Config) *gin.Engine {
	store := &memoryStore{tokens: map[string]string{knownSession: "1|token"}}
	mgr := session.NewManager(store, stubAuth{})

	r := gin.New()
	r.Use(SessionCookie(mgr, cfg))
	r.GET("/login", GuestOnly(), func(c *gin.Context) { c.String(http.StatusOK, "login") })
	r.GET("/private", AuthRequired(), func(c *gin.Context) {
		user := c.MustGet("user").(*models.User)
		c.String(http.StatusOK, user.Name)
	})
	return r
}

func get(r http.Handler, path, cookie string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie})
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSessionCookieIssuedWhenMissing(t *testing.T) {
	r := newRouter(testConfig("development"))

	w := get(r, "/login", "")
	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("Expected a session cookie to be issued")
	}
	if !cookie.HttpOnly {
		t.Error("Expected session cookie to be HttpOnly")
	}

	w = get(r, "/login", "not-a-uuid")
	if c := sessionCookie(w); c == nil || c.Value == "not-a-uuid" {
		t.Error("Expected malformed session id to be replaced")
	}

	w = get(r, "/login", knownSession)
	if c := sessionCookie(w); c == nil || c.Value != knownSession {
		t.Error("Expected existing session id to be kept")
	}
}

func TestAuthRequiredRedirectsGuests(t *testing.T) {
	r := newRouter(testConfig("development"))

	w := get(r, "/private", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}

	w = get(r, "/private", "", "Accept", "application/json")
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"/login"`) {
		t.Errorf("Expected JSON 401 with redirect, got %d %s", w.Code, w.Body.String())
	}
}

func TestAuthRequiredAdmitsHydratedSession(t *testing.T) {
	r := newRouter(testConfig("development"))

	w := get(r, "/private", knownSession)
	if w.Code != http.StatusOK || w.Body.String() != "Adrenalin" {
		t.Errorf("Expected the private page, got %d %q", w.Code, w.Body.String())
	}
}

func TestGuestOnlyRedirectsAuthenticated(t *testing.T) {
	r := newRouter(testConfig("development"))

	w := get(r, "/login", knownSession)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Errorf("Expected redirect to /, got %d %q", w.Code, w.Header().Get("Location"))
	}

	if w := get(r, "/login", ""); w.Code != http.StatusOK {
		t.Errorf("Expected guests to see the login page, got %d", w.Code)
	}
}

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal("Failed to open test database:", err)
	}
	db.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCSRF(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig("production")

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("session_id", c.GetHeader("X-Session"))
		c.Next()
	})
	r.Use(CSRF(db, cfg))
	r.POST("/submit", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	token, err := database.CreateCSRFToken(db, knownSession)
	if err != nil {
		t.Fatal("Failed to create CSRF token:", err)
	}

	post := func(form url.Values, sessionID string) int {
		req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Session", sessionID)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(url.Values{}, knownSession); code != http.StatusForbidden {
		t.Errorf("Expected 403 without token, got %d", code)
	}
	if code := post(url.Values{"csrf_token": {token.Token}}, "another-session"); code != http.StatusForbidden {
		t.Errorf("Expected 403 for a token from another session, got %d", code)
	}
	for i := 0; i < 2; i++ {
		if code := post(url.Values{"csrf_token": {token.Token}}, knownSession); code != http.StatusOK {
			t.Errorf("Expected token to be accepted on use %d, got %d", i+1, code)
		}
	}
}

func TestRateLimitSkippedInDevelopment(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		r := gin.New()
		r.Use(RateLimit(testConfig(env)))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		limited := false
		for i := 0; i < 60; i++ {
			if get(r, "/", "").Code == http.StatusTooManyRequests {
				limited = true
				break
			}
		}
		if env == "development" && limited {
			t.Error("Expected no rate limiting in development")
		}
		if env == "production" && !limited {
			t.Error("Expected burst to be rate limited in production")
		}
	}
}

func TestIPLimiterSweepsIdleClientsPeriodically(t *testing.T) {
	current := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	l := newIPLimiter(time.Second, 5, 10*time.Minute)
	l.now = func() time.Time { return current }

	l.allow("10.0.0.1")
	current = current.Add(20 * time.Minute)
	l.allow("10.0.0.2")
	if _, ok := l.clients["10.0.0.1"]; ok {
		t.Error("Expected the idle client to be swept")
	}

	// Within the sweep interval the map is left alone.
	current = current.Add(30 * time.Second)
	l.clients["stale"] = &rateLimiter{lastSeen: current.Add(-time.Hour)}
	l.allow("10.0.0.2")
	if _, ok := l.clients["stale"]; !ok {
		t.Error("Expected no sweep before the interval elapses")
	}

	current = current.Add(sweepInterval)
	l.allow("10.0.0.2")
	if _, ok := l.clients["stale"]; ok {
		t.Error("Expected the stale client to be swept after the interval")
	}
}

func TestTrimSpaces(t *testing.T) {
	r := gin.New()
	r.Use(TrimSpaces())
	r.POST("/", func(c *gin.Context) { c.String(http.StatusOK, "[%s]", c.PostForm("title")) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("title=+Lisbon++"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "[Lisbon]" {
		t.Errorf("Expected trimmed value, got %s", w.Body.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	cfg := testConfig("production")
	cfg.StorageBaseURL = "https://cdn.example.com/storage/"

	r := gin.New()
	r.Use(SecurityHeaders(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/", "")
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("Expected X-Frame-Options header")
	}
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "https://cdn.example.com") {
		t.Errorf("Expected storage origin in CSP, got %q", w.Header().Get("Content-Security-Policy"))
	}
}
