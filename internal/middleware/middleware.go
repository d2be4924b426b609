package middleware

import (
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"wanderplan/internal/config"
	"wanderplan/internal/database"
	"wanderplan/internal/logger"
	"wanderplan/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const SessionCookieName = "session_id"

type rateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateLimiter
	every   time.Duration
	burst   int
	idle    time.Duration

	lastSweep time.Time
	now       func() time.Time
}

// sweepInterval bounds how often idle clients are dropped from the map.
const sweepInterval = time.Minute

func newIPLimiter(every time.Duration, burst int, idle time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*rateLimiter),
		every:   every,
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		l.cleanupOldClients(now)
		l.lastSweep = now
	}

	client, exists := l.clients[ip]
	if !exists {
		client = &rateLimiter{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = now

	return client.limiter.Allow()
}

// cleanupOldClients must be called with mu held.
func (l *ipLimiter) cleanupOldClients(now time.Time) {
	for ip, client := range l.clients {
		if now.Sub(client.lastSeen) > l.idle {
			delete(l.clients, ip)
		}
	}
}

func RateLimit(cfg *config.Config) gin.HandlerFunc {
	limiter := newIPLimiter(time.Second/20, 20, 10*time.Minute)

	return func(c *gin.Context) {
		// Skip rate limiting in development mode
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		if !limiter.allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// AuthRateLimit throttles login and registration attempts per IP.
func AuthRateLimit(cfg *config.Config) gin.HandlerFunc {
	limiter := newIPLimiter(time.Minute, 5, 30*time.Minute)

	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		if !limiter.allow(c.ClientIP()) {
			logger.Warn("Authentication rate limit exceeded", "ip", c.ClientIP())
			c.HTML(http.StatusTooManyRequests, "error.html", gin.H{
				"Title":   "Too Many Requests - Wanderplan",
				"Message": "Too many attempts. Please wait a minute before trying again.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func CORS(allowedOrigins string) gin.HandlerFunc {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, allowedOrigin := range origins {
			if origin != "" && origin == allowedOrigin {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				break
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SecurityHeaders(cfg *config.Config) gin.HandlerFunc {
	imgSrc := "img-src 'self' data:"
	if cfg.StorageBaseURL != "" {
		imgSrc += " " + originOf(cfg.StorageBaseURL)
	}
	csp := "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " + imgSrc

	return func(c *gin.Context) {
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "same-origin")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", csp)
		c.Next()
	}
}

func originOf(rawURL string) string {
	parts := strings.SplitN(rawURL, "/", 4)
	if len(parts) < 3 {
		return rawURL
	}
	return parts[0] + "//" + parts[2]
}

// SessionCookie makes sure every browser carries a session id and resolves
// the session behind it. Later handlers read it with CurrentSession.
func SessionCookie(mgr *session.Manager, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(SessionCookieName)
		if err == nil {
			_, err = uuid.Parse(id)
		}
		if err != nil {
			id = uuid.NewString()
		}
		// Refreshed on every response so the cookie slides with the stored token.
		IssueSessionCookie(c, cfg, id)

		s := mgr.Resolve(c.Request.Context(), id)
		c.Set("session", &s)
		if s.Authenticated() {
			c.Set("user", s.User)
		}
		c.Next()
	}
}

// IssueSessionCookie writes the session cookie and records id on the context.
func IssueSessionCookie(c *gin.Context, cfg *config.Config, id string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, id, int(cfg.SessionDuration.Seconds()), "/", "", !cfg.IsDevelopment(), true)
	c.Set("session_id", id)
}

// CurrentSession returns the session resolved by SessionCookie. It never
// returns nil.
func CurrentSession(c *gin.Context) *session.Session {
	if v, ok := c.Get("session"); ok {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return &session.Session{State: session.StateAnonymous}
}

// GuestOnly keeps signed-in users away from the login and register pages.
func GuestOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c).Authenticated() {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if !s.Authenticated() {
			if WantsJSON(c) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "redirect": "/login"})
			} else {
				c.Redirect(http.StatusFound, "/login")
			}
			c.Abort()
			return
		}

		c.Set("user", s.User)
		c.Next()
	}
}

// CSRF validates the token issued to this browser session on every unsafe
// request.
func CSRF(db *sql.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip CSRF validation in development mode
		if cfg.IsDevelopment() {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		token := c.GetHeader("X-CSRF-Token")
		if token == "" {
			token = c.PostForm("csrf_token")
		}
		if token == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "CSRF token required"})
			c.Abort()
			return
		}

		sessionID := c.GetString("session_id")
		if sessionID == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Session required"})
			c.Abort()
			return
		}

		if err := database.ValidateCSRFToken(db, token, sessionID); err != nil {
			logger.Warn("Rejected CSRF token", "session_id", sessionID, "error", err)
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid CSRF token"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func LogRequests() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s %s\n",
			param.TimeStamp.Format("2006/01/02 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	})
}

// TrimSpaces trims every url-encoded form value. Multipart bodies are left
// alone so uploads are not parsed twice.
func TrimSpaces() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost &&
			strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
			if err := c.Request.ParseForm(); err == nil {
				for key, values := range c.Request.PostForm {
					for i, value := range values {
						c.Request.PostForm[key][i] = strings.TrimSpace(value)
					}
				}
			}
		}
		c.Next()
	}
}

// WantsJSON reports whether the caller expects a JSON response.
func WantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.ContentType() == "application/json"
}
