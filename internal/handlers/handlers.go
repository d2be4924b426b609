package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/config"
	"wanderplan/internal/database"
	"wanderplan/internal/logger"
	"wanderplan/internal/middleware"
	"wanderplan/internal/models"
	"wanderplan/internal/planner"
	"wanderplan/internal/services"
	"wanderplan/internal/session"

	"github.com/gin-gonic/gin"
)

// Deps is everything the page handlers reach for. It is attached to every
// request under "deps".
type Deps struct {
	Config       *config.Config
	DB           *sql.DB
	Sessions     *session.Manager
	Destinations *services.DestinationService
	Itineraries  *services.ItineraryService
	Clock        planner.Clock
	Retry        planner.RetryPolicy
}

func SetupRoutes(r *gin.Engine, deps *Deps) {
	if deps.Clock == nil {
		deps.Clock = planner.SystemClock
	}
	if deps.Retry.Retries == 0 && deps.Retry.Backoff == 0 {
		deps.Retry = planner.ItineraryRetryPolicy
	}

	LoadTemplates(r, deps)

	cfg := deps.Config
	r.Use(middleware.LogRequests())
	r.Use(middleware.SecurityHeaders(cfg))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg))
	r.Use(addDeps(deps))
	r.Use(middleware.TrimSpaces())
	r.Use(middleware.SessionCookie(deps.Sessions, cfg))

	guest := r.Group("/")
	guest.Use(middleware.GuestOnly())
	guest.Use(middleware.CSRF(deps.DB, cfg))
	{
		guest.GET("/login", handleLoginPage)
		guest.POST("/login", middleware.AuthRateLimit(cfg), handleLogin)
		guest.GET("/register", handleRegisterPage)
		guest.POST("/register", middleware.AuthRateLimit(cfg), handleRegister)
	}

	protected := r.Group("/")
	protected.Use(middleware.AuthRequired())
	protected.Use(middleware.CSRF(deps.DB, cfg))
	{
		protected.GET("/", handleHome)
		protected.POST("/logout", handleLogout)

		protected.GET("/destinations", handleDestinations)
		protected.GET("/destinations/new", handleNewDestinationPage)
		protected.POST("/destinations", handleCreateDestination)
		protected.POST("/destinations/bulk-delete", handleBulkDelete)
		protected.POST("/destinations/bulk-update", handleBulkUpdate)
		protected.GET("/destinations/:id", handleDestinationDetail)
		protected.GET("/destinations/:id/edit", handleEditDestinationPage)
		protected.POST("/destinations/:id", handleUpdateDestination)
		protected.POST("/destinations/:id/delete", handleDeleteDestination)
		protected.POST("/destinations/:id/status", handleToggleStatus)

		protected.GET("/destinations/:id/itineraries", handleItineraries)
		protected.GET("/destinations/:id/itineraries/new", handleNewItineraryPage)
		protected.POST("/destinations/:id/itineraries", handleCreateItinerary)
		protected.GET("/itineraries/:id/edit", handleEditItineraryPage)
		protected.POST("/itineraries/:id", handleUpdateItinerary)
		protected.POST("/itineraries/:id/delete", handleDeleteItinerary)

		protected.GET("/api/csrf-token", handleCSRFToken)
	}

	r.NoRoute(func(c *gin.Context) {
		render(c, http.StatusNotFound, "error.html", gin.H{
			"Title":   "Not Found",
			"Message": "The page you are looking for does not exist.",
		})
	})
}

func addDeps(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("deps", deps)
		c.Set("db", deps.DB)
		c.Next()
	}
}

func depsOf(c *gin.Context) *Deps {
	return c.MustGet("deps").(*Deps)
}

// apiContext is the request context carrying the session's bearer token.
func apiContext(c *gin.Context) context.Context {
	return middleware.CurrentSession(c).Context(c.Request.Context())
}

func today(c *gin.Context) models.Date {
	return depsOf(c).Clock()
}

// render adds the layout data every page needs and writes the template.
func render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if title, ok := data["Title"].(string); ok && title != "" {
		data["Title"] = title + " - Wanderplan"
	} else {
		data["Title"] = "Wanderplan"
	}

	s := middleware.CurrentSession(c)
	if s.Authenticated() {
		data["User"] = s.User
	}
	if _, ok := data["CSRFToken"]; !ok {
		data["CSRFToken"] = csrfToken(c)
	}
	if kind, message := popFlash(c); message != "" {
		data["Flash"] = gin.H{"Kind": kind, "Message": message}
	}

	c.HTML(status, name, data)
}

func csrfToken(c *gin.Context) string {
	sessionID := c.GetString("session_id")
	if sessionID == "" {
		return ""
	}
	token, err := database.CreateCSRFToken(depsOf(c).DB, sessionID)
	if err != nil {
		logger.Error("Failed to create CSRF token", "session_id", sessionID, "error", err)
		return ""
	}
	return token.Token
}

func handleCSRFToken(c *gin.Context) {
	token := csrfToken(c)
	if token == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate CSRF token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

const flashCookie = "flash"

// setFlash stores a one-shot notification shown by the next rendered page.
func setFlash(c *gin.Context, kind, message string) {
	secure := !depsOf(c).Config.IsDevelopment()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookie, kind+"|"+message, 60, "/", "", secure, true)
}

func popFlash(c *gin.Context) (string, string) {
	value, err := c.Cookie(flashCookie)
	if err != nil || value == "" {
		return "", ""
	}
	c.SetCookie(flashCookie, "", -1, "/", "", !depsOf(c).Config.IsDevelopment(), true)

	kind, message, found := strings.Cut(value, "|")
	if !found {
		return "info", value
	}
	return kind, message
}

func redirectWithFlash(c *gin.Context, location, kind, message string) {
	setFlash(c, kind, message)
	c.Redirect(http.StatusFound, location)
}

// handleUnauthorized finishes the request when err means the token was
// rejected. The session itself has already been cleared by the API client's
// unauthorized event.
func handleUnauthorized(c *gin.Context, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	if middleware.WantsJSON(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Your session has expired", "redirect": "/login"})
	} else {
		setFlash(c, "error", "Your session has expired. Please sign in again.")
		c.Redirect(http.StatusFound, "/login")
	}
	c.Abort()
	return true
}

// renderServiceError renders the full-page error panel for a failed API call.
func renderServiceError(c *gin.Context, err error, retryURL string) {
	if handleUnauthorized(c, err) {
		return
	}

	status := http.StatusBadGateway
	title := "Something went wrong"
	switch {
	case errors.Is(err, apiclient.ErrNotFound):
		status = http.StatusNotFound
		title = "Not Found"
		retryURL = ""
	case errors.Is(err, apiclient.ErrTimeout):
		status = http.StatusGatewayTimeout
	}

	render(c, status, "error.html", gin.H{
		"Title":    title,
		"Message":  apiclient.Message(err),
		"RetryURL": retryURL,
	})
}

func paramID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		render(c, http.StatusNotFound, "error.html", gin.H{
			"Title":   "Not Found",
			"Message": "The page you are looking for does not exist.",
		})
		return 0, false
	}
	return id, true
}
