package handlers

import (
	"net/http"

	"wanderplan/internal/database"
	"wanderplan/internal/logger"
	"wanderplan/internal/middleware"
	"wanderplan/internal/planner"

	"github.com/gin-gonic/gin"
)

// Demo account advertised on the sign-in page.
const (
	demoEmail    = "adrenalin@gmail.com"
	demoPassword = "adrenalin"
)

func handleLoginPage(c *gin.Context) {
	render(c, http.StatusOK, "login.html", gin.H{
		"Title":        "Sign in",
		"Form":         planner.LoginForm{},
		"DemoEmail":    demoEmail,
		"DemoPassword": demoPassword,
	})
}

func handleLogin(c *gin.Context) {
	var form planner.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		logger.Debug("Failed to bind login form", "error", err)
	}

	page := gin.H{
		"Title":        "Sign in",
		"Form":         form,
		"DemoEmail":    demoEmail,
		"DemoPassword": demoPassword,
	}

	if errs := planner.Validate(form); errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "login.html", page)
		return
	}

	d := depsOf(c)
	result := d.Sessions.Login(c.Request.Context(), c.GetString("session_id"), form.Email, form.Password)
	if !result.OK {
		page["Errors"] = planner.FieldErrors{"general": result.Message}
		render(c, http.StatusUnprocessableEntity, "login.html", page)
		return
	}

	rotateSession(c, result.SessionID)
	redirectWithFlash(c, "/", "success", "Welcome back, "+result.User.Name+"!")
}

func handleRegisterPage(c *gin.Context) {
	render(c, http.StatusOK, "register.html", gin.H{
		"Title": "Create account",
		"Form":  planner.RegisterForm{},
	})
}

func handleRegister(c *gin.Context) {
	var form planner.RegisterForm
	if err := c.ShouldBind(&form); err != nil {
		logger.Debug("Failed to bind register form", "error", err)
	}

	// Passwords are never echoed back into the form.
	echo := planner.RegisterForm{Name: form.Name, Email: form.Email}
	page := gin.H{
		"Title": "Create account",
		"Form":  echo,
	}

	if errs := planner.Validate(form); errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "register.html", page)
		return
	}

	d := depsOf(c)
	result := d.Sessions.Register(c.Request.Context(), c.GetString("session_id"), form.Name, form.Email, form.Password)
	if !result.OK {
		page["Errors"] = planner.FieldErrors{"general": result.Message}
		render(c, http.StatusUnprocessableEntity, "register.html", page)
		return
	}

	rotateSession(c, result.SessionID)
	redirectWithFlash(c, "/", "success", "Welcome to Wanderplan, "+result.User.Name+"!")
}

// rotateSession hands the browser the id issued at sign-in and drops the CSRF
// tokens bound to the one it replaced.
func rotateSession(c *gin.Context, id string) {
	d := depsOf(c)
	previous := c.GetString("session_id")
	if err := database.DeleteCSRFTokens(d.DB, previous); err != nil {
		logger.Warn("Failed to delete CSRF tokens", "session_id", previous, "error", err)
	}
	middleware.IssueSessionCookie(c, d.Config, id)
}

func handleLogout(c *gin.Context) {
	d := depsOf(c)
	sessionID := c.GetString("session_id")

	d.Sessions.Logout(c.Request.Context(), sessionID)
	if err := database.DeleteCSRFTokens(d.DB, sessionID); err != nil {
		logger.Warn("Failed to delete CSRF tokens", "session_id", sessionID, "error", err)
	}

	redirectWithFlash(c, "/login", "success", "You have been signed out.")
}
