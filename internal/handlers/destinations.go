package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"
	"wanderplan/internal/planner"

	"github.com/gin-gonic/gin"
)

func handleHome(c *gin.Context) {
	d := depsOf(c)

	list, err := d.Destinations.GetAll(apiContext(c))
	if err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Error("Failed to load destinations for dashboard", "error", err)
		render(c, http.StatusOK, "home.html", gin.H{
			"Title": "Dashboard",
			"Error": apiclient.Message(err),
		})
		return
	}

	now := today(c)
	summary := planner.Summarize(planner.NormalizeAll(list, now), now, 3)
	render(c, http.StatusOK, "home.html", gin.H{
		"Title":   "Dashboard",
		"Summary": summary,
	})
}

func handleDestinations(c *gin.Context) {
	d := depsOf(c)

	list, err := d.Destinations.GetAll(apiContext(c))
	if err != nil {
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	filter := planner.ParseFilter(c.Query("q"), c.Query("status"), c.Query("sort"), c.Query("dir"))
	all := planner.NormalizeAll(list, today(c))
	shown := planner.Apply(all, filter)

	render(c, http.StatusOK, "destinations.html", gin.H{
		"Title":        "Destinations",
		"Destinations": shown,
		"Filter":       filter,
		"Total":        len(all),
	})
}

func handleNewDestinationPage(c *gin.Context) {
	render(c, http.StatusOK, "destination_form.html", gin.H{
		"Title":  "New destination",
		"Form":   planner.DestinationForm{},
		"Action": "/destinations",
	})
}

func handleCreateDestination(c *gin.Context) {
	d := depsOf(c)

	form, photo, errs := bindDestinationForm(c)
	page := gin.H{
		"Title":  "New destination",
		"Form":   form,
		"Action": "/destinations",
	}
	if errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "destination_form.html", page)
		return
	}

	input, err := form.Input()
	if err != nil {
		page["Errors"] = planner.FieldErrors{"general": err.Error()}
		render(c, http.StatusUnprocessableEntity, "destination_form.html", page)
		return
	}
	input.IsAchieved = planner.ReconcileAchieved(input.DepartureDate, today(c), form.IsAchieved, true)
	input.Photo = photo

	created, err := d.Destinations.Create(apiContext(c), input)
	if err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to create destination", "error", err)
		page["Errors"] = planner.FieldErrors{"general": apiclient.Message(err)}
		render(c, statusFor(err), "destination_form.html", page)
		return
	}

	logger.Info("Destination created", "destination_id", created.ID)
	redirectWithFlash(c, fmt.Sprintf("/destinations/%d", created.ID), "success", "Destination created successfully.")
}

func handleDestinationDetail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)
	ctx := apiContext(c)

	destination, err := d.Destinations.GetByID(ctx, id)
	if err != nil {
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	items, err := planner.Retry(ctx, d.Retry, func(ctx context.Context) ([]models.Itinerary, error) {
		return d.Itineraries.GetByDestination(ctx, id)
	})
	if err != nil {
		logger.Warn("Failed to load itineraries", "destination_id", id, "error", err)
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	now := today(c)
	normalized := planner.Normalize(*destination, now, false)
	render(c, http.StatusOK, "destination_detail.html", gin.H{
		"Title":       destination.Title,
		"Destination": normalized,
		"Days":        planner.GroupByDay(items),
		"Count":       len(items),
		"CanToggle":   planner.CanToggle(destination.DepartureDate, now),
	})
}

func handleEditDestinationPage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)

	destination, err := d.Destinations.GetByID(apiContext(c), id)
	if err != nil {
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	// Opening the form counts as setting the date.
	normalized := planner.Normalize(*destination, today(c), true)
	render(c, http.StatusOK, "destination_form.html", gin.H{
		"Title":        "Edit " + destination.Title,
		"Form":         planner.FormFromDestination(normalized),
		"Destination":  normalized,
		"OriginalDate": destination.DepartureDate.String(),
		"Action":       fmt.Sprintf("/destinations/%d", id),
	})
}

func handleUpdateDestination(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)

	original := c.PostForm("original_departure_date")
	form, photo, errs := bindDestinationForm(c)
	page := gin.H{
		"Title":        "Edit destination",
		"Editing":      true,
		"Form":         form,
		"OriginalDate": original,
		"Action":       fmt.Sprintf("/destinations/%d", id),
	}
	// Keeps the stored photo preview when the form is shown again.
	if current := c.PostForm("current_photo"); current != "" {
		page["Destination"] = models.Destination{ID: id, Title: form.Title, Photo: &current}
	}
	if errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "destination_form.html", page)
		return
	}

	input, err := form.Input()
	if err != nil {
		page["Errors"] = planner.FieldErrors{"general": err.Error()}
		render(c, http.StatusUnprocessableEntity, "destination_form.html", page)
		return
	}
	dateChanged := original == "" || original != input.DepartureDate.String()
	input.IsAchieved = planner.ReconcileAchieved(input.DepartureDate, today(c), form.IsAchieved, dateChanged)
	input.Photo = photo

	updated, err := d.Destinations.Update(apiContext(c), id, input)
	if err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to update destination", "destination_id", id, "error", err)
		page["Errors"] = planner.FieldErrors{"general": apiclient.Message(err)}
		render(c, statusFor(err), "destination_form.html", page)
		return
	}

	redirectWithFlash(c, fmt.Sprintf("/destinations/%d", updated.ID), "success", "Destination updated successfully.")
}

func handleDeleteDestination(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)

	err := d.Destinations.Delete(apiContext(c), id)
	switch {
	case err == nil:
		logger.Info("Destination deleted", "destination_id", id)
		redirectWithFlash(c, "/destinations", "success", "Destination deleted.")
	case errors.Is(err, apiclient.ErrNotFound):
		redirectWithFlash(c, "/destinations", "error", "That destination no longer exists.")
	default:
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to delete destination", "destination_id", id, "error", err)
		redirectWithFlash(c, fmt.Sprintf("/destinations/%d", id), "error", apiclient.Message(err))
	}
}

// statusRequest carries the page's local copy of the list so the server can
// answer with it patched instead of refetching.
type statusRequest struct {
	IsAchieved    *bool        `json:"is_achieved"`
	DepartureDate *models.Date `json:"departure_date"`
	Destinations  planner.List `json:"destinations"`
}

// handleToggleStatus sets is_achieved with a single-field update. Past trips
// are always achieved and cannot be toggled.
func handleToggleStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Destination not found"})
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAchieved == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	departure := req.DepartureDate
	if row, ok := req.Destinations.Find(id); ok {
		departure = &row.DepartureDate
	}
	if departure == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown destination"})
		return
	}

	now := today(c)
	if !planner.CanToggle(*departure, now) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Trips that have already departed are always achieved"})
		return
	}

	d := depsOf(c)
	updated, err := d.Destinations.UpdateStatus(apiContext(c), id, *req.IsAchieved)
	if err != nil {
		jsonServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"destination":  planner.Normalize(*updated, now, false),
		"destinations": filtered(c, req.Destinations.PatchStatus(id, *req.IsAchieved)),
	})
}

type bulkRequest struct {
	IDs          []int        `json:"ids" binding:"required,min=1"`
	IsAchieved   *bool        `json:"is_achieved"`
	Destinations planner.List `json:"destinations"`
}

// handleBulkDelete removes every selected destination in one call and
// answers with the caller's list minus those entries.
func handleBulkDelete(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Select at least one destination"})
		return
	}
	d := depsOf(c)

	if err := d.Destinations.BulkDelete(apiContext(c), req.IDs); err != nil {
		jsonServiceError(c, err)
		return
	}

	logger.Info("Destinations deleted", "count", len(req.IDs))
	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("%d destination(s) deleted", len(req.IDs)),
		"destinations": filtered(c, req.Destinations.RemoveMany(req.IDs)),
	})
}

func handleBulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAchieved == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Select at least one destination and a status"})
		return
	}
	d := depsOf(c)

	now := today(c)
	if !*req.IsAchieved {
		for _, id := range req.IDs {
			if dest, ok := req.Destinations.Find(id); ok && !planner.CanToggle(dest.DepartureDate, now) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error": fmt.Sprintf("%q has already departed and stays achieved", dest.Title),
				})
				return
			}
		}
	}

	fields := models.BulkFields{IsAchieved: req.IsAchieved}
	if err := d.Destinations.BulkUpdate(apiContext(c), req.IDs, fields); err != nil {
		jsonServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("%d destination(s) updated", len(req.IDs)),
		"destinations": filtered(c, req.Destinations.PatchMany(req.IDs, fields)),
	})
}

// filtered applies the list page's query parameters to a patched list.
func filtered(c *gin.Context, list planner.List) []models.Destination {
	filter := planner.ParseFilter(c.Query("q"), c.Query("status"), c.Query("sort"), c.Query("dir"))
	return planner.Apply(list, filter)
}

func jsonServiceError(c *gin.Context, err error) {
	if handleUnauthorized(c, err) {
		return
	}
	logger.Warn("API call failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(statusFor(err), gin.H{"error": apiclient.Message(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apiclient.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apiclient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apiclient.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// bindDestinationForm binds and validates the destination form and reads the
// optional photo. Nothing here talks to the API.
func bindDestinationForm(c *gin.Context) (planner.DestinationForm, *models.Upload, planner.FieldErrors) {
	var form planner.DestinationForm
	if err := c.ShouldBind(&form); err != nil {
		logger.Debug("Failed to bind destination form", "error", err)
	}

	errs := planner.Validate(form)

	photo, photoErr := readPhoto(c)
	if photoErr != "" {
		if errs == nil {
			errs = planner.FieldErrors{}
		}
		errs["photo"] = photoErr
	}
	return form, photo, errs
}

func readPhoto(c *gin.Context) (*models.Upload, string) {
	header, err := c.FormFile("photo")
	if err != nil {
		return nil, ""
	}

	if msg := planner.ValidatePhoto(header.Filename, header.Size); msg != "" {
		return nil, msg
	}

	file, err := header.Open()
	if err != nil {
		logger.Warn("Failed to open uploaded photo", "error", err)
		return nil, "Photo could not be read"
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, planner.MaxPhotoBytes+1))
	if err != nil || len(data) > planner.MaxPhotoBytes {
		return nil, "Photo could not be read"
	}

	return &models.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, ""
}
