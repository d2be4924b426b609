package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"
	"wanderplan/internal/planner"

	"github.com/gin-gonic/gin"
)

func handleItineraries(c *gin.Context) {
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

	render(c, http.StatusOK, "itineraries.html", gin.H{
		"Title":       "Itinerary for " + destination.Title,
		"Destination": planner.Normalize(*destination, today(c), false),
		"Days":        planner.GroupByDay(items),
		"Count":       len(items),
	})
}

func handleNewItineraryPage(c *gin.Context) {
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

	render(c, http.StatusOK, "itinerary_form.html", gin.H{
		"Title":       "New itinerary item",
		"Destination": destination,
		"Form":        planner.ItineraryForm{DayNumber: c.DefaultQuery("day", "1")},
		"Action":      fmt.Sprintf("/destinations/%d/itineraries", id),
	})
}

func handleCreateItinerary(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)
	ctx := apiContext(c)

	var form planner.ItineraryForm
	if err := c.ShouldBind(&form); err != nil {
		logger.Debug("Failed to bind itinerary form", "error", err)
	}
	page := gin.H{
		"Title":  "New itinerary item",
		"Form":   form,
		"Action": fmt.Sprintf("/destinations/%d/itineraries", id),
	}

	if errs := planner.Validate(form); errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "itinerary_form.html", page)
		return
	}

	input, err := form.Input(id)
	if err != nil {
		page["Errors"] = planner.FieldErrors{"day_number": err.Error()}
		render(c, http.StatusUnprocessableEntity, "itinerary_form.html", page)
		return
	}

	created, err := d.Itineraries.Create(ctx, input)
	if err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to create itinerary", "destination_id", id, "error", err)
		page["Errors"] = planner.FieldErrors{"general": apiclient.Message(err)}
		render(c, statusFor(err), "itinerary_form.html", page)
		return
	}

	kind, message := "success", "Itinerary item added."
	if warning := durationWarning(ctx, d, created.DayNumber, id); warning != "" {
		kind, message = "warning", message+" "+warning
	}
	redirectWithFlash(c, fmt.Sprintf("/destinations/%d/itineraries", id), kind, message)
}

func handleEditItineraryPage(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)
	ctx := apiContext(c)

	item, err := d.Itineraries.GetByID(ctx, id)
	if err != nil {
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	destination, err := d.Destinations.GetByID(ctx, item.DestinationID)
	if err != nil {
		renderServiceError(c, err, c.Request.URL.RequestURI())
		return
	}

	render(c, http.StatusOK, "itinerary_form.html", gin.H{
		"Title":       "Edit itinerary item",
		"Destination": destination,
		"Item":        item,
		"Form":        planner.FormFromItinerary(*item),
		"Action":      fmt.Sprintf("/itineraries/%d", id),
	})
}

func handleUpdateItinerary(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)
	ctx := apiContext(c)

	var form planner.ItineraryForm
	if err := c.ShouldBind(&form); err != nil {
		logger.Debug("Failed to bind itinerary form", "error", err)
	}
	page := gin.H{
		"Title":  "Edit itinerary item",
		"Form":   form,
		"Action": fmt.Sprintf("/itineraries/%d", id),
	}

	if errs := planner.Validate(form); errs != nil {
		page["Errors"] = errs
		render(c, http.StatusUnprocessableEntity, "itinerary_form.html", page)
		return
	}

	existing, err := d.Itineraries.GetByID(ctx, id)
	if err != nil {
		renderServiceError(c, err, "")
		return
	}

	input, err := form.Input(existing.DestinationID)
	if err != nil {
		page["Errors"] = planner.FieldErrors{"day_number": err.Error()}
		render(c, http.StatusUnprocessableEntity, "itinerary_form.html", page)
		return
	}

	updated, err := d.Itineraries.Update(ctx, id, input)
	if err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to update itinerary", "itinerary_id", id, "error", err)
		page["Errors"] = planner.FieldErrors{"general": apiclient.Message(err)}
		render(c, statusFor(err), "itinerary_form.html", page)
		return
	}

	kind, message := "success", "Itinerary item updated."
	if warning := durationWarning(ctx, d, updated.DayNumber, existing.DestinationID); warning != "" {
		kind, message = "warning", message+" "+warning
	}
	redirectWithFlash(c, fmt.Sprintf("/destinations/%d/itineraries", existing.DestinationID), kind, message)
}

func handleDeleteItinerary(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	d := depsOf(c)
	ctx := apiContext(c)

	back := "/destinations"
	if destID, err := strconv.Atoi(c.PostForm("destination_id")); err == nil && destID > 0 {
		back = fmt.Sprintf("/destinations/%d/itineraries", destID)
	}

	if err := d.Itineraries.Delete(ctx, id); err != nil {
		if handleUnauthorized(c, err) {
			return
		}
		logger.Warn("Failed to delete itinerary", "itinerary_id", id, "error", err)
		redirectWithFlash(c, back, "error", apiclient.Message(err))
		return
	}

	logger.Info("Itinerary deleted", "itinerary_id", id)
	redirectWithFlash(c, back, "success", "Itinerary item deleted.")
}

// durationWarning explains when a day falls outside the trip length. The item
// is kept either way.
func durationWarning(ctx context.Context, d *Deps, dayNumber, destinationID int) string {
	destination, err := d.Destinations.GetByID(ctx, destinationID)
	if err != nil {
		logger.Debug("Skipped duration check", "destination_id", destinationID, "error", err)
		return ""
	}
	if !planner.ExceedsDuration(dayNumber, *destination) {
		return ""
	}
	return fmt.Sprintf("Day %d is beyond this %d-day trip.", dayNumber, destination.DurationDays)
}
