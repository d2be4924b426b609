package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"
)

type DestinationService struct {
	api *apiclient.Client
}

func NewDestinationService(api *apiclient.Client) *DestinationService {
	return &DestinationService{api: api}
}

// GetAll returns destinations in the order the server sent them.
func (s *DestinationService) GetAll(ctx context.Context) ([]models.Destination, error) {
	body, err := s.api.Get(ctx, "/destinations")
	if err != nil {
		logger.Error("Failed to fetch destinations", "error", err)
		return nil, err
	}
	var destinations []models.Destination
	if err := apiclient.Decode(body, &destinations); err != nil {
		logger.Error("Failed to decode destinations", "error", err)
		return nil, err
	}
	return destinations, nil
}

func (s *DestinationService) GetByID(ctx context.Context, id int) (*models.Destination, error) {
	body, err := s.api.Get(ctx, fmt.Sprintf("/destinations/%d", id))
	if err != nil {
		logger.Error("Failed to fetch destination", "destination_id", id, "error", err)
		return nil, err
	}
	return decodeDestination(body)
}

func (s *DestinationService) Create(ctx context.Context, input models.DestinationInput) (*models.Destination, error) {
	body, err := s.api.PostForm(ctx, "/destinations", destinationForm(input))
	if err != nil {
		logger.Error("Failed to create destination", "error", err)
		return nil, err
	}
	return decodeDestination(body)
}

// Update sends a multipart POST with a method override, since the API does
// not read multipart bodies on PUT.
func (s *DestinationService) Update(ctx context.Context, id int, input models.DestinationInput) (*models.Destination, error) {
	form := destinationForm(input).Set("_method", "PUT")
	body, err := s.api.PostForm(ctx, fmt.Sprintf("/destinations/%d", id), form)
	if err != nil {
		logger.Error("Failed to update destination", "destination_id", id, "error", err)
		return nil, err
	}
	return decodeDestination(body)
}

// UpdateStatus changes only is_achieved.
func (s *DestinationService) UpdateStatus(ctx context.Context, id int, achieved bool) (*models.Destination, error) {
	form := apiclient.NewForm().Set("_method", "PUT").Set("is_achieved", formBool(achieved))
	body, err := s.api.PostForm(ctx, fmt.Sprintf("/destinations/%d", id), form)
	if err != nil {
		logger.Error("Failed to update destination status", "destination_id", id, "error", err)
		return nil, err
	}
	return decodeDestination(body)
}

func (s *DestinationService) Delete(ctx context.Context, id int) error {
	if _, err := s.api.Delete(ctx, fmt.Sprintf("/destinations/%d", id)); err != nil {
		logger.Error("Failed to delete destination", "destination_id", id, "error", err)
		return err
	}
	return nil
}

// BulkDelete removes every id in one call. The response does not report
// per-id outcomes.
func (s *DestinationService) BulkDelete(ctx context.Context, ids []int) error {
	if _, err := s.api.PostJSON(ctx, "/destinations/bulk-delete", map[string][]int{"ids": ids}); err != nil {
		logger.Error("Failed to bulk delete destinations", "count", len(ids), "error", err)
		return err
	}
	return nil
}

func (s *DestinationService) BulkUpdate(ctx context.Context, ids []int, fields models.BulkFields) error {
	payload := map[string]interface{}{"ids": ids}
	if fields.IsAchieved != nil {
		payload["is_achieved"] = *fields.IsAchieved
	}
	if _, err := s.api.PostJSON(ctx, "/destinations/bulk-update", payload); err != nil {
		logger.Error("Failed to bulk update destinations", "count", len(ids), "error", err)
		return err
	}
	return nil
}

func destinationForm(input models.DestinationInput) *apiclient.Form {
	form := apiclient.NewForm().
		Set("title", input.Title).
		Set("departure_date", input.DepartureDate.String()).
		Set("budget", input.Budget.String()).
		Set("duration_days", strconv.Itoa(input.DurationDays)).
		Set("is_achieved", formBool(input.IsAchieved))
	if input.Photo != nil {
		form.File("photo", input.Photo.Filename, input.Photo.ContentType, input.Photo.Data)
	}
	return form
}

func formBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeDestination(body []byte) (*models.Destination, error) {
	var destination models.Destination
	if err := apiclient.Decode(body, &destination); err != nil {
		logger.Error("Failed to decode destination", "error", err)
		return nil, err
	}
	return &destination, nil
}

// PhotoURL resolves a stored photo value against the storage base URL.
func PhotoURL(storageBaseURL string, photo *string) string {
	if photo == nil || *photo == "" {
		return ""
	}
	p := *photo
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") || strings.HasPrefix(p, "//") {
		return p
	}
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "destinations/")
	if !strings.HasSuffix(storageBaseURL, "/") {
		storageBaseURL += "/"
	}
	return storageBaseURL + "destinations/" + p
}
