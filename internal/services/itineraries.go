package services

import (
	"context"
	"fmt"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"
)

type ItineraryService struct {
	api *apiclient.Client
}

func NewItineraryService(api *apiclient.Client) *ItineraryService {
	return &ItineraryService{api: api}
}

func (s *ItineraryService) GetByDestination(ctx context.Context, destinationID int) ([]models.Itinerary, error) {
	body, err := s.api.Get(ctx, fmt.Sprintf("/destinations/%d/itineraries", destinationID))
	if err != nil {
		logger.Error("Failed to fetch itineraries", "destination_id", destinationID, "error", err)
		return nil, err
	}
	var itineraries []models.Itinerary
	if err := apiclient.Decode(body, &itineraries); err != nil {
		logger.Error("Failed to decode itineraries", "destination_id", destinationID, "error", err)
		return nil, err
	}
	return itineraries, nil
}

func (s *ItineraryService) GetByID(ctx context.Context, id int) (*models.Itinerary, error) {
	body, err := s.api.Get(ctx, fmt.Sprintf("/itineraries/%d", id))
	if err != nil {
		logger.Error("Failed to fetch itinerary", "itinerary_id", id, "error", err)
		return nil, err
	}
	return decodeItinerary(body)
}

func (s *ItineraryService) Create(ctx context.Context, input models.ItineraryInput) (*models.Itinerary, error) {
	body, err := s.api.PostJSON(ctx, "/itineraries", input)
	if err != nil {
		logger.Error("Failed to create itinerary", "destination_id", input.DestinationID, "error", err)
		return nil, err
	}
	return decodeItinerary(body)
}

func (s *ItineraryService) Update(ctx context.Context, id int, input models.ItineraryInput) (*models.Itinerary, error) {
	body, err := s.api.PutJSON(ctx, fmt.Sprintf("/itineraries/%d", id), input)
	if err != nil {
		logger.Error("Failed to update itinerary", "itinerary_id", id, "error", err)
		return nil, err
	}
	return decodeItinerary(body)
}

func (s *ItineraryService) Delete(ctx context.Context, id int) error {
	if _, err := s.api.Delete(ctx, fmt.Sprintf("/itineraries/%d", id)); err != nil {
		logger.Error("Failed to delete itinerary", "itinerary_id", id, "error", err)
		return err
	}
	return nil
}

func decodeItinerary(body []byte) (*models.Itinerary, error) {
	var itinerary models.Itinerary
	if err := apiclient.Decode(body, &itinerary); err != nil {
		logger.Error("Failed to decode itinerary", "error", err)
		return nil, err
	}
	return &itinerary, nil
}
