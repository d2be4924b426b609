package services

import (
	"context"
	"errors"
	"testing"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/apitest"
	"wanderplan/internal/models"
)

func setupServices(t *testing.T) (*apitest.Server, context.Context, *DestinationService, *ItineraryService) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	api := apiclient.New(srv.BaseURL())
	ctx := apiclient.WithToken(context.Background(), srv.IssueToken())
	return srv, ctx, NewDestinationService(api), NewItineraryService(api)
}

func TestLoginAndCurrentUser(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	auth := NewAuthService(apiclient.New(srv.BaseURL()))

	result, err := auth.Login(context.Background(), apitest.DemoEmail, apitest.DemoPassword)
	if err != nil {
		t.Fatal("Failed to log in:", err)
	}
	if result.Token == "" || result.User.Email != apitest.DemoEmail {
		t.Errorf("Unexpected auth result %+v", result)
	}

	user, err := auth.CurrentUser(apiclient.WithToken(context.Background(), result.Token))
	if err != nil {
		t.Fatal("Failed to fetch current user:", err)
	}
	if user.Name != apitest.DemoName {
		t.Errorf("Expected %s, got %s", apitest.DemoName, user.Name)
	}

	_, err = auth.Login(context.Background(), apitest.DemoEmail, "wrong")
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for bad credentials, got %v", err)
	}
}

func TestRegisterSendsConfirmation(t *testing.T) {
	srv := apitest.NewServer()
	defer srv.Close()

	auth := NewAuthService(apiclient.New(srv.BaseURL()))

	result, err := auth.Register(context.Background(), "Nomad", "nomad@example.com", "s3cretpass")
	if err != nil {
		t.Fatal("Failed to register:", err)
	}
	if result.User.Name != "Nomad" {
		t.Errorf("Expected registered user name, got %s", result.User.Name)
	}

	_, err = auth.Register(context.Background(), "Nomad", "nomad@example.com", "s3cretpass")
	if got := apiclient.Message(err); got != "The email has already been taken." {
		t.Errorf("Expected duplicate email message, got %q", got)
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	_, ctx, destinations, _ := setupServices(t)

	input := models.DestinationInput{
		Title:         "Reykjavik",
		DepartureDate: models.NewDate(2027, 2, 14),
		Budget:        2400.75,
		DurationDays:  9,
		Photo:         &models.Upload{Filename: "aurora.png", ContentType: "image/png", Data: []byte("png")},
	}

	created, err := destinations.Create(ctx, input)
	if err != nil {
		t.Fatal("Failed to create destination:", err)
	}

	fetched, err := destinations.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal("Failed to fetch destination:", err)
	}

	if fetched.Title != input.Title {
		t.Errorf("Expected title %s, got %s", input.Title, fetched.Title)
	}
	if fetched.DepartureDate.String() != "2027-02-14" {
		t.Errorf("Expected departure 2027-02-14, got %s", fetched.DepartureDate)
	}
	if fetched.Budget != input.Budget {
		t.Errorf("Expected budget %v, got %v", input.Budget, fetched.Budget)
	}
	if fetched.DurationDays != input.DurationDays {
		t.Errorf("Expected %d days, got %d", input.DurationDays, fetched.DurationDays)
	}
	if fetched.Photo == nil || *fetched.Photo != "destinations/aurora.png" {
		t.Errorf("Expected stored photo path, got %v", fetched.Photo)
	}
}

func TestDestinationUpdateAndStatus(t *testing.T) {
	srv, ctx, destinations, _ := setupServices(t)

	seeded := srv.Seed(models.Destination{Title: "Oslo", DepartureDate: models.NewDate(2027, 6, 1), Budget: 900, DurationDays: 4})

	updated, err := destinations.Update(ctx, seeded.ID, models.DestinationInput{
		Title:         "Oslo and Bergen",
		DepartureDate: models.NewDate(2027, 6, 2),
		Budget:        1200,
		DurationDays:  6,
	})
	if err != nil {
		t.Fatal("Failed to update destination:", err)
	}
	if updated.Title != "Oslo and Bergen" || updated.DurationDays != 6 {
		t.Errorf("Unexpected update result %+v", updated)
	}

	toggled, err := destinations.UpdateStatus(ctx, seeded.ID, true)
	if err != nil {
		t.Fatal("Failed to update status:", err)
	}
	if !toggled.IsAchieved || toggled.Title != "Oslo and Bergen" {
		t.Errorf("Expected only status to change, got %+v", toggled)
	}
}

func TestDeleteTwiceFailsWithNotFound(t *testing.T) {
	srv, ctx, destinations, _ := setupServices(t)

	seeded := srv.Seed(models.Destination{Title: "Hanoi", DepartureDate: models.NewDate(2027, 3, 3), Budget: 700, DurationDays: 10})

	if err := destinations.Delete(ctx, seeded.ID); err != nil {
		t.Fatal("Failed to delete destination:", err)
	}
	if err := destinations.Delete(ctx, seeded.ID); !errors.Is(err, apiclient.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := destinations.GetByID(ctx, seeded.ID); !errors.Is(err, apiclient.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on fetch, got %v", err)
	}
}

func TestBulkOperations(t *testing.T) {
	srv, ctx, destinations, _ := setupServices(t)

	a := srv.Seed(models.Destination{Title: "Cusco", Budget: 1, DurationDays: 1})
	b := srv.Seed(models.Destination{Title: "Lima", Budget: 1, DurationDays: 1})
	c := srv.Seed(models.Destination{Title: "Quito", Budget: 1, DurationDays: 1})

	achieved := true
	if err := destinations.BulkUpdate(ctx, []int{a.ID, b.ID}, models.BulkFields{IsAchieved: &achieved}); err != nil {
		t.Fatal("Failed to bulk update:", err)
	}
	if d, _ := srv.Destination(b.ID); !d.IsAchieved {
		t.Error("Expected bulk update to mark destination achieved")
	}

	if err := destinations.BulkDelete(ctx, []int{a.ID, c.ID}); err != nil {
		t.Fatal("Failed to bulk delete:", err)
	}

	remaining, err := destinations.GetAll(ctx)
	if err != nil {
		t.Fatal("Failed to list destinations:", err)
	}
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Errorf("Expected only %d to remain, got %+v", b.ID, remaining)
	}
}

func TestItineraryCRUD(t *testing.T) {
	srv, ctx, destinations, itineraries := setupServices(t)

	dest := srv.Seed(models.Destination{Title: "Seoul", Budget: 1, DurationDays: 5})

	morning := "08:00"
	created, err := itineraries.Create(ctx, models.ItineraryInput{
		DestinationID: dest.ID,
		DayNumber:     1,
		Location:      "Gyeongbokgung",
		Description:   "Palace walk",
		ScheduleTime:  &morning,
	})
	if err != nil {
		t.Fatal("Failed to create itinerary:", err)
	}

	updated, err := itineraries.Update(ctx, created.ID, models.ItineraryInput{
		DestinationID: dest.ID,
		DayNumber:     2,
		Location:      "Bukchon",
		Description:   "Hanok village",
	})
	if err != nil {
		t.Fatal("Failed to update itinerary:", err)
	}
	if updated.DayNumber != 2 || updated.ScheduleTime != nil {
		t.Errorf("Unexpected update result %+v", updated)
	}

	list, err := itineraries.GetByDestination(ctx, dest.ID)
	if err != nil {
		t.Fatal("Failed to list itineraries:", err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 itinerary, got %d", len(list))
	}

	if err := destinations.Delete(ctx, dest.ID); err != nil {
		t.Fatal("Failed to delete destination:", err)
	}
	if _, err := itineraries.GetByID(ctx, created.ID); !errors.Is(err, apiclient.ErrNotFound) {
		t.Errorf("Expected cascade delete of itinerary, got %v", err)
	}
}

func TestPhotoURL(t *testing.T) {
	base := "https://cdn.example.com/storage/"
	cases := []struct {
		photo string
		want  string
	}{
		{"https://images.example.com/a.jpg", "https://images.example.com/a.jpg"},
		{"kyoto.jpg", base + "destinations/kyoto.jpg"},
		{"destinations/kyoto.jpg", base + "destinations/kyoto.jpg"},
		{"/destinations/kyoto.jpg", base + "destinations/kyoto.jpg"},
	}
	for _, tc := range cases {
		photo := tc.photo
		if got := PhotoURL(base, &photo); got != tc.want {
			t.Errorf("PhotoURL(%q) = %q, want %q", tc.photo, got, tc.want)
		}
	}
	if PhotoURL(base, nil) != "" {
		t.Error("Expected empty URL for nil photo")
	}
}
