package planner

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"wanderplan/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	MaxBudget     = 1_000_000_000
	MaxTripDays   = 365
	MaxPhotoBytes = 2 << 20
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldErrors maps a form field name to its message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	return fmt.Sprintf("invalid fields: %s", strings.Join(keys, ", "))
}

type DestinationForm struct {
	Title         string `form:"title" validate:"required,min=3,max=255"`
	DepartureDate string `form:"departure_date" validate:"required,datetime=2006-01-02"`
	Budget        string `form:"budget" validate:"required,budget"`
	DurationDays  string `form:"duration_days" validate:"required,trip_days"`
	IsAchieved    bool   `form:"is_achieved"`
}

type ItineraryForm struct {
	DayNumber    string `form:"day_number" validate:"required,day_number"`
	Location     string `form:"location" validate:"required,max=255"`
	Description  string `form:"description" validate:"required"`
	ScheduleTime string `form:"schedule_time" validate:"omitempty,datetime=15:04"`
	Activities   string `form:"activities"`
}

type LoginForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required"`
}

type RegisterForm struct {
	Name                 string `form:"name" validate:"required,max=255"`
	Email                string `form:"email" validate:"required,email"`
	Password             string `form:"password" validate:"required,min=8"`
	PasswordConfirmation string `form:"password_confirmation" validate:"required,eqfield=Password"`
}

var labels = map[string]string{
	"title":                 "Title",
	"departure_date":        "Departure date",
	"budget":                "Budget",
	"duration_days":         "Duration",
	"day_number":            "Day",
	"location":              "Location",
	"description":           "Description",
	"schedule_time":         "Time",
	"email":                 "Email",
	"password":              "Password",
	"password_confirmation": "Password confirmation",
	"name":                  "Name",
}

// GetValidator returns the shared validator with the trip rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		v.RegisterValidation("budget", func(fl validator.FieldLevel) bool {
			b, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
			return err == nil && b > 0 && b <= MaxBudget
		})
		v.RegisterValidation("trip_days", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
			return err == nil && n >= 1 && n <= MaxTripDays
		})
		v.RegisterValidation("day_number", func(fl validator.FieldLevel) bool {
			n, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
			return err == nil && n >= 1
		})
		validate = v
	})
	return validate
}

// Validate checks form and returns nil or the per-field messages.
func Validate(form interface{}) FieldErrors {
	err := GetValidator().Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{"general": err.Error()}
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; !seen {
			out[fe.Field()] = messageFor(fe)
		}
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	label, ok := labels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be %s characters or less", label, fe.Param())
	case "email":
		return "Please enter a valid email address"
	case "datetime":
		if fe.Param() == "15:04" {
			return label + " must be a valid time (HH:MM)"
		}
		return label + " must be a valid date"
	case "budget":
		return "Budget must be greater than 0 and at most 1,000,000,000"
	case "trip_days":
		return fmt.Sprintf("Duration must be between 1 and %d days", MaxTripDays)
	case "day_number":
		return "Day must be a whole number of at least 1"
	case "eqfield":
		return "Passwords do not match"
	default:
		return label + " is invalid"
	}
}

// Input converts a validated form into the service payload.
func (f DestinationForm) Input() (models.DestinationInput, error) {
	date, err := models.ParseDate(f.DepartureDate)
	if err != nil {
		return models.DestinationInput{}, err
	}
	budget, err := strconv.ParseFloat(strings.TrimSpace(f.Budget), 64)
	if err != nil {
		return models.DestinationInput{}, fmt.Errorf("invalid budget: %w", err)
	}
	days, err := strconv.Atoi(strings.TrimSpace(f.DurationDays))
	if err != nil {
		return models.DestinationInput{}, fmt.Errorf("invalid duration: %w", err)
	}
	return models.DestinationInput{
		Title:         strings.TrimSpace(f.Title),
		DepartureDate: date,
		Budget:        models.Decimal(budget),
		DurationDays:  days,
		IsAchieved:    f.IsAchieved,
	}, nil
}

// FormFromDestination prefills an edit form.
func FormFromDestination(d models.Destination) DestinationForm {
	return DestinationForm{
		Title:         d.Title,
		DepartureDate: d.DepartureDate.String(),
		Budget:        d.Budget.String(),
		DurationDays:  strconv.Itoa(d.DurationDays),
		IsAchieved:    d.IsAchieved,
	}
}

func (f ItineraryForm) Input(destinationID int) (models.ItineraryInput, error) {
	day, err := strconv.Atoi(strings.TrimSpace(f.DayNumber))
	if err != nil {
		return models.ItineraryInput{}, fmt.Errorf("invalid day number: %w", err)
	}
	return models.ItineraryInput{
		DestinationID: destinationID,
		DayNumber:     day,
		Location:      strings.TrimSpace(f.Location),
		Description:   strings.TrimSpace(f.Description),
		ScheduleTime:  scheduleTime(f.ScheduleTime),
		Activities:    optional(f.Activities),
	}, nil
}

func FormFromItinerary(it models.Itinerary) ItineraryForm {
	form := ItineraryForm{
		DayNumber:   strconv.Itoa(it.DayNumber),
		Location:    it.Location,
		Description: it.Description,
	}
	if it.ScheduleTime != nil {
		form.ScheduleTime = it.Time()
	}
	if it.Activities != nil {
		form.Activities = *it.Activities
	}
	return form
}

var allowedPhotoTypes = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ValidatePhoto returns a message when an uploaded photo is unacceptable.
func ValidatePhoto(filename string, size int64) string {
	if !allowedPhotoTypes[strings.ToLower(filepath.Ext(filename))] {
		return "Photo must be a JPEG, PNG, GIF or WebP image"
	}
	if size > MaxPhotoBytes {
		return "Photo must be 2 MB or smaller"
	}
	return ""
}

func scheduleTime(s string) *string {
	t := optional(s)
	if t == nil {
		return nil
	}
	padded := models.ClockTime(*t)
	return &padded
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
