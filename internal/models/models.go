package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const DateLayout = "2006-01-02"

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Destination struct {
	ID            int       `json:"id"`
	Title         string    `json:"title"`
	DepartureDate Date      `json:"departure_date"`
	Budget        Decimal   `json:"budget"`
	DurationDays  int       `json:"duration_days"`
	IsAchieved    bool      `json:"is_achieved"`
	Photo         *string   `json:"photo"`
	CreatedAt     time.Time `json:"created_at"`
}

type Itinerary struct {
	ID            int     `json:"id"`
	DestinationID int     `json:"destination_id"`
	DayNumber     int     `json:"day_number"`
	Location      string  `json:"location"`
	Description   string  `json:"description"`
	ScheduleTime  *string `json:"schedule_time"`
	Activities    *string `json:"activities"`
}

// Time returns the schedule time as zero-padded HH:MM, or "00:00" when none
// is set. Padding keeps string comparison in schedule order.
func (i Itinerary) Time() string {
	if i.ScheduleTime == nil || *i.ScheduleTime == "" {
		return "00:00"
	}
	return ClockTime(*i.ScheduleTime)
}

// ClockTime normalizes "9:30", "09:30" or "09:30:00" to "09:30". Values that
// do not parse are returned trimmed to five characters.
func ClockTime(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04")
		}
	}
	if len(s) > 5 {
		s = s[:5]
	}
	return s
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD and the API's datetime form, keeping the date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Decimal holds a monetary amount that the API may encode as a number or a string.
type Decimal float64

func (d Decimal) String() string {
	return strconv.FormatFloat(float64(d), 'f', 2, 64)
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %s: %w", data, err)
	}
	*d = Decimal(f)
	return nil
}

// DestinationInput is the payload for creating or fully updating a destination.
type DestinationInput struct {
	Title         string
	DepartureDate Date
	Budget        Decimal
	DurationDays  int
	IsAchieved    bool
	Photo         *Upload
}

// Upload is an optional binary attachment sent as a multipart file part.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BulkFields are the fields a bulk update may set; nil fields are left alone.
type BulkFields struct {
	IsAchieved *bool `json:"is_achieved,omitempty"`
}

type ItineraryInput struct {
	DestinationID int     `json:"destination_id"`
	DayNumber     int     `json:"day_number"`
	Location      string  `json:"location"`
	Description   string  `json:"description"`
	ScheduleTime  *string `json:"schedule_time"`
	Activities    *string `json:"activities"`
}

type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// StoredSession is a browser session row in the local store.
type StoredSession struct {
	ID        string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type CSRFToken struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
