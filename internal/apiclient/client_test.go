package apiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBearerTokenAttached(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)

	if _, err := c.Get(WithToken(context.Background(), "abc123"), "/user"); err != nil {
		t.Fatal("Request failed:", err)
	}
	if gotAuth != "Bearer abc123" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}

	if _, err := c.Get(context.Background(), "/user"); err != nil {
		t.Fatal("Request failed:", err)
	}
	if gotAuth != "" {
		t.Errorf("Expected no authorization header without token, got %q", gotAuth)
	}
}

func TestUnauthorizedPublishesOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthenticated."}`))
	}))
	defer srv.Close()

	c := New(srv.URL)

	var events []UnauthorizedEvent
	unsubscribe := c.Events().Subscribe(func(e UnauthorizedEvent) {
		events = append(events, e)
	})

	_, err := c.Get(WithToken(context.Background(), "stale"), "/destinations")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if err.Error() != "Unauthenticated." {
		t.Errorf("Expected server message, got %q", err.Error())
	}
	if len(events) != 1 {
		t.Fatalf("Expected exactly one event, got %d", len(events))
	}
	if events[0].Token != "stale" || events[0].Path != "/destinations" {
		t.Errorf("Unexpected event %+v", events[0])
	}

	unsubscribe()
	c.Get(context.Background(), "/destinations")
	if len(events) != 1 {
		t.Errorf("Expected no events after unsubscribe, got %d", len(events))
	}
}

func TestErrorNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"Destination not found"}`))
		case "/invalid":
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message":"The given data was invalid.","errors":{"title":["The title field is required."],"budget":["The budget must be at least 1."]}}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`<html>oops</html>`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	_, err := c.Get(ctx, "/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = c.PostJSON(ctx, "/invalid", map[string]string{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if got := Message(err); got != "The budget must be at least 1. The title field is required." {
		t.Errorf("Unexpected flattened message %q", got)
	}

	_, err = c.Get(ctx, "/boom")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", apiErr.Status)
	}
	if !strings.Contains(apiErr.Message, "500") {
		t.Errorf("Expected fallback message to mention status, got %q", apiErr.Message)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithTimeout(50*time.Millisecond))

	_, err := c.Get(context.Background(), "/slow")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Get(context.Background(), "/user")
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Expected ErrNetwork, got %v", err)
	}
}

func TestMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}
		if r.FormValue("_method") != "PUT" || r.FormValue("title") != "Lisbon" {
			t.Errorf("Unexpected fields %v", r.MultipartForm.Value)
		}
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("Expected photo part: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "tram.jpg" || string(data) != "jpegdata" {
			t.Errorf("Unexpected file %s %q", header.Filename, data)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	form := NewForm().Set("_method", "PUT").Set("title", "Lisbon").File("photo", "tram.jpg", "image/jpeg", []byte("jpegdata"))
	if _, err := New(srv.URL).PostForm(context.Background(), "/destinations/1", form); err != nil {
		t.Fatal("Request failed:", err)
	}
}

func TestDecodeUnwrapsDataEnvelope(t *testing.T) {
	var ids []struct {
		ID int `json:"id"`
	}
	if err := Decode([]byte(`{"data":[{"id":1},{"id":2}]}`), &ids); err != nil {
		t.Fatal("Decode failed:", err)
	}
	if len(ids) != 2 || ids[1].ID != 2 {
		t.Errorf("Unexpected result %+v", ids)
	}

	var one struct {
		ID int `json:"id"`
	}
	if err := Decode([]byte(`{"id":5}`), &one); err != nil {
		t.Fatal("Decode failed:", err)
	}
	if one.ID != 5 {
		t.Errorf("Expected id 5, got %d", one.ID)
	}
}
