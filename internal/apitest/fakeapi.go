// Package apitest runs an in-memory implementation of the travel API for tests.
package apitest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wanderplan/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	DemoEmail    = "adrenalin@gmail.com"
	DemoPassword = "adrenalin"
	DemoName     = "Adrenalin"
)

type account struct {
	user     models.User
	password string
}

// Server is a fake API mounted under /api.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	accounts     map[string]*account
	tokens       map[string]int
	destinations map[int]*models.Destination
	itineraries  map[int]*models.Itinerary
	nextID       int
	nextToken    int

	requests        atomic.Int64
	itineraryFaults atomic.Int64
	logouts         atomic.Int64
}

func NewServer() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		accounts:     make(map[string]*account),
		tokens:       make(map[string]int),
		destinations: make(map[int]*models.Destination),
		itineraries:  make(map[int]*models.Itinerary),
		nextID:       1,
	}
	s.accounts[DemoEmail] = &account{
		user:     models.User{ID: s.allocID(), Name: DemoName, Email: DemoEmail},
		password: DemoPassword,
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		s.requests.Add(1)
		c.Next()
	})

	api := r.Group("/api")
	api.POST("/login", s.login)
	api.POST("/register", s.register)

	protected := api.Group("/")
	protected.Use(s.requireToken)
	{
		protected.GET("/user", s.currentUser)
		protected.POST("/logout", s.logout)

		protected.GET("/destinations", s.listDestinations)
		protected.POST("/destinations", s.createDestination)
		protected.POST("/destinations/bulk-delete", s.bulkDelete)
		protected.POST("/destinations/bulk-update", s.bulkUpdate)
		protected.GET("/destinations/:id", s.getDestination)
		protected.POST("/destinations/:id", s.updateDestination)
		protected.DELETE("/destinations/:id", s.deleteDestination)
		protected.GET("/destinations/:id/itineraries", s.listItineraries)

		protected.POST("/itineraries", s.createItinerary)
		protected.GET("/itineraries/:id", s.getItinerary)
		protected.PUT("/itineraries/:id", s.updateItinerary)
		protected.DELETE("/itineraries/:id", s.deleteItinerary)
	}

	s.Server = httptest.NewServer(r)
	return s
}

// BaseURL is the API root clients should be pointed at.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Requests is the number of calls served so far.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) Logouts() int64 {
	return s.logouts.Load()
}

// FailItineraryFetches makes the next n itinerary list calls answer 500.
func (s *Server) FailItineraryFetches(n int) {
	s.itineraryFaults.Store(int64(n))
}

// IssueToken returns a valid token for the demo account.
func (s *Server) IssueToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueTokenLocked(s.accounts[DemoEmail].user.ID)
}

// Revoke invalidates token so later calls with it answer 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// RevokeAll invalidates every issued token, as a server-side expiry would.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.tokens = make(map[string]int)
	s.mu.Unlock()
}

// Seed stores a destination owned by nobody in particular and returns it.
func (s *Server) Seed(d models.Destination) models.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.allocID()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.destinations[d.ID] = &d
	return d
}

func (s *Server) SeedItinerary(it models.Itinerary) models.Itinerary {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.allocID()
	s.itineraries[it.ID] = &it
	return it
}

func (s *Server) Destination(id int) (models.Destination, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.destinations[id]
	if !ok {
		return models.Destination{}, false
	}
	return *d, true
}

func (s *Server) allocID() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) issueTokenLocked(userID int) string {
	s.nextToken++
	token := fmt.Sprintf("%d|token%08d", userID, s.nextToken)
	s.tokens[token] = userID
	return token
}

func (s *Server) requireToken(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")

	s.mu.Lock()
	userID, ok := s.tokens[token]
	s.mu.Unlock()

	if header == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
		return
	}
	c.Set("token", token)
	c.Set("user_id", userID)
	c.Next()
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[req.Email]
	if !ok || acc.password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": acc.user, "token": s.issueTokenLocked(acc.user.ID)})
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}

	errs := map[string][]string{}
	if req.Name == "" {
		errs["name"] = []string{"The name field is required."}
	}
	if req.Password != req.PasswordConfirmation {
		errs["password"] = []string{"The password field confirmation does not match."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.accounts[req.Email]; taken {
		errs["email"] = []string{"The email has already been taken."}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
		return
	}

	acc := &account{
		user:     models.User{ID: s.allocID(), Name: req.Name, Email: req.Email},
		password: req.Password,
	}
	s.accounts[req.Email] = acc
	c.JSON(http.StatusCreated, gin.H{"user": acc.user, "token": s.issueTokenLocked(acc.user.ID)})
}

func (s *Server) currentUser(c *gin.Context) {
	userID := c.GetInt("user_id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acc := range s.accounts {
		if acc.user.ID == userID {
			c.JSON(http.StatusOK, acc.user)
			return
		}
	}
	c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
}

func (s *Server) logout(c *gin.Context) {
	s.logouts.Add(1)
	s.Revoke(c.GetString("token"))
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (s *Server) listDestinations(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]models.Destination, 0, len(s.destinations))
	for _, d := range s.destinations {
		list = append(list, *d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) getDestination(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.destinations[paramID(c)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Destination not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) createDestination(c *gin.Context) {
	d := &models.Destination{}
	if errs := s.applyDestinationForm(c, d, true); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = s.allocID()
	d.CreatedAt = time.Now().UTC()
	s.destinations[d.ID] = d
	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (s *Server) updateDestination(c *gin.Context) {
	if c.PostForm("_method") != http.MethodPut {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "Method not allowed"})
		return
	}

	s.mu.Lock()
	existing, ok := s.destinations[paramID(c)]
	var working models.Destination
	if ok {
		working = *existing
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Destination not found"})
		return
	}

	if errs := s.applyDestinationForm(c, &working, false); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[working.ID] = &working
	c.JSON(http.StatusOK, gin.H{"data": working})
}

// applyDestinationForm validates the fields present in the form; on create
// every field is required.
func (s *Server) applyDestinationForm(c *gin.Context, d *models.Destination, create bool) map[string][]string {
	errs := map[string][]string{}
	has := func(key string) bool {
		_, ok := c.GetPostForm(key)
		return ok
	}

	if create || has("title") {
		title := c.PostForm("title")
		if len(title) < 3 {
			errs["title"] = []string{"The title field must be at least 3 characters."}
		}
		d.Title = title
	}
	if create || has("departure_date") {
		date, err := models.ParseDate(c.PostForm("departure_date"))
		if err != nil {
			errs["departure_date"] = []string{"The departure date field must be a valid date."}
		}
		d.DepartureDate = date
	}
	if create || has("budget") {
		budget, err := strconv.ParseFloat(c.PostForm("budget"), 64)
		if err != nil || budget <= 0 {
			errs["budget"] = []string{"The budget field must be greater than 0."}
		}
		d.Budget = models.Decimal(budget)
	}
	if create || has("duration_days") {
		days, err := strconv.Atoi(c.PostForm("duration_days"))
		if err != nil || days < 1 || days > 365 {
			errs["duration_days"] = []string{"The duration days field must be between 1 and 365."}
		}
		d.DurationDays = days
	}
	if has("is_achieved") {
		d.IsAchieved = c.PostForm("is_achieved") == "1"
	}
	if file, err := c.FormFile("photo"); err == nil {
		f, err := file.Open()
		if err == nil {
			io.Copy(io.Discard, f)
			f.Close()
		}
		name := "destinations/" + file.Filename
		d.Photo = &name
	}
	return errs
}

func (s *Server) deleteDestination(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := paramID(c)
	if _, ok := s.destinations[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Destination not found"})
		return
	}
	s.deleteDestinationLocked(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDestinationLocked(id int) {
	delete(s.destinations, id)
	for itID, it := range s.itineraries {
		if it.DestinationID == id {
			delete(s.itineraries, itID)
		}
	}
}

func (s *Server) bulkDelete(c *gin.Context) {
	var req struct {
		IDs []int `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The ids field is required."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.IDs {
		s.deleteDestinationLocked(id)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Destinations deleted"})
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req struct {
		IDs        []int `json:"ids"`
		IsAchieved *bool `json:"is_achieved"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The ids field is required."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range req.IDs {
		if d, ok := s.destinations[id]; ok && req.IsAchieved != nil {
			d.IsAchieved = *req.IsAchieved
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Destinations updated"})
}

func (s *Server) listItineraries(c *gin.Context) {
	if s.itineraryFaults.Load() > 0 {
		s.itineraryFaults.Add(-1)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	destinationID := paramID(c)
	if _, ok := s.destinations[destinationID]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Destination not found"})
		return
	}

	list := make([]models.Itinerary, 0)
	for _, it := range s.itineraries {
		if it.DestinationID == destinationID {
			list = append(list, *it)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (s *Server) getItinerary(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itineraries[paramID(c)]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Itinerary not found"})
		return
	}
	c.JSON(http.StatusOK, it)
}

func (s *Server) createItinerary(c *gin.Context) {
	var input models.ItineraryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	if errs := validateItinerary(input); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.destinations[input.DestinationID]; !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.",
			"errors": map[string][]string{"destination_id": {"The selected destination id is invalid."}}})
		return
	}
	it := itineraryFromInput(s.allocID(), input)
	s.itineraries[it.ID] = &it
	c.JSON(http.StatusCreated, gin.H{"data": it})
}

func (s *Server) updateItinerary(c *gin.Context) {
	var input models.ItineraryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request"})
		return
	}
	if errs := validateItinerary(input); len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "The given data was invalid.", "errors": errs})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := paramID(c)
	existing, ok := s.itineraries[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Itinerary not found"})
		return
	}
	if input.DestinationID == 0 {
		input.DestinationID = existing.DestinationID
	}
	it := itineraryFromInput(id, input)
	s.itineraries[id] = &it
	c.JSON(http.StatusOK, gin.H{"data": it})
}

func (s *Server) deleteItinerary(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := paramID(c)
	if _, ok := s.itineraries[id]; !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Itinerary not found"})
		return
	}
	delete(s.itineraries, id)
	c.Status(http.StatusNoContent)
}

func validateItinerary(input models.ItineraryInput) map[string][]string {
	errs := map[string][]string{}
	if input.DayNumber < 1 {
		errs["day_number"] = []string{"The day number field must be at least 1."}
	}
	if input.Location == "" {
		errs["location"] = []string{"The location field is required."}
	}
	if input.Description == "" {
		errs["description"] = []string{"The description field is required."}
	}
	return errs
}

func itineraryFromInput(id int, input models.ItineraryInput) models.Itinerary {
	return models.Itinerary{
		ID:            id,
		DestinationID: input.DestinationID,
		DayNumber:     input.DayNumber,
		Location:      input.Location,
		Description:   input.Description,
		ScheduleTime:  input.ScheduleTime,
		Activities:    input.Activities,
	}
}

func paramID(c *gin.Context) int {
	id, _ := strconv.Atoi(c.Param("id"))
	return id
}
