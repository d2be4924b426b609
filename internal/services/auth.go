package services

import (
	"context"
	"fmt"

	"wanderplan/internal/apiclient"
	"wanderplan/internal/logger"
	"wanderplan/internal/models"
)

type AuthService struct {
	api *apiclient.Client
}

func NewAuthService(api *apiclient.Client) *AuthService {
	return &AuthService{api: api}
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.AuthResult, error) {
	body, err := s.api.PostJSON(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		logger.Warn("Login request failed", "email", email, "error", err)
		return nil, err
	}
	return decodeAuthResult(body)
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.AuthResult, error) {
	body, err := s.api.PostJSON(ctx, "/register", map[string]string{
		"name":                  name,
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	})
	if err != nil {
		logger.Warn("Register request failed", "email", email, "error", err)
		return nil, err
	}
	return decodeAuthResult(body)
}

// CurrentUser resolves the user behind the token carried by ctx.
func (s *AuthService) CurrentUser(ctx context.Context) (*models.User, error) {
	body, err := s.api.Get(ctx, "/user")
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := apiclient.Decode(body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	if _, err := s.api.PostJSON(ctx, "/logout", nil); err != nil {
		logger.Warn("Logout request failed", "error", err)
		return err
	}
	return nil
}

func decodeAuthResult(body []byte) (*models.AuthResult, error) {
	var result models.AuthResult
	if err := apiclient.Decode(body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("authentication response did not include a token")
	}
	return &result, nil
}
