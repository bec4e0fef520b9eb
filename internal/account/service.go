package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/solvemate/solvemate-api/internal/config"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// APIError is an error response from the auth backend, surfaced with its
// upstream status so handlers can pass it through.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth backend returned %d: %s", e.Status, e.Message)
}

// Service talks to a GoTrue-compatible auth backend and handles the Google
// sign-in code exchange. The server never stores credentials; tokens are
// minted upstream and handed straight back to the client.
type Service struct {
	httpClient *http.Client
	baseURL    string
	anonKey    string
	serviceKey string
	google     *oauth2.Config
	logger     *logger.Logger
}

func NewService(cfg *config.Config, log *logger.Logger) *Service {
	var googleCfg *oauth2.Config
	if cfg.GoogleClientID != "" {
		googleCfg = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}

	return &Service{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(cfg.AuthBaseURL, "/"),
		anonKey:    cfg.AuthAnonKey,
		serviceKey: cfg.AuthServiceKey,
		google:     googleCfg,
		logger:     log.WithComponent("account"),
	}
}

// do sends one request to the auth backend. bearer defaults to the anon key
// when empty; out may be nil for calls whose body is irrelevant.
func (s *Service) do(ctx context.Context, method, path string, bearer string, body interface{}, out interface{}) error {
	if s.baseURL == "" {
		return fmt.Errorf("auth backend is not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode auth request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}

	if bearer == "" {
		bearer = s.anonKey
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: decodeErrorMessage(payload)}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode auth response: %w", err)
		}
	}
	return nil
}

// decodeErrorMessage pulls a human message out of the backend's several
// error body shapes.
func decodeErrorMessage(payload []byte) string {
	var body struct {
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		for _, m := range []string{body.ErrorDescription, body.Message, body.Msg, body.Error} {
			if m != "" {
				return m
			}
		}
	}
	return "authentication failed"
}

// SignUp registers a new email/password account. Depending on backend
// confirmation settings the response may already carry a session.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := s.do(ctx, http.MethodPost, "/signup", "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SignInWithPassword exchanges credentials for a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := s.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SendOTP emails a one-time code. createUser controls whether an unknown
// address is signed up on the fly.
func (s *Service) SendOTP(ctx context.Context, email string, createUser bool) error {
	return s.do(ctx, http.MethodPost, "/otp", "", map[string]interface{}{
		"email":       email,
		"create_user": createUser,
	}, nil)
}

// VerifyOTP redeems an emailed code for a session. otpType is "email" or
// "recovery".
func (s *Service) VerifyOTP(ctx context.Context, email, token, otpType string) (*Session, error) {
	var session Session
	err := s.do(ctx, http.MethodPost, "/verify", "", map[string]string{
		"email": email,
		"token": token,
		"type":  otpType,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Recover starts the password reset flow.
func (s *Service) Recover(ctx context.Context, email string) error {
	return s.do(ctx, http.MethodPost, "/recover", "", map[string]string{
		"email": email,
	}, nil)
}

// Refresh exchanges a refresh token for a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := s.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdatePassword changes the password of the caller identified by their
// access token.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return s.do(ctx, http.MethodPut, "/user", accessToken, map[string]string{
		"password": password,
	}, nil)
}

// Profile fetches the caller's account record.
func (s *Service) Profile(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := s.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the caller's refresh tokens.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	return s.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// DeleteUser removes an account with the service role key.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if s.serviceKey == "" {
		return fmt.Errorf("service role key is not configured")
	}
	return s.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), s.serviceKey, nil, nil)
}

// GoogleAuthURL returns the consent page URL for the Google sign-in flow.
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", fmt.Errorf("google sign-in is not configured")
	}
	return s.google.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// ExchangeGoogleCode redeems the OAuth code and signs the Google identity
// in upstream via the id_token grant.
func (s *Service) ExchangeGoogleCode(ctx context.Context, code string) (*Session, error) {
	if s.google == nil {
		return nil, fmt.Errorf("google sign-in is not configured")
	}

	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("google token response carried no id_token")
	}

	var session Session
	err = s.do(ctx, http.MethodPost, "/token?grant_type=id_token", "", map[string]string{
		"id_token": idToken,
		"provider": "google",
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
