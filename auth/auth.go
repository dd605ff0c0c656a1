package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrAuthenticationFailed covers a rejected login, after the single
	// register-and-retry pass for guest identities.
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed")
)

// Client exchanges an email/password pair for a bearer token against the
// survey backend's REST surface, and creates sessions on behalf of a
// controller. It keeps no state besides the base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login performs the credential exchange. The backend expects a
// form-urlencoded username/password body and answers {"access_token": ...}.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/users/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login status %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", ErrAuthenticationFailed
	}
	return body.AccessToken, nil
}

// Register creates an account for email.
func (c *Client) Register(ctx context.Context, email, password string) error {
	payload, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/users/register", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d", ErrRegistrationFailed, resp.StatusCode)
	}
	return nil
}

// GuestToken logs a synthetic identity in, registering it first when the
// account does not exist yet. Exactly one retry; a second login failure
// propagates as ErrAuthenticationFailed.
func (c *Client) GuestToken(ctx context.Context, email, password string) (string, error) {
	token, err := c.Login(ctx, email, password)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, ErrAuthenticationFailed) {
		return "", err
	}

	if err := c.Register(ctx, email, password); err != nil {
		return "", err
	}
	return c.Login(ctx, email, password)
}

// DevToken fetches a token without credentials from the dev-only route.
func (c *Client) DevToken(ctx context.Context, email string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/users/dev_only_get_jwt/"+url.PathEscape(email), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: dev token status %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var token string
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	return token, nil
}

// CreateSession starts a live session for a survey and returns its join code.
func (c *Client) CreateSession(ctx context.Context, token string, surveyID int, isPublic bool) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"survey_id": surveyID,
		"is_public": isPublic,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions/create", strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("session create status %d", resp.StatusCode)
	}

	var body struct {
		JoinCode string `json:"join_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.JoinCode, nil
}
