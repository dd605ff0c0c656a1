package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestLoginSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "a@mail.com" || r.PostForm.Get("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token":"tok-123"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	token, err := c.Login(context.Background(), "a@mail.com", "pw")
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("expected tok-123, got %s", token)
	}
}

func TestLoginRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.Login(context.Background(), "a@mail.com", "bad")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestGuestTokenRegistersOnce(t *testing.T) {
	var logins, registers atomic.Int32
	registered := atomic.Bool{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			logins.Add(1)
			if !registered.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"access_token":"guest-tok"}`))
		case "/api/users/register":
			registers.Add(1)
			registered.Store(true)
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	token, err := c.GuestToken(context.Background(), "guest-7@guest.com", "pw7")
	if err != nil {
		t.Fatalf("guest token error: %v", err)
	}
	if token != "guest-tok" {
		t.Errorf("expected guest-tok, got %s", token)
	}
	if logins.Load() != 2 {
		t.Errorf("expected 2 login attempts, got %d", logins.Load())
	}
	if registers.Load() != 1 {
		t.Errorf("expected 1 registration, got %d", registers.Load())
	}
}

func TestGuestTokenNoSecondRetry(t *testing.T) {
	var logins atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			logins.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		case "/api/users/register":
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	_, err := c.GuestToken(context.Background(), "guest-7@guest.com", "pw7")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}
	if logins.Load() != 2 {
		t.Errorf("expected exactly 2 login attempts, got %d", logins.Load())
	}
}

func TestDevToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/dev_only_get_jwt/tester-0@mail.com" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`"dev-tok"`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	token, err := c.DevToken(context.Background(), "tester-0@mail.com")
	if err != nil {
		t.Fatalf("dev token error: %v", err)
	}
	if token != "dev-tok" {
		t.Errorf("expected dev-tok, got %s", token)
	}
}

func TestCreateSession(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/create" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer owner-tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			SurveyID int  `json:"survey_id"`
			IsPublic bool `json:"is_public"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.SurveyID != 1 || !body.IsPublic {
			t.Errorf("unexpected body: %+v", body)
		}
		w.Write([]byte(`{"join_code":"XYZ789"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	code, err := c.CreateSession(context.Background(), "owner-tok", 1, true)
	if err != nil {
		t.Fatalf("create session error: %v", err)
	}
	if code != "XYZ789" {
		t.Errorf("expected XYZ789, got %s", code)
	}
}
