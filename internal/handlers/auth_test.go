package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/safechathub/safechat/internal/auth"
)

func TestSignup(t *testing.T) {
	s := newTestServer(t)

	body := map[string]string{
		"username": "testuser",
		"email":    "testuser@example.com",
		"password": "Password123",
	}
	rr := s.do(t, "POST", "/signup", body, nil)
	if status := rr.Code; status != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v", status, http.StatusCreated)
	}

	var reg struct {
		User       map[string]any `json:"user"`
		OTPAuthURI string         `json:"otpauth_uri"`
	}
	decodeBody(t, rr, &reg)
	if reg.OTPAuthURI == "" {
		t.Error("Expected an otpauth URI")
	}
	if _, ok := reg.User["password"]; ok {
		t.Error("Password hash must not be returned")
	}

	// Test duplicate user
	rr = s.do(t, "POST", "/signup", body, nil)
	if status := rr.Code; status != http.StatusConflict {
		t.Errorf("handler returned wrong status code for duplicate user: got %v want %v",
			status, http.StatusConflict)
	}

	body["username"], body["email"] = "other", "bad-email"
	rr = s.do(t, "POST", "/signup", body, nil)
	if status := rr.Code; status != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code for bad email: got %v want %v",
			status, http.StatusBadRequest)
	}
	var errResp map[string]string
	decodeBody(t, rr, &errResp)
	if errResp["error"] != "Invalid email format!" {
		t.Errorf("Unexpected error message: %q", errResp["error"])
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.register(t, "testuser")
	stored, err := s.store.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatal(err)
	}
	code, err := auth.TOTPCode(stored.Secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	creds := Credentials{Email: "testuser@example.com", Password: "Secret123", Code: code}
	rr := s.do(t, "POST", "/login", creds, nil)
	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v: %s", status, http.StatusOK, rr.Body.String())
	}

	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	if session == nil {
		t.Fatal("Expected session cookie to be set")
	}
	if !session.HttpOnly {
		t.Error("Expected session cookie to be HttpOnly")
	}

	rr = s.do(t, "GET", "/me", nil, session)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected /me to succeed with the session cookie, got %v", rr.Code)
	}

	creds.Password = "Wrong123"
	rr = s.do(t, "POST", "/login", creds, nil)
	if status := rr.Code; status != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code for bad password: got %v want %v",
			status, http.StatusUnauthorized)
	}
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, "POST", "/logout", nil, nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNoContent)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("Expected the session cookie to be cleared, got %v", cookies)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/me", "/chats", "/groups", "/users/search?q=a"} {
		rr := s.do(t, "GET", path, nil, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: got %v want %v", path, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestPasswordFlows(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.register(t, "testuser")

	rr := s.do(t, "POST", "/password/change", map[string]string{
		"current_password": "Secret123",
		"new_password":     "weak",
		"confirm_password": "weak",
	}, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected weak password to be rejected, got %v", rr.Code)
	}

	rr = s.do(t, "POST", "/password/change", map[string]string{
		"current_password": "Secret123",
		"new_password":     "NewSecret123",
		"confirm_password": "NewSecret123",
	}, cookie)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected password change to succeed, got %v: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, "POST", "/password/forgot", map[string]string{"email": "nobody@example.com", "code": "123456"}, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected unknown email to be rejected, got %v", rr.Code)
	}

	rr = s.do(t, "POST", "/password/reset", map[string]string{"token": "missing", "password": "Brand-new-Pass1"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected unknown token to be rejected, got %v", rr.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.register(t, "alice")
	s.register(t, "alex")

	rr := s.do(t, "GET", "/users/search?q=al", nil, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v", rr.Code)
	}
	var users []map[string]any
	decodeBody(t, rr, &users)
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}
