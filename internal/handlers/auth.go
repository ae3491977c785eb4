package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/middleware"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

type AuthHandler struct {
	Chat   *chat.Service
	Signer *auth.Signer
	Log    zerolog.Logger
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	type SignupRequest struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req SignupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	reg, err := h.Chat.Register(r.Context(), chat.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := decode(r, &creds); err != nil {
		writeError(w, h.Log, err)
		return
	}

	user, err := h.Chat.Login(r.Context(), creds.Email, creds.Password, creds.Code)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	http.SetCookie(w, h.Signer.SessionCookie(user.ID))
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.Signer.ClearCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.Chat.Me(r.Context(), middleware.UserID(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	if err := h.Chat.ForgotPassword(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset link sent to your email."})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	if err := h.Chat.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset successfully."})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
		Confirm string `json:"confirm_password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	if err := h.Chat.ChangePassword(r.Context(), middleware.UserID(r), req.Current, req.New, req.Confirm); err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

func (h *AuthHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	avatar, err := h.Chat.UpdateAvatar(r.Context(), middleware.UserID(r), up.name, up.contentType, up.data)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"avatar": avatar})
}

func (h *AuthHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Chat.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
