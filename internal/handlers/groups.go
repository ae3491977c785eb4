package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/middleware"
)

type GroupHandler struct {
	Chat *chat.Service
	Log  zerolog.Logger
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	group, err := h.Chat.CreateGroup(r.Context(), middleware.UserID(r), req.Name, req.Members)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Chat.ListGroupChats(r.Context(), middleware.UserID(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.Chat.GetGroup(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// SelectGroup opens a group and marks it seen for the caller.
func (h *GroupHandler) SelectGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.Chat.SelectGroup(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	group, err := h.Chat.AddGroupParticipant(r.Context(), middleware.UserID(r), mux.Vars(r)["id"], req.UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.Chat.RemoveGroupParticipant(r.Context(), middleware.UserID(r), vars["id"], vars["userId"]); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	msg, err := h.Chat.SendGroup(r.Context(), chat.SendInput{
		ChatID:            mux.Vars(r)["id"],
		SenderID:          middleware.UserID(r),
		Text:              req.Text,
		ImageURL:          req.ImageURL,
		ConfirmSuspicious: req.ConfirmSuspicious,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
