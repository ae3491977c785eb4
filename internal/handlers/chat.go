package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/middleware"
	"github.com/safechathub/safechat/internal/ws"
)

type ChatHandler struct {
	Chat     *chat.Service
	Hub      *ws.Hub
	Upgrader *websocket.Upgrader
	Log      zerolog.Logger
}

type AddContactRequest struct {
	Username string `json:"username"`
}

type SendMessageRequest struct {
	Text              string `json:"text"`
	ImageURL          string `json:"image_url"`
	ConfirmSuspicious bool   `json:"confirm_suspicious"`
}

// CreateChat adds a contact by username and opens a thread with them.
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	thread, err := h.Chat.AddContact(r.Context(), middleware.UserID(r), req.Username)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (h *ChatHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.Chat.ListChats(r.Context(), middleware.UserID(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	thread, err := h.Chat.GetThread(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.DeleteContact(r.Context(), middleware.UserID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) SelectChat(w http.ResponseWriter, r *http.Request) {
	state, err := h.Chat.SelectChat(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *ChatHandler) ToggleBlock(w http.ResponseWriter, r *http.Request) {
	state, err := h.Chat.ToggleBlock(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}

	msg, err := h.Chat.Send(r.Context(), chat.SendInput{
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

func (h *ChatHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	media, err := h.Chat.SharedMedia(r.Context(), middleware.UserID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, media)
}

// ServeWs streams the user's chat list, group list and session, plus the
// thread and group named by the "chat" and "group" query parameters.
func (h *ChatHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	topics := []string{ws.UserChatsTopic(userID), ws.UserGroupsTopic(userID), ws.SessionTopic(userID)}

	for _, p := range []struct {
		id    string
		group bool
	}{
		{r.URL.Query().Get("chat"), false},
		{r.URL.Query().Get("group"), true},
	} {
		if p.id == "" {
			continue
		}
		ok, err := h.Chat.CanView(r.Context(), userID, p.id, p.group)
		if err != nil {
			writeError(w, h.Log, apperr.Wrap(apperr.CodeInternal, "failed to check access", err))
			return
		}
		if !ok {
			writeError(w, h.Log, apperr.Forbidden("Forbidden"))
			return
		}
		if p.group {
			topics = append(topics, ws.GroupTopic(p.id))
		} else {
			topics = append(topics, ws.ChatTopic(p.id))
		}
	}

	ws.ServeWs(h.Hub, h.Upgrader, w, r, topics, h.Log.With().Str("user_id", userID).Logger())
}
