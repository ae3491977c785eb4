package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/middleware"
	"github.com/safechathub/safechat/internal/proxy"
)

// Routes bundles everything NewRouter mounts.
type Routes struct {
	Auth    *AuthHandler
	Chats   *ChatHandler
	Groups  *GroupHandler
	Uploads *UploadHandler
	// CheckURL is optional. The chat server mounts it when it screens through
	// the in-process upstream.
	CheckURL *proxy.Handler
	Signer   *auth.Signer
	Log      zerolog.Logger
}

func NewRouter(rt Routes) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(rt.Log))

	// Public endpoints
	r.HandleFunc("/signup", rt.Auth.Signup).Methods("POST")
	r.HandleFunc("/login", rt.Auth.Login).Methods("POST")
	r.HandleFunc("/logout", rt.Auth.Logout).Methods("POST")
	r.HandleFunc("/password/forgot", rt.Auth.ForgotPassword).Methods("POST")
	r.HandleFunc("/password/reset", rt.Auth.ResetPassword).Methods("POST")
	r.HandleFunc("/uploads/{key}", rt.Uploads.Serve).Methods("GET")
	if rt.CheckURL != nil {
		r.HandleFunc("/check-url", rt.CheckURL.CheckURL).Methods("GET")
	}

	api := r.NewRoute().Subrouter()
	api.Use(middleware.AuthMiddleware(rt.Signer))

	api.HandleFunc("/me", rt.Auth.Me).Methods("GET")
	api.HandleFunc("/me/avatar", rt.Auth.UpdateAvatar).Methods("PUT")
	api.HandleFunc("/password/change", rt.Auth.ChangePassword).Methods("POST")
	api.HandleFunc("/users/search", rt.Auth.SearchUsers).Methods("GET")

	api.HandleFunc("/chats", rt.Chats.CreateChat).Methods("POST")
	api.HandleFunc("/chats", rt.Chats.GetChats).Methods("GET")
	api.HandleFunc("/chats/{id}", rt.Chats.GetChat).Methods("GET")
	api.HandleFunc("/chats/{id}", rt.Chats.DeleteChat).Methods("DELETE")
	api.HandleFunc("/chats/{id}/select", rt.Chats.SelectChat).Methods("POST")
	api.HandleFunc("/chats/{id}/block", rt.Chats.ToggleBlock).Methods("POST")
	api.HandleFunc("/chats/{id}/messages", rt.Chats.SendMessage).Methods("POST")
	api.HandleFunc("/chats/{id}/media", rt.Chats.GetMedia).Methods("GET")

	api.HandleFunc("/groups", rt.Groups.CreateGroup).Methods("POST")
	api.HandleFunc("/groups", rt.Groups.GetGroups).Methods("GET")
	api.HandleFunc("/groups/{id}", rt.Groups.GetGroup).Methods("GET")
	api.HandleFunc("/groups/{id}/select", rt.Groups.SelectGroup).Methods("POST")
	api.HandleFunc("/groups/{id}/participants", rt.Groups.AddParticipant).Methods("POST")
	api.HandleFunc("/groups/{id}/participants/{userId}", rt.Groups.RemoveParticipant).Methods("DELETE")
	api.HandleFunc("/groups/{id}/messages", rt.Groups.SendMessage).Methods("POST")

	api.HandleFunc("/uploads", rt.Uploads.Upload).Methods("POST")
	api.HandleFunc("/ws", rt.Chats.ServeWs).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	return r
}
