package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/objectstore"
)

type ObjectGetter interface {
	Get(ctx context.Context, key string) (*objectstore.Object, error)
}

type UploadHandler struct {
	Chat    *chat.Service
	Objects ObjectGetter
	Log     zerolog.Logger
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	url, err := h.Chat.Upload(r.Context(), up.name, up.contentType, up.data)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	obj, err := h.Objects.Get(r.Context(), mux.Vars(r)["key"])
	if errors.Is(err, objectstore.ErrNotFound) {
		writeError(w, h.Log, apperr.NotFound("File not found"))
		return
	}
	if err != nil {
		writeError(w, h.Log, apperr.Wrap(apperr.CodeInternal, "failed to load file", err))
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(obj.Data)
}
