package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/screening"
)

type errorBody struct {
	Error          string   `json:"error"`
	URL            string   `json:"url,omitempty"`
	SuspiciousURLs []string `json:"suspicious_urls,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Screening outcomes carry
// the offending URLs so the client can explain the rejection or ask the
// sender to confirm.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		unsafe     *screening.UnsafeURLError
		suspicious *screening.SuspiciousURLError
	)
	switch {
	case errors.As(err, &unsafe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: unsafe.Error(), URL: unsafe.URL})
	case errors.As(err, &suspicious):
		writeJSON(w, http.StatusConflict, errorBody{Error: suspicious.Error(), SuspiciousURLs: suspicious.URLs})
	case errors.Is(err, screening.ErrCheckFailed):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "Failed to check the URL."})
	default:
		code := apperr.CodeOf(err)
		status := apperr.HTTPStatus(code)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("code", string(code)).Msg("request failed")
		}
		writeJSON(w, status, errorBody{Error: apperr.Message(err)})
	}
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.InvalidArg("Invalid request body")
	}
	return nil
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

// readUpload reads the multipart field "file", allowing one byte more than
// the image limit so the service can reject oversized files.
func readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, chat.MaxImageBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.InvalidArg("Image size should be less than 5MB")
		}
		return nil, apperr.InvalidArg("No file uploaded")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, chat.MaxImageBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read upload", err)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &upload{name: header.Filename, contentType: contentType, data: data}, nil
}
