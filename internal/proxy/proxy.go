// Package proxy relays URL reputation lookups to the upstream API so the API
// key stays on the server.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const failureMessage = "Failed to check the URL."

type Upstream interface {
	Lookup(ctx context.Context, target string) ([]byte, error)
}

// IPQS is the IPQualityScore URL endpoint: <base>/<key>?url=..&fast=true.
type IPQS struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewIPQS(baseURL, apiKey string, client *http.Client) *IPQS {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &IPQS{baseURL: baseURL, apiKey: apiKey, http: client}
}

func (u *IPQS) Lookup(ctx context.Context, target string) ([]byte, error) {
	endpoint := u.baseURL + "/" + url.PathEscape(u.apiKey)
	q := url.Values{}
	q.Set("url", target)
	q.Set("fast", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("upstream returned a non-JSON body")
	}
	return body, nil
}

type Handler struct {
	Upstream Upstream
	Log      zerolog.Logger
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CheckURL serves GET /check-url. The upstream payload is passed through as is.
func (h *Handler) CheckURL(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, failure{Message: "Missing url parameter."})
		return
	}

	body, err := h.Upstream.Lookup(r.Context(), target)
	if err != nil {
		h.Log.Error().Err(err).Str("url", target).Msg("error from reputation API")
		writeJSON(w, http.StatusInternalServerError, failure{Message: failureMessage})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// CORS restricts cross-origin access to the configured front-end origin.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{allowedOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
