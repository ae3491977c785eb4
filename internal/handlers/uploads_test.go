package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func multipartRequest(t *testing.T, method, path, filename, contentType string, data []byte, cookie *http.Cookie) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func TestUploadAndServe(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.register(t, "alice")

	req := multipartRequest(t, "POST", "/uploads", "cat.png", "", pngHeader, cookie)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rr, &resp)
	if !strings.HasPrefix(resp["url"], "http://localhost:3001/uploads/") {
		t.Fatalf("Unexpected url: %q", resp["url"])
	}

	key := strings.TrimPrefix(resp["url"], "http://localhost:3001/uploads/")
	rr = s.do(t, "GET", "/uploads/"+key, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected the upload to be served, got %v", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Expected image/png, got %q", got)
	}
	if !bytes.Equal(rr.Body.Bytes(), pngHeader) {
		t.Error("Served bytes differ from the upload")
	}

	rr = s.do(t, "GET", "/uploads/missing", nil, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown key, got %v", rr.Code)
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.register(t, "alice")

	req := multipartRequest(t, "POST", "/uploads", "notes.txt", "text/plain", []byte("hello"), cookie)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadRequest)
	}

	req = multipartRequest(t, "POST", "/uploads", "huge.png", "image/png", make([]byte, 5<<20+1), cookie)
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected oversized image to be rejected, got %v", rr.Code)
	}

	rr = s.do(t, "POST", "/uploads", nil, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected missing file to be rejected, got %v", rr.Code)
	}
}

func TestUpdateAvatar(t *testing.T) {
	s := newTestServer(t)
	_, cookie := s.register(t, "alice")

	req := multipartRequest(t, "PUT", "/me/avatar", "me.png", "image/png", pngHeader, cookie)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, "GET", "/me", nil, cookie)
	var me map[string]any
	decodeBody(t, rr, &me)
	if !strings.HasPrefix(me["avatar"].(string), "http://localhost:3001/uploads/") {
		t.Errorf("Expected avatar URL, got %v", me["avatar"])
	}
}
