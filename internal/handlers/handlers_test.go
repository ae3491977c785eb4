package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/email"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/objectstore"
	"github.com/safechathub/safechat/internal/screening"
	"github.com/safechathub/safechat/internal/store/sqlstore"
	"github.com/safechathub/safechat/internal/ws"
)

// reputations answers reputation checks from a map. Unknown URLs are clean.
type reputations struct {
	mu      sync.Mutex
	answers map[string]*screening.Reputation
	err     error
}

func (r *reputations) check(_ context.Context, url string) (*screening.Reputation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if rep, ok := r.answers[url]; ok {
		return rep, nil
	}
	return &screening.Reputation{}, nil
}

type testServer struct {
	router  *mux.Router
	store   *sqlstore.SQLStore
	svc     *chat.Service
	signer  *auth.Signer
	checker *reputations
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlstore.New("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	objects, err := objectstore.Open(filepath.Join(t.TempDir(), "objects.db"), "http://localhost:3001")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { objects.Close() })

	c, err := cipher.NewPassphrase("test-secret")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(zerolog.Nop())
	go hub.Run(ctx)

	checker := &reputations{answers: map[string]*screening.Reputation{}}
	svc := chat.NewService(chat.Deps{
		Store:     store,
		Objects:   objects,
		Cipher:    c,
		Screener:  screening.NewScreener(screening.CheckerFunc(checker.check), zerolog.Nop()),
		Publisher: hub,
		Mailer:    email.NewSender("", "", "", "", "", zerolog.Nop()),
		PublicURL: "http://localhost:5173",
		Log:       zerolog.Nop(),
	})
	signer := auth.NewSigner("test-secret", false)

	router := NewRouter(Routes{
		Auth:    &AuthHandler{Chat: svc, Signer: signer, Log: zerolog.Nop()},
		Chats:   &ChatHandler{Chat: svc, Hub: hub, Upgrader: ws.NewUpgrader("http://localhost:5173"), Log: zerolog.Nop()},
		Groups:  &GroupHandler{Chat: svc, Log: zerolog.Nop()},
		Uploads: &UploadHandler{Chat: svc, Objects: objects, Log: zerolog.Nop()},
		Signer:  signer,
		Log:     zerolog.Nop(),
	})
	return &testServer{router: router, store: store, svc: svc, signer: signer, checker: checker}
}

// register creates a user through the service and returns it with a
// session cookie.
func (s *testServer) register(t *testing.T, username string) (*models.User, *http.Cookie) {
	t.Helper()
	reg, err := s.svc.Register(context.Background(), chat.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Secret123",
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg.User, s.signer.SessionCookie(reg.User.ID)
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}
