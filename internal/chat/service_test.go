package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/screening"
	"github.com/safechathub/safechat/internal/store/sqlstore"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	mu      sync.Mutex
	answers map[string]*screening.Reputation
	err     error
	calls   []string
}

func (c *stubChecker) Check(_ context.Context, url string) (*screening.Reputation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, url)
	if c.err != nil {
		return nil, c.err
	}
	if rep, ok := c.answers[url]; ok {
		return rep, nil
	}
	return &screening.Reputation{}, nil
}

type published struct {
	topic string
	value any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic, v})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var topics []string
	for _, e := range p.events {
		topics = append(topics, e.topic)
	}
	return topics
}

func (p *fakePublisher) last(topic string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].topic == topic {
			return p.events[i].value
		}
	}
	return nil
}

type fakeMailer struct {
	to, link string
	err      error
}

func (m *fakeMailer) SendPasswordReset(to, _, link string) error {
	m.to, m.link = to, link
	return m.err
}

type fakeObjects struct {
	objects map[string][]byte
}

func (o *fakeObjects) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	key := "key-" + name
	o.objects[key] = data
	return key, nil
}

func (o *fakeObjects) URL(key string) string { return "http://localhost:3001/uploads/" + key }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// failingStore fails selected writes.
type failingStore struct {
	*sqlstore.SQLStore
	setBlockedErr error
	appendErr     error
	resetErr      error
	// blockDelay stalls every SetBlocked that blocks.
	blockDelay time.Duration
}

func (f *failingStore) SetBlocked(ctx context.Context, userID, targetID string, blocked bool) error {
	if f.setBlockedErr != nil {
		return f.setBlockedErr
	}
	if blocked && f.blockDelay > 0 {
		time.Sleep(f.blockDelay)
	}
	return f.SQLStore.SetBlocked(ctx, userID, targetID, blocked)
}

func (f *failingStore) ResetPassword(ctx context.Context, token, hash string, now time.Time) (string, error) {
	if f.resetErr != nil {
		return "", f.resetErr
	}
	return f.SQLStore.ResetPassword(ctx, token, hash, now)
}

func (f *failingStore) AppendMessage(ctx context.Context, msg *models.Message, last string, at time.Time) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.SQLStore.AppendMessage(ctx, msg, last, at)
}

type fixture struct {
	svc     *Service
	store   *failingStore
	checker *stubChecker
	pub     *fakePublisher
	mailer  *fakeMailer
	objects *fakeObjects
	clock   *clock
	cipher  cipher.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := cipher.NewPassphrase("test-secret")
	require.NoError(t, err)

	f := &fixture{
		store:   &failingStore{SQLStore: db},
		checker: &stubChecker{answers: map[string]*screening.Reputation{}},
		pub:     &fakePublisher{},
		mailer:  &fakeMailer{},
		objects: &fakeObjects{objects: map[string][]byte{}},
		clock:   &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		cipher:  c,
	}
	f.svc = NewService(Deps{
		Store:     f.store,
		Objects:   f.objects,
		Cipher:    c,
		Screener:  screening.NewScreener(f.checker, zerolog.Nop()),
		Publisher: f.pub,
		Mailer:    f.mailer,
		PublicURL: "http://localhost:5173",
		Now:       f.clock.Now,
		Log:       zerolog.Nop(),
	})
	return f
}

// register creates a user and returns it with its TOTP secret loaded.
func (f *fixture) register(t *testing.T, username string) *models.User {
	t.Helper()
	reg, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Secret123",
	})
	require.NoError(t, err)
	return reg.User
}

// contacts registers alice and bob and connects them.
func (f *fixture) contacts(t *testing.T) (alice, bob *models.User, chatID string) {
	t.Helper()
	alice = f.register(t, "alice")
	bob = f.register(t, "bob")
	thread, err := f.svc.AddContact(context.Background(), alice.ID, "bob")
	require.NoError(t, err)
	return alice, bob, thread.ID
}

func (f *fixture) code(t *testing.T, user *models.User) string {
	t.Helper()
	code, err := auth.TOTPCode(user.Secret, f.clock.Now())
	require.NoError(t, err)
	return code
}

var errBoom = errors.New("boom")
