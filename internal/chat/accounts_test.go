package chat

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/safechathub/safechat/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reg.OTPAuthURI, "otpauth://totp/"))
	assert.Contains(t, reg.OTPAuthURI, "issuer=SafeChatHub")

	stored, err := f.store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("Secret123")))
	assert.NotEmpty(t, stored.Secret)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	tests := []struct {
		name string
		in   RegisterInput
		want string
	}{
		{"short username", RegisterInput{"al", "al@example.com", "Secret123"}, "Username must be at least 3 characters!"},
		{"blank username", RegisterInput{"   ", "x@example.com", "Secret123"}, "Username must be at least 3 characters!"},
		{"bad email", RegisterInput{"carol", "carol@example", "Secret123"}, "Invalid email format!"},
		{"no uppercase", RegisterInput{"carol", "carol@example.com", "secret123"}, "Password must be at least 6 characters, include one uppercase letter, and one number!"},
		{"no digit", RegisterInput{"carol", "carol@example.com", "SecretPass"}, "Password must be at least 6 characters, include one uppercase letter, and one number!"},
		{"symbol", RegisterInput{"carol", "carol@example.com", "Secret12!"}, "Password must be at least 6 characters, include one uppercase letter, and one number!"},
		{"taken username", RegisterInput{"alice", "other@example.com", "Secret123"}, "Username is already taken! Please choose another."},
		{"taken email", RegisterInput{"carol", "alice@example.com", "Secret123"}, "Email is already registered."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.Message(err))
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	stored, _ := f.store.GetUserByID(ctx, alice.ID)

	user, err := f.svc.Login(ctx, "alice@example.com", "Secret123", f.code(t, stored))
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)

	_, err = f.svc.Login(ctx, "alice@example.com", "Wrong123", f.code(t, stored))
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	_, err = f.svc.Login(ctx, "nobody@example.com", "Secret123", f.code(t, stored))
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	_, err = f.svc.Login(ctx, "alice@example.com", "Secret123", "12345")
	assert.Equal(t, "Please enter a valid 6-digit 2FA code!", apperr.Message(err))

	stale := f.code(t, stored)
	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.Login(ctx, "alice@example.com", "Secret123", stale)
	assert.Equal(t, "Invalid 2FA code. Please try again.", apperr.Message(err))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	err := f.svc.ChangePassword(ctx, alice.ID, "Wrong123", "NewSecret123", "NewSecret123")
	assert.Equal(t, apperr.CodeUnauthenticated, apperr.CodeOf(err))

	err = f.svc.ChangePassword(ctx, alice.ID, "Secret123", "NewSecret123", "Different123")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))

	err = f.svc.ChangePassword(ctx, alice.ID, "Secret123", "weakpass", "weakpass")
	assert.Equal(t, "Password is too weak", apperr.Message(err))

	require.NoError(t, f.svc.ChangePassword(ctx, alice.ID, "Secret123", "NewSecret123", "NewSecret123"))
	stored, _ := f.store.GetUserByID(ctx, alice.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("NewSecret123")))
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	stored, _ := f.store.GetUserByID(ctx, alice.ID)

	err := f.svc.ForgotPassword(ctx, "nobody@example.com", "123456")
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))

	err = f.svc.ForgotPassword(ctx, "alice@example.com", "abc")
	assert.Equal(t, "Please enter a valid 6-digit 2FA code.", apperr.Message(err))

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com", f.code(t, stored)))
	assert.Equal(t, "alice@example.com", f.mailer.to)
	require.True(t, strings.HasPrefix(f.mailer.link, "http://localhost:5173/reset-password?token="))

	link, err := url.Parse(f.mailer.link)
	require.NoError(t, err)
	token := link.Query().Get("token")

	err = f.svc.ResetPassword(ctx, token, "short")
	assert.Equal(t, "Password is too weak", apperr.Message(err))

	require.NoError(t, f.svc.ResetPassword(ctx, token, "Brand-new-Pass1"))
	stored, _ = f.store.GetUserByID(ctx, alice.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("Brand-new-Pass1")))

	err = f.svc.ResetPassword(ctx, token, "Another-Pass1")
	assert.Equal(t, "Reset link is invalid or has expired", apperr.Message(err))
}

func TestResetPasswordFailureKeepsLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	stored, _ := f.store.GetUserByID(ctx, alice.ID)

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com", f.code(t, stored)))
	link, _ := url.Parse(f.mailer.link)
	token := link.Query().Get("token")

	f.store.resetErr = errBoom
	err := f.svc.ResetPassword(ctx, token, "Brand-new-Pass1")
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))

	f.store.resetErr = nil
	require.NoError(t, f.svc.ResetPassword(ctx, token, "Brand-new-Pass1"))
}

func TestResetPasswordExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	stored, _ := f.store.GetUserByID(ctx, alice.ID)

	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@example.com", f.code(t, stored)))
	link, _ := url.Parse(f.mailer.link)

	f.clock.Advance(time.Hour)
	err := f.svc.ResetPassword(ctx, link.Query().Get("token"), "Brand-new-Pass1")
	assert.Equal(t, apperr.CodeInvalidArgument, apperr.CodeOf(err))
}

func TestUploadAndAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	_, err := f.svc.Upload(ctx, "doc.pdf", "application/pdf", []byte("x"))
	assert.Equal(t, "Only image files are allowed", apperr.Message(err))

	_, err = f.svc.Upload(ctx, "big.png", "image/png", make([]byte, MaxImageBytes+1))
	assert.Equal(t, "Image size should be less than 5MB", apperr.Message(err))

	avatar, err := f.svc.UpdateAvatar(ctx, alice.ID, "me.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3001/uploads/key-me.png", avatar)

	me, err := f.svc.Me(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, avatar, me.Avatar)
}

func TestPasswordStrength(t *testing.T) {
	tests := map[string]Strength{
		"":                 Weak,
		"short":            Weak,
		"alllowercase1":    Weak,
		"Password1":        Medium,
		"Pass word 1":      Medium,
		"Password1234":     Medium,
		"Password123!":     Strong,
		"Password 123!":    Medium,
		"Sup3r$ecretPass!": Strong,
	}
	for p, want := range tests {
		assert.Equal(t, want, PasswordStrength(p), p)
	}
	assert.Equal(t, "Medium", Medium.String())
}
