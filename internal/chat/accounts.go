package chat

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/safechathub/safechat/internal/apperr"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/models"
	"github.com/safechathub/safechat/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	resetTTL      = time.Hour
	MaxImageBytes = 5 << 20
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type Registration struct {
	User *models.User `json:"user"`
	// OTPAuthURI is shown once as a QR code so the user can enrol an
	// authenticator app.
	OTPAuthURI string `json:"otpauth_uri"`
}

// Register validates the input before touching the store, then creates the
// user with a bcrypt password hash and a fresh TOTP secret.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	if strings.TrimSpace(in.Username) == "" || len(in.Username) < 3 {
		return nil, apperr.InvalidArg("Username must be at least 3 characters!")
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, apperr.InvalidArg("Invalid email format!")
	}
	if !validSignupPassword(in.Password) {
		return nil, apperr.InvalidArg("Password must be at least 6 characters, include one uppercase letter, and one number!")
	}

	taken, err := s.store.UsernameExists(ctx, in.Username)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred during registration.", err)
	}
	if taken {
		return nil, apperr.AlreadyExists("Username is already taken! Please choose another.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred during registration.", err)
	}
	secret, uri, err := auth.GenerateTOTP(in.Email)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred during registration.", err)
	}

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  in.Username,
		Email:     in.Email,
		Password:  string(hash),
		Blocked:   []string{},
		Secret:    secret,
		CreatedAt: s.now().UTC(),
	}
	// The unique constraint catches registrations that raced past the check
	// above.
	switch err := s.store.CreateUser(ctx, user); {
	case errors.Is(err, store.ErrUsernameTaken):
		return nil, apperr.AlreadyExists("Username is already taken! Please choose another.")
	case errors.Is(err, store.ErrEmailTaken):
		return nil, apperr.AlreadyExists("Email is already registered.")
	case err != nil:
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred during registration.", err)
	}
	s.log.Info().Str("user_id", user.ID).Msg("user registered")

	return &Registration{User: user, OTPAuthURI: uri}, nil
}

// Login checks the password and the 6-digit TOTP code.
func (s *Service) Login(ctx context.Context, email, password, code string) (*models.User, error) {
	if !emailPattern.MatchString(email) {
		return nil, apperr.InvalidArg("Please enter a valid email!")
	}
	if len(password) < 6 {
		return nil, apperr.InvalidArg("Password must be at least 6 characters!")
	}
	if !codePattern.MatchString(code) {
		return nil, apperr.InvalidArg("Please enter a valid 6-digit 2FA code!")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "An error occurred during login.", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("Invalid email or password")
	}
	if user.Secret == "" {
		return nil, apperr.FailedPrecondition("User data or 2FA secret not found. Please contact support.")
	}
	if !auth.ValidateTOTP(code, user.Secret, s.now()) {
		return nil, apperr.Unauthorized("Invalid 2FA code. Please try again.")
	}
	return user, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.user(ctx, userID)
}

// ChangePassword replaces the password of a signed-in user. The new password
// must rate at least Medium.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return apperr.Unauthorized("Current password is incorrect")
	}
	if next != confirm {
		return apperr.InvalidArg("New passwords do not match")
	}
	return s.setPassword(ctx, userID, next)
}

// ForgotPassword mails a one-hour reset link once the email and TOTP code
// check out.
func (s *Service) ForgotPassword(ctx context.Context, email, code string) error {
	if !emailPattern.MatchString(email) {
		return apperr.InvalidArg("Please enter a valid email address.")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("Email address not registered. Please check and try again.")
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "An error occurred while processing your request.", err)
	}
	if !codePattern.MatchString(code) {
		return apperr.InvalidArg("Please enter a valid 6-digit 2FA code.")
	}
	if user.Secret == "" {
		return apperr.FailedPrecondition("2FA is not configured for this account. Please contact system administrator.")
	}
	if !auth.ValidateTOTP(code, user.Secret, s.now()) {
		return apperr.Unauthorized("Invalid 2FA code. Please try again.")
	}

	reset := &models.PasswordReset{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().Add(resetTTL),
	}
	if err := s.store.CreatePasswordReset(ctx, reset); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "An error occurred while processing your request.", err)
	}

	link := s.publicURL + "/reset-password?token=" + url.QueryEscape(reset.Token)
	if err := s.mailer.SendPasswordReset(user.Email, user.Username, link); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send reset email")
		return apperr.Wrap(apperr.CodeUnavailable, "Failed to send the password reset email.", err)
	}
	return nil
}

// ResetPassword sets a new password using a token from ForgotPassword. Tokens
// work once.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	if PasswordStrength(next) == Weak {
		return apperr.InvalidArg("Password is too weak")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to reset password", err)
	}
	userID, err := s.store.ResetPassword(ctx, token, string(hash), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return apperr.InvalidArg("Reset link is invalid or has expired")
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to reset password", err)
	}
	s.log.Info().Str("user_id", userID).Msg("password reset")
	return nil
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	if PasswordStrength(password) == Weak {
		return apperr.InvalidArg("Password is too weak")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to update password", err)
	}
	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to update password", err)
	}
	return nil
}

// Upload stores an image and returns its public URL. Only images up to 5 MB
// are accepted.
func (s *Service) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if len(data) > MaxImageBytes {
		return "", apperr.InvalidArg("Image size should be less than 5MB")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperr.InvalidArg("Only image files are allowed")
	}
	key, err := s.objects.Put(ctx, name, contentType, data)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "failed to upload file", err)
	}
	return s.objects.URL(key), nil
}

func (s *Service) UpdateAvatar(ctx context.Context, userID, name, contentType string, data []byte) (string, error) {
	avatar, err := s.Upload(ctx, name, contentType, data)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateAvatar(ctx, userID, avatar); err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "failed to update avatar", err)
	}
	s.publishChats(ctx, s.contactsOf(ctx, userID)...)
	return avatar, nil
}

// contactsOf lists the peers whose chat lists show userID.
func (s *Service) contactsOf(ctx context.Context, userID string) []string {
	summaries, err := s.store.ListSummaries(ctx, userID)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(summaries))
	for _, sum := range summaries {
		ids = append(ids, sum.ReceiverID)
	}
	return ids
}

// validSignupPassword requires six or more letters and digits, including an
// uppercase letter and a digit.
func validSignupPassword(p string) bool {
	if len(p) < 6 {
		return false
	}
	var upper, digit bool
	for _, r := range p {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return upper && digit
}

type Strength int

const (
	Weak Strength = iota
	Medium
	Strong
)

func (s Strength) String() string {
	switch s {
	case Strong:
		return "Strong"
	case Medium:
		return "Medium"
	default:
		return "Weak"
	}
}

const strongSpecials = "@$!%*?&"

// PasswordStrength rates p. Medium needs 8+ characters with a lowercase
// letter, an uppercase letter and a digit. Strong needs 12+ characters drawn
// only from letters, digits and @$!%*?&, with at least one of each kind.
func PasswordStrength(p string) Strength {
	var lower, upper, digit, special, other bool
	for _, r := range p {
		switch {
		case unicode.IsLower(r) && r < unicode.MaxASCII:
			lower = true
		case unicode.IsUpper(r) && r < unicode.MaxASCII:
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(strongSpecials, r):
			special = true
		default:
			other = true
		}
	}
	n := len([]rune(p))
	switch {
	case n >= 12 && lower && upper && digit && special && !other:
		return Strong
	case n >= 8 && lower && upper && digit:
		return Medium
	default:
		return Weak
	}
}
