package auth

import (
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const Issuer = "SafeChatHub"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      3,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTP creates a new second-factor secret for account and returns the
// base32 secret and its otpauth:// provisioning URI.
func GenerateTOTP(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: account,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return "", "", errors.Wrap(err, "auth.GenerateTOTP")
	}
	return key.Secret(), key.URL(), nil
}

// ValidateTOTP checks code against secret at time t, accepting three periods
// of drift either way.
func ValidateTOTP(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, totpOpts)
	return err == nil && ok
}

// TOTPCode returns the code for secret at time t.
func TOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}
