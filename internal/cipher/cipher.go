// Package cipher encrypts chat text before it is persisted and decrypts it
// for display.
//
// Two modes exist because stored data was written both ways:
//
//   - Passphrase: OpenSSL "Salted__" framing, key and IV derived from the
//     passphrase and a random salt per call (EVP_BytesToKey with MD5). This is
//     the format CryptoJS produces for AES.encrypt(text, passphrase).
//   - FixedIV: a raw key and one IV for every message. Equal plaintexts give
//     equal ciphertexts, so this mode only obfuscates. Only standard AES key
//     lengths are accepted; data written with a longer raw key used a
//     non-standard round count and cannot be read here.
//
// Both are AES-CBC with PKCS7 padding and base64 output. Neither authenticates
// the ciphertext.
package cipher

import (
	"bytes"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	ModePassphrase = "passphrase"
	ModeFixedIV    = "fixed-iv"

	// PlaceholderDecryptionFailed replaces a message body that cannot be decrypted.
	PlaceholderDecryptionFailed = "Decryption failed"
	// PlaceholderUnavailable replaces a chat list preview that cannot be decrypted.
	PlaceholderUnavailable = "Unable to display message"
)

var (
	ErrMalformed   = errors.New("cipher: malformed ciphertext")
	ErrBadPadding  = errors.New("cipher: invalid padding")
	ErrInvalidUTF8 = errors.New("cipher: plaintext is not valid UTF-8")
)

var saltedPrefix = []byte("Salted__")

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// New builds a Cipher from configuration values. For ModeFixedIV, iv is hex.
func New(mode, key, iv string) (Cipher, error) {
	switch mode {
	case "", ModePassphrase:
		return NewPassphrase(key)
	case ModeFixedIV:
		rawIV, err := hex.DecodeString(iv)
		if err != nil {
			return nil, fmt.Errorf("cipher: decode iv: %w", err)
		}
		return NewFixedIV([]byte(key), rawIV)
	default:
		return nil, fmt.Errorf("cipher: unknown mode %q", mode)
	}
}

type Passphrase struct {
	passphrase []byte
	rand       io.Reader
}

func NewPassphrase(passphrase string) (*Passphrase, error) {
	if passphrase == "" {
		return nil, errors.New("cipher: empty passphrase")
	}
	return &Passphrase{passphrase: []byte(passphrase), rand: rand.Reader}, nil
}

func (p *Passphrase) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(p.rand, salt); err != nil {
		return "", err
	}
	key, iv := deriveKeyIV(p.passphrase, salt)
	body, err := encryptCBC(key, iv, []byte(plaintext))
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, len(saltedPrefix)+len(salt)+len(body))
	out = append(out, saltedPrefix...)
	out = append(out, salt...)
	out = append(out, body...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (p *Passphrase) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < 16 || !bytes.Equal(raw[:8], saltedPrefix) {
		return "", ErrMalformed
	}
	key, iv := deriveKeyIV(p.passphrase, raw[8:16])
	return decryptCBC(key, iv, raw[16:])
}

type FixedIV struct {
	key []byte
	iv  []byte
}

func NewFixedIV(key, iv []byte) (*FixedIV, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("cipher: key must be 16, 24 or 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cipher: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &FixedIV{key: key, iv: iv}, nil
}

func (f *FixedIV) Encrypt(plaintext string) (string, error) {
	body, err := encryptCBC(f.key, f.iv, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

func (f *FixedIV) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	return decryptCBC(f.key, f.iv, raw)
}

// Open decrypts a message body for display. It never fails: anything that
// does not decrypt to a non-empty string becomes PlaceholderDecryptionFailed.
func Open(c Cipher, ciphertext string) string {
	return open(c, ciphertext, PlaceholderDecryptionFailed)
}

// OpenSummary is Open for chat list previews.
func OpenSummary(c Cipher, ciphertext string) string {
	return open(c, ciphertext, PlaceholderUnavailable)
}

func open(c Cipher, ciphertext, placeholder string) string {
	if ciphertext == "" {
		return ""
	}
	plain, err := c.Decrypt(ciphertext)
	if err != nil || plain == "" {
		return placeholder
	}
	return plain
}

// deriveKeyIV is OpenSSL's EVP_BytesToKey with MD5 and one iteration,
// producing a 32-byte key and a 16-byte IV.
func deriveKeyIV(passphrase, salt []byte) ([]byte, []byte) {
	var out, prev []byte
	for len(out) < 48 {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:32], out[32:48]
}

func encryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	stdcipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, iv, body []byte) (string, error) {
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return "", ErrMalformed
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(body))
	stdcipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrInvalidUTF8
	}
	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
