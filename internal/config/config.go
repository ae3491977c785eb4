package config

import (
	"errors"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	PublicURL     string

	ReputationAPIKey string
	ReputationAPIURL string
	// ProxyURL points screening at a separately deployed proxy. When empty the
	// serve command screens through the in-process upstream.
	ProxyURL string

	DBDriver        string
	DBDSN           string
	ObjectStorePath string

	CookieSecret string
	CookieSecure bool

	CipherMode string
	CipherKey  string
	CipherIV   string

	SMTP SMTP

	LogLevel  string
	LogPretty bool
}

type SMTP struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

var defaults = map[string]any{
	"PORT":               "3001",
	"ALLOWED_ORIGIN":     "http://localhost:5173",
	"PUBLIC_URL":         "http://localhost:3001",
	"REPUTATION_API_URL": "https://ipqualityscore.com/api/json/url",
	"DB_DRIVER":          "sqlite3",
	"DB_DSN":             "safechat.db",
	"OBJECT_STORE_PATH":  "objects.db",
	"CIPHER_MODE":        "passphrase",
	"SMTP_PORT":          "587",
	"LOG_LEVEL":          "info",
	"LOG_PRETTY":         false,
	"COOKIE_SECURE":      false,
}

var keys = []string{
	"REPUTATION_API_KEY", "PROXY_URL", "COOKIE_SECRET", "CIPHER_KEY", "CIPHER_IV",
	"SMTP_HOST", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
}

// Load reads configuration from a .env file (if present), the environment and
// an optional config file. Environment variables win over the file.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	for _, k := range keys {
		v.SetDefault(k, "")
	}
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Config{
		Port:             v.GetString("PORT"),
		AllowedOrigin:    v.GetString("ALLOWED_ORIGIN"),
		PublicURL:        strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		ReputationAPIKey: v.GetString("REPUTATION_API_KEY"),
		ReputationAPIURL: strings.TrimRight(v.GetString("REPUTATION_API_URL"), "/"),
		ProxyURL:         v.GetString("PROXY_URL"),
		DBDriver:         v.GetString("DB_DRIVER"),
		DBDSN:            v.GetString("DB_DSN"),
		ObjectStorePath:  v.GetString("OBJECT_STORE_PATH"),
		CookieSecret:     v.GetString("COOKIE_SECRET"),
		CookieSecure:     v.GetBool("COOKIE_SECURE"),
		CipherMode:       v.GetString("CIPHER_MODE"),
		CipherKey:        v.GetString("CIPHER_KEY"),
		CipherIV:         v.GetString("CIPHER_IV"),
		SMTP: SMTP{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogPretty: v.GetBool("LOG_PRETTY"),
	}, nil
}

// ValidateProxy checks the settings the reputation proxy cannot start without.
func (c *Config) ValidateProxy() error {
	if c.ReputationAPIKey == "" {
		return errors.New("REPUTATION_API_KEY is required")
	}
	if c.AllowedOrigin == "" {
		return errors.New("ALLOWED_ORIGIN is required")
	}
	return nil
}

// ValidateServe checks the settings the full chat server needs.
func (c *Config) ValidateServe() error {
	if c.ProxyURL == "" {
		if err := c.ValidateProxy(); err != nil {
			return err
		}
	}
	if c.CipherKey == "" {
		return errors.New("CIPHER_KEY is required")
	}
	if c.CookieSecret == "" {
		return errors.New("COOKIE_SECRET is required")
	}
	return nil
}
