package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/safechathub/safechat/internal/auth"
	"github.com/safechathub/safechat/internal/chat"
	"github.com/safechathub/safechat/internal/cipher"
	"github.com/safechathub/safechat/internal/config"
	"github.com/safechathub/safechat/internal/email"
	"github.com/safechathub/safechat/internal/handlers"
	"github.com/safechathub/safechat/internal/logger"
	"github.com/safechathub/safechat/internal/middleware"
	"github.com/safechathub/safechat/internal/objectstore"
	"github.com/safechathub/safechat/internal/proxy"
	"github.com/safechathub/safechat/internal/screening"
	"github.com/safechathub/safechat/internal/store/sqlstore"
	"github.com/safechathub/safechat/internal/ws"
	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "safechat",
		Short:        "SafeChatHub chat server and URL reputation proxy",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json, toml or env)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the chat API and live updates",
		RunE:  runServe,
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "proxy",
		Short: "Run only the URL reputation proxy",
		RunE:  runProxy,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(validate func(*config.Config) error) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	if err := validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, log, err
	}
	return cfg, log, nil
}

func runProxy(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig((*config.Config).ValidateProxy)
	if err != nil {
		return err
	}

	h := &proxy.Handler{
		Upstream: proxy.NewIPQS(cfg.ReputationAPIURL, cfg.ReputationAPIKey, nil),
		Log:      log,
	}
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	r.HandleFunc("/check-url", h.CheckURL).Methods("GET")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return listen(ctx, ":"+cfg.Port, proxy.CORS(cfg.AllowedOrigin)(r), log)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig((*config.Config).ValidateServe)
	if err != nil {
		return err
	}

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
		return err
	}
	defer store.Close()

	objects, err := objectstore.Open(cfg.ObjectStorePath, cfg.PublicURL)
	if err != nil {
		log.Error().Err(err).Msg("failed to open object store")
		return err
	}
	defer objects.Close()

	c, err := cipher.New(cfg.CipherMode, cfg.CipherKey, cfg.CipherIV)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up message cipher")
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	// Screen through a separately deployed proxy when one is configured,
	// otherwise call the upstream directly and also serve /check-url here.
	var (
		checker  screening.Checker
		checkURL *proxy.Handler
	)
	if cfg.ProxyURL != "" {
		checker = screening.NewProxyClient(cfg.ProxyURL+"/check-url", nil)
	} else {
		upstream := proxy.NewIPQS(cfg.ReputationAPIURL, cfg.ReputationAPIKey, nil)
		checker = screening.CheckerFunc(func(ctx context.Context, url string) (*screening.Reputation, error) {
			raw, err := upstream.Lookup(ctx, url)
			if err != nil {
				return nil, err
			}
			return screening.ParseReputation(raw)
		})
		checkURL = &proxy.Handler{Upstream: upstream, Log: log}
	}

	svc := chat.NewService(chat.Deps{
		Store:     store,
		Objects:   objects,
		Cipher:    c,
		Screener:  screening.NewScreener(checker, log),
		Publisher: hub,
		Mailer:    email.NewSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, log),
		PublicURL: cfg.AllowedOrigin,
		Log:       log,
	})

	signer := auth.NewSigner(cfg.CookieSecret, cfg.CookieSecure)
	router := handlers.NewRouter(handlers.Routes{
		Auth:     &handlers.AuthHandler{Chat: svc, Signer: signer, Log: log},
		Chats:    &handlers.ChatHandler{Chat: svc, Hub: hub, Upgrader: ws.NewUpgrader(cfg.AllowedOrigin), Log: log},
		Groups:   &handlers.GroupHandler{Chat: svc, Log: log},
		Uploads:  &handlers.UploadHandler{Chat: svc, Objects: objects, Log: log},
		CheckURL: checkURL,
		Signer:   signer,
		Log:      log,
	})

	return listen(ctx, ":"+cfg.Port, proxy.CORS(cfg.AllowedOrigin)(router), log)
}

// listen serves until ctx is cancelled, then drains in-flight requests.
func listen(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
