package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adpilot/docs" //this is required to generate swagger docs
	"adpilot/internal/assets"
	"adpilot/internal/auth"
	"adpilot/internal/billing"
	"adpilot/internal/broadcast"
	"adpilot/internal/generation"
	"adpilot/internal/ledger"
	"adpilot/internal/mailer"
	"adpilot/internal/notifications"
	"adpilot/internal/publisher"
	"adpilot/internal/ratelimiter"
	"adpilot/internal/ref"
	"adpilot/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type application struct {
	config        config
	store         store.Storage
	logger        *zap.SugaredLogger
	ledger        *ledger.Ledger
	orchestrator  *generation.Orchestrator
	publisher     *publisher.Publisher
	broadcaster   *broadcast.Broadcaster
	pipeline      *assets.Pipeline
	billing       *billing.Manager
	mailer        mailer.Client
	push          notifications.PushSender
	refs          *ref.Encoder
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	apiURL      string
	frontendURL string
	auth        authConfig
	mail        mailConfig
	adPlatform  adPlatformConfig
	kafka       kafkaConfig
	rateLimiter ratelimiter.Config
	assetSweep  time.Duration
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type adPlatformConfig struct {
	baseURL string
}

type kafkaConfig struct {
	brokers []string
	topic   string
}

type dbConfig struct {
	addr        string
	maxConns    int
	maxIdleTime string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))

		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/generations", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.With(app.RateLimiterMiddleware).Post("/", app.createGenerationHandler)
			r.Get("/", app.listArtifactsHandler)
			r.Get("/{artifactID}", app.getArtifactHandler)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Get("/", app.getBalanceHandler)
			r.Get("/transactions", app.listTransactionsHandler)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Post("/", app.createCampaignHandler)
			r.Get("/", app.listCampaignsHandler)

			r.Route("/{campaignID}", func(r chi.Router) {
				r.Get("/", app.getCampaignHandler)
				r.Get("/events", app.campaignEventsHandler)
				r.Get("/insights", app.campaignInsightsHandler)
				r.Post("/activate", app.activateCampaignHandler)
				r.Post("/pause", app.pauseCampaignHandler)
			})
		})

		r.Route("/assets", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Post("/migrate", app.migrateAssetBatchHandler)
			r.Get("/{assetID}", app.getAssetHandler)
			r.Post("/{assetID}/migrate", app.migrateAssetHandler)
		})

		r.Route("/push-tokens", func(r chi.Router) {
			r.Use(app.AuthTokenMiddleware)
			r.Post("/", app.registerPushTokenHandler)
			r.Delete("/", app.removePushTokenHandler)
		})

		// Payment processors deliver signed webhooks; no bearer auth here.
		r.Post("/webhooks/payments/{gateway}", app.paymentWebhookHandler)
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	// Docs
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
