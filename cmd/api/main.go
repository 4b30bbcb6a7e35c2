package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"adpilot/internal/adplatform"
	"adpilot/internal/assets"
	"adpilot/internal/auth"
	"adpilot/internal/billing"
	"adpilot/internal/broadcast"
	"adpilot/internal/db"
	"adpilot/internal/generation"
	"adpilot/internal/ledger"
	"adpilot/internal/mailer"
	"adpilot/internal/notifications"
	"adpilot/internal/publisher"
	"adpilot/internal/ratelimiter"
	"adpilot/internal/ref"
	"adpilot/internal/store"

	"github.com/9ssi7/exponent"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 30
	defaultEnabled := true

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            time.Minute,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "0.9.0"

//	@title			AdPilot API
//	@description	Credit-gated content generation and campaign publishing for AdPilot.

//	@contact.name	API Support
//	@contact.email	support@adpilot.dev

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	maxConnsStr := os.Getenv("DB_MAX_CONNS")
	maxConns, err := strconv.Atoi(maxConnsStr)
	if err != nil {
		log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
	}

	mailPort, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		log.Fatalf("Invalid value for SMTP_PORT: %v", err)
	}

	assetSweep := 5 * time.Minute
	if val := os.Getenv("ASSET_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			assetSweep = d
		}
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    maxConns,
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				iss:    "AdPilot",
			},
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      mailPort,
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("SMTP_FROM_EMAIL"),
		},
		adPlatform: adPlatformConfig{
			baseURL: os.Getenv("AD_PLATFORM_BASE_URL"),
		},
		kafka: kafkaConfig{
			brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			topic:   os.Getenv("KAFKA_CAMPAIGN_TOPIC"),
		},
		rateLimiter: LoadRateLimiterConfig(),
		assetSweep:  assetSweep,
	}

	// Logger
	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	// Database
	dbpool, err := db.New(
		cfg.db.addr,
		int32(cfg.db.maxConns),
		cfg.db.maxIdleTime,
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer dbpool.Close()
	logger.Info("database connection pool established")

	//storage
	storage := store.NewStorage(dbpool)

	//cloudinary
	cloudinaryUrl := os.Getenv("CLOUDINARY_URL")
	cld, err := cloudinary.NewFromURL(cloudinaryUrl)
	if err != nil {
		logger.Fatal(err)
	}
	uploader := assets.NewCloudinaryUploader(cld, os.Getenv("CLOUDINARY_FOLDER"))

	// generation provider
	provider, err := generation.NewGenAIProvider(
		context.Background(),
		os.Getenv("GENAI_API_KEY"),
		os.Getenv("GENAI_MODEL"),
	)
	if err != nil {
		logger.Fatal(err)
	}

	// mail client for publish failure reports
	mailClient, err := mailer.NewSMTPClient(
		cfg.mail.host,
		cfg.mail.port,
		cfg.mail.username,
		cfg.mail.password,
		cfg.mail.fromEmail,
	)
	if err != nil {
		logger.Fatal(err)
	}

	// push sender
	var push notifications.PushSender = notifications.NopSender{}
	if token := os.Getenv("EXPO_ACCESS_TOKEN"); token != "" {
		expoClient := exponent.NewClient(exponent.WithAccessToken(token))
		push = notifications.NewExpoAdapter(expoClient)
	}

	// status broadcaster, optionally mirrored to Kafka
	var broadcastOpts []broadcast.Option
	if len(cfg.kafka.brokers) > 0 && cfg.kafka.topic != "" {
		sink := broadcast.NewKafkaSink(cfg.kafka.brokers, cfg.kafka.topic)
		defer sink.Close()
		broadcastOpts = append(broadcastOpts, broadcast.WithSink(sink))
		logger.Infow("kafka campaign sink enabled", "topic", cfg.kafka.topic)
	}
	broadcaster := broadcast.New(logger, broadcastOpts...)

	// core services
	creditLedger := ledger.New(storage, logger)
	orchestrator := generation.NewOrchestrator(storage, creditLedger, provider, logger)
	platform := adplatform.NewClient(cfg.adPlatform.baseURL)
	campaignPublisher := publisher.New(storage, platform, broadcaster, logger)
	pipeline := assets.NewPipeline(storage, uploader, logger)

	// payment webhook gateways
	billingManager := billing.NewManager()
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		billingManager.RegisterGateway("stripe", billing.NewStripeAdapter(secret))
	}
	if secret := os.Getenv("LEMONSQUEEZY_WEBHOOK_SECRET"); secret != "" {
		billingManager.RegisterGateway("lemonsqueezy", billing.NewLemonSqueezyAdapter(secret))
	}

	// public campaign references
	refEncoder, err := ref.NewEncoder(os.Getenv("REFERENCE_SALT"))
	if err != nil {
		logger.Fatal(err)
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		store:         storage,
		ledger:        creditLedger,
		orchestrator:  orchestrator,
		publisher:     campaignPublisher,
		broadcaster:   broadcaster,
		pipeline:      pipeline,
		billing:       billingManager,
		mailer:        mailClient,
		push:          push,
		refs:          refEncoder,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	app.sweepPendingAssets(cfg.assetSweep)

	//Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		return dbpool.Stat()
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
