package main

import (
	"context"
	"errors"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/HSouheill/nairobi_verified/config"
	"github.com/HSouheill/nairobi_verified/controllers"
	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/middleware"
	"github.com/HSouheill/nairobi_verified/repositories"
	"github.com/HSouheill/nairobi_verified/routes"
	"github.com/HSouheill/nairobi_verified/security"
	"github.com/HSouheill/nairobi_verified/services"
	"github.com/HSouheill/nairobi_verified/websocket"
)

const expirySweepInterval = 24 * time.Hour

func main() {
	settings := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure correct MIME type for SVG files
	_ = mime.AddExtensionType(".svg", "image/svg+xml")

	if settings.JWTSecret == "" {
		log.Println("WARNING: JWT_SECRET is not set, authenticated routes will reject every request")
	}

	// Connect to database
	client, err := config.ConnectDB(settings)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()
	db := client.Database(settings.DBName)
	config.EnsureIndexes(db)
	store := repositories.NewMongoStore(db, settings.MongoTransactions)

	// Redis backs the event bus, the token blacklist and login lockouts when configured
	var bus events.Bus = events.NewMemoryBus()
	var blacklist middleware.TokenBlacklist = middleware.NewMemoryBlacklist()
	var logins security.LoginGuard = security.NewMemoryLoginGuard()
	if rdb := config.ConnectRedis(settings); rdb != nil {
		defer rdb.Close()
		redisBus, err := events.NewRedisBus(ctx, rdb, events.DefaultChannel)
		if err != nil {
			log.Printf("Warning: Redis event bus unavailable, using in-process bus: %v", err)
		} else {
			bus = redisBus
		}
		blacklist = middleware.NewRedisBlacklist(rdb)
		logins = security.NewRedisLoginGuard(rdb)
	}

	// Initialize Firebase
	var pusher services.Pusher
	app, err := config.InitFirebase(ctx, settings)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed, push notifications disabled: %v", err)
	} else if app != nil {
		pusher = services.NewFCMPusher(app)
	}

	mailer := services.NewSMTPMailer(services.SMTPConfig{
		Host:     settings.SMTPHost,
		Port:     settings.SMTPPort,
		Username: settings.SMTPUser,
		Password: settings.SMTPPass,
		From:     settings.FromEmail,
	})

	mpesa := services.NewMpesaService(services.MpesaConfig{
		Environment:    settings.MpesaEnv,
		ConsumerKey:    settings.MpesaConsumerKey,
		ConsumerSecret: settings.MpesaConsumerSecret,
		ShortCode:      settings.MpesaShortCode,
		PassKey:        settings.MpesaPassKey,
		CallbackURL:    settings.MpesaCallbackURL,
		Debug:          settings.MpesaDebug,
	})

	var cards services.CardGateway = services.SandboxCardGateway{}
	if settings.CardGatewayEnv != "sandbox" && settings.CardGatewayURL != "" {
		cards = services.NewHTTPCardGateway(settings.CardGatewayURL, settings.CardGatewaySecret, !settings.IsProduction())
	}

	files, err := newFileStore(ctx, settings)
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	// Services
	notifier := services.NewNotifier(store, bus, pusher, mailer, settings.AdminEmail)
	authService := services.NewAuthService(store)
	subscriptionService := services.NewSubscriptionService(store, mpesa, cards, notifier)
	orderService := services.NewOrderService(store, mpesa, cards, notifier, services.OrderConfig{
		ShippingFee: settings.ShippingFee,
		TaxRate:     settings.TaxRate,
	})
	reconciler := services.NewPaymentReconciler(store, mpesa, subscriptionService, orderService)
	sweeper := services.NewExpirySweeper(store, mailer, settings.FrontendURL)
	productService := services.NewProductService(store, subscriptionService, files, settings.DefaultProductLimit)

	// Create WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)
	unsubscribe := wsHub.Subscribe(bus)
	defer unsubscribe()

	go sweeper.Run(ctx, expirySweepInterval)

	authenticator := middleware.NewAuthenticator(settings.JWTSecret, blacklist, authService)
	corsConfig := middleware.NewCORSConfig(settings.FrontendURL)

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = controllers.NewValidator()

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()
	go rateLimiter.Cleanup(ctx)

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.CORSWithConfig(corsConfig))
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeadersWithConfig(middleware.SecurityConfig{
		AllowedDomains: corsConfig.AllowOrigins,
		AllowInlineJS:  !settings.IsProduction(),
		HSTS:           settings.IsProduction(),
	}))
	if settings.IsProduction() {
		e.Use(httpsRedirect())
	}

	e.Match([]string{http.MethodGet, http.MethodHead}, "/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "OK",
			"message": "Nairobi Verified API is running",
			"version": "1.0",
		})
	})

	e.Match([]string{http.MethodGet, http.MethodHead}, "/health", func(c echo.Context) error {
		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "disconnected",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	routes.SetupRoutes(e, routes.Controllers{
		Auth:          controllers.NewAuthController(authService, authenticator, logins, settings.JWTSecret, settings.IsProduction()),
		Products:      controllers.NewProductController(productService),
		Carts:         controllers.NewCartController(services.NewCartService(store)),
		Orders:        controllers.NewOrderController(orderService, reconciler),
		Reviews:       controllers.NewReviewController(services.NewReviewService(store, notifier)),
		Subscriptions: controllers.NewSubscriptionController(subscriptionService, reconciler, sweeper, settings.MpesaCallbackSecret),
		Packages:      controllers.NewPackageController(services.NewPackageService(store)),
		Merchants:     controllers.NewMerchantController(services.NewMerchantService(store, files, notifier, settings.FrontendURL)),
		Admin:         controllers.NewAdminController(services.NewAdminService(store)),
		Notifications: controllers.NewNotificationController(authService),
	}, routes.Deps{
		Auth:           authenticator,
		Hub:            wsHub,
		AllowedOrigins: corsConfig.AllowOrigins,
		UploadDir:      settings.UploadDir,
	})

	// Start server
	go func() {
		if err := e.Start(":" + settings.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// newFileStore picks S3 or the local uploads directory
func newFileStore(ctx context.Context, s *config.Settings) (services.FileStore, error) {
	if s.StorageDriver == "s3" {
		return services.NewS3Store(ctx, services.S3Config{
			Bucket:          s.S3Bucket,
			Region:          s.S3Region,
			Endpoint:        s.S3Endpoint,
			AccessKeyID:     s.S3AccessKeyID,
			SecretAccessKey: s.S3SecretAccessKey,
			PublicURL:       s.S3PublicURL,
		})
	}
	return services.NewLocalStore(s.UploadDir, "/uploads")
}

func httpsRedirect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("X-Forwarded-Proto") == "http" {
				return c.Redirect(http.StatusMovedPermanently, "https://"+c.Request().Host+c.Request().RequestURI)
			}
			return next(c)
		}
	}
}
