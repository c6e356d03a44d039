package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-service/common/logger"
	"checkout-service/common/middleware"
	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	awspkg "checkout-service/pkg/aws"
	"checkout-service/providers"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/sender"
	"checkout-service/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "checkout-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// AWS clients
	awsCfg, awsErr := awspkg.LoadAWSConfig(context.Background())
	var (
		snsClient awspkg.SNSPublisher
		metrics   *awspkg.MetricsClient
		cwWriter  *awspkg.CloudWatchLogsWriter
	)
	if awsErr == nil {
		snsClient = awspkg.NewSNSClient(awsCfg)
		metrics = awspkg.NewMetricsClient(awsCfg)
		if os.Getenv("AWS_USE_SECRETS") == "true" {
			if err := cfg.ApplySecrets(context.Background(), awspkg.NewSecretsClient(awsCfg)); err != nil {
				log.Printf("Some secrets could not be loaded, keeping environment values: %v", err)
			}
		}
		if w, err := awspkg.NewCloudWatchLogsWriter(context.Background(), awsCfg, serviceName); err == nil && w.IsEnabled() {
			cwWriter = w
		}
	}

	zapLogger, err := newLogger(cfg.Env, cwWriter)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	if awsErr != nil {
		zapLogger.Warn("AWS config unavailable, SNS and metrics disabled", zap.Error(awsErr))
	}
	if err := cfg.Validate(); err != nil {
		zapLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	db, err := database.Connect(cfg.DSN(), zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	smtpSender, err := sender.NewSMTPSender(cfg.MailFrom)
	if err != nil {
		zapLogger.Fatal("Failed to configure SMTP sender", zap.Error(err))
	}
	mailer, err := sender.NewMailer(smtpSender)
	if err != nil {
		zapLogger.Fatal("Failed to load email templates", zap.Error(err))
	}

	// Provider and DI chain
	gateway := providers.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookKey)

	orderRepo := repository.NewGormOrderRepository(db)
	productRepo := repository.NewGormProductRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	cartRepo := repository.NewGormCartRepository(db)
	addressRepo := repository.NewGormShippingAddressRepository(db)
	paymentRepo := repository.NewGormSubscriptionPaymentRepository(db)

	var recorder awspkg.MetricsRecorder
	if metrics.IsEnabled() {
		recorder = metrics
	}
	events := services.NewEventSink(snsClient, cfg.CheckoutSNSTopicARN, recorder, zapLogger)

	checkoutService := services.NewCheckoutService(gateway, userRepo, cartRepo, services.CheckoutConfig{
		FreeShippingRateID:    cfg.FreeShippingRateID,
		RegularShippingRateID: cfg.RegularShippingRateID,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		Currency:              cfg.Currency,
		AllowedCountries:      cfg.AllowedCountries,
		FrontendURL:           cfg.FrontendURL,
	}, recorder, zapLogger)

	webhookService := services.NewWebhookService(
		gateway,
		userRepo,
		cartRepo,
		services.NewOrderMaterializer(orderRepo, productRepo, gateway, zapLogger),
		services.NewShippingAddressSync(addressRepo, gateway, zapLogger),
		services.NewNotificationDispatcher(mailer, gateway, cfg.FrontendURL, zapLogger),
		services.NewSubscriptionReconciler(paymentRepo, orderRepo, userRepo, gateway, mailer, events, cfg.FrontendURL, zapLogger),
		events,
		cfg.SagaTimeout,
		zapLogger,
	)
	provisioner := services.NewProductProvisioner(productRepo, gateway, cfg.Currency, zapLogger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(zapLogger))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})

	routes.RegisterCheckoutRoutes(
		r,
		[]byte(cfg.JWTSecret),
		middleware.NewRateLimiter(rate.Limit(5), 10, 10*time.Minute),
		controllers.NewCheckoutController(checkoutService),
		controllers.NewWebhookController(gateway, webhookService, zapLogger),
		controllers.NewProductController(provisioner),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	zapLogger.Info("Checkout service started", zap.String("port", cfg.Port))
	<-quit
	zapLogger.Info("Shutting down checkout service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited cleanly")
}

// newLogger avoids handing logger.New a typed-nil io.Writer.
func newLogger(env string, sink *awspkg.CloudWatchLogsWriter) (*zap.Logger, error) {
	if sink == nil {
		return logger.New(env, nil)
	}
	return logger.New(env, sink)
}
