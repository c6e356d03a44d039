package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	awspkg "checkout-service/pkg/aws"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env              string
	Port             string
	PostgresUser     string `env:"POSTGRES_USER" validate:"required"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" validate:"required"`
	PostgresDB       string `env:"POSTGRES_DB" validate:"required"`
	PostgresHost     string `env:"POSTGRES_HOST" validate:"required"`
	PostgresPort     string
	PostgresSSLMode  string
	PostgresTimeZone string

	StripeSecretKey  string `env:"STRIPE_API_KEY" validate:"required"`
	StripeWebhookKey string `env:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	// Shipping rate ids are validated at checkout time, not here.
	FreeShippingRateID    string
	RegularShippingRateID string
	FreeShippingThreshold int64

	Currency         string `env:"CHECKOUT_CURRENCY" validate:"omitempty,len=3,alpha"`
	AllowedCountries []string
	FrontendURL      string `env:"FRONTEND_URL" validate:"omitempty,url"`
	SagaTimeout      time.Duration

	CheckoutSNSTopicARN string
	JWTSecret           string
	MailFrom            string `env:"MAIL_FROM" validate:"omitempty,email"`
}

// SecretSource is satisfied by pkg/aws.SecretsClient.
type SecretSource interface {
	LoadCheckoutSecrets(ctx context.Context) (*awspkg.CheckoutSecrets, error)
}

// LoadConfig reads the environment (and .env when present).
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	threshold, err := strconv.ParseInt(getEnv("FREE_SHIPPING_THRESHOLD", "3"), 10, 64)
	if err != nil || threshold < 1 {
		return nil, fmt.Errorf("invalid FREE_SHIPPING_THRESHOLD: %q", os.Getenv("FREE_SHIPPING_THRESHOLD"))
	}
	sagaTimeout, err := time.ParseDuration(getEnv("SAGA_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SAGA_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8092"),
		PostgresUser:          os.Getenv("POSTGRES_USER"),
		PostgresPassword:      os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:            os.Getenv("POSTGRES_DB"),
		PostgresHost:          os.Getenv("POSTGRES_HOST"),
		PostgresPort:          getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:       getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:      getEnv("POSTGRES_TIMEZONE", "Asia/Tokyo"),
		StripeSecretKey:       os.Getenv("STRIPE_API_KEY"),
		StripeWebhookKey:      os.Getenv("STRIPE_WEBHOOK_SECRET"),
		FreeShippingRateID:    os.Getenv("STRIPE_FREE_SHIPPING_RATE_ID"),
		RegularShippingRateID: os.Getenv("STRIPE_SHIPPING_RATE_ID"),
		FreeShippingThreshold: threshold,
		Currency:              strings.ToLower(getEnv("CHECKOUT_CURRENCY", "jpy")),
		AllowedCountries:      splitList(getEnv("SHIPPING_ALLOWED_COUNTRIES", "JP")),
		FrontendURL:           strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		SagaTimeout:           sagaTimeout,
		CheckoutSNSTopicARN:   os.Getenv("CHECKOUT_SNS_TOPIC_ARN"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		MailFrom:              getEnv("MAIL_FROM", os.Getenv("SMTP_USER")),
	}
	return cfg, nil
}

// ApplySecrets overrides database credentials and Stripe keys from Secrets
// Manager. Missing secrets leave the env values in place; the returned error
// reports secrets that exist but could not be read.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	sec, err := src.LoadCheckoutSecrets(ctx)
	if sec == nil {
		return err
	}
	if db := sec.DB; db != nil {
		override(&c.PostgresUser, db.User)
		override(&c.PostgresPassword, db.Password)
		override(&c.PostgresDB, db.Name)
		override(&c.PostgresHost, db.Host)
		override(&c.PostgresPort, db.Port)
	}
	override(&c.StripeSecretKey, sec.StripeAPIKey)
	override(&c.StripeWebhookKey, sec.StripeWebhookSecret)
	return err
}

// Validate checks the settings the process cannot start without.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fe.Field())
		}
	}
	sort.Strings(missing)
	sort.Strings(invalid)

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid environment variables: "+strings.Join(invalid, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

// validate reports fields by their environment variable name.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}()

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode, c.PostgresTimeZone,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
