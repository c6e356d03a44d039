package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretName is a Secrets Manager id owned by the checkout service.
type SecretName string

const (
	SecretDBCredentials       SecretName = "checkout/DB_CREDENTIALS"
	SecretStripeAPIKey        SecretName = "checkout/STRIPE_API_KEY"
	SecretStripeWebhookSecret SecretName = "checkout/STRIPE_WEBHOOK_SECRET"
)

// DBCredentials is the JSON document stored under SecretDBCredentials.
type DBCredentials struct {
	User     string `json:"POSTGRES_USER"`
	Password string `json:"POSTGRES_PASSWORD"`
	Name     string `json:"POSTGRES_DB"`
	Host     string `json:"POSTGRES_HOST"`
	Port     string `json:"POSTGRES_PORT"`
}

// CheckoutSecrets holds whatever subset of the checkout secrets exists.
// Absent secrets stay zero.
type CheckoutSecrets struct {
	DB                  *DBCredentials
	StripeAPIKey        string
	StripeWebhookSecret string
}

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type SecretsClient struct {
	client secretsAPI
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return &SecretsClient{client: secretsmanager.NewFromConfig(cfg)}
}

// LoadCheckoutSecrets reads the three checkout secrets once at startup.
// A secret that does not exist is skipped; any other failure is returned
// alongside the secrets that did load.
func (s *SecretsClient) LoadCheckoutSecrets(ctx context.Context) (*CheckoutSecrets, error) {
	out := &CheckoutSecrets{}
	var errs []error

	raw, err := s.get(ctx, SecretDBCredentials)
	switch {
	case err != nil:
		errs = append(errs, err)
	case raw != "":
		var creds DBCredentials
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", SecretDBCredentials, err))
		} else {
			out.DB = &creds
		}
	}

	if out.StripeAPIKey, err = s.get(ctx, SecretStripeAPIKey); err != nil {
		errs = append(errs, err)
	}
	if out.StripeWebhookSecret, err = s.get(ctx, SecretStripeWebhookSecret); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// get returns "" without error when the secret does not exist.
func (s *SecretsClient) get(ctx context.Context, name SecretName) (string, error) {
	id := string(name)
	res, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &id})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get secret %s: %w", name, err)
	}
	if res.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", name)
	}
	return *res.SecretString, nil
}
