// internal/service/settings/service.go
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	xerrors "bloom-payments/internal/pkg/errors"

	"go.uber.org/zap"
)

type Store interface {
	GetProviderSettings(ctx context.Context, p payment.Provider) (*settings.ProviderSettings, error)
	Upsert(ctx context.Context, s *settings.ProviderSettings) error
}

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ClientCache is the provider client factory's cache.
type ClientCache interface {
	InvalidateCache()
}

type Service struct {
	store   Store
	secrets Encrypter
	clients ClientCache
	logger  *zap.Logger
}

func NewService(store Store, secrets Encrypter, clients ClientCache, logger *zap.Logger) *Service {
	return &Service{
		store:   store,
		secrets: secrets,
		clients: clients,
		logger:  logger,
	}
}

// GetProviderSettings returns the stored settings without the secret.
func (s *Service) GetProviderSettings(ctx context.Context, p payment.Provider) (*settings.ProviderSettings, error) {
	p, err := parseProvider(string(p))
	if err != nil {
		return nil, err
	}
	return s.store.GetProviderSettings(ctx, p)
}

// UpdateProviderSettings stores new settings for p and drops every cached
// client so the next payment uses them.
func (s *Service) UpdateProviderSettings(ctx context.Context, p payment.Provider, in settings.UpdateProviderSettingsInput) (*settings.ProviderSettings, error) {
	p, err := parseProvider(string(p))
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetProviderSettings(ctx, p)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to load %s settings: %w", p, err)
	}

	// An enabled provider needs a secret, either new or already stored
	secret := strings.TrimSpace(in.Secret)
	if in.Enabled && secret == "" && !existing.HasSecret() {
		return nil, fmt.Errorf("%w: %s cannot be enabled without a secret", xerrors.ErrInvalidInput, p)
	}
	if in.Enabled && p == payment.ProviderSquare && strings.TrimSpace(in.LocationID) == "" {
		return nil, fmt.Errorf("%w: square requires a location id", xerrors.ErrInvalidInput)
	}
	if in.Enabled && p == payment.ProviderPayPal && strings.TrimSpace(in.PublicKey) == "" {
		return nil, fmt.Errorf("%w: paypal requires a client id", xerrors.ErrInvalidInput)
	}

	env := in.Environment
	if env == "" {
		env = settings.EnvSandbox
	}

	updated := &settings.ProviderSettings{
		Provider:    p,
		Enabled:     in.Enabled,
		PublicKey:   strings.TrimSpace(in.PublicKey),
		LocationID:  strings.TrimSpace(in.LocationID),
		Environment: env,
	}
	if secret != "" {
		if updated.EncryptedSecret, err = s.secrets.Encrypt(secret); err != nil {
			return nil, fmt.Errorf("failed to encrypt %s secret: %w", p, err)
		}
	}

	if err := s.store.Upsert(ctx, updated); err != nil {
		return nil, err
	}
	s.clients.InvalidateCache()

	s.logger.Info("provider settings updated",
		zap.String("provider", string(p)),
		zap.Bool("enabled", updated.Enabled),
		zap.String("environment", string(env)),
		zap.Bool("secret_rotated", secret != ""),
	)
	return updated, nil
}

// InvalidateProviderCache forces every provider client to be rebuilt.
func (s *Service) InvalidateProviderCache() {
	s.clients.InvalidateCache()
	s.logger.Info("provider client cache invalidated")
}

func parseProvider(raw string) (payment.Provider, error) {
	p := payment.Provider(strings.ToUpper(strings.TrimSpace(raw)))
	switch p {
	case payment.ProviderStripe, payment.ProviderSquare, payment.ProviderPayPal:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown provider %q", xerrors.ErrInvalidInput, raw)
}
