// internal/provider/factory.go
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	xerrors "bloom-payments/internal/pkg/errors"

	"go.uber.org/zap"
)

// DefaultClientTTL bounds how long a built client is reused before settings are re-read.
const DefaultClientTTL = 5 * time.Minute

type SettingsReader interface {
	GetProviderSettings(ctx context.Context, p payment.Provider) (*settings.ProviderSettings, error)
}

type SecretDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// BuildFunc turns decrypted settings into a client.
type BuildFunc func(s *settings.ProviderSettings, secret string) (interface{}, error)

// ConfigError means the provider cannot be used until its settings change.
// Callers should not retry.
type ConfigError struct {
	Provider payment.Provider
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

type cachedClient struct {
	client      interface{}
	refreshedAt time.Time
}

type Factory struct {
	settings SettingsReader
	secrets  SecretDecrypter
	builders map[payment.Provider]BuildFunc
	logger   *zap.Logger

	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[payment.Provider]cachedClient
}

type FactoryOption func(*Factory)

func WithTTL(ttl time.Duration) FactoryOption {
	return func(f *Factory) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// WithSquareEndpoints points the Square builder at explicit base URLs.
func WithSquareEndpoints(prodURL, sandboxURL string, timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.builders[payment.ProviderSquare] = DefaultBuilders(prodURL, sandboxURL, timeout)[payment.ProviderSquare]
	}
}

// WithBuilder overrides how a provider's client is constructed.
func WithBuilder(p payment.Provider, b BuildFunc) FactoryOption {
	return func(f *Factory) { f.builders[p] = b }
}

func NewFactory(settingsReader SettingsReader, secrets SecretDecrypter, logger *zap.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		settings: settingsReader,
		secrets:  secrets,
		logger:   logger,
		ttl:      DefaultClientTTL,
		now:      time.Now,
		cache:    make(map[payment.Provider]cachedClient),
		builders: DefaultBuilders(SquareProductionBaseURL, SquareSandboxBaseURL, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DefaultBuilders wires the real SDK clients.
func DefaultBuilders(squareProdURL, squareSandboxURL string, squareTimeout time.Duration) map[payment.Provider]BuildFunc {
	return map[payment.Provider]BuildFunc{
		payment.ProviderStripe: func(_ *settings.ProviderSettings, secret string) (interface{}, error) {
			return NewStripeClient(secret), nil
		},
		payment.ProviderSquare: func(s *settings.ProviderSettings, secret string) (interface{}, error) {
			base := squareProdURL
			if s.IsSandbox() {
				base = squareSandboxURL
			}
			return NewSquareClient(secret, s.LocationID, base, squareTimeout), nil
		},
		payment.ProviderPayPal: func(s *settings.ProviderSettings, secret string) (interface{}, error) {
			if s.PublicKey == "" {
				return nil, fmt.Errorf("paypal client id is not configured")
			}
			return NewPayPalClient(s.PublicKey, secret, s.IsSandbox())
		},
	}
}

// Client returns a cached client younger than the TTL or builds a fresh one
// from current settings.
func (f *Factory) Client(ctx context.Context, p payment.Provider) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.cache[p]; ok && f.now().Sub(c.refreshedAt) < f.ttl {
		return c.client, nil
	}

	build, ok := f.builders[p]
	if !ok {
		return nil, &ConfigError{Provider: p, Err: fmt.Errorf("no client builder registered")}
	}

	s, err := f.settings.GetProviderSettings(ctx, p)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, &ConfigError{Provider: p, Err: xerrors.ErrProviderNotConfigured}
		}
		return nil, fmt.Errorf("failed to load %s settings: %w", p, err)
	}
	if !s.Enabled {
		delete(f.cache, p)
		return nil, &ConfigError{Provider: p, Err: xerrors.ErrProviderDisabled}
	}
	if !s.HasSecret() {
		delete(f.cache, p)
		return nil, &ConfigError{Provider: p, Err: xerrors.ErrProviderNotConfigured}
	}

	secret, err := f.secrets.Decrypt(s.EncryptedSecret)
	if err != nil {
		return nil, &ConfigError{Provider: p, Err: fmt.Errorf("failed to decrypt secret: %w", err)}
	}

	client, err := build(s, secret)
	if err != nil {
		return nil, &ConfigError{Provider: p, Err: err}
	}

	f.cache[p] = cachedClient{client: client, refreshedAt: f.now()}
	f.logger.Info("payment provider client initialized",
		zap.String("provider", string(p)),
		zap.String("environment", string(s.Environment)),
	)
	return client, nil
}

// InvalidateCache drops every cached client; the next call re-reads settings.
func (f *Factory) InvalidateCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cache = make(map[payment.Provider]cachedClient)
	f.logger.Info("payment provider client cache invalidated")
}

func (f *Factory) StripeClient(ctx context.Context) (StripeAPI, error) {
	c, err := f.Client(ctx, payment.ProviderStripe)
	if err != nil {
		return nil, err
	}
	api, ok := c.(StripeAPI)
	if !ok {
		return nil, fmt.Errorf("stripe builder returned %T", c)
	}
	return api, nil
}

func (f *Factory) SquareClient(ctx context.Context) (SquareAPI, error) {
	c, err := f.Client(ctx, payment.ProviderSquare)
	if err != nil {
		return nil, err
	}
	api, ok := c.(SquareAPI)
	if !ok {
		return nil, fmt.Errorf("square builder returned %T", c)
	}
	return api, nil
}

func (f *Factory) PayPalClient(ctx context.Context) (PayPalAPI, error) {
	c, err := f.Client(ctx, payment.ProviderPayPal)
	if err != nil {
		return nil, err
	}
	api, ok := c.(PayPalAPI)
	if !ok {
		return nil, fmt.Errorf("paypal builder returned %T", c)
	}
	return api, nil
}

// CustomerAPI returns the customer half of a card provider.
func (f *Factory) CustomerAPI(ctx context.Context, p payment.Provider) (CustomerAPI, error) {
	c, err := f.Client(ctx, p)
	if err != nil {
		return nil, err
	}
	api, ok := c.(CustomerAPI)
	if !ok {
		return nil, &ConfigError{Provider: p, Err: fmt.Errorf("provider does not manage customers")}
	}
	return api, nil
}

// RefundAPI returns the refund half of a card provider.
func (f *Factory) RefundAPI(ctx context.Context, p payment.Provider) (RefundAPI, error) {
	c, err := f.Client(ctx, p)
	if err != nil {
		return nil, err
	}
	api, ok := c.(RefundAPI)
	if !ok {
		return nil, &ConfigError{Provider: p, Err: fmt.Errorf("provider does not support refunds")}
	}
	return api, nil
}
