package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSettings struct {
	mu        sync.Mutex
	values    map[payment.Provider]*settings.ProviderSettings
	CallCount int
}

func (m *mockSettings) GetProviderSettings(_ context.Context, p payment.Provider) (*settings.ProviderSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	s, ok := m.values[p]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSettings) set(p payment.Provider, s *settings.ProviderSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[p] = s
}

func (m *mockSettings) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

type plainSecrets struct{}

func (plainSecrets) Decrypt(s string) (string, error) {
	if s == "corrupt" {
		return "", errors.New("bad ciphertext")
	}
	return "plain:" + s, nil
}

type builtClient struct{ secret string }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestFactory(t *testing.T) (*Factory, *mockSettings, *fakeClock) {
	t.Helper()
	st := &mockSettings{values: map[payment.Provider]*settings.ProviderSettings{
		payment.ProviderStripe: {Provider: payment.ProviderStripe, Enabled: true, EncryptedSecret: "sk1"},
	}}
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	build := func(_ *settings.ProviderSettings, secret string) (interface{}, error) {
		return &builtClient{secret: secret}, nil
	}
	f := NewFactory(st, plainSecrets{}, zap.NewNop(),
		WithClock(clock.Now),
		WithBuilder(payment.ProviderStripe, build),
		WithBuilder(payment.ProviderSquare, build),
	)
	return f, st, clock
}

func TestFactoryCachesWithinTTL(t *testing.T) {
	f, st, clock := newTestFactory(t)
	ctx := context.Background()

	first, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, "plain:sk1", first.(*builtClient).secret)

	clock.Advance(4 * time.Minute)
	second, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, st.calls())

	clock.Advance(2 * time.Minute)
	third, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, st.calls())
}

func TestFactoryInvalidateCachePicksUpRotation(t *testing.T) {
	f, st, _ := newTestFactory(t)
	ctx := context.Background()

	_, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)

	st.set(payment.ProviderStripe, &settings.ProviderSettings{Provider: payment.ProviderStripe, Enabled: true, EncryptedSecret: "sk2"})
	f.InvalidateCache()

	c, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, "plain:sk2", c.(*builtClient).secret)
}

func TestFactoryConfigErrors(t *testing.T) {
	f, st, _ := newTestFactory(t)
	ctx := context.Background()

	st.set(payment.ProviderSquare, &settings.ProviderSettings{Provider: payment.ProviderSquare, Enabled: false, EncryptedSecret: "x"})
	_, err := f.Client(ctx, payment.ProviderSquare)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, xerrors.ErrProviderDisabled)

	st.set(payment.ProviderSquare, &settings.ProviderSettings{Provider: payment.ProviderSquare, Enabled: true})
	_, err = f.Client(ctx, payment.ProviderSquare)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, xerrors.ErrProviderNotConfigured)

	st.set(payment.ProviderSquare, &settings.ProviderSettings{Provider: payment.ProviderSquare, Enabled: true, EncryptedSecret: "corrupt"})
	_, err = f.Client(ctx, payment.ProviderSquare)
	assert.True(t, IsConfigError(err))

	_, err = f.Client(ctx, payment.ProviderPayPal)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, xerrors.ErrProviderNotConfigured)
}

func TestFactoryDisablingDropsCachedClient(t *testing.T) {
	f, st, clock := newTestFactory(t)
	ctx := context.Background()

	_, err := f.Client(ctx, payment.ProviderStripe)
	require.NoError(t, err)

	st.set(payment.ProviderStripe, &settings.ProviderSettings{Provider: payment.ProviderStripe, Enabled: false, EncryptedSecret: "sk1"})
	clock.Advance(DefaultClientTTL)

	_, err = f.Client(ctx, payment.ProviderStripe)
	assert.ErrorIs(t, err, xerrors.ErrProviderDisabled)
}

func TestFactoryTypedAccessorRejectsWrongType(t *testing.T) {
	f, _, _ := newTestFactory(t)
	_, err := f.StripeClient(context.Background())
	assert.Error(t, err)
}

func TestFactoryConcurrentAccess(t *testing.T) {
	f, st, _ := newTestFactory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%10 == 0 {
				f.InvalidateCache()
			}
			_, err := f.Client(ctx, payment.ProviderStripe)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, st.calls(), 6)
}
