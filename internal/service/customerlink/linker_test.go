package customerlink

import (
	"context"
	"errors"
	"testing"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLinks struct {
	links       map[string]*customer.ProviderCustomerLink
	deactivated []string
	updated     map[string]string
}

func newMockLinks(links ...*customer.ProviderCustomerLink) *mockLinks {
	m := &mockLinks{links: map[string]*customer.ProviderCustomerLink{}, updated: map[string]string{}}
	for _, l := range links {
		m.links[l.ID] = l
	}
	return m
}

func (m *mockLinks) FindPrimary(_ context.Context, customerID string, p payment.Provider) (*customer.ProviderCustomerLink, error) {
	active, _ := m.FindActive(context.Background(), customerID, p)
	if len(active) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return active[0], nil
}

func (m *mockLinks) FindActive(_ context.Context, customerID string, p payment.Provider) ([]*customer.ProviderCustomerLink, error) {
	var primary, rest []*customer.ProviderCustomerLink
	for _, id := range []string{"l1", "l2", "l3", "new"} {
		l, ok := m.links[id]
		if !ok || !l.IsActive || l.CustomerID != customerID || l.Provider != p {
			continue
		}
		if l.IsPrimary {
			primary = append(primary, l)
		} else {
			rest = append(rest, l)
		}
	}
	return append(primary, rest...), nil
}

func (m *mockLinks) CreatePrimary(_ context.Context, link *customer.ProviderCustomerLink) error {
	link.ID = "new"
	m.links[link.ID] = link
	return nil
}

func (m *mockLinks) UpdateProviderCustomerID(_ context.Context, linkID, providerCustomerID string) error {
	m.updated[linkID] = providerCustomerID
	m.links[linkID].ProviderCustomerID = providerCustomerID
	return nil
}

func (m *mockLinks) Deactivate(_ context.Context, linkID string) error {
	m.deactivated = append(m.deactivated, linkID)
	m.links[linkID].IsActive = false
	return nil
}

type mockCustomerAPI struct {
	CreateCustomerFunc func(ctx context.Context, contact customer.ContactInfo) (string, error)
	ListCardsFunc      func(ctx context.Context, providerCustomerID string) ([]customer.SavedCard, error)
	created            []customer.ContactInfo
}

func (m *mockCustomerAPI) CreateCustomer(ctx context.Context, contact customer.ContactInfo) (string, error) {
	m.created = append(m.created, contact)
	return m.CreateCustomerFunc(ctx, contact)
}

func (m *mockCustomerAPI) ListCards(ctx context.Context, providerCustomerID string) ([]customer.SavedCard, error) {
	return m.ListCardsFunc(ctx, providerCustomerID)
}

type staticResolver struct{ api provider.CustomerAPI }

func (r staticResolver) CustomerAPI(context.Context, payment.Provider) (provider.CustomerAPI, error) {
	return r.api, nil
}

type mockCustomers struct{}

func (mockCustomers) FindByID(_ context.Context, id string) (*customer.Customer, error) {
	return &customer.Customer{ID: id, FirstName: "Ada", LastName: "Lovelace"}, nil
}

var errMissing = &provider.APIError{Provider: payment.ProviderStripe, Category: provider.CategoryResourceMissing, Message: "No such customer"}

func link(id, remote string, primary bool) *customer.ProviderCustomerLink {
	return &customer.ProviderCustomerLink{
		ID:                 id,
		CustomerID:         "c1",
		Provider:           payment.ProviderStripe,
		ProviderCustomerID: remote,
		IsPrimary:          primary,
		IsActive:           true,
	}
}

func TestGetOrCreateReusesPrimary(t *testing.T) {
	api := &mockCustomerAPI{}
	l := NewLinker(newMockLinks(link("l1", "cus_A", true)), staticResolver{api}, mockCustomers{}, zap.NewNop())

	id, err := l.GetOrCreate(context.Background(), payment.ProviderStripe, "c1", customer.ContactInfo{})
	require.NoError(t, err)
	assert.Equal(t, "cus_A", id)
	assert.Empty(t, api.created)
}

func TestGetOrCreateCreatesRemoteCustomer(t *testing.T) {
	links := newMockLinks()
	api := &mockCustomerAPI{
		CreateCustomerFunc: func(context.Context, customer.ContactInfo) (string, error) { return "cus_NEW", nil },
	}
	l := NewLinker(links, staticResolver{api}, mockCustomers{}, zap.NewNop())

	id, err := l.GetOrCreate(context.Background(), payment.ProviderStripe, "c1", customer.ContactInfo{})
	require.NoError(t, err)
	assert.Equal(t, "cus_NEW", id)

	require.Len(t, api.created, 1)
	assert.Equal(t, "Ada Lovelace", api.created[0].Name, "contact loaded from the customer record")
	assert.True(t, links.links["new"].IsPrimary)
}

func TestWithRecoveryRetriesOnce(t *testing.T) {
	links := newMockLinks(link("l1", "cus_GONE", true))
	api := &mockCustomerAPI{
		CreateCustomerFunc: func(context.Context, customer.ContactInfo) (string, error) { return "cus_FRESH", nil },
	}
	l := NewLinker(links, staticResolver{api}, mockCustomers{}, zap.NewNop())

	var seen []string
	err := l.WithRecovery(context.Background(), payment.ProviderStripe, "c1", customer.ContactInfo{Name: "Ada"},
		func(_ context.Context, remoteID string) error {
			seen = append(seen, remoteID)
			if remoteID == "cus_GONE" {
				return errMissing
			}
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"cus_GONE", "cus_FRESH"}, seen)
	assert.Equal(t, "cus_FRESH", links.updated["l1"], "same link row is repointed")
	assert.Len(t, links.links, 1)
}

func TestWithRecoveryGivesUpAfterSecondMiss(t *testing.T) {
	api := &mockCustomerAPI{
		CreateCustomerFunc: func(context.Context, customer.ContactInfo) (string, error) { return "cus_FRESH", nil },
	}
	l := NewLinker(newMockLinks(link("l1", "cus_GONE", true)), staticResolver{api}, mockCustomers{}, zap.NewNop())

	calls := 0
	err := l.WithRecovery(context.Background(), payment.ProviderStripe, "c1", customer.ContactInfo{Name: "Ada"},
		func(context.Context, string) error {
			calls++
			return errMissing
		})

	assert.ErrorIs(t, err, ErrRecoveryFailed)
	assert.Equal(t, 2, calls)
	assert.Len(t, api.created, 1)
}

func TestWithRecoveryPassesThroughOtherErrors(t *testing.T) {
	api := &mockCustomerAPI{}
	l := NewLinker(newMockLinks(link("l1", "cus_A", true)), staticResolver{api}, mockCustomers{}, zap.NewNop())

	declined := &provider.APIError{Category: provider.CategoryCardDeclined}
	calls := 0
	err := l.WithRecovery(context.Background(), payment.ProviderStripe, "c1", customer.ContactInfo{},
		func(context.Context, string) error {
			calls++
			return declined
		})

	assert.True(t, errors.Is(err, declined))
	assert.Equal(t, 1, calls)
	assert.Empty(t, api.created)
}

func TestListSavedCardsDedupesAndDeactivatesStale(t *testing.T) {
	links := newMockLinks(
		link("l1", "cus_A", true),
		link("l2", "cus_B", false),
		link("l3", "cus_GONE", false),
	)
	api := &mockCustomerAPI{
		ListCardsFunc: func(_ context.Context, remoteID string) ([]customer.SavedCard, error) {
			switch remoteID {
			case "cus_A":
				return []customer.SavedCard{
					{ID: "pm_1", Last4: "4242", Fingerprint: "fpX"},
					{ID: "pm_2", Last4: "0005"},
				}, nil
			case "cus_B":
				return []customer.SavedCard{
					{ID: "pm_3", Last4: "4242", Fingerprint: "fpX"},
					{ID: "pm_4", Last4: "1881", Fingerprint: "fpY"},
				}, nil
			}
			return nil, errMissing
		},
	}
	l := NewLinker(links, staticResolver{api}, mockCustomers{}, zap.NewNop())

	cards, err := l.ListSavedCards(context.Background(), payment.ProviderStripe, "c1")
	require.NoError(t, err)

	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"pm_1", "pm_2", "pm_4"}, ids, "primary link's copy wins")
	assert.Equal(t, []string{"l3"}, links.deactivated)
}

func TestListSavedCardsWithoutLinks(t *testing.T) {
	l := NewLinker(newMockLinks(), staticResolver{&mockCustomerAPI{}}, mockCustomers{}, zap.NewNop())

	cards, err := l.ListSavedCards(context.Background(), payment.ProviderStripe, "c1")
	require.NoError(t, err)
	assert.Empty(t, cards)
}
