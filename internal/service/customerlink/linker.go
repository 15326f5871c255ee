// internal/service/customerlink/linker.go
package customerlink

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/provider"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ErrRecoveryFailed is returned when the provider still reports the customer
// missing after it was recreated.
var ErrRecoveryFailed = errors.New("provider customer missing after recovery")

type LinkRepository interface {
	// FindPrimary returns the active primary link, or the oldest active link when
	// none is flagged primary. ErrNotFound when there is no active link.
	FindPrimary(ctx context.Context, customerID string, p payment.Provider) (*customer.ProviderCustomerLink, error)
	FindActive(ctx context.Context, customerID string, p payment.Provider) ([]*customer.ProviderCustomerLink, error)
	// CreatePrimary stores link as the only primary for its (customer, provider).
	CreatePrimary(ctx context.Context, link *customer.ProviderCustomerLink) error
	UpdateProviderCustomerID(ctx context.Context, linkID, providerCustomerID string) error
	Deactivate(ctx context.Context, linkID string) error
}

type CustomerAPIResolver interface {
	CustomerAPI(ctx context.Context, p payment.Provider) (provider.CustomerAPI, error)
}

type CustomerReader interface {
	FindByID(ctx context.Context, id string) (*customer.Customer, error)
}

type Linker struct {
	links     LinkRepository
	clients   CustomerAPIResolver
	customers CustomerReader
	logger    *zap.Logger
}

func NewLinker(links LinkRepository, clients CustomerAPIResolver, customers CustomerReader, logger *zap.Logger) *Linker {
	return &Linker{
		links:     links,
		clients:   clients,
		customers: customers,
		logger:    logger,
	}
}

// GetOrCreate returns the provider customer id for a local customer, creating the
// remote customer and a primary link when none exists.
func (l *Linker) GetOrCreate(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo) (string, error) {
	link, err := l.getOrCreateLink(ctx, p, customerID, contact)
	if err != nil {
		return "", err
	}
	return link.ProviderCustomerID, nil
}

// GetAll lists every active link, primary first.
func (l *Linker) GetAll(ctx context.Context, customerID string, p payment.Provider) ([]*customer.ProviderCustomerLink, error) {
	links, err := l.links.FindActive(ctx, customerID, p)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider links: %w", err)
	}
	return links, nil
}

// WithRecovery runs op against the customer's provider id. If the provider
// reports the customer gone, the remote customer is recreated, the same link row
// is repointed, and op is retried exactly once.
func (l *Linker) WithRecovery(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo, op func(ctx context.Context, providerCustomerID string) error) error {
	link, err := l.getOrCreateLink(ctx, p, customerID, contact)
	if err != nil {
		return err
	}

	err = op(ctx, link.ProviderCustomerID)
	if !errors.Is(err, provider.ErrResourceMissing) {
		return err
	}

	l.logger.Warn("provider customer missing, recreating",
		zap.String("provider", string(p)),
		zap.String("customer_id", customerID),
		zap.String("stale_provider_customer_id", link.ProviderCustomerID),
	)

	newID, err := l.createRemote(ctx, p, customerID, contact)
	if err != nil {
		return err
	}
	if err := l.links.UpdateProviderCustomerID(ctx, link.ID, newID); err != nil {
		return fmt.Errorf("failed to repoint provider link: %w", err)
	}

	err = op(ctx, newID)
	if errors.Is(err, provider.ErrResourceMissing) {
		return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return err
}

// ListSavedCards merges cards across every active link and drops duplicates of
// the same physical card. Links whose remote customer has vanished are deactivated.
func (l *Linker) ListSavedCards(ctx context.Context, p payment.Provider, customerID string) ([]customer.SavedCard, error) {
	links, err := l.GetAll(ctx, customerID, p)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []customer.SavedCard{}, nil
	}

	api, err := l.clients.CustomerAPI(ctx, p)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	cards := []customer.SavedCard{}
	for _, link := range links {
		found, err := api.ListCards(ctx, link.ProviderCustomerID)
		if errors.Is(err, provider.ErrResourceMissing) {
			l.logger.Warn("deactivating link to missing provider customer",
				zap.String("link_id", link.ID),
				zap.String("provider_customer_id", link.ProviderCustomerID),
			)
			if err := l.links.Deactivate(ctx, link.ID); err != nil {
				l.logger.Error("failed to deactivate provider link", zap.String("link_id", link.ID), zap.Error(err))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list cards for %s: %w", link.ProviderCustomerID, err)
		}

		for _, c := range found {
			key := c.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			cards = append(cards, c)
		}
	}
	return cards, nil
}

func (l *Linker) Deactivate(ctx context.Context, linkID string) error {
	return l.links.Deactivate(ctx, linkID)
}

func (l *Linker) getOrCreateLink(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo) (*customer.ProviderCustomerLink, error) {
	link, err := l.links.FindPrimary(ctx, customerID, p)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to find provider link: %w", err)
	}

	remoteID, err := l.createRemote(ctx, p, customerID, contact)
	if err != nil {
		return nil, err
	}

	link = &customer.ProviderCustomerLink{
		ID:                 ulid.Make().String(),
		CustomerID:         customerID,
		Provider:           p,
		ProviderCustomerID: remoteID,
		IsPrimary:          true,
		IsActive:           true,
		Metadata:           map[string]string{"local_customer_id": customerID},
	}
	if contact.Email != "" {
		link.ProviderEmail.String, link.ProviderEmail.Valid = contact.Email, true
	}
	if err := l.links.CreatePrimary(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to store provider link: %w", err)
	}

	l.logger.Info("provider customer linked",
		zap.String("provider", string(p)),
		zap.String("customer_id", customerID),
		zap.String("provider_customer_id", remoteID),
	)
	return link, nil
}

func (l *Linker) createRemote(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo) (string, error) {
	if contact.IsEmpty() && l.customers != nil {
		c, err := l.customers.FindByID(ctx, customerID)
		if err != nil {
			return "", fmt.Errorf("failed to load customer %s: %w", customerID, err)
		}
		contact = c.Contact()
	}

	api, err := l.clients.CustomerAPI(ctx, p)
	if err != nil {
		return "", err
	}

	remoteID, err := api.CreateCustomer(ctx, contact)
	if err != nil {
		return "", fmt.Errorf("failed to create %s customer: %w", p, err)
	}
	return remoteID, nil
}
