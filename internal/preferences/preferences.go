// Package preferences keeps the per-session UI state that is not part of the
// cart, currency or identity: cookie consent and recently viewed products.
package preferences

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// DefaultRecentLimit is the number of recently viewed products kept.
const DefaultRecentLimit = 10

// Consent is the stored cookie consent decision.
type Consent struct {
	Decided  bool      `json:"decided"`
	Accepted bool      `json:"accepted"`
	Date     time.Time `json:"date,omitempty"`
}

// RecentProduct is the summary kept for a recently viewed product.
type RecentProduct struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Price    string    `json:"price"`
	ImageURL string    `json:"image_url,omitempty"`
	ViewedAt time.Time `json:"viewed_at"`
}

// Store owns the cookieConsent, cookieConsentDate, recentlyViewedProducts and locale keys.
type Store struct {
	mu     sync.Mutex
	bridge *storage.Bridge
	limit  int
	now    func() time.Time
}

// NewStore creates a preferences store. limit <= 0 uses DefaultRecentLimit.
func NewStore(bridge *storage.Bridge, limit int) *Store {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return &Store{
		bridge: bridge,
		limit:  limit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetConsent records the cookie consent decision and its date.
func (s *Store) SetConsent(ctx context.Context, accepted bool) (Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.bridge.Save(ctx, storage.KeyCookieConsent, accepted); err != nil {
		metrics.PersistFailures.WithLabelValues("preferences").Inc()
		return Consent{}, err
	}
	if err := s.bridge.Save(ctx, storage.KeyCookieConsentDate, now); err != nil {
		metrics.PersistFailures.WithLabelValues("preferences").Inc()
		return Consent{}, err
	}
	metrics.StoreMutations.WithLabelValues("preferences", "consent").Inc()
	return Consent{Decided: true, Accepted: accepted, Date: now}, nil
}

// Consent returns the stored decision. Decided is false until SetConsent is called.
func (s *Store) Consent(ctx context.Context) (Consent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted bool
	ok, err := s.bridge.Load(ctx, storage.KeyCookieConsent, &accepted)
	if err != nil || !ok {
		return Consent{}, err
	}
	c := Consent{Decided: true, Accepted: accepted}
	var date time.Time
	if _, err := s.bridge.Load(ctx, storage.KeyCookieConsentDate, &date); err != nil {
		return Consent{}, err
	}
	c.Date = date
	return c, nil
}

// RecordView moves p to the front of the recently viewed list.
func (s *Store) RecordView(ctx context.Context, p domain.Product) ([]RecentProduct, error) {
	if p.ID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadRecent(ctx)
	if err != nil {
		return nil, err
	}

	entry := RecentProduct{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price.String(),
		ViewedAt: s.now(),
	}
	if img, ok := p.PrimaryImage(); ok {
		entry.ImageURL = img.URL
	}

	next := make([]RecentProduct, 0, s.limit)
	next = append(next, entry)
	for _, r := range current {
		if len(next) == s.limit {
			break
		}
		if r.ID != p.ID {
			next = append(next, r)
		}
	}

	if err := s.bridge.Save(ctx, storage.KeyRecentlyViewed, next); err != nil {
		metrics.PersistFailures.WithLabelValues("preferences").Inc()
		return nil, err
	}
	metrics.StoreMutations.WithLabelValues("preferences", "record_view").Inc()
	return next, nil
}

// RecentlyViewed returns the list, most recent first.
func (s *Store) RecentlyViewed(ctx context.Context) ([]RecentProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRecent(ctx)
}

// ClearRecentlyViewed empties the list.
func (s *Store) ClearRecentlyViewed(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge.Remove(ctx, storage.KeyRecentlyViewed)
}

func (s *Store) loadRecent(ctx context.Context) ([]RecentProduct, error) {
	var list []RecentProduct
	if _, err := s.bridge.Load(ctx, storage.KeyRecentlyViewed, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []RecentProduct{}
	}
	if len(list) > s.limit {
		list = list[:s.limit]
	}
	return list, nil
}

// SetLocale persists the selected UI locale.
func (s *Store) SetLocale(ctx context.Context, locale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.bridge.Save(ctx, storage.KeyLocale, locale); err != nil {
		metrics.PersistFailures.WithLabelValues("preferences").Inc()
		return err
	}
	metrics.StoreMutations.WithLabelValues("preferences", "locale").Inc()
	return nil
}

// Locale returns the persisted locale, or "" when none was chosen.
func (s *Store) Locale(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var locale string
	if _, err := s.bridge.Load(ctx, storage.KeyLocale, &locale); err != nil {
		return "", err
	}
	return locale, nil
}
