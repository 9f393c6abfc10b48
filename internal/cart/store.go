// Package cart holds a session's cart. Every mutation is persisted to the
// storage bridge before it becomes visible.
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// MaxItemsPerCart is the maximum number of distinct lines in a cart.
const MaxItemsPerCart = 50

// Operation names reported to listeners.
const (
	OpItemAdded       = "item_added"
	OpItemRemoved     = "item_removed"
	OpQuantityUpdated = "quantity_updated"
	OpCleared         = "cleared"
)

// Change describes an applied mutation.
type Change struct {
	Op        string
	ProductID string
	Quantity  int
	Snapshot  domain.CartSnapshot
}

// Listener is called after a mutation has been applied and persisted.
type Listener func(ctx context.Context, c Change)

// Store owns the cart and langCart keys.
type Store struct {
	mu        sync.Mutex
	bridge    *storage.Bridge
	logger    *slog.Logger
	items     []domain.CartItem
	updatedAt time.Time
	listeners []Listener
	now       func() time.Time
}

// NewStore creates an empty cart store. Call Hydrate to load persisted state.
func NewStore(bridge *storage.Bridge, logger *slog.Logger) *Store {
	return &Store{
		bridge: bridge,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers fn for every applied mutation.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// AddItem increments the line for p, or appends a new line with quantity 1.
// The resulting quantity must not exceed p.Stock.
func (s *Store) AddItem(ctx context.Context, p domain.Product) (domain.CartSnapshot, error) {
	if p.ID == "" {
		return domain.CartSnapshot{}, apperrors.InvalidInput("product id is required")
	}
	if p.Price.IsNegative() {
		return domain.CartSnapshot{}, apperrors.InvalidInput("price must not be negative")
	}

	return s.mutate(ctx, OpItemAdded, p.ID, func(items []domain.CartItem) ([]domain.CartItem, int, error) {
		snap := domain.CartSnapshot{Items: items}
		if idx := snap.FindItemIndex(p.ID); idx >= 0 {
			qty := items[idx].Quantity + 1
			if qty > p.Stock {
				return nil, 0, apperrors.OutOfStock(p.ID, p.Stock)
			}
			// refresh the snapshot in case price or stock changed
			line := domain.NewCartItem(p)
			line.Quantity = qty
			items[idx] = line
			return items, qty, nil
		}

		if p.Stock < 1 {
			return nil, 0, apperrors.OutOfStock(p.ID, p.Stock)
		}
		if len(items) >= MaxItemsPerCart {
			return nil, 0, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
		}
		return append(items, domain.NewCartItem(p)), 1, nil
	})
}

// RemoveItem removes the line for productID. Removing an absent line is a no-op.
func (s *Store) RemoveItem(ctx context.Context, productID string) (domain.CartSnapshot, error) {
	return s.mutate(ctx, OpItemRemoved, productID, func(items []domain.CartItem) ([]domain.CartItem, int, error) {
		idx := domain.CartSnapshot{Items: items}.FindItemIndex(productID)
		if idx < 0 {
			return nil, 0, errNoChange
		}
		return append(items[:idx], items[idx+1:]...), 0, nil
	})
}

// UpdateQuantity sets the quantity of a line exactly. A quantity <= 0 removes it.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) (domain.CartSnapshot, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, productID)
	}

	return s.mutate(ctx, OpQuantityUpdated, productID, func(items []domain.CartItem) ([]domain.CartItem, int, error) {
		idx := domain.CartSnapshot{Items: items}.FindItemIndex(productID)
		if idx < 0 {
			return nil, 0, apperrors.NotFound("cart item", productID)
		}
		if quantity > items[idx].Stock {
			return nil, 0, apperrors.OutOfStock(productID, items[idx].Stock)
		}
		items[idx].Quantity = quantity
		return items, quantity, nil
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (domain.CartSnapshot, error) {
	return s.mutate(ctx, OpCleared, "", func([]domain.CartItem) ([]domain.CartItem, int, error) {
		return []domain.CartItem{}, 0, nil
	})
}

var errNoChange = errors.New("no change")

type mutation func(items []domain.CartItem) ([]domain.CartItem, int, error)

// mutate applies fn to a copy of the items, persists the result and only then
// commits it. Listeners run after the lock is released.
func (s *Store) mutate(ctx context.Context, op, productID string, fn mutation) (domain.CartSnapshot, error) {
	s.mu.Lock()

	s.refreshLocked(ctx)
	next, qty, err := fn(copyItems(s.items))
	if errors.Is(err, errNoChange) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if err != nil {
		s.mu.Unlock()
		return domain.CartSnapshot{}, err
	}

	snap := domain.CartSnapshot{Items: next, UpdatedAt: s.now()}
	if err := s.bridge.Save(ctx, storage.KeyCart, snap); err != nil {
		s.mu.Unlock()
		metrics.PersistFailures.WithLabelValues("cart").Inc()
		return domain.CartSnapshot{}, fmt.Errorf("persist cart: %w", err)
	}

	s.items = next
	s.updatedAt = snap.UpdatedAt
	out := s.snapshotLocked()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	metrics.StoreMutations.WithLabelValues("cart", op).Inc()

	change := Change{Op: op, ProductID: productID, Quantity: qty, Snapshot: out}
	for _, l := range listeners {
		l(ctx, change)
	}
	return out, nil
}

// refreshLocked adopts the stored cart when another process wrote a newer
// one, so a mutation never overwrites lines it has not seen. A failed read
// keeps the in-memory cart.
func (s *Store) refreshLocked(ctx context.Context) {
	stored, ok, _, err := s.loadSnapshot(ctx, storage.KeyCart)
	if err != nil {
		s.logger.WarnContext(ctx, "cart refresh failed", slog.String("error", err.Error()))
		return
	}
	if !ok || !stored.UpdatedAt.After(s.updatedAt) {
		return
	}
	s.items = copyItems(stored.Items)
	s.updatedAt = stored.UpdatedAt
	s.logger.DebugContext(ctx, "adopted newer stored cart", slog.Int("lines", len(stored.Items)))
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.CartSnapshot {
	return domain.CartSnapshot{Items: copyItems(s.items), UpdatedAt: s.updatedAt}
}

// Items returns a copy of the cart lines.
func (s *Store) Items() []domain.CartItem {
	return s.Snapshot().Items
}

// ItemCount returns the sum of all quantities.
func (s *Store) ItemCount() int {
	return s.Snapshot().ItemCount()
}

// Subtotal returns the sum of price * quantity in the base currency.
func (s *Store) Subtotal() decimal.Decimal {
	return s.Snapshot().Subtotal()
}

// Hydrate loads the persisted cart. When both cart and langCart are present
// the snapshot with the later updated_at wins, cart winning ties. langCart is
// always consumed and the winner is written back under cart.
func (s *Store) Hydrate(ctx context.Context) error {
	primary, hasPrimary, legacyPrimary, err := s.loadSnapshot(ctx, storage.KeyCart)
	if err != nil {
		return err
	}
	carried, hasCarried, _, err := s.loadSnapshot(ctx, storage.KeyLangCart)
	if err != nil {
		return err
	}

	winner := primary
	fromLangCart := hasCarried && (!hasPrimary || carried.UpdatedAt.After(primary.UpdatedAt))
	if fromLangCart {
		winner = carried
	}
	if winner.Items == nil {
		winner.Items = []domain.CartItem{}
	}

	if hasCarried || legacyPrimary {
		if err := s.bridge.Save(ctx, storage.KeyCart, winner); err != nil {
			return fmt.Errorf("persist hydrated cart: %w", err)
		}
	}
	if hasCarried {
		if err := s.bridge.Remove(ctx, storage.KeyLangCart); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.items = copyItems(winner.Items)
	s.updatedAt = winner.UpdatedAt
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "cart hydrated",
		slog.Int("lines", len(winner.Items)),
		slog.Bool("from_lang_cart", fromLangCart),
	)
	return nil
}

// SnapshotForLocaleSwitch writes the current cart under langCart so it
// survives a locale switch. It keeps the cart's own updated_at.
func (s *Store) SnapshotForLocaleSwitch(ctx context.Context) error {
	snap := s.Snapshot()
	if err := s.bridge.Save(ctx, storage.KeyLangCart, snap); err != nil {
		metrics.PersistFailures.WithLabelValues("cart").Inc()
		return fmt.Errorf("persist lang cart: %w", err)
	}
	return nil
}

// loadSnapshot reads a stored cart. Legacy values are bare item arrays and
// are treated as written at the zero time.
func (s *Store) loadSnapshot(ctx context.Context, key string) (domain.CartSnapshot, bool, bool, error) {
	var raw json.RawMessage
	ok, err := s.bridge.Load(ctx, key, &raw)
	if err != nil || !ok {
		return domain.CartSnapshot{}, false, false, err
	}

	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return domain.CartSnapshot{}, false, false, nil
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []domain.CartItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			s.logger.WarnContext(ctx, "discarding malformed legacy cart", slog.String("key", key), slog.String("error", err.Error()))
			return domain.CartSnapshot{}, false, false, nil
		}
		return domain.CartSnapshot{Items: sanitize(items)}, true, true, nil
	}

	var snap domain.CartSnapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		s.logger.WarnContext(ctx, "discarding malformed cart", slog.String("key", key), slog.String("error", err.Error()))
		return domain.CartSnapshot{}, false, false, nil
	}
	snap.Items = sanitize(snap.Items)
	return snap, true, false, nil
}

// sanitize drops lines that break the cart invariants: empty ids,
// quantities below one and duplicate products (first line wins).
func sanitize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			continue
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		out = append(out, item)
	}
	return out
}

func copyItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out
}
