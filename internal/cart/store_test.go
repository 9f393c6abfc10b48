package cart

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// --- Test Helpers ---

type failingBackend struct {
	*memory.Backend
	failSet bool
}

func (f *failingBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Backend.Set(ctx, key, value)
}

func newTestStore() (*Store, *storage.Bridge) {
	bridge := storage.NewBridge(memory.New(), logger.Discard()).Namespace("session:test")
	return NewStore(bridge, logger.Discard()), bridge
}

func product(id string, price int64, stock int) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "Product " + id,
		Price: decimal.NewFromInt(price),
		Stock: stock,
	}
}

func TestAddItem_NewLine(t *testing.T) {
	s, _ := newTestStore()

	snap, err := s.AddItem(context.Background(), product("p1", 1500, 10))
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 1, snap.Items[0].Quantity)
	assert.Equal(t, 1, s.ItemCount())
	assert.True(t, decimal.NewFromInt(1500).Equal(s.Subtotal()))
}

func TestAddItem_SameProductTwiceIncrements(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	_, err := s.AddItem(ctx, product("p1", 1500, 10))
	require.NoError(t, err)
	snap, err := s.AddItem(ctx, product("p1", 1500, 10))
	require.NoError(t, err)

	require.Len(t, snap.Items, 1)
	assert.Equal(t, 2, snap.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(3000).Equal(s.Subtotal()))
}

func TestAddItem_StockCeiling(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	_, err := s.AddItem(ctx, product("p1", 100, 1))
	require.NoError(t, err)

	_, err = s.AddItem(ctx, product("p1", 100, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
	assert.Equal(t, 1, s.ItemCount(), "state must be unchanged")

	_, err = s.AddItem(ctx, product("p2", 100, 0))
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))
	assert.Len(t, s.Items(), 1)
}

func TestAddItem_Validation(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.AddItem(context.Background(), product("", 100, 5))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = s.AddItem(context.Background(), product("p1", -1, 5))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestAddItem_MaxLines(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for i := 0; i < MaxItemsPerCart; i++ {
		_, err := s.AddItem(ctx, product(string(rune('A'+i%26))+string(rune('a'+i/26)), 10, 5))
		require.NoError(t, err)
	}
	_, err := s.AddItem(ctx, product("overflow", 10, 5))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)

	calls := 0
	s.Subscribe(func(context.Context, Change) { calls++ })

	snap, err := s.RemoveItem(ctx, "missing")
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Zero(t, calls)
}

func TestUpdateQuantity(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, err := s.AddItem(ctx, product("p1", 250, 5))
	require.NoError(t, err)

	snap, err := s.UpdateQuantity(ctx, "p1", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(1000).Equal(s.Subtotal()))

	_, err = s.UpdateQuantity(ctx, "p1", 6)
	assert.True(t, errors.Is(err, apperrors.ErrOutOfStock))

	_, err = s.UpdateQuantity(ctx, "missing", 2)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateQuantity_ZeroEqualsRemove(t *testing.T) {
	a, _ := newTestStore()
	b, _ := newTestStore()
	ctx := context.Background()

	for _, s := range []*Store{a, b} {
		_, err := s.AddItem(ctx, product("p1", 100, 5))
		require.NoError(t, err)
		_, err = s.AddItem(ctx, product("p2", 200, 5))
		require.NoError(t, err)
	}

	_, err := a.UpdateQuantity(ctx, "p1", 0)
	require.NoError(t, err)
	_, err = b.RemoveItem(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, b.Items(), a.Items())
}

func TestClear_EmptiesPersistedCart(t *testing.T) {
	s, bridge := newTestStore()
	ctx := context.Background()
	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)

	_, err = s.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.ItemCount())

	var stored domain.CartSnapshot
	ok, err := bridge.Load(ctx, storage.KeyCart, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, stored.Items)
}

func TestMutation_PersistFailureLeavesStateUnchanged(t *testing.T) {
	backend := &failingBackend{Backend: memory.New()}
	s := NewStore(storage.NewBridge(backend, logger.Discard()), logger.Discard())
	ctx := context.Background()

	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)

	backend.failSet = true
	_, err = s.AddItem(ctx, product("p1", 100, 5))
	require.Error(t, err)
	assert.Equal(t, 1, s.ItemCount())
}

func TestSubscribe_ReceivesChange(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	var got []Change
	s.Subscribe(func(_ context.Context, c Change) { got = append(got, c) })

	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)
	_, err = s.Clear(ctx)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, OpItemAdded, got[0].Op)
	assert.Equal(t, "p1", got[0].ProductID)
	assert.Equal(t, 1, got[0].Quantity)
	assert.Equal(t, OpCleared, got[1].Op)
	assert.Empty(t, got[1].Snapshot.Items)
}

func TestInvariants_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()
	ids := []string{"a", "b", "c", "d"}

	for round := 0; round < 50; round++ {
		s, _ := newTestStore()
		for step := 0; step < 40; step++ {
			id := ids[rng.Intn(len(ids))]
			switch rng.Intn(3) {
			case 0:
				_, _ = s.AddItem(ctx, product(id, int64(100*(len(id)+step%3)), 8))
			case 1:
				_, _ = s.RemoveItem(ctx, id)
			case 2:
				_, _ = s.UpdateQuantity(ctx, id, rng.Intn(10)-1)
			}

			items := s.Items()
			wantCount := 0
			wantTotal := decimal.Zero
			seen := map[string]bool{}
			for _, it := range items {
				assert.False(t, seen[it.ProductID], "duplicate line for %s", it.ProductID)
				seen[it.ProductID] = true
				assert.GreaterOrEqual(t, it.Quantity, 1)
				wantCount += it.Quantity
				wantTotal = wantTotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
			}
			assert.Equal(t, wantCount, s.ItemCount())
			assert.True(t, wantTotal.Equal(s.Subtotal()))
		}
	}
}

func TestHydrate_RoundTrip(t *testing.T) {
	s, bridge := newTestStore()
	ctx := context.Background()
	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)
	_, err = s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)

	fresh := NewStore(bridge, logger.Discard())
	require.NoError(t, fresh.Hydrate(ctx))
	assert.Equal(t, 2, fresh.ItemCount())
}

func TestHydrate_LaterSnapshotWins(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		cartAt time.Time
		langAt time.Time
		wantID string
	}{
		{name: "lang cart newer", cartAt: t0, langAt: t0.Add(time.Minute), wantID: "from-lang"},
		{name: "cart newer", cartAt: t0.Add(time.Minute), langAt: t0, wantID: "from-cart"},
		{name: "tie keeps cart", cartAt: t0, langAt: t0, wantID: "from-cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bridge := newTestStore()
			require.NoError(t, bridge.Save(ctx, storage.KeyCart, domain.CartSnapshot{
				Items:     []domain.CartItem{domain.NewCartItem(product("from-cart", 100, 5))},
				UpdatedAt: tt.cartAt,
			}))
			require.NoError(t, bridge.Save(ctx, storage.KeyLangCart, domain.CartSnapshot{
				Items:     []domain.CartItem{domain.NewCartItem(product("from-lang", 100, 5))},
				UpdatedAt: tt.langAt,
			}))

			s := NewStore(bridge, logger.Discard())
			require.NoError(t, s.Hydrate(ctx))
			items := s.Items()
			require.Len(t, items, 1)
			assert.Equal(t, tt.wantID, items[0].ProductID)

			var lang domain.CartSnapshot
			ok, err := bridge.Load(ctx, storage.KeyLangCart, &lang)
			require.NoError(t, err)
			assert.False(t, ok, "langCart must be consumed")

			var stored domain.CartSnapshot
			ok, err = bridge.Load(ctx, storage.KeyCart, &stored)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantID, stored.Items[0].ProductID)
		})
	}
}

func TestHydrate_LegacyArrayLosesToEnvelope(t *testing.T) {
	ctx := context.Background()
	_, bridge := newTestStore()
	require.NoError(t, bridge.Save(ctx, storage.KeyCart, []domain.CartItem{domain.NewCartItem(product("legacy", 100, 5))}))
	require.NoError(t, bridge.Save(ctx, storage.KeyLangCart, domain.CartSnapshot{
		Items:     []domain.CartItem{domain.NewCartItem(product("from-lang", 100, 5))},
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	s := NewStore(bridge, logger.Discard())
	require.NoError(t, s.Hydrate(ctx))
	assert.Equal(t, "from-lang", s.Items()[0].ProductID)
}

func TestHydrate_LegacyArrayMigrated(t *testing.T) {
	ctx := context.Background()
	_, bridge := newTestStore()
	legacy := domain.NewCartItem(product("legacy", 100, 5))
	legacy.Quantity = 3
	require.NoError(t, bridge.Save(ctx, storage.KeyCart, []domain.CartItem{legacy, legacy}))

	s := NewStore(bridge, logger.Discard())
	require.NoError(t, s.Hydrate(ctx))
	assert.Equal(t, 3, s.ItemCount(), "duplicates are dropped")

	var stored domain.CartSnapshot
	ok, err := bridge.Load(ctx, storage.KeyCart, &stored)
	require.NoError(t, err)
	require.True(t, ok, "legacy array rewritten as envelope")
	assert.Len(t, stored.Items, 1)
}

func TestHydrate_MalformedCartIsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	bridge := storage.NewBridge(backend, logger.Discard())
	require.NoError(t, backend.Set(ctx, bridge.Key(storage.KeyCart), []byte(`{"items": "nope"}`)))

	s := NewStore(bridge, logger.Discard())
	require.NoError(t, s.Hydrate(ctx))
	assert.Zero(t, s.ItemCount())
}

func TestSnapshotForLocaleSwitch(t *testing.T) {
	ctx := context.Background()
	s, bridge := newTestStore()
	_, err := s.AddItem(ctx, product("p1", 100, 5))
	require.NoError(t, err)

	require.NoError(t, s.SnapshotForLocaleSwitch(ctx))

	var lang domain.CartSnapshot
	ok, err := bridge.Load(ctx, storage.KeyLangCart, &lang)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "p1", lang.Items[0].ProductID)

	fresh := NewStore(bridge, logger.Discard())
	require.NoError(t, fresh.Hydrate(ctx))
	assert.Equal(t, 1, fresh.ItemCount())
}

func TestMutation_AdoptsNewerStoredCart(t *testing.T) {
	ctx := context.Background()
	bridge := storage.NewBridge(memory.New(), logger.Discard()).Namespace("session:shared")
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	a := NewStore(bridge, logger.Discard())
	b := NewStore(bridge, logger.Discard())
	a.now, b.now = tick, tick
	require.NoError(t, a.Hydrate(ctx))
	require.NoError(t, b.Hydrate(ctx))

	_, err := a.AddItem(ctx, product("p1", 1000, 5))
	require.NoError(t, err)
	snap, err := b.AddItem(ctx, product("p2", 2000, 5))
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)

	snap, err = a.AddItem(ctx, product("p1", 1000, 5))
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 2, snap.Items[0].Quantity)

	var stored domain.CartSnapshot
	ok, err := bridge.Load(ctx, storage.KeyCart, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, stored.ItemCount())
}
