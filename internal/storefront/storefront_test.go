package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/backend"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/i18n"
	"github.com/utafrali/storefront/internal/storage"
	"github.com/utafrali/storefront/internal/storage/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// --- Test Helpers ---

type stubGeolocator struct {
	mu      sync.Mutex
	country string
	err     error
	calls   int
	delay   time.Duration
}

func (g *stubGeolocator) Locate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	time.Sleep(g.delay)
	return g.country, g.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, e.Key)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type flakyBackend struct {
	*memory.Backend
	mu      sync.Mutex
	failGet bool
}

func (b *flakyBackend) setFailGet(v bool) {
	b.mu.Lock()
	b.failGet = v
	b.mu.Unlock()
}

func (b *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	fail := b.failGet
	b.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return b.Backend.Get(ctx, key)
}

type fixture struct {
	deps    Deps
	backend *memory.Backend
	geo     *stubGeolocator
	pub     *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/login" {
			_ = json.NewEncoder(w).Encode(domain.Identity{
				Token: "opaque-token",
				User:  &domain.User{ID: "u1", Email: "ada@example.com"},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	client := backend.New(httpclient.NewWithHTTPClient(srv.Client(), cfg), srv.URL, logger.Discard())

	catalog, err := i18n.Load()
	require.NoError(t, err)

	mem := memory.New()
	geo := &stubGeolocator{err: errors.New("offline")}
	pub := &recordingPublisher{}

	return &fixture{
		deps: Deps{
			Bridge:      storage.NewBridge(mem, logger.Discard()),
			Backend:     client,
			Geolocator:  geo,
			Events:      event.NewProducer(pub, logger.Discard()),
			Catalog:     catalog,
			Logger:      logger.Discard(),
			RecentLimit: 5,
		},
		backend: mem,
		geo:     geo,
		pub:     pub,
	}
}

func product(id string, price int64) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromInt(price), Stock: 10}
}

// --- Tests ---

func TestHydrate_FreshSessionDefaults(t *testing.T) {
	f := newFixture(t)
	sf := New("s1", f.deps)

	require.NoError(t, sf.Hydrate(context.Background(), "203.0.113.7"))

	assert.False(t, sf.Session.Authenticated())
	assert.Empty(t, sf.Cart.Items())
	assert.Equal(t, "XAF", sf.Currency.Preference().CurrencyCode)
	assert.Equal(t, i18n.DefaultLocale, sf.Locale())
}

func TestHydrate_RestoresPersistedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := New("s1", f.deps)
	require.NoError(t, first.Hydrate(ctx, ""))
	_, err := first.Session.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)
	_, err = first.Cart.AddItem(ctx, product("p1", 1000))
	require.NoError(t, err)
	_, err = first.Currency.SetCurrency(ctx, "EUR")
	require.NoError(t, err)
	require.NoError(t, first.SwitchLocale(ctx, "en"))

	second := New("s1", f.deps)
	require.NoError(t, second.Hydrate(ctx, ""))

	assert.True(t, second.Session.Authenticated())
	assert.Equal(t, 1, second.Cart.ItemCount())
	assert.Equal(t, "EUR", second.Currency.Preference().CurrencyCode)
	assert.Equal(t, "en", second.Locale())
}

func TestNew_SessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := New("a", f.deps)
	require.NoError(t, a.Hydrate(ctx, ""))
	_, err := a.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)

	b := New("b", f.deps)
	require.NoError(t, b.Hydrate(ctx, ""))
	assert.Zero(t, b.Cart.ItemCount())
}

func TestCartMutations_PublishEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))

	_, err := sf.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)
	_, err = sf.Cart.Clear(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{event.TopicCartUpdated, event.TopicCartCleared}, f.pub.published())
	assert.Equal(t, []string{"s1", "s1"}, f.pub.keys)
}

func TestSwitchLocale_KeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))

	_, err := sf.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)
	_, err = sf.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)

	require.NoError(t, sf.SwitchLocale(ctx, "en"))

	assert.Equal(t, "en", sf.Locale())
	assert.Equal(t, 2, sf.Cart.ItemCount())
	assert.Equal(t, "Your cart is empty", sf.T("cart.empty"))

	_, err = f.backend.Get(ctx, "session:s1:"+storage.KeyLangCart)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "langCart should be consumed by re-hydrate")
}

func TestSwitchLocale_Unsupported(t *testing.T) {
	f := newFixture(t)
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(context.Background(), ""))

	err := sf.SwitchLocale(context.Background(), "xx")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInvalidInput, appErr.Code)
	assert.Equal(t, i18n.DefaultLocale, sf.Locale())
}

func TestCheckout_RequiresLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))

	_, err := sf.Checkout(ctx)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code)
	assert.True(t, sf.TakeLoginRequired())
	assert.False(t, sf.TakeLoginRequired())
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))
	_, err := sf.Session.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	_, err = sf.Checkout(ctx)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInvalidInput, appErr.Code)
}

func TestCheckout_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))
	_, err := sf.Session.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	_, err = sf.Cart.AddItem(ctx, product("p1", 1000))
	require.NoError(t, err)
	_, err = sf.Cart.UpdateQuantity(ctx, "p1", 3)
	require.NoError(t, err)
	_, err = sf.Cart.AddItem(ctx, product("p2", 500))
	require.NoError(t, err)

	summary, err := sf.Checkout(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Lines, 2)
	assert.Equal(t, 4, summary.ItemCount)
	assert.True(t, decimal.NewFromInt(3500).Equal(summary.Subtotal))
	assert.Equal(t, "XAF", summary.Currency)
	assert.Equal(t, "3500 FCFA", summary.FormattedTotal)
	assert.Equal(t, "3000 FCFA", summary.Lines[0].FormattedTotal)
	require.NotNil(t, summary.Customer)
	assert.Equal(t, "u1", summary.Customer.ID)
}

func TestCheckout_ConvertsToSelectedCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sf := New("s1", f.deps)
	require.NoError(t, sf.Hydrate(ctx, ""))
	_, err := sf.Session.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)
	_, err = sf.Currency.SetCurrency(ctx, "EUR")
	require.NoError(t, err)
	_, err = sf.Cart.AddItem(ctx, product("p1", 1000))
	require.NoError(t, err)

	summary, err := sf.Checkout(ctx)
	require.NoError(t, err)

	assert.Equal(t, "EUR", summary.Currency)
	assert.Equal(t, "XAF", summary.BaseCurrency)
	assert.True(t, decimal.RequireFromString("1.52").Equal(summary.ConvertedSubtotal), summary.ConvertedSubtotal.String())
}

// --- Registry ---

func TestRegistry_GetCreatesOnce(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.deps, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Storefront, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sf, err := r.Get(ctx, "s1", "")
			assert.NoError(t, err)
			got[i] = sf
		}(i)
	}
	wg.Wait()

	for _, sf := range got {
		assert.Same(t, got[0], sf)
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, f.geo.calls)
}

func TestRegistry_SweepEvictsIdle(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.deps, time.Minute)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }
	_, err := r.Get(ctx, "old", "")
	require.NoError(t, err)

	r.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = r.Get(ctx, "fresh", "")
	require.NoError(t, err)

	evicted := r.Sweep(start.Add(2*time.Minute + time.Second))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_EvictedSessionRehydrates(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.deps, time.Minute)
	ctx := context.Background()

	sf, err := r.Get(ctx, "s1", "")
	require.NoError(t, err)
	_, err = sf.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)

	r.Evict("s1")
	assert.Zero(t, r.Len())

	again, err := r.Get(ctx, "s1", "")
	require.NoError(t, err)
	assert.NotSame(t, sf, again)
	assert.Equal(t, 1, again.Cart.ItemCount())
}

func TestRegistry_HydrateFailureNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyBackend{Backend: f.backend, failGet: true}
	f.deps.Bridge = storage.NewBridge(flaky, logger.Discard())

	r := NewRegistry(f.deps, time.Minute)
	_, err := r.Get(ctx, "s1", "")
	require.Error(t, err)
	assert.Zero(t, r.Len())

	flaky.setFailGet(false)
	_, err = r.Get(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SweepDuringSlowHydrate(t *testing.T) {
	f := newFixture(t)
	f.geo.delay = 20 * time.Millisecond
	r := NewRegistry(f.deps, time.Minute)

	done := make(chan struct{})
	var sweeps sync.WaitGroup
	sweeps.Add(1)
	go func() {
		defer sweeps.Done()
		for {
			select {
			case <-done:
				return
			default:
				r.Sweep(time.Now())
			}
		}
	}()

	sf, err := r.Get(context.Background(), "s1", "203.0.113.7")
	close(done)
	sweeps.Wait()

	require.NoError(t, err)
	require.NotNil(t, sf)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RotateMovesStateAndDropsIdentity(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.deps, time.Minute)
	ctx := context.Background()

	old, err := r.Get(ctx, "planted", "")
	require.NoError(t, err)
	_, err = old.Cart.AddItem(ctx, product("p1", 500))
	require.NoError(t, err)
	_, err = old.Currency.SetCountry(ctx, "FR")
	require.NoError(t, err)
	_, err = old.Session.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)

	fresh, err := r.Rotate(ctx, old, "")
	require.NoError(t, err)
	assert.NotEqual(t, "planted", fresh.ID)
	assert.Equal(t, 1, fresh.Cart.ItemCount())
	assert.Equal(t, "EUR", fresh.Currency.Preference().CurrencyCode)
	assert.False(t, fresh.Session.Authenticated())
	assert.False(t, old.Session.Authenticated())
	assert.Equal(t, 1, r.Len())

	// the old ID comes back empty
	again, err := r.Get(ctx, "planted", "")
	require.NoError(t, err)
	assert.NotSame(t, old, again)
	assert.Zero(t, again.Cart.ItemCount())
	assert.False(t, again.Session.Authenticated())
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.deps, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
