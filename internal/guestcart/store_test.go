package guestcart

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/kv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func setupTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(kv.NewRedis(client, "guest:", 0), opts...), mr
}

// memStorage is an in-process kv.Store whose failures can be switched on.
type memStorage struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	sets    int
	deletes int
}

func newMemStorage() *memStorage {
	return &memStorage{data: map[string]string{}}
}

func (m *memStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", kv.ErrNotFound
	}
	return v, nil
}

func (m *memStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

type mockMerger struct {
	got domain.Lines
	err error
}

func (m *mockMerger) MergeGuestCart(_ context.Context, lines domain.Lines) error {
	m.got = lines
	return m.err
}

func product(ref string, price int64) domain.Product {
	return domain.Product{Ref: ref, Name: ref, Price: decimal.NewFromInt(price)}
}

func TestLoad_EmptyWhenNothingStored(t *testing.T) {
	store, _ := setupTestStore(t)

	lines := store.Load(context.Background())
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestClear_IsIdempotent(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, product("p1", 100), 2, nil)
	store.Add(ctx, product("p2", 100), 1, &domain.Variation{Color: "red"})
	require.Equal(t, 3, store.Count(ctx))

	assert.Empty(t, store.Clear(ctx))
	assert.Empty(t, store.Load(ctx))
	assert.Equal(t, 0, store.Count(ctx))
	assert.False(t, mr.Exists("guest:guestCart"))

	assert.Empty(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count(ctx))
}

func TestAdd_MergesSameProductAndVariation(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("p1", 100000)

	store.Add(ctx, p, 2, &domain.Variation{Color: "red", Size: "M"})
	lines := store.Add(ctx, p, 3, &domain.Variation{Color: "red", Size: "M"})

	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	stored := store.Load(ctx)
	require.Len(t, stored, 1)
	assert.Equal(t, 5, stored[0].Quantity)
}

func TestAdd_DistinguishesByColor(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("p1", 100000)

	store.Add(ctx, p, 1, &domain.Variation{Color: "red"})
	lines := store.Add(ctx, p, 2, &domain.Variation{Color: "blue"})

	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 2, lines[1].Quantity)
}

// With the default rules RAM is carried on the line but not compared.
func TestAdd_DefaultRulesMergeRAMVariants(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("laptop", 900000)

	store.Add(ctx, p, 1, &domain.Variation{Color: "grey", Size: "14", RAM: "16GB"})
	lines := store.Add(ctx, p, 1, &domain.Variation{Color: "grey", Size: "14", RAM: "32GB"})

	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAdd_CategoryRulesKeepRAMVariantsApart(t *testing.T) {
	m := domain.NewMatcher(
		[]domain.VariationField{domain.FieldColor, domain.FieldSize},
		map[string][]domain.VariationField{"laptop": {domain.FieldColor, domain.FieldSize, domain.FieldRAM}},
	)
	store, _ := setupTestStore(t, WithMatcher(m))
	ctx := context.Background()
	p := product("laptop", 900000)
	p.Category = "laptop"

	store.Add(ctx, p, 1, &domain.Variation{Color: "grey", RAM: "16GB"})
	lines := store.Add(ctx, p, 1, &domain.Variation{Color: "grey", RAM: "32GB"})
	require.Len(t, lines, 2)

	// the category is recorded on the line, so update by ref alone still
	// honours the RAM rule
	lines = store.Update(ctx, "laptop", 5, &domain.Variation{Color: "grey", RAM: "32GB"})
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 5, lines[1].Quantity)
}

func TestAdd_SnapshotsPrice(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("p1", 100)

	store.Add(ctx, p, 1, nil)
	p.Price = decimal.NewFromInt(999)
	lines := store.Add(ctx, p, 1, nil)

	require.Len(t, lines, 1)
	assert.True(t, lines[0].PriceAtTime.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, store.Total(ctx).Equal(decimal.NewFromInt(200)))
}

func TestAdd_NonPositiveQuantityIsIgnored(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, product("p1", 100), 1, nil)
	lines := store.Add(ctx, product("p1", 100), 0, nil)

	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
}

func TestUpdate_ZeroRemovesLine(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("p1", 100)

	store.Add(ctx, p, 2, &domain.Variation{Color: "red"})
	store.Add(ctx, p, 3, &domain.Variation{Color: "blue"})
	before := store.Count(ctx)

	lines := store.Update(ctx, "p1", 0, &domain.Variation{Color: "red"})

	require.Len(t, lines, 1)
	assert.Equal(t, "blue", lines[0].Variation.Color)
	assert.Equal(t, before-2, store.Count(ctx))
}

func TestUpdate_RewritesQuantityOnly(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	added := store.Add(ctx, product("p1", 100), 2, &domain.Variation{Size: "L"})
	lines := store.Update(ctx, "p1", 9, &domain.Variation{Size: "L"})

	require.Len(t, lines, 1)
	assert.Equal(t, 9, lines[0].Quantity)
	assert.True(t, added[0].PriceAtTime.Decimal.Equal(lines[0].PriceAtTime.Decimal))
	assert.Equal(t, added[0].Variation, lines[0].Variation)
}

func TestUpdate_UnknownLineLeavesCartUntouched(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage)
	ctx := context.Background()

	store.Add(ctx, product("p1", 100), 2, nil)
	sets := storage.sets

	lines := store.Update(ctx, "p2", 4, nil)

	require.Len(t, lines, 1)
	assert.Equal(t, sets, storage.sets, "no write for a no-op update")
}

func TestTotal(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	store.Add(ctx, product("p1", 100000), 2, nil)
	store.Add(ctx, product("p2", 50000), 1, nil)

	assert.True(t, store.Total(ctx).Equal(decimal.NewFromInt(250000)), "got %s", store.Total(ctx))
}

func TestLoad_CorruptedStorageDegradesToEmpty(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("guest:guestCart", "{not json"))

	assert.Empty(t, store.Load(ctx))
	assert.Equal(t, 0, store.Count(ctx))
	assert.True(t, store.Total(ctx).IsZero())

	// the next mutation replaces the corrupt value
	lines := store.Add(ctx, product("p1", 100), 1, nil)
	require.Len(t, lines, 1)
	assert.Len(t, store.Load(ctx), 1)
}

func TestLoad_DropsStoredLinesWithoutQuantity(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, mr.Set("guest:guestCart", `[{"productRef":"p1","quantity":0},{"productRef":"p2","quantity":2}]`))

	lines := store.Load(context.Background())

	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].ProductRef)
}

// Remove only matches the requested variation; RemoveProduct drops them all.
func TestRemove_VersusRemoveProduct(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	p := product("p1", 100)

	store.Add(ctx, p, 1, &domain.Variation{Color: "red"})
	store.Add(ctx, p, 1, &domain.Variation{Color: "blue"})
	store.Add(ctx, product("p2", 100), 1, nil)

	lines := store.Remove(ctx, "p1", &domain.Variation{Color: "blue"})
	require.Len(t, lines, 2)
	assert.Equal(t, "red", lines[0].Variation.Color)

	store.Add(ctx, p, 1, &domain.Variation{Color: "blue"})
	lines = store.RemoveProduct(ctx, "p1")
	require.Len(t, lines, 1)
	assert.Equal(t, "p2", lines[0].ProductRef)
}

func TestReadFailure_DoesNotOverwrite(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage)
	ctx := context.Background()
	store.Add(ctx, product("p1", 100), 2, nil)
	sets := storage.sets

	storage.getErr = errors.New("disk unavailable")

	assert.Empty(t, store.Load(ctx))
	assert.Equal(t, 0, store.Count(ctx))
	assert.Empty(t, store.Add(ctx, product("p2", 100), 1, nil))
	assert.Equal(t, sets, storage.sets)

	storage.getErr = nil
	assert.Equal(t, 2, store.Count(ctx), "stored cart survives the failed read")
}

func TestWriteFailure_ReturnsPreviousLines(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage)
	ctx := context.Background()
	store.Add(ctx, product("p1", 100), 2, nil)

	storage.setErr = errors.New("quota exceeded")
	lines := store.Add(ctx, product("p1", 100), 5, nil)

	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAdd_OverflowingQuantityKeepsStoredLine(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage)
	ctx := context.Background()

	store.Add(ctx, product("p1", 100), domain.MaxLineQuantity, nil)
	lines := store.Add(ctx, product("p1", 100), math.MaxInt, nil)

	require.Len(t, lines, 1)
	assert.Equal(t, domain.MaxLineQuantity, lines[0].Quantity)

	lines = store.Add(ctx, product("p1", 100), 1, nil)
	require.Len(t, lines, 1)
	assert.Equal(t, domain.MaxLineQuantity, lines[0].Quantity)

	var stored domain.Lines
	require.NoError(t, json.Unmarshal([]byte(storage.data[DefaultKey]), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, domain.MaxLineQuantity, stored[0].Quantity)
	assert.Equal(t, domain.MaxLineQuantity, store.Count(ctx))
}

func TestStoredLayout(t *testing.T) {
	storage := newMemStorage()
	store := NewStore(storage, WithKey("cart-device-1"))

	store.Add(context.Background(), product("p1", 1500), 2, &domain.Variation{Color: "red", RAM: "8GB"})

	var raw []map[string]any
	require.NoError(t, json.Unmarshal([]byte(storage.data["cart-device-1"]), &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "p1", raw[0]["productRef"])
	assert.Equal(t, float64(2), raw[0]["quantity"])
	assert.Equal(t, "1500", raw[0]["priceAtTime"])
	assert.Equal(t, map[string]any{"color": "red", "ram": "8GB"}, raw[0]["variation"])
}

func TestConcurrentAdds_LoseNoUpdates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewStore(newMemStorage())
	ctx := context.Background()
	p := product("p1", 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Add(ctx, p, 1, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.Count(ctx))
	assert.Len(t, store.Load(ctx), 1)
}

func TestMergeInto_ClearsOnSuccess(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	store.Add(ctx, product("p1", 100), 2, nil)
	m := &mockMerger{}

	require.NoError(t, store.MergeInto(ctx, m))

	require.Len(t, m.got, 1)
	assert.Equal(t, 2, m.got[0].Quantity)
	assert.Empty(t, store.Load(ctx))
}

func TestMergeInto_KeepsCartOnFailure(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	store.Add(ctx, product("p1", 100), 2, nil)
	m := &mockMerger{err: errors.New("remote unavailable")}

	err := store.MergeInto(ctx, m)

	require.ErrorContains(t, err, "remote unavailable")
	assert.Equal(t, 2, store.Count(ctx))
}

func TestMergeInto_EmptyCartIsNotSent(t *testing.T) {
	store, _ := setupTestStore(t)
	m := &mockMerger{}

	require.NoError(t, store.MergeInto(context.Background(), m))
	assert.Nil(t, m.got)
}

func TestMergeInto_ReadFailure(t *testing.T) {
	storage := newMemStorage()
	storage.getErr = errors.New("disk unavailable")
	store := NewStore(storage)

	err := store.MergeInto(context.Background(), &mockMerger{})
	assert.ErrorContains(t, err, "read guest cart")
}
