package cart_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cart-engine/internal/cart"
	"github.com/noah-isme/cart-engine/internal/pricing"
	"github.com/noah-isme/cart-engine/internal/session"
)

type recorder struct {
	mu    sync.Mutex
	names []string
	veto  map[string]bool
}

func newRecorder(vetoed ...string) *recorder {
	r := &recorder{veto: map[string]bool{}}
	for _, name := range vetoed {
		r.veto[name] = true
	}
	return r
}

func (r *recorder) Dispatch(_ context.Context, name string, _ any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return !r.veto[name]
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.names {
		if got == name {
			n++
		}
	}
	return n
}

func newCart(t *testing.T, events cart.Dispatcher) *cart.Cart {
	t.Helper()
	c, err := cart.New(context.Background(), cart.Options{
		Store:        session.NewMemoryStore(),
		Events:       events,
		InstanceName: "shopping",
		SessionKey:   "SAMPLESESSIONKEY",
		Config:       cart.Config{Decimals: 2, RoundMode: pricing.RoundHalfDown},
	})
	require.NoError(t, err)
	return c
}

func mustAdd(t *testing.T, c *cart.Cart, in cart.ItemInput) string {
	t.Helper()
	id, err := c.Add(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func subtotalCondition(name, value string, order int) *pricing.Condition {
	return pricing.MustCondition(pricing.ConditionArgs{Name: name, Type: "promo", Target: pricing.TargetSubtotal, Value: value, Order: order})
}

func totalCondition(name, value string, order int) *pricing.Condition {
	return pricing.MustCondition(pricing.ConditionArgs{Name: name, Type: "promo", Target: pricing.TargetTotal, Value: value, Order: order})
}

func TestNewRequiresStoreAndSessionKey(t *testing.T) {
	_, err := cart.New(context.Background(), cart.Options{SessionKey: "k"})
	require.Error(t, err)

	_, err = cart.New(context.Background(), cart.Options{Store: session.NewMemoryStore(), SessionKey: "  "})
	require.ErrorIs(t, err, cart.ErrSessionKeyRequired)

	c, err := cart.New(context.Background(), cart.Options{Store: session.NewMemoryStore(), SessionKey: "k"})
	require.NoError(t, err)
	require.Equal(t, cart.DefaultInstance, c.InstanceName())
}

func TestAddItemAndReadBack(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()

	id := mustAdd(t, c, cart.ItemInput{ID: 456, Name: "Sample Item", Price: "67.99", Quantity: "4", Attributes: map[string]any{"size": "L"}})
	require.Equal(t, "456", id)

	it, ok, err := c.Get(ctx, "456")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 67.99, it.Price)
	require.Equal(t, 4.0, it.Quantity)
	require.Equal(t, "L", it.Attributes.Get("size"))
	require.Nil(t, it.Attributes.Get("color"))

	empty, err := c.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	qty, err := c.TotalQuantity(ctx)
	require.NoError(t, err)
	require.Equal(t, 4.0, qty)
}

func TestAddExistingIDAccumulatesQuantity(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()

	mustAdd(t, c, cart.ItemInput{ID: "456", Name: "Sample Item", Price: 67.99, Quantity: 1})
	mustAdd(t, c, cart.ItemInput{ID: "456", Name: "Renamed", Price: 67.99, Quantity: 2})

	content, err := c.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, content.Len())
	it, _ := content.Get("456")
	require.Equal(t, 3.0, it.Quantity)
	require.Equal(t, "Renamed", it.Name)
}

func TestAddAllKeepsOrder(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()

	ids, err := c.AddAll(ctx,
		[]cart.ItemInput{
			{ID: "456", Name: "Sample Item 1", Price: 67.99, Quantity: 4},
			{ID: "568", Name: "Sample Item 2", Price: 69.25, Quantity: 4},
		},
		[]cart.ItemInput{{ID: "856", Name: "Sample Item 3", Price: 50.25, Quantity: 4}},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"456", "568", "856"}, ids)

	content, err := c.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"456", "568", "856"}, content.IDs())
}

func TestAddValidation(t *testing.T) {
	c := newCart(t, nil)
	cases := []struct {
		name string
		in   cart.ItemInput
		msg  string
	}{
		{"missing id", cart.ItemInput{Name: "x", Price: 1, Quantity: 1}, "the id field is required"},
		{"missing name", cart.ItemInput{ID: "1", Price: 1, Quantity: 1}, "the name field is required"},
		{"missing quantity", cart.ItemInput{ID: "1", Name: "x", Price: 1}, "the quantity field is required"},
		{"non numeric quantity", cart.ItemInput{ID: "1", Name: "x", Price: 1, Quantity: "lots"}, "the quantity must be numeric"},
		{"quantity too small", cart.ItemInput{ID: "1", Name: "x", Price: 1, Quantity: 0}, "the quantity must be at least 0.1"},
		{"non numeric price", cart.ItemInput{ID: "1", Name: "x", Price: "free", Quantity: 1}, "the price must be numeric"},
		{"id checked before quantity", cart.ItemInput{Name: "x", Quantity: "lots"}, "the id field is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := c.Add(context.Background(), tc.in)
			require.ErrorIs(t, err, cart.ErrInvalidItem)
			require.Contains(t, err.Error(), tc.msg)
			require.Empty(t, id)
		})
	}
	empty, err := c.IsEmpty(context.Background())
	require.NoError(t, err)
	require.True(t, empty)
}

func TestUpdateQuantityRelativeAndAbsolute(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "456", Name: "Sample Item", Price: 67.99, Quantity: 3})

	ok, err := c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.RelativeQuantity("-3")})
	require.NoError(t, err)
	require.True(t, ok)
	it, _, _ := c.Get(ctx, "456")
	require.Equal(t, 3.0, it.Quantity)

	_, err = c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.RelativeQuantity(-3)})
	require.NoError(t, err)
	it, _, _ = c.Get(ctx, "456")
	require.Equal(t, 3.0, it.Quantity)

	_, err = c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.RelativeQuantity("+2")})
	require.NoError(t, err)
	it, _, _ = c.Get(ctx, "456")
	require.Equal(t, 5.0, it.Quantity)

	_, err = c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.RelativeQuantity("-1")})
	require.NoError(t, err)
	it, _, _ = c.Get(ctx, "456")
	require.Equal(t, 4.0, it.Quantity)

	_, err = c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.AbsoluteQuantity(2)})
	require.NoError(t, err)
	it, _, _ = c.Get(ctx, "456")
	require.Equal(t, 2.0, it.Quantity)

	_, err = c.Update(ctx, "456", cart.ItemUpdate{Quantity: cart.AbsoluteQuantity("many")})
	require.ErrorIs(t, err, cart.ErrInvalidItem)
}

func TestUpdateKeepsPositionAndMergesFields(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	_, err := c.AddAll(ctx, []cart.ItemInput{
		{ID: "a", Name: "A", Price: 1, Quantity: 1, Attributes: map[string]any{"size": "S"}},
		{ID: "b", Name: "B", Price: 2, Quantity: 1},
		{ID: "c", Name: "C", Price: 3, Quantity: 1},
	})
	require.NoError(t, err)

	name := "B2"
	ok, err := c.Update(ctx, "b", cart.ItemUpdate{Name: &name, Price: "2.50"})
	require.NoError(t, err)
	require.True(t, ok)

	content, err := c.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, content.IDs())
	it, _ := content.Get("b")
	require.Equal(t, "B2", it.Name)
	require.Equal(t, 2.5, it.Price)
	require.Equal(t, 1.0, it.Quantity)

	_, err = c.Update(ctx, "a", cart.ItemUpdate{Attributes: map[string]any{}})
	require.NoError(t, err)
	a, _, _ := c.Get(ctx, "a")
	require.False(t, a.Attributes.Has("size"))
}

func TestUpdateMissingItem(t *testing.T) {
	c := newCart(t, nil)
	_, err := c.Update(context.Background(), "nope", cart.ItemUpdate{Quantity: cart.RelativeQuantity(1)})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	_, err := c.AddAll(ctx, []cart.ItemInput{
		{ID: "1", Name: "One", Price: 10, Quantity: 1},
		{ID: "2", Name: "Two", Price: 20, Quantity: 1},
	})
	require.NoError(t, err)

	ok, err := c.Remove(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	has, err := c.Has(ctx, "1")
	require.NoError(t, err)
	require.False(t, has)

	ok, err = c.Clear(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	empty, err := c.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestSubTotalWithFlatSubtotalCondition(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 129.99, Quantity: 1})
	require.NoError(t, c.Condition(ctx, subtotalCondition("SALE 5", "-5", 0)))

	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 124.99, sub)

	total, err := c.Total(ctx)
	require.NoError(t, err)
	require.InDelta(t, 124.99, total, 1e-9)
}

func TestSubTotalWithPercentageSubtotalCondition(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 129.99, Quantity: 1})
	require.NoError(t, c.Condition(ctx, subtotalCondition("SALE 5%", "-5%", 0)))

	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 123.49, sub)

	raw, err := c.SubTotalWithoutConditions(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 129.99, raw)
}

func TestTotalChainsConditionsInOrder(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	_, err := c.AddAll(ctx, []cart.ItemInput{
		{ID: "456", Name: "Sample Item 1", Price: 67.99, Quantity: 1},
		{ID: "568", Name: "Sample Item 2", Price: 69.25, Quantity: 1},
	})
	require.NoError(t, err)
	require.NoError(t, c.Condition(ctx,
		totalCondition("Express Shipping", "-10", 2),
		totalCondition("Member discount", "-10%", 1),
	))

	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 137.24, sub)

	total, err := c.Total(ctx)
	require.NoError(t, err)
	require.InDelta(t, 113.516, total, 1e-9)

	c.SetConfig(cart.Config{Decimals: 2, RoundMode: pricing.RoundHalfDown, FormatNumbers: true})
	total, err = c.Total(ctx)
	require.NoError(t, err)
	require.Equal(t, 113.52, total)

	again, err := c.Total(ctx)
	require.NoError(t, err)
	require.Equal(t, total, again)
}

func TestSubtotalConditionsFoldFromRunningResult(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	_, err := c.AddAll(ctx, []cart.ItemInput{
		{ID: "456", Name: "Sample Item 1", Price: 67.99, Quantity: 1},
		{ID: "568", Name: "Sample Item 2", Price: 69.25, Quantity: 1},
	})
	require.NoError(t, err)
	require.NoError(t, c.Condition(ctx,
		subtotalCondition("Coupon", "-100%", 1),
		subtotalCondition("Shipping", "+10", 2),
	))

	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 10.0, sub)
}

func TestItemConditionsApplyInAttachOrder(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	sale := pricing.MustCondition(pricing.ConditionArgs{Name: "SALE 5%", Type: "sale", Value: "-5%"})
	ten := pricing.MustCondition(pricing.ConditionArgs{Name: "Less 10", Type: "promo", Value: "-10"})
	mustAdd(t, c, cart.ItemInput{ID: "456", Name: "Sample Item", Price: 184.90, Quantity: 2, Conditions: cart.ConditionList{sale, ten}})

	it, _, err := c.Get(ctx, "456")
	require.NoError(t, err)
	require.True(t, it.HasConditions())
	require.InDelta(t, 369.80, it.PriceSum(), 1e-9)
	require.InDelta(t, 341.31, it.PriceSumWithConditions(), 1e-9)

	ok, err := c.RemoveItemCondition(ctx, "456", "Less 10")
	require.NoError(t, err)
	require.True(t, ok)
	it, _, _ = c.Get(ctx, "456")
	require.InDelta(t, 351.31, it.PriceSumWithConditions(), 1e-9)

	ok, err = c.AddItemCondition(ctx, "456", ten)
	require.NoError(t, err)
	require.True(t, ok)
	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 341.31, sub)

	_, err = c.AddItemCondition(ctx, "missing", ten)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestItemConditionClampsAtZero(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	discount := pricing.MustCondition(pricing.ConditionArgs{Name: "Big discount", Type: "promo", Value: "-25"})
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 22.50, Quantity: 1, Conditions: cart.ConditionList{discount}})

	it, _, err := c.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 0.0, it.PriceSumWithConditions())

	sub, err := c.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 0.0, sub)
}

func TestConditionBoundsAndActiveFilter(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 100, Quantity: 1})

	floor := 500.0
	ceiling := 150.0
	big := pricing.MustCondition(pricing.ConditionArgs{Name: "Big spender", Type: "promo", Target: pricing.TargetSubtotal, Value: "-50", Minimum: &floor})
	small := pricing.MustCondition(pricing.ConditionArgs{Name: "Small order fee", Type: "fee", Target: pricing.TargetTotal, Value: "+5", Maximum: &ceiling})
	require.NoError(t, c.Condition(ctx, big, small))

	total, err := c.Total(ctx)
	require.NoError(t, err)
	require.Equal(t, 105.0, total)

	all, err := c.Conditions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"Big spender", "Small order fee"}, all.Names())

	active, err := c.Conditions(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Small order fee"}, active.Names())
}

func TestCartConditionLookupAndRemoval(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	vat := pricing.MustCondition(pricing.ConditionArgs{Name: "VAT 12.5%", Type: "tax", Target: pricing.TargetSubtotal, Value: "+12.5%"})
	promo := pricing.MustCondition(pricing.ConditionArgs{Name: "Promo", Type: "promo", Target: pricing.TargetTotal, Value: "-5"})
	require.NoError(t, c.Condition(ctx, vat, promo))

	got, ok, err := c.ConditionByName(ctx, "VAT 12.5%")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tax", got.Type())

	taxes, err := c.ConditionsByType(ctx, "tax")
	require.NoError(t, err)
	require.Equal(t, []string{"VAT 12.5%"}, taxes.Names())

	require.NoError(t, c.RemoveConditionsByType(ctx, "tax"))
	all, err := c.Conditions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"Promo"}, all.Names())

	require.NoError(t, c.RemoveCartCondition(ctx, "Promo"))
	all, err = c.Conditions(ctx, false)
	require.NoError(t, err)
	require.True(t, all.IsEmpty())
}

func TestClearAllConditions(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	sale := pricing.MustCondition(pricing.ConditionArgs{Name: "SALE", Type: "sale", Value: "-5"})
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 50, Quantity: 1, Conditions: cart.ConditionList{sale}})
	require.NoError(t, c.Condition(ctx, totalCondition("Shipping", "+10", 0)))

	require.NoError(t, c.ClearCartConditions(ctx))
	total, err := c.Total(ctx)
	require.NoError(t, err)
	require.Equal(t, 45.0, total)

	require.NoError(t, c.Condition(ctx, totalCondition("Shipping", "+10", 0)))
	require.NoError(t, c.ClearAllConditions(ctx))
	it, _, err := c.Get(ctx, "1")
	require.NoError(t, err)
	require.False(t, it.HasConditions())
	total, err = c.Total(ctx)
	require.NoError(t, err)
	require.Equal(t, 50.0, total)
}

func TestCalculatedValueForCondition(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 100, Quantity: 2})
	require.NoError(t, c.Condition(ctx,
		subtotalCondition("Half off", "-100%", 0),
		subtotalCondition("Voucher", "-50", 1),
	))

	v, err := c.CalculatedValueForCondition(ctx, "Half off")
	require.NoError(t, err)
	require.Equal(t, 200.0, v)

	v, err = c.CalculatedValueForCondition(ctx, "Voucher")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)

	v, err = c.CalculatedValueForCondition(ctx, "missing")
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestLifecycleEvents(t *testing.T) {
	rec := newRecorder()
	c := newCart(t, rec)
	ctx := context.Background()
	require.Equal(t, 1, rec.count("shopping.created"))

	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
	require.Equal(t, 1, rec.count("shopping.adding"))
	require.Equal(t, 1, rec.count("shopping.added"))

	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
	require.Equal(t, 1, rec.count("shopping.adding"))
	require.Equal(t, 1, rec.count("shopping.updating"))
	require.Equal(t, 1, rec.count("shopping.updated"))

	_, err := c.Remove(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 1, rec.count("shopping.removing"))
	require.Equal(t, 1, rec.count("shopping.removed"))

	_, err = c.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rec.count("shopping.clearing"))
	require.Equal(t, 1, rec.count("shopping.cleared"))
}

func TestVetoedOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("adding", func(t *testing.T) {
		rec := newRecorder("shopping.adding")
		c := newCart(t, rec)
		id, err := c.Add(ctx, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
		require.NoError(t, err)
		require.Empty(t, id)
		require.Zero(t, rec.count("shopping.added"))
		empty, err := c.IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)
	})

	t.Run("updating", func(t *testing.T) {
		rec := newRecorder("shopping.updating")
		c := newCart(t, rec)
		mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
		ok, err := c.Update(ctx, "1", cart.ItemUpdate{Quantity: cart.RelativeQuantity(5)})
		require.NoError(t, err)
		require.False(t, ok)
		require.Zero(t, rec.count("shopping.updated"))
		it, _, _ := c.Get(ctx, "1")
		require.Equal(t, 1.0, it.Quantity)
	})

	t.Run("removing", func(t *testing.T) {
		rec := newRecorder("shopping.removing")
		c := newCart(t, rec)
		mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
		ok, err := c.Remove(ctx, "1")
		require.NoError(t, err)
		require.False(t, ok)
		has, _ := c.Has(ctx, "1")
		require.True(t, has)
	})

	t.Run("clearing is not cancellable", func(t *testing.T) {
		rec := newRecorder("shopping.clearing")
		c := newCart(t, rec)
		mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
		ok, err := c.Clear(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 1, rec.count("shopping.cleared"))
		empty, _ := c.IsEmpty(ctx)
		require.True(t, empty)
	})
}

func TestInstancesAreIndependent(t *testing.T) {
	rec := newRecorder()
	store := session.NewMemoryStore()
	factory := cart.NewFactory(cart.FactoryConfig{Store: store, Events: rec, Config: cart.Config{Decimals: 2}})
	ctx := context.Background()

	shopping, err := factory.Open(ctx, "user-1")
	require.NoError(t, err)
	wishlist, err := factory.Instance("wishlist").Open(ctx, "user-1_wishlist")
	require.NoError(t, err)
	require.Equal(t, "shopping", shopping.InstanceName())
	require.Equal(t, "wishlist", wishlist.InstanceName())

	mustAdd(t, shopping, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})
	mustAdd(t, wishlist, cart.ItemInput{ID: "2", Name: "Other", Price: 20, Quantity: 1})
	mustAdd(t, wishlist, cart.ItemInput{ID: "3", Name: "Third", Price: 30, Quantity: 1})

	s, err := shopping.Content(ctx)
	require.NoError(t, err)
	w, err := wishlist.Content(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, s.IDs())
	require.Equal(t, []string{"2", "3"}, w.IDs())
	require.Equal(t, 1, rec.count("shopping.added"))
	require.Equal(t, 2, rec.count("wishlist.added"))

	reopened, err := factory.Open(ctx, "user-1")
	require.NoError(t, err)
	sub, err := reopened.SubTotal(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 10.0, sub)
}

func TestSetSessionSwitchesStorage(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10, Quantity: 1})

	require.ErrorIs(t, c.SetSession(""), cart.ErrSessionKeyRequired)
	require.NoError(t, c.SetSession("OTHER"))
	require.Equal(t, "OTHER", c.SessionKey())
	empty, err := c.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string, any) (bool, error) {
	return false, errors.New("connection refused")
}

func (failingStore) Put(context.Context, string, any) error {
	return errors.New("connection refused")
}

func TestStoreErrorsPropagate(t *testing.T) {
	c, err := cart.New(context.Background(), cart.Options{Store: failingStore{}, SessionKey: "k"})
	require.NoError(t, err)
	_, err = c.Add(context.Background(), cart.ItemInput{ID: "1", Name: "Item", Price: 1, Quantity: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load cart items")

	_, err = c.Total(context.Background())
	require.Error(t, err)
}

func TestSnapshotFormatsAmounts(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	_, err := c.AddAll(ctx, []cart.ItemInput{
		{ID: "456", Name: "Sample Item 1", Price: 67.99, Quantity: 1},
		{ID: "568", Name: "Sample Item 2", Price: 69.25, Quantity: 1},
	})
	require.NoError(t, err)
	require.NoError(t, c.Condition(ctx,
		totalCondition("Member discount", "-10%", 1),
		totalCondition("Express Shipping", "-10", 2),
	))

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "SAMPLESESSIONKEY", snap.SessionKey)
	require.Len(t, snap.Items, 2)
	require.Len(t, snap.Conditions, 2)
	require.Equal(t, 2.0, snap.TotalQuantity)
	require.Equal(t, 137.24, snap.SubTotal)
	require.Equal(t, 113.52, snap.Total)
}

func TestAddAllValidatesEveryDescriptorBeforeWriting(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()

	ids, err := c.AddAll(ctx,
		[]cart.ItemInput{{ID: "1", Name: "First", Price: 10, Quantity: 1}},
		[]cart.ItemInput{{ID: "", Name: "Second", Price: 10, Quantity: 1}},
	)
	require.ErrorIs(t, err, cart.ErrInvalidItem)
	require.Empty(t, ids)

	has, err := c.Has(ctx, "1")
	require.NoError(t, err)
	require.False(t, has)
}

func TestActiveSubtotalConditionsUseFormattedSubtotal(t *testing.T) {
	ctx := context.Background()
	c, err := cart.New(ctx, cart.Options{
		Store:        session.NewMemoryStore(),
		InstanceName: "shopping",
		SessionKey:   "SAMPLESESSIONKEY",
		Config:       cart.Config{Decimals: 2, RoundMode: pricing.RoundHalfDown, FormatNumbers: true},
	})
	require.NoError(t, err)
	mustAdd(t, c, cart.ItemInput{ID: "1", Name: "Item", Price: 10.004, Quantity: 1})

	ceiling := 10.0
	capped := pricing.MustCondition(pricing.ConditionArgs{Name: "Capped", Type: "fee", Target: pricing.TargetSubtotal, Value: "0", Maximum: &ceiling})
	require.NoError(t, c.Condition(ctx, capped))

	sub, err := c.SubTotal(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 10.0, sub)

	active, err := c.Conditions(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"Capped"}, active.Names())
}

func TestTotalsAreStableAcrossReads(t *testing.T) {
	c := newCart(t, nil)
	ctx := context.Background()
	mustAdd(t, c, cart.ItemInput{ID: "456", Name: "Sample Item 1", Price: 67.99, Quantity: 1})
	mustAdd(t, c, cart.ItemInput{ID: "568", Name: "Sample Item 2", Price: 69.25, Quantity: 1})
	require.NoError(t, c.Condition(ctx,
		subtotalCondition("Coupon", "-5%", 0),
		totalCondition("Tax", "+12.5%", 1),
		totalCondition("Shipping", "+10", 2),
	))

	firstSub, err := c.SubTotal(ctx, false)
	require.NoError(t, err)
	firstTotal, err := c.Total(ctx)
	require.NoError(t, err)
	firstValue, err := c.CalculatedValueForCondition(ctx, "Tax")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		sub, err := c.SubTotal(ctx, false)
		require.NoError(t, err)
		require.Equal(t, firstSub, sub)

		total, err := c.Total(ctx)
		require.NoError(t, err)
		require.Equal(t, firstTotal, total)

		value, err := c.CalculatedValueForCondition(ctx, "Tax")
		require.NoError(t, err)
		require.Equal(t, firstValue, value)
	}
}
