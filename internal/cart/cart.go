package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/cart-engine/internal/obs"
	"github.com/noah-isme/cart-engine/internal/pricing"
)

// DefaultInstance is the instance name used when none is configured.
const DefaultInstance = "shopping"

// Config controls how computed amounts are rounded.
type Config struct {
	Decimals      int
	RoundMode     pricing.RoundMode
	FormatNumbers bool
}

func (c Config) formatter() pricing.Formatter {
	return pricing.Formatter{Decimals: c.Decimals, RoundMode: c.RoundMode, FormatNumbers: c.FormatNumbers}
}

// Options groups the collaborators of a Cart.
type Options struct {
	Store        Store
	Events       Dispatcher
	Locker       Locker
	Models       ModelResolver
	Logger       *zerolog.Logger
	InstanceName string
	SessionKey   string
	Config       Config
	LockTTL      time.Duration
}

// Cart holds the lines and cart level conditions of one session. Every mutation
// reads the stored state, transforms it and writes it back.
type Cart struct {
	store   Store
	events  Dispatcher
	locker  Locker
	models  ModelResolver
	logger  zerolog.Logger
	lockTTL time.Duration

	mu            sync.RWMutex
	instance      string
	sessionKey    string
	itemsKey      string
	conditionsKey string
	config        Config
}

// New opens the cart for opts.SessionKey and fires the created event.
func New(ctx context.Context, opts Options) (*Cart, error) {
	if opts.Store == nil {
		return nil, errors.New("cart: store not configured")
	}
	instance := strings.TrimSpace(opts.InstanceName)
	if instance == "" {
		instance = DefaultInstance
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Cart{
		store:   opts.Store,
		events:  opts.Events,
		locker:  opts.Locker,
		models:  opts.Models,
		logger:  logger.With().Str("cart_instance", instance).Logger(),
		lockTTL: opts.LockTTL,
		config:  opts.Config,
	}
	c.instance = instance
	if err := c.SetSession(opts.SessionKey); err != nil {
		return nil, err
	}
	c.fire(ctx, PhaseCreated, Event{})
	return c, nil
}

// InstanceName returns the namespace of this cart, e.g. "shopping" or "wishlist".
func (c *Cart) InstanceName() string { return c.instance }

// SessionKey returns the current session key.
func (c *Cart) SessionKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionKey
}

// SetSession switches the cart to another session key.
func (c *Cart) SetSession(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrSessionKeyRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionKey = key
	c.itemsKey = key + "_cart_items"
	c.conditionsKey = key + "_cart_conditions"
	return nil
}

// SetConfig replaces the rounding configuration.
func (c *Cart) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
}

// Config returns the rounding configuration.
func (c *Cart) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *Cart) keys() (items, conditions string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.itemsKey, c.conditionsKey
}

func (c *Cart) format(value float64, formatted bool) float64 {
	return c.Config().formatter().Format(value, formatted)
}

// Get returns the item stored under id.
func (c *Cart) Get(ctx context.Context, id string) (Item, bool, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return Item{}, false, err
	}
	it, ok := items.Get(id)
	return it, ok, nil
}

// Has reports whether an item with id is in the cart.
func (c *Cart) Has(ctx context.Context, id string) (bool, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return false, err
	}
	return items.Has(id), nil
}

// Content returns every line in insertion order.
func (c *Cart) Content(ctx context.Context) (*Items, error) {
	return c.loadItems(ctx)
}

// IsEmpty reports whether the cart holds no lines.
func (c *Cart) IsEmpty(ctx context.Context) (bool, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return false, err
	}
	return items.IsEmpty(), nil
}

// TotalQuantity sums the quantity of every line.
func (c *Cart) TotalQuantity(ctx context.Context) (float64, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return 0, err
	}
	return items.Sum(func(it Item) float64 { return it.Quantity }), nil
}

// Add validates in and stores it. Adding an id that is already present merges the
// descriptor into the existing line, accumulating quantity. It returns the item id,
// or an empty id when a listener cancelled the operation.
func (c *Cart) Add(ctx context.Context, in ItemInput) (string, error) {
	var id string
	_, err := c.mutate(ctx, "add", func(ctx context.Context) (bool, error) {
		var ok bool
		var err error
		id, ok, err = c.add(ctx, in)
		if !ok {
			id = ""
		}
		return ok, err
	})
	return id, err
}

// AddAll adds every descriptor of every batch in order and returns the ids that were
// stored. All descriptors are validated before the first write, so an invalid one
// leaves the cart untouched. A store error stops the loop where it happened.
func (c *Cart) AddAll(ctx context.Context, batches ...[]ItemInput) ([]string, error) {
	for _, batch := range batches {
		for _, in := range batch {
			if _, err := c.prepare(in); err != nil {
				return nil, err
			}
		}
	}
	ids := make([]string, 0)
	_, err := c.mutate(ctx, "add", func(ctx context.Context) (bool, error) {
		for _, batch := range batches {
			for _, in := range batch {
				id, ok, err := c.add(ctx, in)
				if err != nil {
					return false, err
				}
				if ok {
					ids = append(ids, id)
				}
			}
		}
		return true, nil
	})
	return ids, err
}

// prepare normalizes in and checks its associated model.
func (c *Cart) prepare(in ItemInput) (Item, error) {
	it, err := normalizeItem(in)
	if err != nil {
		return Item{}, err
	}
	if it.AssociatedModel != "" && c.models != nil && !c.models.Exists(it.AssociatedModel) {
		return Item{}, fmt.Errorf("the supplied model %s does not exist: %w", it.AssociatedModel, ErrUnknownModel)
	}
	return it, nil
}

func (c *Cart) add(ctx context.Context, in ItemInput) (string, bool, error) {
	it, err := c.prepare(in)
	if err != nil {
		return "", false, err
	}
	items, err := c.loadItems(ctx)
	if err != nil {
		return "", false, err
	}
	if items.Has(it.ID) {
		upd := ItemUpdate{
			Name:       &it.Name,
			Price:      it.Price,
			Quantity:   RelativeQuantity(it.Quantity),
			Attributes: map[string]any(it.Attributes),
			Conditions: append(ConditionList{}, it.Conditions...),
		}
		if it.AssociatedModel != "" {
			upd.AssociatedModel = &it.AssociatedModel
		}
		ok, err := c.update(ctx, it.ID, upd)
		return it.ID, ok, err
	}

	if !c.fire(ctx, PhaseAdding, Event{ItemID: it.ID, Item: &it}) {
		c.logger.Info().Str("item_id", it.ID).Msg("cart_add_vetoed")
		return it.ID, false, nil
	}
	items.Put(it)
	if err := c.saveItems(ctx, items); err != nil {
		return "", false, err
	}
	c.logger.Debug().Str("item_id", it.ID).Float64("quantity", it.Quantity).Msg("cart_item_added")
	c.fire(ctx, PhaseAdded, Event{ItemID: it.ID, Item: &it})
	return it.ID, true, nil
}

// Update merges upd into the item stored under id without changing its position.
// It returns false when a listener cancelled the update.
func (c *Cart) Update(ctx context.Context, id string, upd ItemUpdate) (bool, error) {
	return c.mutate(ctx, "update", func(ctx context.Context) (bool, error) {
		return c.update(ctx, id, upd)
	})
}

func (c *Cart) update(ctx context.Context, id string, upd ItemUpdate) (bool, error) {
	if !c.fire(ctx, PhaseUpdating, Event{ItemID: id, Data: upd}) {
		c.logger.Info().Str("item_id", id).Msg("cart_update_vetoed")
		return false, nil
	}
	items, err := c.loadItems(ctx)
	if err != nil {
		return false, err
	}
	it, ok := items.Get(id)
	if !ok {
		return false, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if upd.Name != nil {
		it.Name = *upd.Name
	}
	if upd.Price != nil {
		price, err := parseNumber(upd.Price)
		if err != nil {
			return false, fmt.Errorf("the price must be numeric: %w", ErrInvalidItem)
		}
		it.Price = price
	}
	if upd.Quantity != nil {
		qty, err := upd.Quantity.apply(it.Quantity)
		if err != nil {
			return false, err
		}
		it.Quantity = qty
	}
	if upd.Attributes != nil {
		it.Attributes = NewAttributes(upd.Attributes)
	}
	if upd.Conditions != nil {
		it.Conditions = pricing.List(upd.Conditions...)
	}
	if upd.AssociatedModel != nil {
		it.AssociatedModel = strings.TrimSpace(*upd.AssociatedModel)
	}
	items.Put(it)
	if err := c.saveItems(ctx, items); err != nil {
		return false, err
	}
	c.logger.Debug().Str("item_id", id).Float64("quantity", it.Quantity).Msg("cart_item_updated")
	c.fire(ctx, PhaseUpdated, Event{ItemID: id, Item: &it})
	return true, nil
}

// Remove deletes the item stored under id. It returns false when a listener
// cancelled the removal.
func (c *Cart) Remove(ctx context.Context, id string) (bool, error) {
	return c.mutate(ctx, "remove", func(ctx context.Context) (bool, error) {
		items, err := c.loadItems(ctx)
		if err != nil {
			return false, err
		}
		if !c.fire(ctx, PhaseRemoving, Event{ItemID: id}) {
			c.logger.Info().Str("item_id", id).Msg("cart_remove_vetoed")
			return false, nil
		}
		items.Forget(id)
		if err := c.saveItems(ctx, items); err != nil {
			return false, err
		}
		c.logger.Debug().Str("item_id", id).Msg("cart_item_removed")
		c.fire(ctx, PhaseRemoved, Event{ItemID: id})
		return true, nil
	})
}

// Clear empties the item collection. The clearing event is dispatched but its
// result does not cancel the operation.
func (c *Cart) Clear(ctx context.Context) (bool, error) {
	return c.mutate(ctx, "clear", func(ctx context.Context) (bool, error) {
		c.fire(ctx, PhaseClearing, Event{})
		if err := c.saveItems(ctx, &Items{}); err != nil {
			return false, err
		}
		c.logger.Debug().Msg("cart_cleared")
		c.fire(ctx, PhaseCleared, Event{})
		return true, nil
	})
}

// Associate links the item stored under itemID with model.
func (c *Cart) Associate(ctx context.Context, itemID, model string) error {
	_, err := c.mutate(ctx, "associate", func(ctx context.Context) (bool, error) {
		model = strings.TrimSpace(model)
		if model == "" || (c.models != nil && !c.models.Exists(model)) {
			return false, fmt.Errorf("the supplied model %s does not exist: %w", model, ErrUnknownModel)
		}
		items, err := c.loadItems(ctx)
		if err != nil {
			return false, err
		}
		it, ok := items.Get(itemID)
		if !ok {
			return false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		it.AssociatedModel = model
		items.Put(it)
		return true, c.saveItems(ctx, items)
	})
	return err
}

// Model instantiates the model associated with the item stored under id. It
// returns nil when the item has no associated model.
func (c *Cart) Model(ctx context.Context, id string) (any, error) {
	it, ok, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if it.AssociatedModel == "" || c.models == nil {
		return nil, nil
	}
	if !c.models.Exists(it.AssociatedModel) {
		return nil, fmt.Errorf("the supplied model %s does not exist: %w", it.AssociatedModel, ErrUnknownModel)
	}
	return c.models.Instantiate(ctx, it.AssociatedModel, it)
}

// Condition stores conds in the cart level set. A condition whose name is already
// present replaces the stored one.
func (c *Cart) Condition(ctx context.Context, conds ...*pricing.Condition) error {
	_, err := c.mutate(ctx, "condition", func(ctx context.Context) (bool, error) {
		set, err := c.loadConditions(ctx)
		if err != nil {
			return false, err
		}
		for _, cond := range pricing.List(conds...) {
			set.Put(cond)
			c.logger.Debug().Str("condition", cond.Name()).Str("target", cond.Target()).Msg("cart_condition_added")
		}
		return true, c.saveConditions(ctx, set)
	})
	return err
}

// Conditions returns the cart level conditions in stored order. With active set,
// only conditions whose bounds admit the amount they target are returned.
func (c *Cart) Conditions(ctx context.Context, active bool) (*pricing.Conditions, error) {
	set, err := c.loadConditions(ctx)
	if err != nil || !active {
		return set, err
	}
	items, err := c.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	summary := c.compute(items, set)
	subtotal := c.format(summary.Subtotal, false)
	total := c.format(summary.Total, false)
	return set.Filter(func(cond *pricing.Condition) bool {
		amount := total
		if cond.Target() == pricing.TargetSubtotal {
			amount = subtotal
		}
		return cond.Applicable(amount)
	}), nil
}

// ConditionByName returns the cart level condition stored under name.
func (c *Cart) ConditionByName(ctx context.Context, name string) (*pricing.Condition, bool, error) {
	set, err := c.loadConditions(ctx)
	if err != nil {
		return nil, false, err
	}
	cond, ok := set.Get(name)
	return cond, ok, nil
}

// ConditionsByType returns the cart level conditions tagged with kind. Item level
// conditions are not included.
func (c *Cart) ConditionsByType(ctx context.Context, kind string) (*pricing.Conditions, error) {
	set, err := c.loadConditions(ctx)
	if err != nil {
		return nil, err
	}
	return set.ByType(kind), nil
}

// RemoveConditionsByType removes every cart level condition tagged with kind.
func (c *Cart) RemoveConditionsByType(ctx context.Context, kind string) error {
	_, err := c.mutate(ctx, "remove_conditions_by_type", func(ctx context.Context) (bool, error) {
		set, err := c.loadConditions(ctx)
		if err != nil {
			return false, err
		}
		set.RemoveByType(kind)
		return true, c.saveConditions(ctx, set)
	})
	return err
}

// RemoveCartCondition removes the cart level condition stored under name.
func (c *Cart) RemoveCartCondition(ctx context.Context, name string) error {
	_, err := c.mutate(ctx, "remove_condition", func(ctx context.Context) (bool, error) {
		set, err := c.loadConditions(ctx)
		if err != nil {
			return false, err
		}
		set.Remove(name)
		return true, c.saveConditions(ctx, set)
	})
	return err
}

// ClearCartConditions empties the cart level condition set. Item conditions are kept.
func (c *Cart) ClearCartConditions(ctx context.Context) error {
	_, err := c.mutate(ctx, "clear_conditions", func(ctx context.Context) (bool, error) {
		return true, c.saveConditions(ctx, &pricing.Conditions{})
	})
	return err
}

// AddItemCondition appends cond to the conditions of the item stored under itemID.
func (c *Cart) AddItemCondition(ctx context.Context, itemID string, cond *pricing.Condition) (bool, error) {
	return c.mutate(ctx, "add_item_condition", func(ctx context.Context) (bool, error) {
		if cond == nil {
			return false, fmt.Errorf("condition is required: %w", pricing.ErrInvalidCondition)
		}
		it, ok, err := c.Get(ctx, itemID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		conds := append(ConditionList{}, it.Conditions...)
		return c.update(ctx, itemID, ItemUpdate{Conditions: append(conds, cond)})
	})
}

// RemoveItemCondition detaches the condition called name from the item stored under itemID.
func (c *Cart) RemoveItemCondition(ctx context.Context, itemID, name string) (bool, error) {
	return c.mutate(ctx, "remove_item_condition", func(ctx context.Context) (bool, error) {
		it, ok, err := c.Get(ctx, itemID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
		kept := ConditionList{}
		for _, cond := range it.Conditions {
			if cond.Name() != name {
				kept = append(kept, cond)
			}
		}
		return c.update(ctx, itemID, ItemUpdate{Conditions: kept})
	})
}

// ClearItemConditions detaches every condition from the item stored under itemID.
func (c *Cart) ClearItemConditions(ctx context.Context, itemID string) (bool, error) {
	return c.mutate(ctx, "clear_item_conditions", func(ctx context.Context) (bool, error) {
		return c.clearItemConditions(ctx, itemID)
	})
}

func (c *Cart) clearItemConditions(ctx context.Context, itemID string) (bool, error) {
	has, err := c.Has(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !has {
		return false, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	return c.update(ctx, itemID, ItemUpdate{Conditions: ConditionList{}})
}

// ClearAllConditions detaches the conditions of every item and empties the cart
// level condition set.
func (c *Cart) ClearAllConditions(ctx context.Context) error {
	_, err := c.mutate(ctx, "clear_all_conditions", func(ctx context.Context) (bool, error) {
		items, err := c.loadItems(ctx)
		if err != nil {
			return false, err
		}
		for _, id := range items.IDs() {
			if _, err := c.clearItemConditions(ctx, id); err != nil {
				return false, err
			}
		}
		return true, c.saveConditions(ctx, &pricing.Conditions{})
	})
	return err
}

// SubTotalWithoutConditions sums price times quantity over every line.
func (c *Cart) SubTotalWithoutConditions(ctx context.Context, formatted bool) (float64, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return 0, err
	}
	return c.format(items.Sum(Item.PriceSum), formatted), nil
}

// SubTotal sums the condition adjusted lines and folds the subtotal conditions
// over the result in ascending order.
func (c *Cart) SubTotal(ctx context.Context, formatted bool) (float64, error) {
	items, set, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return c.format(c.compute(items, set).Subtotal, formatted), nil
}

// Total folds the total conditions over the unformatted subtotal. The result is
// rounded only when the configuration formats numbers.
func (c *Cart) Total(ctx context.Context) (float64, error) {
	items, set, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	return c.format(c.compute(items, set).Total, false), nil
}

// CalculatedValueForCondition walks the cart level conditions in stored order from
// the subtotal without conditions, deducting each adjustment from the running
// amount, and returns the adjustment of the condition called name. It returns zero
// when no condition has that name.
func (c *Cart) CalculatedValueForCondition(ctx context.Context, name string) (float64, error) {
	set, err := c.loadConditions(ctx)
	if err != nil {
		return 0, err
	}
	running, err := c.SubTotalWithoutConditions(ctx, false)
	if err != nil {
		return 0, err
	}
	for _, cond := range set.All() {
		value := cond.CalculatedValueFor(running)
		if cond.Name() == name {
			return value, nil
		}
		running -= value
	}
	return 0, nil
}

// Snapshot is a consistent view of the cart computed from a single read.
type Snapshot struct {
	Instance      string               `json:"instance"`
	SessionKey    string               `json:"sessionKey"`
	Items         []ItemView           `json:"items"`
	Conditions    []*pricing.Condition `json:"conditions"`
	TotalQuantity float64              `json:"totalQuantity"`
	SubTotal      float64              `json:"subTotal"`
	Total         float64              `json:"total"`
}

// ItemView is an item with its computed sums.
type ItemView struct {
	Item
	PriceSum               float64 `json:"priceSum"`
	PriceSumWithConditions float64 `json:"priceSumWithConditions"`
}

// Snapshot loads the cart once and returns its lines, conditions and totals. Amounts
// are formatted with the configured decimals.
func (c *Cart) Snapshot(ctx context.Context) (Snapshot, error) {
	items, set, err := c.load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	summary := c.compute(items, set)
	snap := Snapshot{
		Instance:   c.instance,
		SessionKey: c.SessionKey(),
		Items:      make([]ItemView, 0, items.Len()),
		Conditions: set.All(),
		SubTotal:   c.format(summary.Subtotal, true),
		Total:      c.format(summary.Total, true),
	}
	for _, it := range items.All() {
		snap.TotalQuantity += it.Quantity
		snap.Items = append(snap.Items, ItemView{
			Item:                   it,
			PriceSum:               c.format(it.PriceSum(), true),
			PriceSumWithConditions: c.format(it.PriceSumWithConditions(), true),
		})
	}
	if snap.Conditions == nil {
		snap.Conditions = []*pricing.Condition{}
	}
	return snap, nil
}

func (c *Cart) compute(items *Items, set *pricing.Conditions) pricing.Summary {
	if obs.CartTotalsComputed != nil {
		obs.CartTotalsComputed.Inc()
	}
	sums := make([]float64, 0, items.Len())
	for _, it := range items.All() {
		sums = append(sums, it.PriceSumWithConditions())
	}
	return pricing.Compute(sums, set)
}

func (c *Cart) load(ctx context.Context) (*Items, *pricing.Conditions, error) {
	items, err := c.loadItems(ctx)
	if err != nil {
		return nil, nil, err
	}
	set, err := c.loadConditions(ctx)
	if err != nil {
		return nil, nil, err
	}
	return items, set, nil
}

func (c *Cart) loadItems(ctx context.Context) (*Items, error) {
	key, _ := c.keys()
	items := &Items{}
	if _, err := c.store.Get(ctx, key, items); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("load cart items")
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	return items, nil
}

func (c *Cart) loadConditions(ctx context.Context) (*pricing.Conditions, error) {
	_, key := c.keys()
	set := &pricing.Conditions{}
	if _, err := c.store.Get(ctx, key, set); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("load cart conditions")
		return nil, fmt.Errorf("load cart conditions: %w", err)
	}
	return set, nil
}

func (c *Cart) saveItems(ctx context.Context, items *Items) error {
	key, _ := c.keys()
	if err := c.store.Put(ctx, key, items); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("save cart items")
		return fmt.Errorf("save cart items: %w", err)
	}
	return nil
}

func (c *Cart) saveConditions(ctx context.Context, set *pricing.Conditions) error {
	_, key := c.keys()
	if err := c.store.Put(ctx, key, set); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("save cart conditions")
		return fmt.Errorf("save cart conditions: %w", err)
	}
	return nil
}

// fire dispatches "<instance>.<phase>" and reports whether the operation may proceed.
func (c *Cart) fire(ctx context.Context, phase string, ev Event) bool {
	if c.events == nil {
		return true
	}
	ev.Instance = c.instance
	ev.SessionKey = c.SessionKey()
	ev.Phase = phase
	return c.events.Dispatch(ctx, c.instance+"."+phase, ev)
}

// mutate runs fn under the session lock when a Locker is configured.
func (c *Cart) mutate(ctx context.Context, op string, fn func(context.Context) (bool, error)) (bool, error) {
	var ok bool
	run := func(ctx context.Context) error {
		var err error
		ok, err = fn(ctx)
		return err
	}
	var err error
	if c.locker == nil {
		err = run(ctx)
	} else {
		ttl := c.lockTTL
		if ttl <= 0 {
			ttl = 5 * time.Second
		}
		start := time.Now()
		err = c.locker.WithLock(ctx, c.lockKey(), ttl, func(ctx context.Context) error {
			if obs.CartLockWaitDuration != nil {
				obs.CartLockWaitDuration.Observe(obs.DurationMillis(time.Since(start)))
			}
			return run(ctx)
		})
	}
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case !ok:
		result = "vetoed"
	}
	obs.ObserveCartMutation(c.instance, op, result)
	return ok, err
}

func (c *Cart) lockKey() string {
	return "cart:lock:" + c.instance + ":" + c.SessionKey()
}
