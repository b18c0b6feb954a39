package cart

import "encoding/json"

// Items is the ordered collection of cart lines keyed by item id. Replacing an
// existing id keeps its position.
type Items struct {
	ids  []string
	byID map[string]Item
}

// Get returns a copy of the item stored under id.
func (c *Items) Get(id string) (Item, bool) {
	if c == nil || c.byID == nil {
		return Item{}, false
	}
	it, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Has reports whether id is present.
func (c *Items) Has(id string) bool {
	if c == nil || c.byID == nil {
		return false
	}
	_, ok := c.byID[id]
	return ok
}

// Put inserts or replaces the item under its id.
func (c *Items) Put(it Item) {
	if c.byID == nil {
		c.byID = make(map[string]Item)
	}
	if _, exists := c.byID[it.ID]; !exists {
		c.ids = append(c.ids, it.ID)
	}
	c.byID[it.ID] = it
}

// Forget removes the item stored under id and reports whether it was present.
func (c *Items) Forget(id string) bool {
	if !c.Has(id) {
		return false
	}
	delete(c.byID, id)
	ids := make([]string, 0, len(c.ids)-1)
	for _, existing := range c.ids {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	c.ids = ids
	return true
}

// Len returns the number of lines.
func (c *Items) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// IsEmpty reports whether the collection holds no lines.
func (c *Items) IsEmpty() bool { return c.Len() == 0 }

// All returns copies of the items in insertion order.
func (c *Items) All() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.byID[id].clone())
	}
	return out
}

// IDs returns the item ids in insertion order.
func (c *Items) IDs() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.ids...)
}

// Sum adds up fn over every item.
func (c *Items) Sum(fn func(Item) float64) float64 {
	var total float64
	for _, it := range c.All() {
		total += fn(it)
	}
	return total
}

// MarshalJSON encodes the collection as an ordered list.
func (c *Items) MarshalJSON() ([]byte, error) {
	all := c.All()
	if all == nil {
		all = []Item{}
	}
	return json.Marshal(all)
}

// UnmarshalJSON decodes an ordered list of items.
func (c *Items) UnmarshalJSON(data []byte) error {
	var list []Item
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = Items{}
	for _, it := range list {
		if it.ID == "" {
			continue
		}
		c.Put(it)
	}
	return nil
}
