package cart

import (
	"github.com/noah-isme/cart-engine/internal/pricing"
)

// Attributes is a free-form bag of item metadata such as size or colour.
type Attributes map[string]any

// NewAttributes copies bag into a fresh container. The result is never nil.
func NewAttributes(bag map[string]any) Attributes {
	out := make(Attributes, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}

// Get returns the attribute stored under key, or nil when absent.
func (a Attributes) Get(key string) any {
	if a == nil {
		return nil
	}
	return a[key]
}

// Has reports whether key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Item is a single cart line.
type Item struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Price           float64              `json:"price"`
	Quantity        float64              `json:"quantity"`
	Attributes      Attributes           `json:"attributes"`
	Conditions      []*pricing.Condition `json:"conditions,omitempty"`
	AssociatedModel string               `json:"associatedModel,omitempty"`
}

// PriceSum returns price times quantity without any condition.
func (i Item) PriceSum() float64 {
	return i.Price * i.Quantity
}

// PriceWithConditions returns the unit price after item level conditions.
func (i Item) PriceWithConditions() float64 {
	return pricing.ApplyItemLevel(i.Price, i.Conditions)
}

// PriceSumWithConditions folds the item level conditions over the price sum in the
// order they were attached. Conditions aimed at the subtotal or total are ignored.
func (i Item) PriceSumWithConditions() float64 {
	return pricing.ApplyItemLevel(i.PriceSum(), i.Conditions)
}

// HasConditions reports whether any condition is attached to the item.
func (i Item) HasConditions() bool {
	return len(pricing.List(i.Conditions...)) > 0
}

func (i Item) clone() Item {
	out := i
	out.Attributes = NewAttributes(i.Attributes)
	if i.Conditions != nil {
		out.Conditions = append([]*pricing.Condition(nil), i.Conditions...)
	}
	return out
}
