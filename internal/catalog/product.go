package catalog

import (
	"context"

	"github.com/noah-isme/cart-engine/internal/cart"
)

// ProductModel is the name under which Product is registered by RegisterDefaults.
const ProductModel = "Product"

// Product is a catalogue view of a cart line.
type Product struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Price      float64        `json:"price"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// NewProduct builds a Product from the item it is associated with.
func NewProduct(_ context.Context, item cart.Item) (any, error) {
	return Product{
		ID:         item.ID,
		Name:       item.Name,
		Price:      item.Price,
		Attributes: map[string]any(item.Attributes),
	}, nil
}

// RegisterDefaults registers the built-in models.
func RegisterDefaults(r *Registry) error {
	return r.Register(ProductModel, NewProduct)
}
