package cart

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/noah-isme/cart-engine/internal/pricing"
)

var validate = validator.New()

type itemRules struct {
	ID       string  `validate:"required"`
	Name     string  `validate:"required"`
	Quantity float64 `validate:"min=0.1"`
}

// normalizeItem validates in and converts it into an Item. The first failing
// rule wins, checked in the order id, name, quantity.
func normalizeItem(in ItemInput) (Item, error) {
	id := ""
	if in.ID != nil {
		id = strings.TrimSpace(cast.ToString(in.ID))
	}
	quantity, qtyErr := parseNumber(in.Quantity)
	rules := itemRules{
		ID:       id,
		Name:     strings.TrimSpace(in.Name),
		Quantity: quantity,
	}
	failed := map[string]bool{}
	if err := validate.Struct(rules); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Item{}, fmt.Errorf("%v: %w", err, ErrInvalidItem)
		}
		for _, fe := range verrs {
			failed[fe.Field()] = true
		}
	}
	switch {
	case failed["ID"]:
		return Item{}, fmt.Errorf("the id field is required: %w", ErrInvalidItem)
	case failed["Name"]:
		return Item{}, fmt.Errorf("the name field is required: %w", ErrInvalidItem)
	case in.Quantity == nil:
		return Item{}, fmt.Errorf("the quantity field is required: %w", ErrInvalidItem)
	case qtyErr != nil:
		return Item{}, fmt.Errorf("the quantity must be numeric: %w", ErrInvalidItem)
	case failed["Quantity"]:
		return Item{}, fmt.Errorf("the quantity must be at least 0.1: %w", ErrInvalidItem)
	}

	price, err := parseNumber(in.Price)
	if err != nil {
		return Item{}, fmt.Errorf("the price must be numeric: %w", ErrInvalidItem)
	}
	return Item{
		ID:              id,
		Name:            in.Name,
		Price:           price,
		Quantity:        quantity,
		Attributes:      NewAttributes(in.Attributes),
		Conditions:      pricing.List(in.Conditions...),
		AssociatedModel: strings.TrimSpace(in.AssociatedModel),
	}, nil
}

// parseNumber coerces numbers and numeric strings. Nil yields zero.
func parseNumber(v any) (float64, error) {
	if v == nil {
		return 0, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	return cast.ToFloat64E(v)
}
