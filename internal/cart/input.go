package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/noah-isme/cart-engine/internal/pricing"
)

// ConditionList holds the conditions attached to an item descriptor. In JSON it
// accepts null, a single condition object or a list of them.
type ConditionList []*pricing.Condition

// UnmarshalJSON implements json.Unmarshaler.
func (l *ConditionList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*l = nil
		return nil
	case trimmed[0] == '{':
		var single pricing.Condition
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*l = ConditionList{&single}
		return nil
	default:
		var many []*pricing.Condition
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		*l = append(ConditionList{}, pricing.List(many...)...)
		return nil
	}
}

// ItemInput describes an item to add. ID, Price and Quantity accept numbers or
// numeric strings.
type ItemInput struct {
	ID              any            `json:"id"`
	Name            string         `json:"name"`
	Price           any            `json:"price"`
	Quantity        any            `json:"quantity"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	Conditions      ConditionList  `json:"conditions,omitempty"`
	AssociatedModel string         `json:"associatedModel,omitempty"`
}

// ItemUpdate lists the fields to merge into an existing item. Nil fields are left
// untouched; a non-nil empty Attributes or Conditions clears them.
type ItemUpdate struct {
	Name            *string         `json:"name,omitempty"`
	Price           any             `json:"price,omitempty"`
	Quantity        *QuantityChange `json:"quantity,omitempty"`
	Attributes      map[string]any  `json:"attributes,omitempty"`
	Conditions      ConditionList   `json:"conditions,omitempty"`
	AssociatedModel *string         `json:"associatedModel,omitempty"`
}

// QuantityChange is a quantity update. Relative changes add to the current
// quantity: a value containing "-" subtracts its magnitude and is ignored when the
// result would not stay above zero. Absolute changes replace the quantity.
type QuantityChange struct {
	Relative bool
	Value    any
}

// RelativeQuantity builds a relative change such as 2, "+2" or "-1".
func RelativeQuantity(v any) *QuantityChange {
	return &QuantityChange{Relative: true, Value: v}
}

// AbsoluteQuantity builds a change that replaces the quantity with v.
func AbsoluteQuantity(v any) *QuantityChange {
	return &QuantityChange{Relative: false, Value: v}
}

// UnmarshalJSON accepts a bare number, a signed string or {"relative": bool, "value": x}.
// An object without "relative" leaves the quantity unchanged.
func (q *QuantityChange) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var raw struct {
			Relative *bool `json:"relative"`
			Value    any   `json:"value"`
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if raw.Relative == nil {
			*q = QuantityChange{}
			return nil
		}
		*q = QuantityChange{Relative: *raw.Relative, Value: raw.Value}
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*q = QuantityChange{Relative: true, Value: v}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (q QuantityChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"relative": q.Relative, "value": q.Value})
}

// apply returns the new quantity for current.
func (q *QuantityChange) apply(current float64) (float64, error) {
	if q == nil || q.Value == nil {
		return current, nil
	}
	if !q.Relative {
		v, err := cast.ToFloat64E(q.Value)
		if err != nil {
			return current, fmt.Errorf("the quantity must be numeric: %w", ErrInvalidItem)
		}
		return v, nil
	}
	raw := strings.TrimSpace(cast.ToString(q.Value))
	switch {
	case strings.Contains(raw, "-"):
		v, err := cast.ToFloat64E(strings.ReplaceAll(raw, "-", ""))
		if err != nil {
			return current, fmt.Errorf("the quantity must be numeric: %w", ErrInvalidItem)
		}
		if current-v > 0 {
			return current - v, nil
		}
		return current, nil
	case strings.Contains(raw, "+"):
		v, err := cast.ToFloat64E(strings.ReplaceAll(raw, "+", ""))
		if err != nil {
			return current, fmt.Errorf("the quantity must be numeric: %w", ErrInvalidItem)
		}
		return current + v, nil
	default:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return current, fmt.Errorf("the quantity must be numeric: %w", ErrInvalidItem)
		}
		return current + v, nil
	}
}
