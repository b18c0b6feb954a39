package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

// Targets a condition can be aimed at. Item level conditions leave the target empty.
const (
	TargetItem     = "item"
	TargetSubtotal = "subtotal"
	TargetTotal    = "total"
)

// ErrInvalidCondition is returned when a condition cannot be constructed.
var ErrInvalidCondition = errors.New("invalid condition")

var validate = validator.New()

// ConditionArgs describes a condition before validation.
type ConditionArgs struct {
	Name       string
	Type       string
	Target     string
	Value      any
	Attributes map[string]any
	Minimum    *float64
	Maximum    *float64
	Order      any
}

type conditionRules struct {
	Name  string `validate:"required"`
	Type  string `validate:"required"`
	Value string `validate:"required"`
}

// Condition is a named adjustment applied to a price, a subtotal or a total.
type Condition struct {
	name       string
	kind       string
	target     string
	value      string
	attributes map[string]any
	minimum    *float64
	maximum    *float64
	order      int

	calculated float64
}

// NewCondition validates args and builds a Condition.
func NewCondition(args ConditionArgs) (*Condition, error) {
	value := ""
	if args.Value != nil {
		value = strings.TrimSpace(cast.ToString(args.Value))
	}
	rules := conditionRules{
		Name:  strings.TrimSpace(args.Name),
		Type:  strings.TrimSpace(args.Type),
		Value: value,
	}
	if err := validate.Struct(rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("the %s field is required: %w", strings.ToLower(verrs[0].Field()), ErrInvalidCondition)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidCondition)
	}
	c := &Condition{
		name:       args.Name,
		kind:       args.Type,
		target:     strings.TrimSpace(args.Target),
		value:      value,
		attributes: copyBag(args.Attributes),
		minimum:    copyBound(args.Minimum),
		maximum:    copyBound(args.Maximum),
		order:      parseOrder(args.Order),
	}
	return c, nil
}

// MustCondition is like NewCondition but panics on error.
func MustCondition(args ConditionArgs) *Condition {
	c, err := NewCondition(args)
	if err != nil {
		panic(err)
	}
	return c
}

// NewConditionFromMap builds a condition from a loose key/value bag such as a decoded JSON object.
// Nested objects or lists are only accepted under "attributes".
func NewConditionFromMap(bag map[string]any) (*Condition, error) {
	for key, v := range bag {
		if key == "attributes" {
			continue
		}
		switch v.(type) {
		case map[string]any, []any, []map[string]any:
			return nil, fmt.Errorf("multi dimensional array is not supported: %w", ErrInvalidCondition)
		}
	}
	args := ConditionArgs{
		Name:   cast.ToString(bag["name"]),
		Type:   cast.ToString(bag["type"]),
		Target: cast.ToString(bag["target"]),
		Value:  bag["value"],
		Order:  bag["order"],
	}
	if attrs, ok := bag["attributes"].(map[string]any); ok {
		args.Attributes = attrs
	}
	var err error
	if args.Minimum, err = boundFrom(bag, "minimum"); err != nil {
		return nil, err
	}
	if args.Maximum, err = boundFrom(bag, "maximum"); err != nil {
		return nil, err
	}
	return NewCondition(args)
}

// Name returns the condition name, unique within a cart condition set.
func (c *Condition) Name() string { return c.name }

// Type returns the free-form category tag.
func (c *Condition) Type() string { return c.kind }

// Target returns where the condition applies; empty for item level conditions.
func (c *Condition) Target() string { return c.target }

// Value returns the raw value expression, e.g. "-10%" or "+5".
func (c *Condition) Value() string { return c.value }

// SetValue replaces the value expression.
func (c *Condition) SetValue(value any) { c.value = strings.TrimSpace(cast.ToString(value)) }

// Order returns the sequencing key. Zero means unordered and sorts first.
func (c *Condition) Order() int { return c.order }

// SetOrder replaces the sequencing key.
func (c *Condition) SetOrder(order int) { c.order = order }

// Attributes returns a copy of the condition attributes.
func (c *Condition) Attributes() map[string]any { return copyBag(c.attributes) }

// Minimum returns the lower applicability bound, nil when unbounded.
func (c *Condition) Minimum() *float64 { return copyBound(c.minimum) }

// Maximum returns the upper applicability bound, nil when unbounded.
func (c *Condition) Maximum() *float64 { return copyBound(c.maximum) }

// IsItemLevel reports whether the condition may be applied to an item price.
func (c *Condition) IsItemLevel() bool {
	return c.target == "" || c.target == TargetItem
}

// Applicable reports whether amount falls within the minimum and maximum bounds.
func (c *Condition) Applicable(amount float64) bool {
	if c.minimum != nil && *c.minimum > amount {
		return false
	}
	if c.maximum != nil && *c.maximum < amount {
		return false
	}
	return true
}

// Apply adjusts amount by the condition value and records the size of the adjustment.
// The result never drops below zero.
func (c *Condition) Apply(amount float64) float64 {
	clean := strings.NewReplacer("%", "", "-", "", "+", "").Replace(c.value)
	parsed := cast.ToFloat64(strings.TrimSpace(clean))

	delta := parsed
	if strings.Contains(c.value, "%") {
		delta = amount * (parsed / 100)
	}
	c.calculated = delta

	result := amount + delta
	if strings.Contains(c.value, "-") {
		result = amount - delta
	}
	if result < 0 {
		return 0
	}
	return result
}

// CalculatedValue returns the adjustment recorded by the last Apply.
func (c *Condition) CalculatedValue() float64 { return c.calculated }

// CalculatedValueFor re-applies the condition to amount and returns the adjustment.
// A zero amount does not trigger a recalculation.
func (c *Condition) CalculatedValueFor(amount float64) float64 {
	if amount != 0 {
		c.Apply(amount)
	}
	return c.calculated
}

type conditionJSON struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Target     string         `json:"target,omitempty"`
	Value      string         `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Minimum    *float64       `json:"minimum,omitempty"`
	Maximum    *float64       `json:"maximum,omitempty"`
	Order      int            `json:"order,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionJSON{
		Name:       c.name,
		Type:       c.kind,
		Target:     c.target,
		Value:      c.value,
		Attributes: c.attributes,
		Minimum:    c.minimum,
		Maximum:    c.maximum,
		Order:      c.order,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewCondition(ConditionArgs{
		Name:       raw.Name,
		Type:       raw.Type,
		Target:     raw.Target,
		Value:      raw.Value,
		Attributes: raw.Attributes,
		Minimum:    raw.Minimum,
		Maximum:    raw.Maximum,
		Order:      raw.Order,
	})
	if err != nil {
		return err
	}
	*c = *built
	return nil
}

// List drops nil entries so callers can pass none, one or many conditions uniformly.
func List(conds ...*Condition) []*Condition {
	out := make([]*Condition, 0, len(conds))
	for _, c := range conds {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func parseOrder(v any) int {
	if v == nil {
		return 0
	}
	order, err := cast.ToIntE(v)
	if err != nil {
		return 0
	}
	return order
}

func boundFrom(bag map[string]any, key string) (*float64, error) {
	v, ok := bag[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("the %s must be numeric: %w", key, ErrInvalidCondition)
	}
	return &f, nil
}

func copyBound(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyBag(bag map[string]any) map[string]any {
	if len(bag) == 0 {
		return nil
	}
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = v
	}
	return out
}
