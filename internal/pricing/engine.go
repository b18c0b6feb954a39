package pricing

// Summary aggregates computed pricing components.
type Summary struct {
	ItemsSum float64
	Subtotal float64
	Total    float64
}

// Fold applies conds left to right, each result feeding the next application.
func Fold(amount float64, conds []*Condition) float64 {
	for _, c := range conds {
		amount = c.Apply(amount)
	}
	return amount
}

// ApplyItemLevel folds the item level conditions over amount in their stored order.
// Conditions aimed at the subtotal or total are skipped.
func ApplyItemLevel(amount float64, conds []*Condition) float64 {
	for _, c := range conds {
		if c == nil || !c.IsItemLevel() {
			continue
		}
		amount = c.Apply(amount)
	}
	return amount
}

// ForTarget selects the conditions aimed at target that are applicable to amount,
// sorted by ascending order.
func ForTarget(set *Conditions, target string, amount float64) []*Condition {
	return set.Filter(func(c *Condition) bool {
		return c.Target() == target
	}).Filter(func(c *Condition) bool {
		return c.minimum == nil || *c.minimum <= amount
	}).Filter(func(c *Condition) bool {
		return c.maximum == nil || *c.maximum >= amount
	}).SortedByOrder()
}

// Compute derives the subtotal and total from the per-line sums (conditions already
// applied) and the cart level condition set.
func Compute(lineSums []float64, set *Conditions) Summary {
	var sum float64
	for _, s := range lineSums {
		sum += s
	}
	subtotal := Fold(sum, ForTarget(set, TargetSubtotal, sum))
	total := Fold(subtotal, ForTarget(set, TargetTotal, subtotal))
	return Summary{
		ItemsSum: sum,
		Subtotal: subtotal,
		Total:    total,
	}
}
