package pricing

import (
	"encoding/json"
	"sort"
)

// Conditions is an ordered set of conditions keyed by name. Putting a condition whose
// name is already present replaces the stored one in place.
type Conditions struct {
	names  []string
	byName map[string]*Condition
}

// NewConditions builds a set from conds in the given order.
func NewConditions(conds ...*Condition) *Conditions {
	s := &Conditions{}
	for _, c := range conds {
		s.Put(c)
	}
	return s
}

// Put stores c under its name.
func (s *Conditions) Put(c *Condition) {
	if c == nil {
		return
	}
	if s.byName == nil {
		s.byName = make(map[string]*Condition)
	}
	if _, exists := s.byName[c.Name()]; !exists {
		s.names = append(s.names, c.Name())
	}
	s.byName[c.Name()] = c
}

// Get returns the condition stored under name.
func (s *Conditions) Get(name string) (*Condition, bool) {
	if s == nil || s.byName == nil {
		return nil, false
	}
	c, ok := s.byName[name]
	return c, ok
}

// Remove deletes the condition stored under name and returns it.
func (s *Conditions) Remove(name string) (*Condition, bool) {
	c, ok := s.Get(name)
	if !ok {
		return nil, false
	}
	delete(s.byName, name)
	names := make([]string, 0, len(s.names)-1)
	for _, n := range s.names {
		if n != name {
			names = append(names, n)
		}
	}
	s.names = names
	return c, true
}

// Len returns the number of stored conditions.
func (s *Conditions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// IsEmpty reports whether the set holds no conditions.
func (s *Conditions) IsEmpty() bool { return s.Len() == 0 }

// All returns the conditions in insertion order.
func (s *Conditions) All() []*Condition {
	if s == nil {
		return nil
	}
	out := make([]*Condition, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.byName[n])
	}
	return out
}

// Names returns the stored names in insertion order.
func (s *Conditions) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Filter returns a new set holding the conditions for which keep returns true.
func (s *Conditions) Filter(keep func(*Condition) bool) *Conditions {
	out := &Conditions{}
	for _, c := range s.All() {
		if keep(c) {
			out.Put(c)
		}
	}
	return out
}

// SortedByOrder returns the conditions sorted by ascending order; ties keep insertion order.
func (s *Conditions) SortedByOrder() []*Condition {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Order() < all[j].Order()
	})
	return all
}

// ByType returns the conditions tagged with kind.
func (s *Conditions) ByType(kind string) *Conditions {
	return s.Filter(func(c *Condition) bool { return c.Type() == kind })
}

// RemoveByType deletes every condition tagged with kind and returns how many were removed.
func (s *Conditions) RemoveByType(kind string) int {
	removed := 0
	for _, c := range s.ByType(kind).All() {
		if _, ok := s.Remove(c.Name()); ok {
			removed++
		}
	}
	return removed
}

// MarshalJSON encodes the set as an ordered list.
func (s *Conditions) MarshalJSON() ([]byte, error) {
	all := s.All()
	if all == nil {
		all = []*Condition{}
	}
	return json.Marshal(all)
}

// UnmarshalJSON decodes an ordered list of conditions.
func (s *Conditions) UnmarshalJSON(data []byte) error {
	var list []*Condition
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = Conditions{}
	for _, c := range list {
		s.Put(c)
	}
	return nil
}
