package matching

import "github.com/rickgao/tradesim/internal/model"

// OrderSet holds the ALIVE orders of one symbol in insertion order.
// It is owned by a single actor and is not safe for concurrent use.
type OrderSet struct {
	orders []*model.Order
	index  map[string]*model.Order
}

// NewOrderSet creates an empty set.
func NewOrderSet() *OrderSet {
	return &OrderSet{index: make(map[string]*model.Order)}
}

// Add appends an order. It returns false if the id is already present.
func (s *OrderSet) Add(o *model.Order) bool {
	if _, ok := s.index[o.OrderID]; ok {
		return false
	}
	s.orders = append(s.orders, o)
	s.index[o.OrderID] = o
	return true
}

// Get looks an order up by id.
func (s *OrderSet) Get(id string) (*model.Order, bool) {
	o, ok := s.index[id]
	return o, ok
}

// Remove deletes an order, keeping the order of the rest.
func (s *OrderSet) Remove(id string) (*model.Order, bool) {
	o, ok := s.index[id]
	if !ok {
		return nil, false
	}
	delete(s.index, id)
	for i, cur := range s.orders {
		if cur == o {
			s.orders = append(s.orders[:i], s.orders[i+1:]...)
			break
		}
	}
	return o, true
}

// Alive returns the orders in insertion order. The slice is a copy.
func (s *OrderSet) Alive() []*model.Order {
	out := make([]*model.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Len returns the number of orders.
func (s *OrderSet) Len() int { return len(s.orders) }
