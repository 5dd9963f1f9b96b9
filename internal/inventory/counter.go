package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmaslennikov/bms/internal/domain"
)

// CounterAdapter — in-memory адаптер для продуктов со скалярной ёмкостью:
// места на перелёте, остатки билетов и товаров. Декремент выполняется только
// при достаточном остатке, под общим замком адаптера.
type CounterAdapter struct {
	kind     domain.ProductKind
	mu       sync.Mutex
	capacity map[string]int32
}

// NewFlightSeats — адаптер мест на перелётах.
func NewFlightSeats() *CounterAdapter {
	return newCounterAdapter(domain.ProductKindFlight)
}

// NewTourTicketStock — адаптер остатков экскурсионных билетов.
func NewTourTicketStock() *CounterAdapter {
	return newCounterAdapter(domain.ProductKindTourTicket)
}

// NewTravelItemStock — адаптер остатков товаров для путешествий.
func NewTravelItemStock() *CounterAdapter {
	return newCounterAdapter(domain.ProductKindTravelItem)
}

func newCounterAdapter(kind domain.ProductKind) *CounterAdapter {
	return &CounterAdapter{kind: kind, capacity: make(map[string]int32)}
}

// Kind возвращает обслуживаемый вид продукта.
func (a *CounterAdapter) Kind() domain.ProductKind { return a.kind }

// SetCapacity задаёт текущий остаток продукта.
func (a *CounterAdapter) SetCapacity(productRef string, capacity int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capacity[productRef] = capacity
}

// Capacity возвращает текущий остаток продукта.
func (a *CounterAdapter) Capacity(productRef string) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capacity[productRef]
}

// Reserve атомарно уменьшает остаток при его достаточности.
func (a *CounterAdapter) Reserve(_ context.Context, item domain.BookingItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	remaining, ok := a.capacity[item.ProductRef]
	if !ok || remaining < item.Quantity {
		return fmt.Errorf("%w: %s %s has %d of %d", domain.ErrInventoryUnavailable,
			a.kind, item.ProductRef, remaining, item.Quantity)
	}
	a.capacity[item.ProductRef] = remaining - item.Quantity
	return nil
}

// Release возвращает остаток.
func (a *CounterAdapter) Release(_ context.Context, item domain.BookingItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.capacity[item.ProductRef] += item.Quantity
	return nil
}
