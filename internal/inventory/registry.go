// Package inventory содержит реестр адаптеров инвентаря и их in-memory
// реализации. Адаптер выбирается по виду продукта позиции; сам оркестратор
// ничего не знает о представлении ёмкости.
package inventory

import (
	"fmt"

	"github.com/vmaslennikov/bms/internal/domain"
)

// Registry сопоставляет вид продукта с его адаптером инвентаря.
type Registry struct {
	adapters map[domain.ProductKind]domain.InventoryAdapter
}

// NewRegistry собирает реестр из переданных адаптеров.
// Повторный адаптер на один и тот же вид — ошибка конфигурации.
func NewRegistry(adapters ...domain.InventoryAdapter) (*Registry, error) {
	r := &Registry{adapters: make(map[domain.ProductKind]domain.InventoryAdapter, len(adapters))}
	for _, a := range adapters {
		if _, exists := r.adapters[a.Kind()]; exists {
			return nil, fmt.Errorf("duplicate inventory adapter for kind %q", a.Kind())
		}
		r.adapters[a.Kind()] = a
	}
	return r, nil
}

// Adapter возвращает адаптер для вида продукта.
func (r *Registry) Adapter(kind domain.ProductKind) (domain.InventoryAdapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no inventory adapter registered for kind %q", kind)
	}
	return a, nil
}
