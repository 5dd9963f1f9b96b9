package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmaslennikov/bms/internal/domain"
)

// RoomCalendar — in-memory адаптер размещения. Ёмкость ведётся по парам
// (номер, ночь): бронь занимает Quantity единиц на каждую ночь периода
// [CheckIn, CheckOut). Резерв по всем ночам атомарен: либо заняты все ночи,
// либо ни одна.
type RoomCalendar struct {
	mu       sync.Mutex
	capacity map[string]int32
	booked   map[string]map[int64]int32
}

// NewRoomCalendar создаёт пустой календарь.
func NewRoomCalendar() *RoomCalendar {
	return &RoomCalendar{
		capacity: make(map[string]int32),
		booked:   make(map[string]map[int64]int32),
	}
}

// Kind возвращает обслуживаемый вид продукта.
func (a *RoomCalendar) Kind() domain.ProductKind { return domain.ProductKindAccommodation }

// SetCapacity задаёт число одновременно доступных единиц номера.
func (a *RoomCalendar) SetCapacity(roomRef string, capacity int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capacity[roomRef] = capacity
}

// Booked возвращает занятость номера на конкретную ночь.
func (a *RoomCalendar) Booked(roomRef string, night time.Time) int32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.booked[roomRef][nightKey(night)]
}

// Reserve занимает номер на все ночи периода, если хватает ёмкости на каждую.
func (a *RoomCalendar) Reserve(_ context.Context, item domain.BookingItem) error {
	if item.Stay == nil {
		return fmt.Errorf("%w: accommodation item %s has no stay range",
			domain.ErrInventoryUnavailable, item.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	capacity, ok := a.capacity[item.RoomRef]
	if !ok {
		return fmt.Errorf("%w: unknown room %s", domain.ErrInventoryUnavailable, item.RoomRef)
	}

	nights := stayNights(*item.Stay)
	for _, night := range nights {
		if a.booked[item.RoomRef][night]+item.Quantity > capacity {
			return fmt.Errorf("%w: room %s is full on %s", domain.ErrInventoryUnavailable,
				item.RoomRef, time.Unix(night, 0).UTC().Format("2006-01-02"))
		}
	}

	// Все проверки прошли под одним замком — применяем без повторной проверки.
	calendar := a.booked[item.RoomRef]
	if calendar == nil {
		calendar = make(map[int64]int32)
		a.booked[item.RoomRef] = calendar
	}
	for _, night := range nights {
		calendar[night] += item.Quantity
	}
	return nil
}

// Release освобождает номер по всем ночам периода.
func (a *RoomCalendar) Release(_ context.Context, item domain.BookingItem) error {
	if item.Stay == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	calendar := a.booked[item.RoomRef]
	if calendar == nil {
		return nil
	}
	for _, night := range stayNights(*item.Stay) {
		if calendar[night] >= item.Quantity {
			calendar[night] -= item.Quantity
		} else {
			calendar[night] = 0
		}
	}
	return nil
}

func stayNights(stay domain.StayRange) []int64 {
	var nights []int64
	for d := stay.CheckIn; d.Before(stay.CheckOut); d = d.AddDate(0, 0, 1) {
		nights = append(nights, nightKey(d))
	}
	return nights
}

func nightKey(night time.Time) int64 {
	y, m, d := night.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}
