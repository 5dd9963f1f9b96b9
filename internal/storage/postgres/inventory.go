package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmaslennikov/bms/internal/domain"
)

// StockAdapter — адаптер счётной ёмкости поверх таблицы inventory_stock.
// Обслуживает перелёты, билеты на экскурсии и сопутствующие товары: для этих
// видов ёмкость — одно число на продукт. Резерв — условное обновление с
// проверкой остатка в самом запросе, гонки разруливает база.
type StockAdapter struct {
	db   *sql.DB
	kind domain.ProductKind
}

// NewFlightSeats создаёт адаптер посадочных мест.
func NewFlightSeats(store *Store) *StockAdapter {
	return &StockAdapter{db: store.DB(), kind: domain.ProductKindFlight}
}

// NewTourTicketStock создаёт адаптер билетов на экскурсии.
func NewTourTicketStock(store *Store) *StockAdapter {
	return &StockAdapter{db: store.DB(), kind: domain.ProductKindTourTicket}
}

// NewTravelItemStock создаёт адаптер сопутствующих товаров.
func NewTravelItemStock(store *Store) *StockAdapter {
	return &StockAdapter{db: store.DB(), kind: domain.ProductKindTravelItem}
}

// Kind возвращает обслуживаемый вид продукта.
func (a *StockAdapter) Kind() domain.ProductKind { return a.kind }

// Reserve атомарно уменьшает остаток продукта.
func (a *StockAdapter) Reserve(ctx context.Context, item domain.BookingItem) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := a.db.ExecContext(opCtx, `
		UPDATE inventory_stock
		SET reserved = reserved + $3
		WHERE kind = $1
		  AND product_ref = $2
		  AND capacity - reserved >= $3
	`, string(a.kind), item.ProductRef, item.Quantity)
	if err != nil {
		return fmt.Errorf("reserve %s stock: %w", a.kind, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s x%d", domain.ErrInventoryUnavailable,
			a.kind, item.ProductRef, item.Quantity)
	}

	return nil
}

// Release возвращает остаток; занятость не уходит ниже нуля.
func (a *StockAdapter) Release(ctx context.Context, item domain.BookingItem) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := a.db.ExecContext(opCtx, `
		UPDATE inventory_stock
		SET reserved = GREATEST(reserved - $3, 0)
		WHERE kind = $1
		  AND product_ref = $2
	`, string(a.kind), item.ProductRef, item.Quantity); err != nil {
		return fmt.Errorf("release %s stock: %w", a.kind, err)
	}

	return nil
}

// SetCapacity задаёт ёмкость продукта; используется при заведении каталога.
func (a *StockAdapter) SetCapacity(ctx context.Context, productRef string, capacity int32) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := a.db.ExecContext(opCtx, `
		INSERT INTO inventory_stock (kind, product_ref, capacity, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (kind, product_ref) DO UPDATE
		SET capacity = EXCLUDED.capacity
	`, string(a.kind), productRef, capacity); err != nil {
		return fmt.Errorf("set %s capacity: %w", a.kind, err)
	}

	return nil
}

// RoomAdapter — адаптер размещения поверх таблиц room_inventory и room_nights.
// Занятость ведётся по парам (номер, ночь); резерв всего периода выполняется
// в одной транзакции: либо заняты все ночи, либо ни одна.
type RoomAdapter struct {
	db *sql.DB
}

// NewRoomAdapter создаёт адаптер размещения.
func NewRoomAdapter(store *Store) *RoomAdapter {
	return &RoomAdapter{db: store.DB()}
}

// Kind возвращает обслуживаемый вид продукта.
func (a *RoomAdapter) Kind() domain.ProductKind { return domain.ProductKindAccommodation }

// Reserve занимает номер на все ночи периода [CheckIn, CheckOut).
func (a *RoomAdapter) Reserve(ctx context.Context, item domain.BookingItem) (err error) {
	if item.Stay == nil {
		return fmt.Errorf("%w: accommodation item %s has no stay range",
			domain.ErrInventoryUnavailable, item.ID)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := a.db.BeginTx(opCtx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int32
	err = tx.QueryRowContext(opCtx, `
		SELECT capacity FROM room_inventory WHERE room_ref = $1
	`, item.RoomRef).Scan(&capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown room %s", domain.ErrInventoryUnavailable, item.RoomRef)
		}
		return fmt.Errorf("load room capacity: %w", err)
	}

	for stay := item.Stay.CheckIn; stay.Before(item.Stay.CheckOut); stay = stay.AddDate(0, 0, 1) {
		night := stay.UTC().Format("2006-01-02")

		var res sql.Result
		res, err = tx.ExecContext(opCtx, `
			INSERT INTO room_nights (room_ref, night, booked)
			VALUES ($1, $2, $3)
			ON CONFLICT (room_ref, night) DO UPDATE
			SET booked = room_nights.booked + EXCLUDED.booked
			WHERE room_nights.booked + EXCLUDED.booked <= $4
		`, item.RoomRef, night, item.Quantity, capacity)
		if err != nil {
			return fmt.Errorf("reserve room night: %w", err)
		}

		var affected int64
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 || item.Quantity > capacity {
			err = fmt.Errorf("%w: room %s is full on %s",
				domain.ErrInventoryUnavailable, item.RoomRef, night)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit room reservation: %w", err)
	}

	return nil
}

// Release освобождает номер по всем ночам периода.
func (a *RoomAdapter) Release(ctx context.Context, item domain.BookingItem) (err error) {
	if item.Stay == nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := a.db.BeginTx(opCtx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for stay := item.Stay.CheckIn; stay.Before(item.Stay.CheckOut); stay = stay.AddDate(0, 0, 1) {
		night := stay.UTC().Format("2006-01-02")
		if _, err = tx.ExecContext(opCtx, `
			UPDATE room_nights
			SET booked = GREATEST(booked - $3, 0)
			WHERE room_ref = $1
			  AND night = $2
		`, item.RoomRef, night, item.Quantity); err != nil {
			return fmt.Errorf("release room night: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit room release: %w", err)
	}

	return nil
}

// SetCapacity задаёт ёмкость номера; используется при заведении каталога.
func (a *RoomAdapter) SetCapacity(ctx context.Context, roomRef string, capacity int32) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := a.db.ExecContext(opCtx, `
		INSERT INTO room_inventory (room_ref, capacity)
		VALUES ($1, $2)
		ON CONFLICT (room_ref) DO UPDATE
		SET capacity = EXCLUDED.capacity
	`, roomRef, capacity); err != nil {
		return fmt.Errorf("set room capacity: %w", err)
	}

	return nil
}

var (
	_ domain.InventoryAdapter = (*StockAdapter)(nil)
	_ domain.InventoryAdapter = (*RoomAdapter)(nil)
)
