package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vmaslennikov/bms/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const bookingColumns = `
	id, idempotency_key, buyer_id,
	contact_name, contact_email, contact_phone, contact_address,
	status, currency, total_minor,
	payment_external_id, payment_amount_minor, payment_method, payment_paid_at, payment_verified_at,
	confirm_deadline, version, created_at, updated_at`

type bookingRepository struct {
	db *sql.DB
}

// NewBookingRepository создаёт PostgreSQL-реализацию BookingRepository.
func NewBookingRepository(store *Store) domain.BookingRepository {
	return &bookingRepository{db: store.DB()}
}

func (r *bookingRepository) Create(booking domain.Booking) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (
			id, idempotency_key, buyer_id,
			contact_name, contact_email, contact_phone, contact_address,
			status, currency, total_minor,
			confirm_deadline, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		booking.ID, booking.IdempotencyKey, booking.BuyerID,
		booking.Contact.Name, booking.Contact.Email, booking.Contact.Phone, booking.Contact.Address,
		string(booking.Status), booking.Currency, booking.TotalMinor,
		nullableTime(booking.ConfirmDeadline), booking.Version, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	for _, item := range booking.Items {
		var checkIn, checkOut sql.NullTime
		if item.Stay != nil {
			checkIn = sql.NullTime{Time: item.Stay.CheckIn, Valid: true}
			checkOut = sql.NullTime{Time: item.Stay.CheckOut, Valid: true}
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO booking_items (
				id, booking_id, kind, product_ref, room_ref, quantity, check_in, check_out, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			item.ID, booking.ID, string(item.Kind), item.ProductRef, item.RoomRef,
			item.Quantity, checkIn, checkOut, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert booking item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create booking: %w", err)
	}

	return nil
}

func (r *bookingRepository) Get(id string) (domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "id", id)
}

func (r *bookingRepository) GetByIdempotencyKey(key string) (domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "idempotency_key", key)
}

func (r *bookingRepository) getByColumn(ctx context.Context, column, value string) (domain.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE `+column+` = $1`, value)

	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, fmt.Errorf("select booking by %s: %w", column, err)
	}

	items, err := r.loadItems(ctx, booking.ID)
	if err != nil {
		return domain.Booking{}, err
	}
	booking.Items = items

	return booking, nil
}

func (r *bookingRepository) ListByBuyer(buyerID string, limit, offset int) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE buyer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, buyerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by buyer: %w", err)
	}
	defer rows.Close()

	return r.collectBookings(ctx, rows)
}

func (r *bookingRepository) ListByStatus(status domain.BookingStatus, limit int) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings by status: %w", err)
	}
	defer rows.Close()

	return r.collectBookings(ctx, rows)
}

func (r *bookingRepository) UpdateStatus(id string, from, to domain.BookingStatus) (domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Условное обновление на паре (id, статус): проигравший гонку получает
	// ErrInvalidState, повторная сторона не перезаписывает чужой переход.
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE id = $1
		  AND status = $2
	`, id, string(from), string(to), time.Now().UTC())
	if err != nil {
		return domain.Booking{}, fmt.Errorf("update booking status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.bookingExists(ctx, id)
		if err != nil {
			return domain.Booking{}, err
		}
		if !exists {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, domain.ErrInvalidState
	}

	return r.getByColumn(ctx, "id", id)
}

func (r *bookingRepository) Complete(id string, payment domain.PaymentRecord, deadline time.Time) (domain.Booking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Переход pending → completed, платёжная запись и дедлайн автоподтверждения
	// пишутся одним условным обновлением.
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2,
		    payment_external_id = $3,
		    payment_amount_minor = $4,
		    payment_method = $5,
		    payment_paid_at = $6,
		    payment_verified_at = $7,
		    confirm_deadline = $8,
		    version = version + 1,
		    updated_at = $9
		WHERE id = $1
		  AND status = $10
	`,
		id, string(domain.BookingStatusCompleted),
		payment.ExternalID, payment.AmountMinor, payment.Method,
		payment.PaidAt, payment.VerifiedAt,
		deadline, time.Now().UTC(),
		string(domain.BookingStatusPending),
	)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("complete booking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Booking{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.bookingExists(ctx, id)
		if err != nil {
			return domain.Booking{}, err
		}
		if !exists {
			return domain.Booking{}, domain.ErrBookingNotFound
		}
		return domain.Booking{}, domain.ErrInvalidState
	}

	return r.getByColumn(ctx, "id", id)
}

func (r *bookingRepository) collectBookings(ctx context.Context, rows *sql.Rows) ([]domain.Booking, error) {
	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking row: %w", err)
		}

		items, err := r.loadItems(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		booking.Items = items
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}

	return bookings, nil
}

func (r *bookingRepository) loadItems(ctx context.Context, bookingID string) ([]domain.BookingItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, product_ref, room_ref, quantity, check_in, check_out, created_at
		FROM booking_items
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.BookingItem, 0)
	for rows.Next() {
		var (
			item     domain.BookingItem
			kind     string
			checkIn  sql.NullTime
			checkOut sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &kind, &item.ProductRef, &item.RoomRef,
			&item.Quantity, &checkIn, &checkOut, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan booking item: %w", err)
		}
		item.Kind = domain.ProductKind(kind)
		if checkIn.Valid && checkOut.Valid {
			item.Stay = &domain.StayRange{CheckIn: checkIn.Time, CheckOut: checkOut.Time}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking items: %w", err)
	}

	return items, nil
}

func (r *bookingRepository) bookingExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM bookings WHERE id = $1`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check booking exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (domain.Booking, error) {
	var (
		booking         domain.Booking
		status          string
		payExternalID   sql.NullString
		payAmountMinor  sql.NullInt64
		payMethod       sql.NullString
		payPaidAt       sql.NullTime
		payVerifiedAt   sql.NullTime
		confirmDeadline sql.NullTime
	)

	if err := row.Scan(
		&booking.ID, &booking.IdempotencyKey, &booking.BuyerID,
		&booking.Contact.Name, &booking.Contact.Email, &booking.Contact.Phone, &booking.Contact.Address,
		&status, &booking.Currency, &booking.TotalMinor,
		&payExternalID, &payAmountMinor, &payMethod, &payPaidAt, &payVerifiedAt,
		&confirmDeadline, &booking.Version, &booking.CreatedAt, &booking.UpdatedAt,
	); err != nil {
		return domain.Booking{}, err
	}

	booking.Status = domain.BookingStatus(status)
	if payExternalID.Valid {
		booking.Payment = &domain.PaymentRecord{
			ExternalID:  payExternalID.String,
			AmountMinor: payAmountMinor.Int64,
			Method:      payMethod.String,
			PaidAt:      payPaidAt.Time,
			VerifiedAt:  payVerifiedAt.Time,
		}
	}
	if confirmDeadline.Valid {
		booking.ConfirmDeadline = confirmDeadline.Time
	}

	return booking, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.BookingRepository = (*bookingRepository)(nil)
