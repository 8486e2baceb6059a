package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/pkg/database"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrSlotTaken is returned when a slot already holds a confirmed booking
var ErrSlotTaken = errors.New("slot already confirmed")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const bookingColumns = `id, user_id, date, start_time, end_time, amount, is_peak, status, created_at, updated_at`

type BookingFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Status   entity.BookingStatus
	Limit    int
	Offset   int
}

type BookingRepository interface {
	// CreatePending inserts the row only while no confirmed booking holds the slot
	CreatePending(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Booking, error)
	FindConfirmedBySlots(ctx context.Context, date time.Time, startTimes []string) ([]*entity.Booking, error)
	FindConfirmedByDate(ctx context.Context, date time.Time) ([]*entity.Booking, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	List(ctx context.Context, filter BookingFilter) ([]*entity.BookingWithCustomer, int64, error)

	// ConfirmPending flips pending rows to confirmed; ErrSlotTaken on a unique violation
	ConfirmPending(ctx context.Context, ids []uuid.UUID) (int64, error)
	// DeletePending removes rows still pending; ids that are gone are skipped
	DeletePending(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type bookingRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingRepository(db database.PgxIface, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var booking entity.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.Date,
		&booking.StartTime,
		&booking.EndTime,
		&booking.Amount,
		&booking.IsPeak,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func collectBookings(rows pgx.Rows) ([]*entity.Booking, error) {
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booking rows: %w", err)
	}
	return bookings, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *bookingRepository) CreatePending(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, user_id, date, start_time, end_time, amount, is_peak, status, created_at, updated_at)
		SELECT $1::uuid, $2::uuid, $3::date, $4::text, $5::text, $6::bigint, $7::boolean, 'pending', $8::timestamptz, $8::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM bookings
			WHERE date = $3::date AND start_time = $4::text AND status = 'confirmed'
		)
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.Date,
		booking.StartTime,
		booking.EndTime,
		booking.Amount,
		booking.IsPeak,
		booking.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create pending booking",
			zap.Error(err),
			zap.String("date", booking.Date.Format(time.DateOnly)),
			zap.String("start_time", booking.StartTime),
		)
		return fmt.Errorf("create pending booking %s %s: %w", booking.Date.Format(time.DateOnly), booking.StartTime, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("create pending booking %s %s: %w", booking.Date.Format(time.DateOnly), booking.StartTime, ErrSlotTaken)
	}

	booking.Status = entity.BookingStatusPending
	booking.UpdatedAt = booking.CreatedAt
	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(database.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID", zap.Error(err), zap.String("booking_id", id.String()))
		return nil, fmt.Errorf("find booking by ID %s: %w", id, err)
	}

	return booking, nil
}

func (r *bookingRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ANY($1::uuid[]) ORDER BY date, start_time`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, uuidStrings(ids))
	if err != nil {
		r.log.Error("Failed to find bookings by IDs", zap.Error(err), zap.Int("count", len(ids)))
		return nil, fmt.Errorf("find bookings by IDs: %w", err)
	}

	return collectBookings(rows)
}

func (r *bookingRepository) FindConfirmedBySlots(ctx context.Context, date time.Time, startTimes []string) ([]*entity.Booking, error) {
	if len(startTimes) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE date = $1::date AND start_time = ANY($2::text[]) AND status = 'confirmed'
		ORDER BY start_time
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, date, startTimes)
	if err != nil {
		r.log.Error("Failed to find confirmed bookings by slots",
			zap.Error(err),
			zap.String("date", date.Format(time.DateOnly)),
			zap.Strings("start_times", startTimes),
		)
		return nil, fmt.Errorf("find confirmed bookings on %s: %w", date.Format(time.DateOnly), err)
	}

	return collectBookings(rows)
}

func (r *bookingRepository) FindConfirmedByDate(ctx context.Context, date time.Time) ([]*entity.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE date = $1::date AND status = 'confirmed'
		ORDER BY start_time
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, date)
	if err != nil {
		r.log.Error("Failed to find confirmed bookings by date",
			zap.Error(err),
			zap.String("date", date.Format(time.DateOnly)),
		)
		return nil, fmt.Errorf("find confirmed bookings on %s: %w", date.Format(time.DateOnly), err)
	}

	return collectBookings(rows)
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query, args, err := psql.Select(bookingColumns).
		From("bookings").
		Where(sq.Eq{"user_id": userID.String()}).
		OrderBy("date DESC", "start_time ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user bookings query: %w", err)
	}

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to find bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find bookings by user ID %s: %w", userID, err)
	}

	return collectBookings(rows)
}

func (r *bookingRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = $1`

	var count int64
	if err := database.Conn(ctx, r.db).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by user ID", zap.Error(err), zap.String("user_id", userID.String()))
		return 0, fmt.Errorf("count bookings by user ID %s: %w", userID, err)
	}

	return count, nil
}

func (r *bookingRepository) List(ctx context.Context, filter BookingFilter) ([]*entity.BookingWithCustomer, int64, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"b.status": filter.Status})
	}
	if filter.DateFrom != nil {
		where = append(where, sq.GtOrEq{"b.date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		where = append(where, sq.LtOrEq{"b.date": *filter.DateTo})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("bookings b").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build booking count query: %w", err)
	}

	listQuery, listArgs, err := psql.Select(
		"b.id", "b.user_id", "b.date", "b.start_time", "b.end_time", "b.amount", "b.is_peak",
		"b.status", "b.created_at", "b.updated_at", "u.name", "u.email", "u.phone", "u.membership",
	).
		From("bookings b").
		Join("users u ON u.id = b.user_id").
		Where(where).
		OrderBy("b.date DESC", "b.start_time ASC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build booking list query: %w", err)
	}

	conn := database.Conn(ctx, r.db)

	var total int64
	if err := conn.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		r.log.Error("Failed to count bookings", zap.Error(err))
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	rows, err := conn.Query(ctx, listQuery, listArgs...)
	if err != nil {
		r.log.Error("Failed to list bookings", zap.Error(err))
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*entity.BookingWithCustomer
	for rows.Next() {
		var b entity.BookingWithCustomer
		err := rows.Scan(
			&b.ID,
			&b.UserID,
			&b.Date,
			&b.StartTime,
			&b.EndTime,
			&b.Amount,
			&b.IsPeak,
			&b.Status,
			&b.CreatedAt,
			&b.UpdatedAt,
			&b.CustomerName,
			&b.CustomerEmail,
			&b.CustomerPhone,
			&b.CustomerMembership,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking row: %w", err)
		}
		bookings = append(bookings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate booking rows: %w", err)
	}

	return bookings, total, nil
}

func (r *bookingRepository) ConfirmPending(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE bookings
		SET status = 'confirmed', updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND status = 'pending'
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, uuidStrings(ids))
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.log.Warn("Confirmation hit an already confirmed slot", zap.Int("count", len(ids)))
			return 0, fmt.Errorf("confirm bookings: %w", ErrSlotTaken)
		}
		r.log.Error("Failed to confirm bookings", zap.Error(err), zap.Int("count", len(ids)))
		return 0, fmt.Errorf("confirm bookings: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *bookingRepository) DeletePending(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `DELETE FROM bookings WHERE id = ANY($1::uuid[]) AND status = 'pending'`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, uuidStrings(ids))
	if err != nil {
		r.log.Error("Failed to delete pending bookings", zap.Error(err), zap.Int("count", len(ids)))
		return 0, fmt.Errorf("delete pending bookings: %w", err)
	}

	r.log.Info("Pending bookings deleted",
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", result.RowsAffected()),
	)
	return result.RowsAffected(), nil
}
