package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/models"

	"github.com/google/uuid"
)

const reservationColumns = `id, name, apartment_number, title, description,
	start_time, end_time, created_at, cancellation_code, user_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                     models.Reservation
		start, end, createdAt string
		userID                sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.ApartmentNumber, &r.Title, &r.Description,
		&start, &end, &createdAt, &r.CancellationCode, &userID); err != nil {
		return nil, err
	}

	var err error
	if r.StartTime, err = db.parseTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = db.parseTime(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = db.parseTime(createdAt); err != nil {
		return nil, err
	}
	r.UserID = userID.String
	return &r, nil
}

func (db *DB) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var list []*models.Reservation
	for rows.Next() {
		r, err := db.scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return list, nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := db.scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return r, nil
}

// Insert stores r after checking no other reservation overlaps [start, end).
func (db *DB) Insert(ctx context.Context, r *models.Reservation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = db.clock.Now().In(db.loc)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := checkOverlap(ctx, tx, r.StartTime, r.EndTime, ""); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.ApartmentNumber, r.Title, r.Description,
		formatTime(r.StartTime), formatTime(r.EndTime), formatTime(r.CreatedAt),
		r.CancellationCode, nullString(r.UserID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w: %w", domain.ErrStoreUnavailable, err)
	}
	db.logger.Debug().Str("id", r.ID).Time("start", r.StartTime).Msg("Reservation inserted")
	return nil
}

// Update rewrites the mutable fields of an existing reservation.
func (db *DB) Update(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, r.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup reservation %s: %w: %w", r.ID, domain.ErrStoreUnavailable, err)
	}

	if err := checkOverlap(ctx, tx, r.StartTime, r.EndTime, r.ID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE reservations
		SET name = ?, apartment_number = ?, title = ?, description = ?, start_time = ?, end_time = ?
		WHERE id = ?`,
		r.Name, r.ApartmentNumber, r.Title, r.Description,
		formatTime(r.StartTime), formatTime(r.EndTime), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func checkOverlap(ctx context.Context, tx *sql.Tx, start, end time.Time, excludeID string) error {
	var conflicting string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM reservations WHERE start_time < ? AND end_time > ? AND id <> ? LIMIT 1`,
		formatTime(end), formatTime(start), excludeID,
	).Scan(&conflicting)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check overlap: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: overlaps %s", domain.ErrSlotTaken, conflicting)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.ReservationStore = (*DB)(nil)
