package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	opTimeout          = 5 * time.Second
	reservationColumns = `id, name, apartment_number, title, description,
		start_time, end_time, created_at, cancellation_code, user_id`
	// tableLock makes the overlap check and the write atomic across sessions.
	tableLock = `LOCK TABLE reservations IN SHARE ROW EXCLUSIVE MODE`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row rowScanner) (*models.Reservation, error) {
	var (
		r      models.Reservation
		userID sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.ApartmentNumber, &r.Title, &r.Description,
		&r.StartTime, &r.EndTime, &r.CreatedAt, &r.CancellationCode, &userID); err != nil {
		return nil, err
	}
	r.StartTime = r.StartTime.In(s.loc)
	r.EndTime = r.EndTime.In(s.loc)
	r.CreatedAt = r.CreatedAt.In(s.loc)
	r.UserID = userID.String
	return &r, nil
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+reservationColumns+` FROM reservations ORDER BY start_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var list []*models.Reservation
	for rows.Next() {
		r, err := s.scan(rows)
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

func (s *Store) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	r, err := s.scan(s.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w: %w", id, domain.ErrStoreUnavailable, err)
	}
	return r, nil
}

func (s *Store) Insert(ctx context.Context, r *models.Reservation) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().In(s.loc)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tableLock); err != nil {
		return fmt.Errorf("lock reservations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if err = checkOverlap(ctx, tx, r.StartTime, r.EndTime, ""); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.Name, r.ApartmentNumber, r.Title, r.Description,
		r.StartTime, r.EndTime, r.CreatedAt, r.CancellationCode, nullString(r.UserID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate id %s", domain.ErrSlotTaken, r.ID)
		}
		return fmt.Errorf("insert reservation: %w: %w", domain.ErrStoreUnavailable, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, r *models.Reservation) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tableLock); err != nil {
		return fmt.Errorf("lock reservations: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if err = checkOverlap(ctx, tx, r.StartTime, r.EndTime, r.ID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE reservations
		SET name = $1, apartment_number = $2, title = $3, description = $4, start_time = $5, end_time = $6
		WHERE id = $7`,
		r.Name, r.ApartmentNumber, r.Title, r.Description, r.StartTime, r.EndTime, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w: %w", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n == 0 {
		err = domain.ErrNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
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
		`SELECT id FROM reservations WHERE start_time < $1 AND end_time > $2 AND id <> $3 LIMIT 1`,
		end, start, excludeID,
	).Scan(&conflicting)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check overlap: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: overlaps %s", domain.ErrSlotTaken, conflicting)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.ReservationStore = (*Store)(nil)
