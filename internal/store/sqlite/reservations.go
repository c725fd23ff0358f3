package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

const reservationColumns = `id, member_id, book_isbn, branch_id, reserved_at,
	expires_at, status`

func scanReservation(scanner interface{ Scan(dest ...any) error }) (*domain.Reservation, error) {
	var r domain.Reservation

	var (
		reservedAt string
		expiresAt  string
	)

	err := scanner.Scan(
		&r.ID,
		&r.MemberID,
		&r.ISBN,
		&r.BranchID,
		&reservedAt,
		&expiresAt,
		&r.Status,
	)
	if err != nil {
		return nil, err
	}

	r.ReservedAt, err = parseTime(reservedAt)
	if err != nil {
		return nil, err
	}
	r.ExpiresAt, err = parseTime(expiresAt)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// CreateReservation inserts a new reservation row.
func (t *Tx) CreateReservation(ctx context.Context, r *domain.Reservation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (
			id, member_id, book_isbn, branch_id, reserved_at, expires_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.MemberID,
		r.ISBN,
		r.BranchID,
		formatTime(r.ReservedAt),
		formatTime(r.ExpiresAt),
		r.Status,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetReservation fetches a reservation by id. Returns store.ErrNotFound if absent.
func (t *Tx) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)

	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

// ListReservationsByMember returns a member's reservations, newest first.
func (t *Tx) ListReservationsByMember(ctx context.Context, memberID string) ([]*domain.Reservation, error) {
	return t.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE member_id = ?
		ORDER BY reserved_at DESC`,
		memberID)
}

// ListActiveReservations returns the pending and ready holds for a title
// at a branch in queue order: first reserved, first served.
func (t *Tx) ListActiveReservations(ctx context.Context, isbn, branchID string) ([]*domain.Reservation, error) {
	return t.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_isbn = ? AND branch_id = ? AND status IN (?, ?)
		ORDER BY reserved_at`,
		isbn, branchID,
		domain.ReservationStatusPending, domain.ReservationStatusReady)
}

func (t *Tx) queryReservations(ctx context.Context, query string, args ...any) ([]*domain.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []*domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// UpdateReservation performs a full row update on an existing reservation.
// Returns store.ErrNotFound if the reservation does not exist.
func (t *Tx) UpdateReservation(ctx context.Context, r *domain.Reservation) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE reservations SET
			member_id = ?,
			book_isbn = ?,
			branch_id = ?,
			reserved_at = ?,
			expires_at = ?,
			status = ?
		WHERE id = ?`,
		r.MemberID,
		r.ISBN,
		r.BranchID,
		formatTime(r.ReservedAt),
		formatTime(r.ExpiresAt),
		r.Status,
		r.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ExpireReservations flips every pending or ready hold whose expiry has
// passed to expired and reports how many rows changed. Running it twice
// over the same instant changes nothing the second time.
func (t *Tx) ExpireReservations(ctx context.Context, asOf time.Time) (int, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE reservations SET status = ?
		WHERE status IN (?, ?) AND expires_at < ?`,
		domain.ReservationStatusExpired,
		domain.ReservationStatusPending, domain.ReservationStatusReady,
		formatTime(asOf))
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	return int(n), err
}
