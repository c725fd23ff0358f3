package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

func scanPayment(scanner interface{ Scan(dest ...any) error }) (*domain.Payment, error) {
	var p domain.Payment
	var paidAt string

	err := scanner.Scan(&p.ID, &p.MemberID, &p.Amount, &paidAt, &p.Method)
	if err != nil {
		return nil, err
	}

	p.PaidAt, err = parseTime(paidAt)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// CreatePayment inserts a new payment row.
func (t *Tx) CreatePayment(ctx context.Context, p *domain.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (id, member_id, amount, paid_at, method)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID,
		p.MemberID,
		p.Amount,
		formatTime(p.PaidAt),
		p.Method,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetPayment fetches a payment by id. Returns store.ErrNotFound if absent.
func (t *Tx) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, member_id, amount, paid_at, method FROM payments WHERE id = ?`, id)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

// ListPaymentsByMember returns a member's payments, newest first.
func (t *Tx) ListPaymentsByMember(ctx context.Context, memberID string) ([]*domain.Payment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, member_id, amount, paid_at, method
		FROM payments
		WHERE member_id = ?
		ORDER BY paid_at DESC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
