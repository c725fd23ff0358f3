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

// memberColumns is the ordered list of columns selected in member queries.
// Must match the scan order in scanMember.
const memberColumns = `id, type, full_name, email, phone, membership_ends_at,
	total_borrowed, student_id, employee_id, department, created_at, updated_at`

// scanMember scans a sql.Row (or sql.Rows via its Scan method) into a domain.Member.
func scanMember(scanner interface{ Scan(dest ...any) error }) (*domain.Member, error) {
	var m domain.Member

	var (
		phone      sql.NullString
		endsAt     sql.NullString
		studentID  sql.NullString
		employeeID sql.NullString
		department sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&m.ID,
		&m.Type,
		&m.FullName,
		&m.Email,
		&phone,
		&endsAt,
		&m.TotalBorrowed,
		&studentID,
		&employeeID,
		&department,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Phone = phone.String
	m.StudentID = studentID.String
	m.EmployeeID = employeeID.String
	m.Department = department.String

	m.MembershipEndsAt, err = parseNullableTime(endsAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	m.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// CreateMember inserts a new member.
// Returns store.ErrAlreadyExists if the id or email is already taken.
func (t *Tx) CreateMember(ctx context.Context, m *domain.Member) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO members (
			id, type, full_name, email, phone, membership_ends_at,
			total_borrowed, student_id, employee_id, department, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Type,
		m.FullName,
		m.Email,
		nullString(m.Phone),
		nullTimeString(m.MembershipEndsAt),
		m.TotalBorrowed,
		nullString(m.StudentID),
		nullString(m.EmployeeID),
		nullString(m.Department),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetMember fetches a member by id. Returns store.ErrNotFound if absent.
func (t *Tx) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)

	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// GetMemberByEmail fetches a member by email. Returns store.ErrNotFound if absent.
func (t *Tx) GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = ?`, email)

	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

// ListMembers returns all members ordered by name.
func (t *Tx) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY full_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMember performs a full row update on an existing member.
// Returns store.ErrNotFound if the member does not exist.
func (t *Tx) UpdateMember(ctx context.Context, m *domain.Member) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE members SET
			type = ?,
			full_name = ?,
			email = ?,
			phone = ?,
			membership_ends_at = ?,
			total_borrowed = ?,
			student_id = ?,
			employee_id = ?,
			department = ?,
			updated_at = ?
		WHERE id = ?`,
		m.Type,
		m.FullName,
		m.Email,
		nullString(m.Phone),
		nullTimeString(m.MembershipEndsAt),
		m.TotalBorrowed,
		nullString(m.StudentID),
		nullString(m.EmployeeID),
		nullString(m.Department),
		formatTime(m.UpdatedAt),
		m.ID,
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

// CountOpenLoans returns the number of unreturned loans for a member.
func (t *Tx) CountOpenLoans(ctx context.Context, memberID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE member_id = ? AND returned_at IS NULL`,
		memberID).Scan(&count)
	return count, err
}

// UnpaidFees returns the member's outstanding fee balance: the sum of
// finalized late fees on returned loans minus the sum of payments, never
// below zero.
func (t *Tx) UnpaidFees(ctx context.Context, memberID string) (float64, error) {
	var fees float64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(late_fee), 0)
		FROM loans
		WHERE member_id = ? AND returned_at IS NOT NULL AND late_fee > 0`,
		memberID).Scan(&fees)
	if err != nil {
		return 0, err
	}

	var paid float64
	err = t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE member_id = ?`,
		memberID).Scan(&paid)
	if err != nil {
		return 0, err
	}

	return max(0, fees-paid), nil
}

// HasOverdueLoans reports whether the member has any open loan past due as
// of the given instant.
func (t *Tx) HasOverdueLoans(ctx context.Context, memberID string, asOf time.Time) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM loans
		WHERE member_id = ? AND returned_at IS NULL AND due_at < ?`,
		memberID, formatTime(asOf)).Scan(&count)
	return count > 0, err
}
