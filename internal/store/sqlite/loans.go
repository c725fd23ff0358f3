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

const loanColumns = `id, member_id, book_isbn, branch_id, borrowed_at, due_at,
	returned_at, late_fee`

func scanLoan(scanner interface{ Scan(dest ...any) error }) (*domain.Loan, error) {
	var l domain.Loan

	var (
		borrowedAt string
		dueAt      string
		returnedAt sql.NullString
	)

	err := scanner.Scan(
		&l.ID,
		&l.MemberID,
		&l.ISBN,
		&l.BranchID,
		&borrowedAt,
		&dueAt,
		&returnedAt,
		&l.LateFee,
	)
	if err != nil {
		return nil, err
	}

	l.BorrowedAt, err = parseTime(borrowedAt)
	if err != nil {
		return nil, err
	}
	l.DueAt, err = parseTime(dueAt)
	if err != nil {
		return nil, err
	}
	l.ReturnedAt, err = parseNullableTime(returnedAt)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// CreateLoan inserts a new loan row.
func (t *Tx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO loans (
			id, member_id, book_isbn, branch_id, borrowed_at, due_at,
			returned_at, late_fee
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.MemberID,
		l.ISBN,
		l.BranchID,
		formatTime(l.BorrowedAt),
		formatTime(l.DueAt),
		nullTimeString(l.ReturnedAt),
		l.LateFee,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetLoan fetches a loan by id. Returns store.ErrNotFound if absent.
func (t *Tx) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)

	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return l, err
}

// ListLoansByMember returns every loan a member has taken, newest first.
func (t *Tx) ListLoansByMember(ctx context.Context, memberID string) ([]*domain.Loan, error) {
	return t.queryLoans(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = ? ORDER BY borrowed_at DESC`,
		memberID)
}

// ListOpenLoansByMember returns a member's unreturned loans, oldest first.
func (t *Tx) ListOpenLoansByMember(ctx context.Context, memberID string) ([]*domain.Loan, error) {
	return t.queryLoans(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE member_id = ? AND returned_at IS NULL
		ORDER BY borrowed_at`,
		memberID)
}

// ListOpenLoansByBookAndBranch returns the unreturned loans of one title at
// one branch, oldest first.
func (t *Tx) ListOpenLoansByBookAndBranch(ctx context.Context, isbn, branchID string) ([]*domain.Loan, error) {
	return t.queryLoans(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE book_isbn = ? AND branch_id = ? AND returned_at IS NULL
		ORDER BY borrowed_at`,
		isbn, branchID)
}

func (t *Tx) queryLoans(ctx context.Context, query string, args ...any) ([]*domain.Loan, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// UpdateLoan performs a full row update on an existing loan.
// Returns store.ErrNotFound if the loan does not exist.
func (t *Tx) UpdateLoan(ctx context.Context, l *domain.Loan) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE loans SET
			member_id = ?,
			book_isbn = ?,
			branch_id = ?,
			borrowed_at = ?,
			due_at = ?,
			returned_at = ?,
			late_fee = ?
		WHERE id = ?`,
		l.MemberID,
		l.ISBN,
		l.BranchID,
		formatTime(l.BorrowedAt),
		formatTime(l.DueAt),
		nullTimeString(l.ReturnedAt),
		l.LateFee,
		l.ID,
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

// ListOverdueLoans returns every open loan past due as of the instant,
// joined with member and book display fields, earliest due first.
func (t *Tx) ListOverdueLoans(ctx context.Context, asOf time.Time) ([]*store.OverdueLoan, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT l.id, l.member_id, l.book_isbn, l.branch_id, l.borrowed_at,
			l.due_at, l.returned_at, l.late_fee,
			m.full_name, m.email, b.title
		FROM loans l
		JOIN members m ON m.id = l.member_id
		JOIN books b ON b.isbn = l.book_isbn
		WHERE l.returned_at IS NULL AND l.due_at < ?
		ORDER BY l.due_at`,
		formatTime(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []*store.OverdueLoan
	for rows.Next() {
		var (
			l          domain.Loan
			borrowedAt string
			dueAt      string
			returnedAt sql.NullString
			row        store.OverdueLoan
		)
		err := rows.Scan(
			&l.ID, &l.MemberID, &l.ISBN, &l.BranchID,
			&borrowedAt, &dueAt, &returnedAt, &l.LateFee,
			&row.MemberName, &row.MemberEmail, &row.BookTitle,
		)
		if err != nil {
			return nil, err
		}
		l.BorrowedAt, err = parseTime(borrowedAt)
		if err != nil {
			return nil, err
		}
		l.DueAt, err = parseTime(dueAt)
		if err != nil {
			return nil, err
		}
		l.ReturnedAt, err = parseNullableTime(returnedAt)
		if err != nil {
			return nil, err
		}
		row.Loan = &l
		overdue = append(overdue, &row)
	}
	return overdue, rows.Err()
}

// MostBorrowed ranks titles by how many loans they have accrued, most
// borrowed first. A nil since counts loans from the beginning of time.
func (t *Tx) MostBorrowed(ctx context.Context, limit int, since *time.Time) ([]*store.BookBorrowCount, error) {
	query := `
		SELECT b.isbn, b.title, COUNT(l.id) AS borrows
		FROM loans l
		JOIN books b ON b.isbn = l.book_isbn`
	var args []any
	if since != nil {
		query += ` WHERE l.borrowed_at >= ?`
		args = append(args, formatTime(*since))
	}
	query += `
		GROUP BY b.isbn, b.title
		ORDER BY borrows DESC, b.title
		LIMIT ?`
	args = append(args, limit)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []*store.BookBorrowCount
	for rows.Next() {
		var c store.BookBorrowCount
		if err := rows.Scan(&c.ISBN, &c.Title, &c.BorrowCount); err != nil {
			return nil, err
		}
		counts = append(counts, &c)
	}
	return counts, rows.Err()
}
