// Package store defines the persistence interface for the Stacks server.
//
// Every circulation workflow runs inside exactly one atomic unit: callers
// obtain a Tx through Store.WithTx and thread it through all reads and
// writes the workflow performs. If the callback returns an error the whole
// unit rolls back; nothing is partially committed.
package store

import (
	"context"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
)

// Store is the entry point to persistence.
type Store interface {
	// Close releases the underlying database.
	Close() error

	// WithTx runs fn inside one atomic unit. The Tx passed to fn is only
	// valid for the duration of the call. Any error from fn aborts and
	// rolls back every mutation performed through that Tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx bundles all repository operations against a single open transaction.
type Tx interface {
	MemberTx
	BookTx
	LoanTx
	ReservationTx
	PaymentTx
}

// MemberTx holds member persistence operations.
type MemberTx interface {
	CreateMember(ctx context.Context, m *domain.Member) error
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*domain.Member, error)
	ListMembers(ctx context.Context) ([]*domain.Member, error)
	UpdateMember(ctx context.Context, m *domain.Member) error

	// CountOpenLoans returns how many of the member's loans are unreturned.
	CountOpenLoans(ctx context.Context, memberID string) (int, error)
	// UnpaidFees returns finalized late fees minus payments, floored at zero.
	UnpaidFees(ctx context.Context, memberID string) (float64, error)
	// HasOverdueLoans reports whether any open loan is past due as of the instant.
	HasOverdueLoans(ctx context.Context, memberID string, asOf time.Time) (bool, error)
}

// BookTx holds catalog and inventory persistence operations.
type BookTx interface {
	CreateBook(ctx context.Context, b *domain.Book) error
	// GetBook returns the book with its authors and category resolved.
	GetBook(ctx context.Context, isbn string) (*domain.Book, error)
	ListBooks(ctx context.Context) ([]*domain.Book, error)
	SearchBooksByTitle(ctx context.Context, title string) ([]*domain.Book, error)
	SearchBooksByAuthor(ctx context.Context, author string) ([]*domain.Book, error)
	ListBooksByCategory(ctx context.Context, categoryID string) ([]*domain.Book, error)
	UpdateBook(ctx context.Context, b *domain.Book) error

	CreateCategory(ctx context.Context, c *domain.Category) error
	CreateAuthor(ctx context.Context, a *domain.Author) error
	SetBookAuthors(ctx context.Context, isbn string, authorIDs []string) error

	CreateBranch(ctx context.Context, b *domain.Branch) error
	GetBranch(ctx context.Context, id string) (*domain.Branch, error)

	// BranchInventory returns the copy count at one branch; missing rows
	// read as zero.
	BranchInventory(ctx context.Context, isbn, branchID string) (int, error)
	// SetBranchInventory upserts the copy count at one branch.
	SetBranchInventory(ctx context.Context, isbn, branchID string, copies int) error
	// SumBranchInventory totals the per-branch counts for a title. Used as
	// a monitoring check against Book.AvailableCopies, not a runtime guard.
	SumBranchInventory(ctx context.Context, isbn string) (int, error)
}

// LoanTx holds borrow transaction persistence operations.
type LoanTx interface {
	CreateLoan(ctx context.Context, l *domain.Loan) error
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	ListLoansByMember(ctx context.Context, memberID string) ([]*domain.Loan, error)
	ListOpenLoansByMember(ctx context.Context, memberID string) ([]*domain.Loan, error)
	ListOpenLoansByBookAndBranch(ctx context.Context, isbn, branchID string) ([]*domain.Loan, error)
	UpdateLoan(ctx context.Context, l *domain.Loan) error

	// ListOverdueLoans returns open past-due loans joined with member and
	// book display fields, earliest due first.
	ListOverdueLoans(ctx context.Context, asOf time.Time) ([]*OverdueLoan, error)
	// MostBorrowed ranks titles by borrow count, optionally since a date.
	MostBorrowed(ctx context.Context, limit int, since *time.Time) ([]*BookBorrowCount, error)
}

// ReservationTx holds reservation persistence operations.
type ReservationTx interface {
	CreateReservation(ctx context.Context, r *domain.Reservation) error
	GetReservation(ctx context.Context, id string) (*domain.Reservation, error)
	ListReservationsByMember(ctx context.Context, memberID string) ([]*domain.Reservation, error)
	// ListActiveReservations returns pending/ready holds for a title at a
	// branch, FIFO by reservation date.
	ListActiveReservations(ctx context.Context, isbn, branchID string) ([]*domain.Reservation, error)
	UpdateReservation(ctx context.Context, r *domain.Reservation) error
	// ExpireReservations sweeps every pending/ready hold whose expiry has
	// passed into expired and reports how many rows changed. Idempotent.
	ExpireReservations(ctx context.Context, asOf time.Time) (int, error)
}

// PaymentTx holds payment persistence operations.
type PaymentTx interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	ListPaymentsByMember(ctx context.Context, memberID string) ([]*domain.Payment, error)
}

// OverdueLoan is a report row: an open past-due loan with display fields.
type OverdueLoan struct {
	Loan        *domain.Loan `json:"loan"`
	MemberName  string       `json:"member_name"`
	MemberEmail string       `json:"member_email"`
	BookTitle   string       `json:"book_title"`
}

// BookBorrowCount is a report row ranking a title by borrows.
type BookBorrowCount struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	BorrowCount int    `json:"borrow_count"`
}
