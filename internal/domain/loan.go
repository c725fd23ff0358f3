package domain

import (
	"math"
	"time"
)

// Loan records one borrow transaction. A loan is open while ReturnedAt is
// nil and terminal once returned; it is never reopened.
type Loan struct {
	ID         string     `json:"id"`
	MemberID   string     `json:"member_id"`
	ISBN       string     `json:"isbn"`
	BranchID   string     `json:"branch_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	LateFee    float64    `json:"late_fee"`
}

// NewLoan creates an open loan due loanDays after the borrow instant.
func NewLoan(id, memberID, isbn, branchID string, borrowedAt time.Time, loanDays int) *Loan {
	return &Loan{
		ID:         id,
		MemberID:   memberID,
		ISBN:       isbn,
		BranchID:   branchID,
		BorrowedAt: borrowedAt,
		DueAt:      borrowedAt.AddDate(0, 0, loanDays),
	}
}

// LateFeeAsOf computes the fee owed at the given instant: whole days past
// due multiplied by the per-day rate, rounded to cents. For a returned loan
// the return instant wins over asOf.
func (l *Loan) LateFeeAsOf(ratePerDay float64, asOf time.Time) float64 {
	end := asOf
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	if !end.After(l.DueAt) {
		return 0
	}
	daysLate := int(end.Sub(l.DueAt).Hours() / 24)
	return math.Round(float64(daysLate)*ratePerDay*100) / 100
}

// ProcessReturn closes the loan at the given instant and finalizes the fee.
func (l *Loan) ProcessReturn(ratePerDay float64, now time.Time) {
	l.ReturnedAt = &now
	l.LateFee = l.LateFeeAsOf(ratePerDay, now)
}

// IsOverdue reports whether an open loan is past due. Returned loans are
// never overdue regardless of how late they came back.
func (l *Loan) IsOverdue(asOf time.Time) bool {
	if l.ReturnedAt != nil {
		return false
	}
	return asOf.After(l.DueAt)
}

// Validate checks the invariants a loan must hold at creation.
func (l *Loan) Validate() bool {
	return l.MemberID != "" &&
		l.ISBN != "" &&
		l.BranchID != "" &&
		!l.BorrowedAt.After(l.DueAt)
}
