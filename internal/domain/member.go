package domain

import (
	"net/mail"
	"time"
)

// MemberType distinguishes the closed set of borrower variants.
type MemberType string

const (
	// MemberTypeStudent borrows up to 3 books for 14 days at $0.50/day late.
	MemberTypeStudent MemberType = "student"
	// MemberTypeFaculty borrows up to 10 books for 30 days at $0.25/day late.
	MemberTypeFaculty MemberType = "faculty"
)

// BorrowPolicy carries the per-type circulation constants. It is fixed at
// member construction and never varies per member.
type BorrowPolicy struct {
	MaxBooks  int     `json:"max_books"`
	LoanDays  int     `json:"loan_days"`
	DailyFine float64 `json:"daily_fine"`
}

var borrowPolicies = map[MemberType]BorrowPolicy{
	MemberTypeStudent: {MaxBooks: 3, LoanDays: 14, DailyFine: 0.50},
	MemberTypeFaculty: {MaxBooks: 10, LoanDays: 30, DailyFine: 0.25},
}

// PolicyFor returns the borrow policy for a member type.
// Unknown types get a zero policy, which rejects every borrow.
func PolicyFor(t MemberType) BorrowPolicy {
	return borrowPolicies[t]
}

// Member is a borrower. TotalBorrowed counts lifetime borrows and is never
// decremented on return; the current open count is derived from loans.
type Member struct {
	ID               string     `json:"id"`
	Type             MemberType `json:"type"`
	FullName         string     `json:"full_name"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	MembershipEndsAt *time.Time `json:"membership_ends_at,omitempty"`
	TotalBorrowed    int        `json:"total_borrowed"`

	// Variant-specific fields.
	StudentID  string `json:"student_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	Department string `json:"department,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Policy returns the circulation constants for this member's type.
func (m *Member) Policy() BorrowPolicy {
	return PolicyFor(m.Type)
}

// IsMembershipValid reports whether the membership has an end date that has
// not yet passed. A member with no end date is treated as expired.
func (m *Member) IsMembershipValid(now time.Time) bool {
	if m.MembershipEndsAt == nil {
		return false
	}
	return !m.MembershipEndsAt.Before(now)
}

// CanBorrow reports whether the member may take another loan given their
// current open loan count.
func (m *Member) CanBorrow(openCount int, now time.Time) bool {
	return m.IsMembershipValid(now) && openCount < m.Policy().MaxBooks
}

// IncrementTotalBorrowed bumps the lifetime borrow counter. The borrow
// limit is enforced against open loans, not this counter, so there is no
// upper bound here.
func (m *Member) IncrementTotalBorrowed() {
	m.TotalBorrowed++
}

// RenewMembership extends the membership to the given end date.
func (m *Member) RenewMembership(endsAt time.Time) {
	m.MembershipEndsAt = &endsAt
}

// Validate checks that the member carries a name and a well-formed email.
func (m *Member) Validate() bool {
	if m.FullName == "" || m.Email == "" {
		return false
	}
	_, err := mail.ParseAddress(m.Email)
	return err == nil
}
