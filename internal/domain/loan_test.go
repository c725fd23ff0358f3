package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoan_DueDate(t *testing.T) {
	borrowed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := NewLoan("txn-1", "mem-1", "978-1", "br-main", borrowed, 14)

	assert.Equal(t, borrowed.AddDate(0, 0, 14), l.DueAt)
	assert.Nil(t, l.ReturnedAt)
	assert.Zero(t, l.LateFee)
	assert.True(t, l.Validate())
}

func TestLoan_LateFeeAsOf(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	base := &Loan{
		ID:         "txn-1",
		MemberID:   "mem-1",
		ISBN:       "978-1",
		BranchID:   "br-main",
		BorrowedAt: due.AddDate(0, 0, -14),
		DueAt:      due,
	}

	tests := []struct {
		name string
		asOf time.Time
		rate float64
		want float64
	}{
		{"before due date", due.Add(-24 * time.Hour), 0.50, 0},
		{"exactly at due date", due, 0.50, 0},
		{"under a whole day late", due.Add(12 * time.Hour), 0.50, 0},
		{"three days late at student rate", due.AddDate(0, 0, 3), 0.50, 1.50},
		{"three days late at faculty rate", due.AddDate(0, 0, 3), 0.25, 0.75},
		{"ten days late", due.AddDate(0, 0, 10), 0.50, 5.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := *base
			assert.Equal(t, tt.want, l.LateFeeAsOf(tt.rate, tt.asOf))
		})
	}
}

func TestLoan_LateFeeAsOf_ReturnedWins(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	returned := due.AddDate(0, 0, 2)
	l := &Loan{DueAt: due, ReturnedAt: &returned}

	// asOf far in the future is ignored once the loan is returned.
	assert.Equal(t, 1.00, l.LateFeeAsOf(0.50, due.AddDate(1, 0, 0)))
}

func TestLoan_ProcessReturn(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	l := &Loan{MemberID: "mem-1", ISBN: "978-1", BranchID: "br-main", BorrowedAt: due.AddDate(0, 0, -14), DueAt: due}

	now := due.AddDate(0, 0, 3)
	l.ProcessReturn(0.50, now)

	require.NotNil(t, l.ReturnedAt)
	assert.Equal(t, now, *l.ReturnedAt)
	assert.Equal(t, 1.50, l.LateFee)
}

func TestLoan_ProcessReturn_OnTime(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	l := &Loan{DueAt: due}

	l.ProcessReturn(0.50, due.Add(-time.Hour))

	require.NotNil(t, l.ReturnedAt)
	assert.Zero(t, l.LateFee)
}

func TestLoan_IsOverdue(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	l := &Loan{DueAt: due}

	assert.False(t, l.IsOverdue(due))
	assert.True(t, l.IsOverdue(due.Add(time.Minute)))

	// A returned loan is never overdue, even if it came back late.
	returned := due.AddDate(0, 0, 5)
	l.ReturnedAt = &returned
	assert.False(t, l.IsOverdue(due.AddDate(0, 0, 10)))
}

func TestLoan_Validate(t *testing.T) {
	borrowed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	l := NewLoan("txn-1", "mem-1", "978-1", "br-main", borrowed, 14)
	assert.True(t, l.Validate())

	bad := *l
	bad.DueAt = borrowed.AddDate(0, 0, -1)
	assert.False(t, bad.Validate())

	bad = *l
	bad.MemberID = ""
	assert.False(t, bad.Validate())
}
