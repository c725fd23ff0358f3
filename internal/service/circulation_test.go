package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/store/sqlite"
	"github.com/stacksapp/stacks-server/internal/validation"
)

// testClock is the pinned instant every service test runs at.
var testClock = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	store   store.Store
	circ    *CirculationService
	members *MemberService
	catalog *CatalogService
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.DiscardHandler)
	s, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	env := &testEnv{store: s, now: testClock}
	env.circ = NewCirculationService(s, logger)
	env.circ.now = func() time.Time { return testClock }
	env.members = NewMemberService(s, validation.New(), logger)
	env.members.now = func() time.Time { return testClock }
	env.catalog = NewCatalogService(s, logger)
	env.catalog.now = func() time.Time { return testClock }
	return env
}

// advance shifts the circulation clock forward from the pinned instant.
func (e *testEnv) advance(t *testing.T, d time.Duration) {
	t.Helper()
	at := testClock.Add(d)
	e.circ.now = func() time.Time { return at }
}

func (e *testEnv) seedMember(t *testing.T, id string, memberType domain.MemberType, endsAt time.Time) {
	t.Helper()
	ctx := context.Background()
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.CreateMember(ctx, &domain.Member{
			ID:               id,
			Type:             memberType,
			FullName:         "Member " + id,
			Email:            id + "@example.com",
			MembershipEndsAt: &endsAt,
			CreatedAt:        testClock,
			UpdatedAt:        testClock,
		})
	})
	require.NoError(t, err)
}

func (e *testEnv) seedBook(t *testing.T, isbn, title, branchID string, copies int) {
	t.Helper()
	ctx := context.Background()
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		status := domain.BookStatusAvailable
		if copies == 0 {
			status = domain.BookStatusCheckedOut
		}
		if err := tx.CreateBook(ctx, &domain.Book{
			ISBN:            isbn,
			Title:           title,
			PublicationYear: 2000,
			AvailableCopies: copies,
			Status:          status,
			CreatedAt:       testClock,
			UpdatedAt:       testClock,
		}); err != nil {
			return err
		}
		if _, err := tx.GetBranch(ctx, branchID); err != nil {
			if err := tx.CreateBranch(ctx, &domain.Branch{ID: branchID, Name: "Branch " + branchID}); err != nil {
				return err
			}
		}
		return tx.SetBranchInventory(ctx, isbn, branchID, copies)
	})
	require.NoError(t, err)
}

func (e *testEnv) getBook(t *testing.T, isbn string) *domain.Book {
	t.Helper()
	ctx := context.Background()
	var book *domain.Book
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		book, err = tx.GetBook(ctx, isbn)
		return err
	})
	require.NoError(t, err)
	return book
}

func (e *testEnv) branchInventory(t *testing.T, isbn, branchID string) int {
	t.Helper()
	ctx := context.Background()
	var copies int
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		copies, err = tx.BranchInventory(ctx, isbn, branchID)
		return err
	})
	require.NoError(t, err)
	return copies
}

func validUntil() time.Time { return testClock.AddDate(1, 0, 0) }

func TestBorrowSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Last Copy", "br-1", 1)

	out := env.circ.Borrow(ctx, "mem-1", "978-1", "br-1")
	require.True(t, out.Success, out.Message)
	assert.NotEmpty(t, out.LoanID)
	assert.Equal(t, "Last Copy", out.BookTitle)
	assert.Equal(t, testClock.AddDate(0, 0, 14), out.DueAt)

	// Last copy gone at both granularities.
	assert.Equal(t, 0, env.branchInventory(t, "978-1", "br-1"))
	book := env.getBook(t, "978-1")
	assert.Equal(t, 0, book.AvailableCopies)
	assert.Equal(t, domain.BookStatusCheckedOut, book.Status)

	// Lifetime counter bumped.
	account, err := env.members.Account(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, 1, account.Member.TotalBorrowed)
	assert.Equal(t, 1, account.OpenLoans)
}

func TestBorrowLastCopyBlocksNextBorrower(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-first", domain.MemberTypeStudent, validUntil())
	env.seedMember(t, "mem-second", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Contested", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-first", "978-1", "br-1").Success)

	out := env.circ.Borrow(ctx, "mem-second", "978-1", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Book not available at this branch", out.Message)
}

func TestBorrowPreconditionOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expired := testClock.AddDate(0, 0, -1)
	env.seedMember(t, "mem-expired", domain.MemberTypeStudent, expired)
	env.seedBook(t, "978-ok", "Fine Book", "br-1", 3)

	tests := []struct {
		name     string
		memberID string
		isbn     string
		branchID string
		wantMsg  string
	}{
		{
			name:     "member missing",
			memberID: "nobody",
			isbn:     "978-ok",
			branchID: "br-1",
			wantMsg:  "Member not found",
		},
		{
			name:     "membership expired",
			memberID: "mem-expired",
			isbn:     "978-ok",
			branchID: "br-1",
			wantMsg:  "Membership has expired",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.circ.Borrow(ctx, tt.memberID, tt.isbn, tt.branchID)
			assert.False(t, out.Success)
			assert.Equal(t, tt.wantMsg, out.Message)
		})
	}
}

func TestBorrowLimitReached(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-limit", domain.MemberTypeStudent, validUntil())
	for _, isbn := range []string{"978-a", "978-b", "978-c", "978-d"} {
		env.seedBook(t, isbn, "Book", "br-1", 1)
	}

	for _, isbn := range []string{"978-a", "978-b", "978-c"} {
		require.True(t, env.circ.Borrow(ctx, "mem-limit", isbn, "br-1").Success)
	}

	// Fourth book: student cap is 3 concurrent loans.
	out := env.circ.Borrow(ctx, "mem-limit", "978-d", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Borrow limit of 3 books reached", out.Message)
}

func TestFacultyBorrowsBeyondStudentLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-prof", domain.MemberTypeFaculty, validUntil())
	for _, isbn := range []string{"978-a", "978-b", "978-c", "978-d"} {
		env.seedBook(t, isbn, "Book", "br-1", 1)
	}

	for _, isbn := range []string{"978-a", "978-b", "978-c", "978-d"} {
		out := env.circ.Borrow(ctx, "mem-prof", isbn, "br-1")
		require.True(t, out.Success, out.Message)
		// Faculty loans run 30 days.
		assert.Equal(t, testClock.AddDate(0, 0, 30), out.DueAt)
	}
}

func TestBorrowBlockedByOverdueLoan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-od", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "First", "br-1", 1)
	env.seedBook(t, "978-2", "Second", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-od", "978-1", "br-1").Success)

	// 15 days on, the 14-day loan is overdue.
	env.advance(t, 15*24*time.Hour)
	out := env.circ.Borrow(ctx, "mem-od", "978-2", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Member has overdue books", out.Message)
}

func TestBorrowBlockedByUnpaidFees(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-debt", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Expensive Habit", "br-1", 1)
	env.seedBook(t, "978-2", "Unreachable", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-debt", "978-1", "br-1").Success)

	// Returned 25 days late at $0.50/day: $12.50 in fees, over the $10 cap.
	env.advance(t, 39*24*time.Hour)
	ret := env.circ.Return(ctx, mustLoanID(t, env, "mem-debt"))
	require.True(t, ret.Success, ret.Message)
	require.InDelta(t, 12.50, ret.LateFee, 0.001)

	out := env.circ.Borrow(ctx, "mem-debt", "978-2", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Unpaid fees of $12.50 exceed the $10.00 limit", out.Message)

	// Paying the balance down unblocks borrowing.
	pay := env.circ.ProcessPayment(ctx, "mem-debt", 12.50, domain.PaymentMethodCash)
	require.True(t, pay.Success, pay.Message)

	out = env.circ.Borrow(ctx, "mem-debt", "978-2", "br-1")
	assert.True(t, out.Success, out.Message)
}

func TestBorrowBookNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())

	out := env.circ.Borrow(ctx, "mem-1", "978-missing", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Book not found", out.Message)
}

// mustLoanID returns the member's single open-or-latest loan id.
func mustLoanID(t *testing.T, env *testEnv, memberID string) string {
	t.Helper()
	ctx := context.Background()
	var loanID string
	err := env.store.WithTx(ctx, func(tx store.Tx) error {
		loans, err := tx.ListLoansByMember(ctx, memberID)
		if err != nil {
			return err
		}
		require.NotEmpty(t, loans)
		loanID = loans[0].ID
		return nil
	})
	require.NoError(t, err)
	return loanID
}

func TestReturnOnTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Punctual", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-1", "br-1").Success)

	env.advance(t, 10*24*time.Hour)
	out := env.circ.Return(ctx, mustLoanID(t, env, "mem-1"))
	require.True(t, out.Success, out.Message)
	assert.Zero(t, out.LateFee)
	assert.False(t, out.ReservationPromoted)

	// Copy back on the shelf, title available again.
	assert.Equal(t, 1, env.branchInventory(t, "978-1", "br-1"))
	book := env.getBook(t, "978-1")
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, domain.BookStatusAvailable, book.Status)
}

func TestReturnThreeDaysLate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Tardy", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-1", "br-1").Success)

	// Student loan runs 14 days; return on day 17.
	env.advance(t, 17*24*time.Hour)
	out := env.circ.Return(ctx, mustLoanID(t, env, "mem-1"))
	require.True(t, out.Success, out.Message)
	assert.InDelta(t, 1.50, out.LateFee, 0.001)
	assert.Equal(t, 1, env.branchInventory(t, "978-1", "br-1"))
}

func TestReturnAlreadyReturned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Twice", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-1", "br-1").Success)
	loanID := mustLoanID(t, env, "mem-1")
	require.True(t, env.circ.Return(ctx, loanID).Success)

	out := env.circ.Return(ctx, loanID)
	assert.False(t, out.Success)
	assert.Equal(t, "Book already returned", out.Message)

	// The double return must not inflate inventory.
	assert.Equal(t, 1, env.branchInventory(t, "978-1", "br-1"))
	assert.Equal(t, 1, env.getBook(t, "978-1").AvailableCopies)
}

func TestReturnLoanNotFound(t *testing.T) {
	env := newTestEnv(t)

	out := env.circ.Return(context.Background(), "txn_missing")
	assert.False(t, out.Success)
	assert.Equal(t, "Loan not found", out.Message)
}

func TestReturnPromotesEarliestReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-borrower", domain.MemberTypeStudent, validUntil())
	env.seedMember(t, "mem-early", domain.MemberTypeStudent, validUntil())
	env.seedMember(t, "mem-late", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Queued", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-borrower", "978-1", "br-1").Success)

	// Two holds queue up while the copy is out; mem-early got there first.
	require.True(t, env.circ.Reserve(ctx, "mem-early", "978-1", "br-1").Success)
	env.advance(t, time.Hour)
	require.True(t, env.circ.Reserve(ctx, "mem-late", "978-1", "br-1").Success)

	env.advance(t, 2*time.Hour)
	returnedAt := testClock.Add(2 * time.Hour)
	out := env.circ.Return(ctx, mustLoanID(t, env, "mem-borrower"))
	require.True(t, out.Success, out.Message)
	assert.True(t, out.ReservationPromoted)

	err := env.store.WithTx(ctx, func(tx store.Tx) error {
		early, err := tx.ListReservationsByMember(ctx, "mem-early")
		require.NoError(t, err)
		require.Len(t, early, 1)
		assert.Equal(t, domain.ReservationStatusReady, early[0].Status)
		// Pickup window restarts at the promotion instant.
		assert.Equal(t, returnedAt.Add(domain.ReadyWindow).Unix(), early[0].ExpiresAt.Unix())

		// One return wakes exactly one hold.
		late, err := tx.ListReservationsByMember(ctx, "mem-late")
		require.NoError(t, err)
		require.Len(t, late, 1)
		assert.Equal(t, domain.ReservationStatusPending, late[0].Status)
		return nil
	})
	require.NoError(t, err)
}

func TestReserveRejectedWhenCopiesOnShelf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "On Shelf", "br-1", 2)

	out := env.circ.Reserve(ctx, "mem-1", "978-1", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Copies are on the shelf at this branch; borrow instead", out.Message)
}

func TestReserveDuplicateRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Wanted", "br-1", 0)

	require.True(t, env.circ.Reserve(ctx, "mem-1", "978-1", "br-1").Success)

	out := env.circ.Reserve(ctx, "mem-1", "978-1", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "An active reservation for this book already exists", out.Message)
}

func TestReserveSameTitleOtherBranch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Everywhere Wanted", "br-1", 0)
	err := env.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateBranch(ctx, &domain.Branch{ID: "br-2", Name: "Branch br-2"}); err != nil {
			return err
		}
		return tx.SetBranchInventory(ctx, "978-1", "br-2", 0)
	})
	require.NoError(t, err)

	// A hold at one branch does not block the same title elsewhere.
	require.True(t, env.circ.Reserve(ctx, "mem-1", "978-1", "br-1").Success)
	out := env.circ.Reserve(ctx, "mem-1", "978-1", "br-2")
	assert.True(t, out.Success, out.Message)
}

func TestReserveExpiredMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-exp", domain.MemberTypeStudent, testClock.AddDate(0, 0, -1))
	env.seedBook(t, "978-1", "Gone", "br-1", 0)

	out := env.circ.Reserve(ctx, "mem-exp", "978-1", "br-1")
	assert.False(t, out.Success)
	assert.Equal(t, "Membership has expired", out.Message)
}

func TestProcessPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())

	out := env.circ.ProcessPayment(ctx, "mem-1", 5.00, domain.PaymentMethodCard)
	require.True(t, out.Success, out.Message)
	assert.NotEmpty(t, out.PaymentID)
	assert.Equal(t, 5.00, out.Amount)
}

func TestProcessPaymentNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())

	for _, amount := range []float64{0, -3.50} {
		out := env.circ.ProcessPayment(ctx, "mem-1", amount, domain.PaymentMethodCash)
		assert.False(t, out.Success)
		assert.Equal(t, "Payment could not be processed", out.Message)
	}
}

func TestProcessPaymentMemberNotFound(t *testing.T) {
	env := newTestEnv(t)

	out := env.circ.ProcessPayment(context.Background(), "nobody", 5.00, domain.PaymentMethodCash)
	assert.False(t, out.Success)
	assert.Equal(t, "Member not found", out.Message)
}

func TestExpireReservationsSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedMember(t, "mem-2", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Stale", "br-1", 0)

	require.True(t, env.circ.Reserve(ctx, "mem-1", "978-1", "br-1").Success)
	env.advance(t, time.Hour)
	require.True(t, env.circ.Reserve(ctx, "mem-2", "978-1", "br-1").Success)

	// 8 days on, both 7-day pending windows have lapsed.
	env.advance(t, 8*24*time.Hour)
	n, err := env.circ.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Idempotent.
	n, err = env.circ.ExpireReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOverdueReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeStudent, validUntil())
	env.seedBook(t, "978-1", "Overdue Title", "br-1", 1)
	env.seedBook(t, "978-2", "Current Title", "br-1", 1)

	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-1", "br-1").Success)

	env.advance(t, 16*24*time.Hour)

	report, err := env.circ.OverdueReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, "Overdue Title", report[0].BookTitle)
	assert.Equal(t, "Member mem-1", report[0].MemberName)
	assert.Equal(t, "mem-1@example.com", report[0].MemberEmail)
}

func TestMostBorrowedReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedMember(t, "mem-1", domain.MemberTypeFaculty, validUntil())
	env.seedMember(t, "mem-2", domain.MemberTypeFaculty, validUntil())
	env.seedBook(t, "978-1", "Hit", "br-1", 5)
	env.seedBook(t, "978-2", "Sleeper", "br-1", 5)

	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-1", "br-1").Success)
	require.True(t, env.circ.Borrow(ctx, "mem-2", "978-1", "br-1").Success)
	require.True(t, env.circ.Borrow(ctx, "mem-1", "978-2", "br-1").Success)

	counts, err := env.circ.MostBorrowed(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "978-1", counts[0].ISBN)
	assert.Equal(t, 2, counts[0].BorrowCount)
}
