// Package service provides the business logic layer for circulation,
// catalog, and membership operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	apperrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

// UnpaidFeeLimit is the balance above which borrowing is blocked.
const UnpaidFeeLimit = 10.00

// BorrowOutcome reports the result of a borrow workflow.
type BorrowOutcome struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	LoanID    string    `json:"loan_id,omitempty"`
	DueAt     time.Time `json:"due_at,omitzero"`
	BookTitle string    `json:"book_title,omitempty"`
}

// ReturnOutcome reports the result of a return workflow.
type ReturnOutcome struct {
	Success             bool    `json:"success"`
	Message             string  `json:"message"`
	LateFee             float64 `json:"late_fee"`
	ReservationPromoted bool    `json:"reservation_promoted"`
}

// ReserveOutcome reports the result of a reserve workflow.
type ReserveOutcome struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ReservationID string `json:"reservation_id,omitempty"`
}

// PaymentOutcome reports the result of a payment workflow.
type PaymentOutcome struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	PaymentID string  `json:"payment_id,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
}

// CirculationService orchestrates the borrow, return, reserve, and payment
// workflows. Each workflow runs inside one atomic unit: every precondition
// failure or storage error rolls the whole unit back and is reported
// through the outcome's message, never as a returned error.
type CirculationService struct {
	store  store.Store
	logger *slog.Logger

	// now is swapped in tests to pin fee arithmetic to fixed dates.
	now func() time.Time
}

// NewCirculationService creates a new circulation service.
func NewCirculationService(store store.Store, logger *slog.Logger) *CirculationService {
	return &CirculationService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Borrow checks the member's eligibility and the branch's shelf count, and
// on success opens a loan, takes one copy off both inventory granularities,
// and bumps the member's lifetime borrow counter.
//
// The preconditions run in a fixed order and each failure carries its own
// message: member exists, membership valid, open-loan count under the
// policy limit, no overdue loans, unpaid fees at or under the limit, book
// exists, shelf copies at the branch.
func (s *CirculationService) Borrow(ctx context.Context, memberID, isbn, branchID string) *BorrowOutcome {
	out := &BorrowOutcome{}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return memberLookupError(err)
		}
		if !member.IsMembershipValid(now) {
			return apperrors.PolicyViolation("Membership has expired")
		}

		policy := member.Policy()
		openCount, err := tx.CountOpenLoans(ctx, memberID)
		if err != nil {
			return apperrors.Persistence("count open loans", err)
		}
		if openCount >= policy.MaxBooks {
			return apperrors.PolicyViolationf("Borrow limit of %d books reached", policy.MaxBooks)
		}

		overdue, err := tx.HasOverdueLoans(ctx, memberID, now)
		if err != nil {
			return apperrors.Persistence("check overdue loans", err)
		}
		if overdue {
			return apperrors.PolicyViolation("Member has overdue books")
		}

		unpaid, err := tx.UnpaidFees(ctx, memberID)
		if err != nil {
			return apperrors.Persistence("sum unpaid fees", err)
		}
		if unpaid > UnpaidFeeLimit {
			return apperrors.PolicyViolationf("Unpaid fees of $%.2f exceed the $%.2f limit", unpaid, UnpaidFeeLimit)
		}

		book, err := tx.GetBook(ctx, isbn)
		if err != nil {
			return bookLookupError(err)
		}

		copies, err := tx.BranchInventory(ctx, isbn, branchID)
		if err != nil {
			return apperrors.Persistence("read branch inventory", err)
		}
		if copies <= 0 {
			return apperrors.PolicyViolation("Book not available at this branch")
		}

		loanID, err := id.Generate("txn")
		if err != nil {
			return apperrors.Persistence("generate loan id", err)
		}
		loan := domain.NewLoan(loanID, memberID, isbn, branchID, now, policy.LoanDays)
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return apperrors.Persistence("create loan", err)
		}

		if err := tx.SetBranchInventory(ctx, isbn, branchID, copies-1); err != nil {
			return apperrors.Persistence("decrement branch inventory", err)
		}
		book.DecrementCopies()
		book.UpdatedAt = now
		if err := tx.UpdateBook(ctx, book); err != nil {
			return apperrors.Persistence("update book", err)
		}

		member.IncrementTotalBorrowed()
		member.UpdatedAt = now
		if err := tx.UpdateMember(ctx, member); err != nil {
			return apperrors.Persistence("update member", err)
		}

		out.LoanID = loan.ID
		out.DueAt = loan.DueAt
		out.BookTitle = book.Title
		return nil
	})
	if err != nil {
		s.logger.Warn("borrow rejected",
			"member_id", memberID, "isbn", isbn, "branch_id", branchID,
			"reason", failureMessage(err))
		return &BorrowOutcome{Message: failureMessage(err)}
	}

	out.Success = true
	out.Message = "Book borrowed successfully"
	s.logger.Info("book borrowed",
		"loan_id", out.LoanID, "member_id", memberID,
		"isbn", isbn, "branch_id", branchID, "due_at", out.DueAt)
	return out
}

// Return closes an open loan: it finalizes the late fee at the member's
// rate, puts the copy back on both inventory counts, and promotes the
// earliest waiting reservation for the title at that branch to ready with
// a fresh pickup window. The freed copy is not withheld for the promoted
// hold; the next borrower at the desk can still take it.
func (s *CirculationService) Return(ctx context.Context, loanID string) *ReturnOutcome {
	out := &ReturnOutcome{}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		loan, err := tx.GetLoan(ctx, loanID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.NotFound("Loan not found")
			}
			return apperrors.Persistence("get loan", err)
		}
		if loan.ReturnedAt != nil {
			return apperrors.PolicyViolation("Book already returned")
		}

		member, err := tx.GetMember(ctx, loan.MemberID)
		if err != nil {
			return memberLookupError(err)
		}

		loan.ProcessReturn(member.Policy().DailyFine, now)
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return apperrors.Persistence("update loan", err)
		}

		copies, err := tx.BranchInventory(ctx, loan.ISBN, loan.BranchID)
		if err != nil {
			return apperrors.Persistence("read branch inventory", err)
		}
		if err := tx.SetBranchInventory(ctx, loan.ISBN, loan.BranchID, copies+1); err != nil {
			return apperrors.Persistence("increment branch inventory", err)
		}

		book, err := tx.GetBook(ctx, loan.ISBN)
		if err != nil {
			return bookLookupError(err)
		}
		book.IncrementCopies()
		book.UpdatedAt = now
		if err := tx.UpdateBook(ctx, book); err != nil {
			return apperrors.Persistence("update book", err)
		}

		// One return wakes at most one waiting hold.
		queue, err := tx.ListActiveReservations(ctx, loan.ISBN, loan.BranchID)
		if err != nil {
			return apperrors.Persistence("list reservations", err)
		}
		if len(queue) > 0 {
			next := queue[0]
			next.MarkReady(now)
			if err := tx.UpdateReservation(ctx, next); err != nil {
				return apperrors.Persistence("update reservation", err)
			}
			out.ReservationPromoted = true
		}

		out.LateFee = loan.LateFee
		return nil
	})
	if err != nil {
		s.logger.Warn("return rejected", "loan_id", loanID, "reason", failureMessage(err))
		return &ReturnOutcome{Message: failureMessage(err)}
	}

	out.Success = true
	out.Message = "Book returned successfully"
	s.logger.Info("book returned",
		"loan_id", loanID, "late_fee", out.LateFee,
		"reservation_promoted", out.ReservationPromoted)
	return out
}

// Reserve queues a hold for a title with no shelf copies at the branch.
// Reserving while copies sit on the shelf is rejected; so is holding the
// same title at the same branch twice.
func (s *CirculationService) Reserve(ctx context.Context, memberID, isbn, branchID string) *ReserveOutcome {
	out := &ReserveOutcome{}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		member, err := tx.GetMember(ctx, memberID)
		if err != nil {
			return memberLookupError(err)
		}
		if !member.IsMembershipValid(now) {
			return apperrors.PolicyViolation("Membership has expired")
		}

		if _, err := tx.GetBook(ctx, isbn); err != nil {
			return bookLookupError(err)
		}

		copies, err := tx.BranchInventory(ctx, isbn, branchID)
		if err != nil {
			return apperrors.Persistence("read branch inventory", err)
		}
		if copies > 0 {
			return apperrors.PolicyViolation("Copies are on the shelf at this branch; borrow instead")
		}

		queue, err := tx.ListActiveReservations(ctx, isbn, branchID)
		if err != nil {
			return apperrors.Persistence("list reservations", err)
		}
		for _, r := range queue {
			if r.MemberID == memberID {
				return apperrors.PolicyViolation("An active reservation for this book already exists")
			}
		}

		reservationID, err := id.Generate("rsv")
		if err != nil {
			return apperrors.Persistence("generate reservation id", err)
		}
		reservation := domain.NewReservation(reservationID, memberID, isbn, branchID, now)
		if err := tx.CreateReservation(ctx, reservation); err != nil {
			return apperrors.Persistence("create reservation", err)
		}

		out.ReservationID = reservation.ID
		return nil
	})
	if err != nil {
		s.logger.Warn("reserve rejected",
			"member_id", memberID, "isbn", isbn, "branch_id", branchID,
			"reason", failureMessage(err))
		return &ReserveOutcome{Message: failureMessage(err)}
	}

	out.Success = true
	out.Message = "Book reserved successfully"
	s.logger.Info("book reserved",
		"reservation_id", out.ReservationID, "member_id", memberID,
		"isbn", isbn, "branch_id", branchID)
	return out
}

// ProcessPayment records a payment against the member's fee balance.
// Payments are not allocated to specific loans; the balance is derived
// when the next borrow checks it.
func (s *CirculationService) ProcessPayment(ctx context.Context, memberID string, amount float64, method domain.PaymentMethod) *PaymentOutcome {
	out := &PaymentOutcome{}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return memberLookupError(err)
		}

		paymentID, err := id.Generate("pay")
		if err != nil {
			return apperrors.Persistence("generate payment id", err)
		}
		payment := &domain.Payment{
			ID:       paymentID,
			MemberID: memberID,
			Amount:   amount,
			PaidAt:   now,
			Method:   method,
		}
		if !payment.Validate() {
			return apperrors.Validation("Payment could not be processed")
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return apperrors.Persistence("create payment", err)
		}

		out.PaymentID = payment.ID
		out.Amount = payment.Amount
		return nil
	})
	if err != nil {
		s.logger.Warn("payment rejected",
			"member_id", memberID, "amount", amount, "reason", failureMessage(err))
		return &PaymentOutcome{Message: failureMessage(err)}
	}

	out.Success = true
	out.Message = "Payment processed successfully"
	s.logger.Info("payment processed",
		"payment_id", out.PaymentID, "member_id", memberID, "amount", amount)
	return out
}

// ExpireReservations sweeps every hold whose window has passed into
// expired and returns how many changed. Safe to re-run.
func (s *CirculationService) ExpireReservations(ctx context.Context) (int, error) {
	now := s.now().UTC()

	var expired int
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.ExpireReservations(ctx, now)
		if err != nil {
			return apperrors.Persistence("expire reservations", err)
		}
		expired = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.logger.Info("reservations expired", "count", expired)
	}
	return expired, nil
}

// OverdueReport lists every open past-due loan with borrower and title
// display fields, earliest due first.
func (s *CirculationService) OverdueReport(ctx context.Context) ([]*store.OverdueLoan, error) {
	now := s.now().UTC()

	var report []*store.OverdueLoan
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		report, err = tx.ListOverdueLoans(ctx, now)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("overdue report", err)
	}
	return report, nil
}

// MostBorrowed ranks titles by borrow count, optionally since a date.
func (s *CirculationService) MostBorrowed(ctx context.Context, limit int, since *time.Time) ([]*store.BookBorrowCount, error) {
	if limit <= 0 {
		limit = 10
	}

	var counts []*store.BookBorrowCount
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		counts, err = tx.MostBorrowed(ctx, limit, since)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("most borrowed report", err)
	}
	return counts, nil
}

func memberLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("Member not found")
	}
	return apperrors.Persistence("get member", err)
}

func bookLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("Book not found")
	}
	return apperrors.Persistence("get book", err)
}

// failureMessage extracts the human-readable reason from a workflow error.
// Storage failures all surface the same generic message; the detail stays
// in logs.
func failureMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		if appErr.Code == apperrors.CodePersistence || appErr.Code == apperrors.CodeInternal {
			return "The request could not be completed"
		}
		return appErr.Message
	}
	return "The request could not be completed"
}
