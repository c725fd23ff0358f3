package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

func TestCreateAndGetPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-pay", domain.MemberTypeStudent)

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:       "pay-1",
		MemberID: "mem-pay",
		Amount:   4.25,
		PaidAt:   now,
		Method:   domain.PaymentMethodCard,
	}

	inTx(t, s, func(tx store.Tx) error {
		return tx.CreatePayment(ctx, p)
	})

	inTx(t, s, func(tx store.Tx) error {
		got, err := tx.GetPayment(ctx, "pay-1")
		if err != nil {
			return err
		}
		if got.MemberID != "mem-pay" {
			t.Errorf("MemberID: got %q, want %q", got.MemberID, "mem-pay")
		}
		if got.Amount != 4.25 {
			t.Errorf("Amount: got %v, want 4.25", got.Amount)
		}
		if got.Method != domain.PaymentMethodCard {
			t.Errorf("Method: got %q, want %q", got.Method, domain.PaymentMethodCard)
		}
		if got.PaidAt.Unix() != now.Unix() {
			t.Errorf("PaidAt: got %v, want %v", got.PaidAt, now)
		}
		return nil
	})
}

func TestGetPaymentNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inTx(t, s, func(tx store.Tx) error {
		if _, err := tx.GetPayment(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestListPaymentsByMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-hist", domain.MemberTypeFaculty)
	insertTestMember(t, s, "mem-none", domain.MemberTypeStudent)

	now := time.Now().UTC()
	inTx(t, s, func(tx store.Tx) error {
		payments := []*domain.Payment{
			{ID: "hist-1", Amount: 1.00, PaidAt: now.Add(-2 * time.Hour), Method: domain.PaymentMethodCash},
			{ID: "hist-2", Amount: 2.50, PaidAt: now.Add(-1 * time.Hour), Method: domain.PaymentMethodOnline},
			{ID: "hist-3", Amount: 0.75, PaidAt: now, Method: domain.PaymentMethodCard},
		}
		for _, p := range payments {
			p.MemberID = "mem-hist"
			if err := tx.CreatePayment(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, s, func(tx store.Tx) error {
		got, err := tx.ListPaymentsByMember(ctx, "mem-hist")
		if err != nil {
			return err
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 payments, got %d", len(got))
		}
		// Newest first.
		if got[0].ID != "hist-3" {
			t.Errorf("order: got %q first, want hist-3", got[0].ID)
		}

		none, err := tx.ListPaymentsByMember(ctx, "mem-none")
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Errorf("expected no payments, got %d", len(none))
		}
		return nil
	})
}
