package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

func TestCreateAndGetReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-rsv", domain.MemberTypeStudent)
	insertTestBook(t, s, "isbn-rsv", "Reserved Book", 0)
	insertTestBranch(t, s, "br-rsv")

	now := time.Now().UTC()
	r := domain.NewReservation("rsv-1", "mem-rsv", "isbn-rsv", "br-rsv", now)

	inTx(t, s, func(tx store.Tx) error {
		return tx.CreateReservation(ctx, r)
	})

	inTx(t, s, func(tx store.Tx) error {
		got, err := tx.GetReservation(ctx, "rsv-1")
		if err != nil {
			return err
		}
		if got.MemberID != "mem-rsv" {
			t.Errorf("MemberID: got %q, want %q", got.MemberID, "mem-rsv")
		}
		if got.Status != domain.ReservationStatusPending {
			t.Errorf("Status: got %q, want %q", got.Status, domain.ReservationStatusPending)
		}
		if got.ReservedAt.Unix() != now.Unix() {
			t.Errorf("ReservedAt: got %v, want %v", got.ReservedAt, now)
		}
		if got.ExpiresAt.Unix() != now.Add(domain.PendingWindow).Unix() {
			t.Errorf("ExpiresAt: got %v, want %v", got.ExpiresAt, now.Add(domain.PendingWindow))
		}
		return nil
	})
}

func TestGetReservationNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inTx(t, s, func(tx store.Tx) error {
		if _, err := tx.GetReservation(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
}

func TestListActiveReservationsFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-q-1", domain.MemberTypeStudent)
	insertTestMember(t, s, "mem-q-2", domain.MemberTypeStudent)
	insertTestMember(t, s, "mem-q-3", domain.MemberTypeFaculty)
	insertTestBook(t, s, "isbn-fifo", "Queued Book", 0)
	insertTestBranch(t, s, "br-fifo")

	now := time.Now().UTC()
	inTx(t, s, func(tx store.Tx) error {
		// Inserted out of queue order on purpose.
		rs := []*domain.Reservation{
			domain.NewReservation("fifo-2", "mem-q-2", "isbn-fifo", "br-fifo", now.Add(-1*time.Hour)),
			domain.NewReservation("fifo-1", "mem-q-1", "isbn-fifo", "br-fifo", now.Add(-2*time.Hour)),
			domain.NewReservation("fifo-3", "mem-q-3", "isbn-fifo", "br-fifo", now),
		}
		for _, r := range rs {
			if err := tx.CreateReservation(ctx, r); err != nil {
				return err
			}
		}
		// A fulfilled hold does not sit in the queue.
		done := domain.NewReservation("fifo-done", "mem-q-1", "isbn-fifo", "br-fifo", now.Add(-3*time.Hour))
		done.Status = domain.ReservationStatusFulfilled
		return tx.CreateReservation(ctx, done)
	})

	inTx(t, s, func(tx store.Tx) error {
		queue, err := tx.ListActiveReservations(ctx, "isbn-fifo", "br-fifo")
		if err != nil {
			return err
		}
		if len(queue) != 3 {
			t.Fatalf("expected 3 active holds, got %d", len(queue))
		}
		for i, want := range []string{"fifo-1", "fifo-2", "fifo-3"} {
			if queue[i].ID != want {
				t.Errorf("position %d: got %q, want %q", i, queue[i].ID, want)
			}
		}
		return nil
	})
}

func TestListReservationsByMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-mine", domain.MemberTypeStudent)
	insertTestMember(t, s, "mem-other", domain.MemberTypeStudent)
	insertTestBook(t, s, "isbn-mine", "Mine", 0)
	insertTestBranch(t, s, "br-mine")

	now := time.Now().UTC()
	inTx(t, s, func(tx store.Tx) error {
		if err := tx.CreateReservation(ctx,
			domain.NewReservation("mine-1", "mem-mine", "isbn-mine", "br-mine", now)); err != nil {
			return err
		}
		return tx.CreateReservation(ctx,
			domain.NewReservation("other-1", "mem-other", "isbn-mine", "br-mine", now))
	})

	inTx(t, s, func(tx store.Tx) error {
		mine, err := tx.ListReservationsByMember(ctx, "mem-mine")
		if err != nil {
			return err
		}
		if len(mine) != 1 || mine[0].ID != "mine-1" {
			t.Errorf("member holds: got %+v", mine)
		}
		return nil
	})
}

func TestUpdateReservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-rdy", domain.MemberTypeStudent)
	insertTestBook(t, s, "isbn-rdy", "Ready Book", 0)
	insertTestBranch(t, s, "br-rdy")

	now := time.Now().UTC()
	inTx(t, s, func(tx store.Tx) error {
		return tx.CreateReservation(ctx,
			domain.NewReservation("rdy-1", "mem-rdy", "isbn-rdy", "br-rdy", now))
	})

	inTx(t, s, func(tx store.Tx) error {
		r, err := tx.GetReservation(ctx, "rdy-1")
		if err != nil {
			return err
		}
		r.MarkReady(now)
		return tx.UpdateReservation(ctx, r)
	})

	inTx(t, s, func(tx store.Tx) error {
		got, err := tx.GetReservation(ctx, "rdy-1")
		if err != nil {
			return err
		}
		if got.Status != domain.ReservationStatusReady {
			t.Errorf("Status: got %q, want %q", got.Status, domain.ReservationStatusReady)
		}
		if got.ExpiresAt.Unix() != now.Add(domain.ReadyWindow).Unix() {
			t.Errorf("ExpiresAt: got %v, want pickup deadline %v", got.ExpiresAt, now.Add(domain.ReadyWindow))
		}
		return nil
	})
}

func TestExpireReservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestMember(t, s, "mem-exp", domain.MemberTypeStudent)
	insertTestBook(t, s, "isbn-exp", "Expiring Book", 0)
	insertTestBranch(t, s, "br-exp")

	now := time.Now().UTC()
	inTx(t, s, func(tx store.Tx) error {
		// Pending hold past its window.
		stale := domain.NewReservation("exp-1", "mem-exp", "isbn-exp", "br-exp", now.Add(-8*24*time.Hour))
		if err := tx.CreateReservation(ctx, stale); err != nil {
			return err
		}
		// Ready hold past its pickup deadline.
		missed := domain.NewReservation("exp-2", "mem-exp", "isbn-exp", "br-exp", now.Add(-4*24*time.Hour))
		missed.MarkReady(now.Add(-3 * 24 * time.Hour))
		if err := tx.CreateReservation(ctx, missed); err != nil {
			return err
		}
		// Fresh hold stays.
		fresh := domain.NewReservation("exp-3", "mem-exp", "isbn-exp", "br-exp", now)
		if err := tx.CreateReservation(ctx, fresh); err != nil {
			return err
		}
		// Fulfilled is never touched.
		done := domain.NewReservation("exp-4", "mem-exp", "isbn-exp", "br-exp", now.Add(-10*24*time.Hour))
		done.Status = domain.ReservationStatusFulfilled
		return tx.CreateReservation(ctx, done)
	})

	inTx(t, s, func(tx store.Tx) error {
		n, err := tx.ExpireReservations(ctx, now)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("swept: got %d, want 2", n)
		}
		return nil
	})

	// Second sweep is a no-op.
	inTx(t, s, func(tx store.Tx) error {
		n, err := tx.ExpireReservations(ctx, now)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("second sweep: got %d, want 0", n)
		}

		for id, want := range map[string]domain.ReservationStatus{
			"exp-1": domain.ReservationStatusExpired,
			"exp-2": domain.ReservationStatusExpired,
			"exp-3": domain.ReservationStatusPending,
			"exp-4": domain.ReservationStatusFulfilled,
		} {
			r, err := tx.GetReservation(ctx, id)
			if err != nil {
				return err
			}
			if r.Status != want {
				t.Errorf("%s: got %q, want %q", id, r.Status, want)
			}
		}
		return nil
	})
}
