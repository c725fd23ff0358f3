package domain

import "time"

// ReservationStatus tracks a queued hold through its lifecycle.
type ReservationStatus string

const (
	// ReservationStatusPending means the member is waiting for a copy to free up.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusReady means a copy came back and the member was notified.
	ReservationStatusReady ReservationStatus = "ready"
	// ReservationStatusExpired means the hold lapsed before the member acted.
	ReservationStatusExpired ReservationStatus = "expired"
	// ReservationStatusFulfilled is the terminal success state. No workflow
	// currently moves a reservation here; borrows do not consume holds.
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
)

// ReadyWindow is how long a promoted reservation stays claimable.
const ReadyWindow = 48 * time.Hour

// PendingWindow is the default validity of a fresh reservation.
const PendingWindow = 7 * 24 * time.Hour

// Reservation is one entry in a branch's hold queue for a title.
// Promotion order is FIFO by ReservedAt.
type Reservation struct {
	ID         string            `json:"id"`
	MemberID   string            `json:"member_id"`
	ISBN       string            `json:"isbn"`
	BranchID   string            `json:"branch_id"`
	ReservedAt time.Time         `json:"reserved_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Status     ReservationStatus `json:"status"`
}

// NewReservation creates a pending reservation with the default 7-day window.
func NewReservation(id, memberID, isbn, branchID string, now time.Time) *Reservation {
	return &Reservation{
		ID:         id,
		MemberID:   memberID,
		ISBN:       isbn,
		BranchID:   branchID,
		ReservedAt: now,
		ExpiresAt:  now.Add(PendingWindow),
		Status:     ReservationStatusPending,
	}
}

// MarkReady promotes the reservation when a copy frees up. The expiry is
// reset to a fresh 48-hour claim window, overwriting whatever was left of
// the pending window.
func (r *Reservation) MarkReady(now time.Time) {
	r.Status = ReservationStatusReady
	r.ExpiresAt = now.Add(ReadyWindow)
}

// IsActive reports whether the reservation still occupies a queue slot.
func (r *Reservation) IsActive() bool {
	return r.Status == ReservationStatusPending || r.Status == ReservationStatusReady
}

// IsExpired reports whether the hold has lapsed. Fulfilled reservations
// never expire.
func (r *Reservation) IsExpired(asOf time.Time) bool {
	return asOf.After(r.ExpiresAt) && r.Status != ReservationStatusFulfilled
}

// Validate checks the fields every reservation must carry.
func (r *Reservation) Validate() bool {
	return r.MemberID != "" && r.ISBN != "" && r.BranchID != ""
}
