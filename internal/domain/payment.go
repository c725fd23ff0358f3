package domain

import "time"

// PaymentMethod is how a fee was settled at the desk.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodOnline PaymentMethod = "online"
)

// Payment is a write-once settlement record against a member's fee balance.
// Payments are not allocated to specific loans; the unpaid balance is
// derived as total finalized fees minus total payments.
type Payment struct {
	ID       string        `json:"id"`
	MemberID string        `json:"member_id"`
	Amount   float64       `json:"amount"`
	PaidAt   time.Time     `json:"paid_at"`
	Method   PaymentMethod `json:"method"`
}

// Validate checks that the payment is acceptable: settlement is modeled as
// a precondition here, not a gateway call.
func (p *Payment) Validate() bool {
	return p.MemberID != "" && p.Amount > 0 && p.Method != ""
}
