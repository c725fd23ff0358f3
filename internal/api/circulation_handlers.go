package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/http/response"
)

// Circulation endpoints respond 200 with the workflow outcome for both
// accepted and rejected requests: a rejection is a domain result the desk
// displays, not a transport failure. The outcome's success flag and
// message carry the verdict.

// handleBorrow runs the borrow workflow.
func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MemberID string `json:"member_id"`
		ISBN     string `json:"isbn"`
		BranchID string `json:"branch_id"`
	}
	if !s.decodeJSON(w, r, &input) {
		return
	}
	if input.MemberID == "" || input.ISBN == "" || input.BranchID == "" {
		response.BadRequest(w, "member_id, isbn, and branch_id are required", s.logger)
		return
	}

	out := s.circulation.Borrow(r.Context(), input.MemberID, input.ISBN, input.BranchID)
	response.Success(w, out, s.logger)
}

// handleReturn runs the return workflow for one loan.
func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	out := s.circulation.Return(r.Context(), chi.URLParam(r, "id"))
	response.Success(w, out, s.logger)
}

// handleReserve runs the reserve workflow.
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MemberID string `json:"member_id"`
		ISBN     string `json:"isbn"`
		BranchID string `json:"branch_id"`
	}
	if !s.decodeJSON(w, r, &input) {
		return
	}
	if input.MemberID == "" || input.ISBN == "" || input.BranchID == "" {
		response.BadRequest(w, "member_id, isbn, and branch_id are required", s.logger)
		return
	}

	out := s.circulation.Reserve(r.Context(), input.MemberID, input.ISBN, input.BranchID)
	response.Success(w, out, s.logger)
}

// handleExpireReservations sweeps lapsed holds.
func (s *Server) handleExpireReservations(w http.ResponseWriter, r *http.Request) {
	expired, err := s.circulation.ExpireReservations(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, map[string]int{"expired": expired}, s.logger)
}

// handleProcessPayment records a payment against a member's balance.
func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var input struct {
		MemberID string  `json:"member_id"`
		Amount   float64 `json:"amount"`
		Method   string  `json:"method"`
	}
	if !s.decodeJSON(w, r, &input) {
		return
	}
	if input.MemberID == "" {
		response.BadRequest(w, "member_id is required", s.logger)
		return
	}

	out := s.circulation.ProcessPayment(r.Context(), input.MemberID, input.Amount, domain.PaymentMethod(input.Method))
	response.Success(w, out, s.logger)
}

// handleOverdueReport lists open past-due loans with display fields.
func (s *Server) handleOverdueReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.circulation.OverdueReport(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, report, s.logger)
}

// handleMostBorrowed ranks titles by borrow count.
// Query params: limit (default 10), since (RFC 3339 date, optional).
func (s *Server) handleMostBorrowed(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer", s.logger)
			return
		}
		limit = n
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(w, "since must be an RFC 3339 timestamp", s.logger)
			return
		}
		since = &t
	}

	counts, err := s.circulation.MostBorrowed(r.Context(), limit, since)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, counts, s.logger)
}
