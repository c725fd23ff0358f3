package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/service"
)

// handleRegisterMember enrolls a new member.
func (s *Server) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterMemberInput
	if !s.decodeJSON(w, r, &input) {
		return
	}

	member, err := s.members.Register(r.Context(), input)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, member, s.logger)
}

// handleListMembers returns every member.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.members.List(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, members, s.logger)
}

// handleGetMember returns one member.
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	member, err := s.members.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, member, s.logger)
}

// handleMemberAccount returns a member with derived balances.
func (s *Server) handleMemberAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.members.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, account, s.logger)
}

// handleMemberHistory returns a member's loans, reservations, and payments.
func (s *Server) handleMemberHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.catalog.MemberHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, history, s.logger)
}

// handleRenewMembership extends a membership by the standard term.
func (s *Server) handleRenewMembership(w http.ResponseWriter, r *http.Request) {
	member, err := s.members.Renew(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, member, s.logger)
}
