package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	apperrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
	"github.com/stacksapp/stacks-server/internal/validation"
)

// DefaultMembershipTerm is how long a fresh or renewed membership runs.
const DefaultMembershipTerm = 365 * 24 * time.Hour

// MemberService manages enrollment, renewal, and member account queries.
type MemberService struct {
	store     store.Store
	validator *validation.Validator
	logger    *slog.Logger

	now func() time.Time
}

// NewMemberService creates a new member service.
func NewMemberService(store store.Store, validator *validation.Validator, logger *slog.Logger) *MemberService {
	return &MemberService{
		store:     store,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterMemberInput carries the fields for enrolling a member. Exactly
// one of student or faculty identity fields applies per member type.
type RegisterMemberInput struct {
	Type       domain.MemberType `json:"type" validate:"required,oneof=student faculty"`
	FullName   string            `json:"full_name" validate:"required"`
	Email      string            `json:"email" validate:"required,email"`
	Phone      string            `json:"phone,omitempty"`
	StudentID  string            `json:"student_id,omitempty"`
	EmployeeID string            `json:"employee_id,omitempty"`
	Department string            `json:"department,omitempty"`
}

// MemberAccount is a member with the derived balances the desk cares about.
type MemberAccount struct {
	Member     *domain.Member `json:"member"`
	OpenLoans  int            `json:"open_loans"`
	UnpaidFees float64        `json:"unpaid_fees"`
}

// Register enrolls a new member with a one-year membership.
func (s *MemberService) Register(ctx context.Context, input RegisterMemberInput) (*domain.Member, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ends := now.Add(DefaultMembershipTerm)
	member := &domain.Member{
		ID:               id.MustGenerate("mem"),
		Type:             input.Type,
		FullName:         input.FullName,
		Email:            input.Email,
		Phone:            input.Phone,
		MembershipEndsAt: &ends,
		StudentID:        input.StudentID,
		EmployeeID:       input.EmployeeID,
		Department:       input.Department,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if !member.Validate() {
		return nil, apperrors.Validation("Name and a well-formed email are required")
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateMember(ctx, member); err != nil {
			if apperrors.Is(err, store.ErrAlreadyExists) {
				return apperrors.Conflict("A member with this email already exists")
			}
			return apperrors.Persistence("create member", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member registered",
		"member_id", member.ID, "type", member.Type, "email", member.Email)
	return member, nil
}

// Get returns a member by id.
func (s *MemberService) Get(ctx context.Context, memberID string) (*domain.Member, error) {
	var member *domain.Member
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		member, err = tx.GetMember(ctx, memberID)
		if err != nil {
			return memberLookupError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// List returns every member ordered by name.
func (s *MemberService) List(ctx context.Context) ([]*domain.Member, error) {
	var members []*domain.Member
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		members, err = tx.ListMembers(ctx)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("list members", err)
	}
	return members, nil
}

// Renew extends a membership by the standard term from now.
func (s *MemberService) Renew(ctx context.Context, memberID string) (*domain.Member, error) {
	now := s.now().UTC()

	var member *domain.Member
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		member, err = tx.GetMember(ctx, memberID)
		if err != nil {
			return memberLookupError(err)
		}
		member.RenewMembership(now.Add(DefaultMembershipTerm))
		member.UpdatedAt = now
		if err := tx.UpdateMember(ctx, member); err != nil {
			return apperrors.Persistence("update member", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("membership renewed",
		"member_id", memberID, "ends_at", member.MembershipEndsAt)
	return member, nil
}

// Account returns a member with their open-loan count and fee balance.
func (s *MemberService) Account(ctx context.Context, memberID string) (*MemberAccount, error) {
	account := &MemberAccount{}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		account.Member, err = tx.GetMember(ctx, memberID)
		if err != nil {
			return memberLookupError(err)
		}
		if account.OpenLoans, err = tx.CountOpenLoans(ctx, memberID); err != nil {
			return apperrors.Persistence("count open loans", err)
		}
		if account.UnpaidFees, err = tx.UnpaidFees(ctx, memberID); err != nil {
			return apperrors.Persistence("sum unpaid fees", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
