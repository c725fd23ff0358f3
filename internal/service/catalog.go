package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacksapp/stacks-server/internal/domain"
	apperrors "github.com/stacksapp/stacks-server/internal/errors"
	"github.com/stacksapp/stacks-server/internal/id"
	"github.com/stacksapp/stacks-server/internal/store"
)

// CatalogService manages the book catalog: titles, authors, categories,
// branches, and per-branch shelf counts.
type CatalogService struct {
	store  store.Store
	logger *slog.Logger

	now func() time.Time
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(store store.Store, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// AddBookInput carries the fields for cataloguing a new title.
type AddBookInput struct {
	ISBN            string   `json:"isbn" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	PublicationYear int      `json:"publication_year" validate:"required,gt=0"`
	CategoryID      string   `json:"category_id,omitempty"`
	AuthorIDs       []string `json:"author_ids,omitempty"`
}

// MemberHistory bundles everything a member has done at the desk.
type MemberHistory struct {
	Loans        []*domain.Loan        `json:"loans"`
	Reservations []*domain.Reservation `json:"reservations"`
	Payments     []*domain.Payment     `json:"payments"`
}

// AddBook catalogues a new title with zero copies; stock arrives through
// SetBranchInventory.
func (s *CatalogService) AddBook(ctx context.Context, input AddBookInput) (*domain.Book, error) {
	now := s.now().UTC()

	book := &domain.Book{
		ISBN:            input.ISBN,
		Title:           input.Title,
		PublicationYear: input.PublicationYear,
		Status:          domain.BookStatusAvailable,
		CategoryID:      input.CategoryID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !book.Validate() {
		return nil, apperrors.Validation("ISBN, title, and publication year are required")
	}

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateBook(ctx, book); err != nil {
			if apperrors.Is(err, store.ErrAlreadyExists) {
				return apperrors.Conflict("A book with this ISBN already exists")
			}
			return apperrors.Persistence("create book", err)
		}
		if len(input.AuthorIDs) > 0 {
			if err := tx.SetBookAuthors(ctx, book.ISBN, input.AuthorIDs); err != nil {
				return apperrors.Persistence("set book authors", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book catalogued", "isbn", book.ISBN, "title", book.Title)
	return book, nil
}

// GetBook returns a title with its authors and category resolved.
func (s *CatalogService) GetBook(ctx context.Context, isbn string) (*domain.Book, error) {
	var book *domain.Book
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		book, err = tx.GetBook(ctx, isbn)
		return err
	})
	if err != nil {
		if apperrors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("Book not found")
		}
		return nil, apperrors.Persistence("get book", err)
	}
	return book, nil
}

// ListBooks returns the whole catalog ordered by title.
func (s *CatalogService) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	var books []*domain.Book
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		books, err = tx.ListBooks(ctx)
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("list books", err)
	}
	return books, nil
}

// SearchBooks matches titles against a fragment by title, author name, or
// category id. Unknown fields fall back to a title search.
func (s *CatalogService) SearchBooks(ctx context.Context, field, query string) ([]*domain.Book, error) {
	var books []*domain.Book
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		switch field {
		case "author":
			books, err = tx.SearchBooksByAuthor(ctx, query)
		case "category":
			books, err = tx.ListBooksByCategory(ctx, query)
		default:
			books, err = tx.SearchBooksByTitle(ctx, query)
		}
		return err
	})
	if err != nil {
		return nil, apperrors.Persistence("search books", err)
	}
	return books, nil
}

// AddCategory creates a catalog category.
func (s *CatalogService) AddCategory(ctx context.Context, name string) (*domain.Category, error) {
	if name == "" {
		return nil, apperrors.Validation("Category name is required")
	}

	category := &domain.Category{ID: id.MustGenerate("cat"), Name: name}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateCategory(ctx, category); err != nil {
			if apperrors.Is(err, store.ErrAlreadyExists) {
				return apperrors.Conflict("A category with this name already exists")
			}
			return apperrors.Persistence("create category", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// AddAuthor creates an author record.
func (s *CatalogService) AddAuthor(ctx context.Context, a *domain.Author) (*domain.Author, error) {
	if a.Name == "" {
		return nil, apperrors.Validation("Author name is required")
	}

	a.ID = id.MustGenerate("auth")
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateAuthor(ctx, a); err != nil {
			return apperrors.Persistence("create author", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AddBranch creates a branch location.
func (s *CatalogService) AddBranch(ctx context.Context, b *domain.Branch) (*domain.Branch, error) {
	if b.Name == "" {
		return nil, apperrors.Validation("Branch name is required")
	}

	b.ID = id.MustGenerate("br")
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateBranch(ctx, b); err != nil {
			return apperrors.Persistence("create branch", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SetBranchInventory stocks a title at a branch and reconciles the
// catalog-wide counter by the delta from the previous shelf count.
func (s *CatalogService) SetBranchInventory(ctx context.Context, isbn, branchID string, copies int) error {
	if copies < 0 {
		return apperrors.Validation("Copy count cannot be negative")
	}
	now := s.now().UTC()

	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		book, err := tx.GetBook(ctx, isbn)
		if err != nil {
			return bookLookupError(err)
		}
		if _, err := tx.GetBranch(ctx, branchID); err != nil {
			if apperrors.Is(err, store.ErrNotFound) {
				return apperrors.NotFound("Branch not found")
			}
			return apperrors.Persistence("get branch", err)
		}

		previous, err := tx.BranchInventory(ctx, isbn, branchID)
		if err != nil {
			return apperrors.Persistence("read branch inventory", err)
		}
		if err := tx.SetBranchInventory(ctx, isbn, branchID, copies); err != nil {
			return apperrors.Persistence("set branch inventory", err)
		}

		book.AvailableCopies += copies - previous
		if book.AvailableCopies > 0 && book.Status == domain.BookStatusCheckedOut {
			book.Status = domain.BookStatusAvailable
		}
		if book.AvailableCopies == 0 && book.Status == domain.BookStatusAvailable {
			book.Status = domain.BookStatusCheckedOut
		}
		book.UpdatedAt = now
		return tx.UpdateBook(ctx, book)
	})
	if err != nil {
		return err
	}

	s.logger.Info("branch inventory set", "isbn", isbn, "branch_id", branchID, "copies", copies)
	return nil
}

// MemberHistory returns everything a member has borrowed, reserved, and paid.
func (s *CatalogService) MemberHistory(ctx context.Context, memberID string) (*MemberHistory, error) {
	history := &MemberHistory{}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return memberLookupError(err)
		}
		var err error
		if history.Loans, err = tx.ListLoansByMember(ctx, memberID); err != nil {
			return apperrors.Persistence("list loans", err)
		}
		if history.Reservations, err = tx.ListReservationsByMember(ctx, memberID); err != nil {
			return apperrors.Persistence("list reservations", err)
		}
		if history.Payments, err = tx.ListPaymentsByMember(ctx, memberID); err != nil {
			return apperrors.Persistence("list payments", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// InventoryMismatch is a title whose catalog-wide counter disagrees with
// the sum of its branch shelf counts.
type InventoryMismatch struct {
	ISBN          string `json:"isbn"`
	Title         string `json:"title"`
	CatalogCopies int    `json:"catalog_copies"`
	BranchCopies  int    `json:"branch_copies"`
}

// InventoryAudit compares every title's catalog-wide counter against the
// sum of its branch shelf counts and returns the titles that disagree.
// Both counters move together inside the circulation workflows, so a
// non-empty result means something wrote around the engine.
func (s *CatalogService) InventoryAudit(ctx context.Context) ([]*InventoryMismatch, error) {
	var mismatches []*InventoryMismatch
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		books, err := tx.ListBooks(ctx)
		if err != nil {
			return apperrors.Persistence("list books", err)
		}
		for _, book := range books {
			total, err := tx.SumBranchInventory(ctx, book.ISBN)
			if err != nil {
				return apperrors.Persistence("sum branch inventory", err)
			}
			if total != book.AvailableCopies {
				mismatches = append(mismatches, &InventoryMismatch{
					ISBN:          book.ISBN,
					Title:         book.Title,
					CatalogCopies: book.AvailableCopies,
					BranchCopies:  total,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(mismatches) > 0 {
		s.logger.Warn("inventory counters out of sync", "titles", len(mismatches))
	}
	return mismatches, nil
}
