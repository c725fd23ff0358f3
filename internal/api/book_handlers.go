package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/http/response"
	"github.com/stacksapp/stacks-server/internal/service"
)

// handleAddBook catalogues a new title.
func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var input service.AddBookInput
	if !s.decodeJSON(w, r, &input) {
		return
	}

	book, err := s.catalog.AddBook(r.Context(), input)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, book, s.logger)
}

// handleListBooks returns the whole catalog.
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.catalog.ListBooks(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, books, s.logger)
}

// handleSearchBooks searches by title, author, or category.
// Query params: q (fragment), field (title|author|category, default title).
func (s *Server) handleSearchBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.BadRequest(w, "query parameter q is required", s.logger)
		return
	}
	field := r.URL.Query().Get("field")

	books, err := s.catalog.SearchBooks(r.Context(), field, query)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, books, s.logger)
}

// handleGetBook returns one title with authors and category resolved.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.catalog.GetBook(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, book, s.logger)
}

// handleSetBranchInventory stocks a title at a branch.
func (s *Server) handleSetBranchInventory(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Copies int `json:"copies"`
	}
	if !s.decodeJSON(w, r, &input) {
		return
	}

	isbn := chi.URLParam(r, "isbn")
	branchID := chi.URLParam(r, "branchID")
	if err := s.catalog.SetBranchInventory(r.Context(), isbn, branchID, input.Copies); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, map[string]any{
		"isbn":      isbn,
		"branch_id": branchID,
		"copies":    input.Copies,
	}, s.logger)
}

// handleAddAuthor creates an author record.
func (s *Server) handleAddAuthor(w http.ResponseWriter, r *http.Request) {
	var author domain.Author
	if !s.decodeJSON(w, r, &author) {
		return
	}

	created, err := s.catalog.AddAuthor(r.Context(), &author)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, created, s.logger)
}

// handleAddCategory creates a category.
func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name string `json:"name"`
	}
	if !s.decodeJSON(w, r, &input) {
		return
	}

	category, err := s.catalog.AddCategory(r.Context(), input.Name)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, category, s.logger)
}

// handleAddBranch creates a branch location.
func (s *Server) handleAddBranch(w http.ResponseWriter, r *http.Request) {
	var branch domain.Branch
	if !s.decodeJSON(w, r, &branch) {
		return
	}

	created, err := s.catalog.AddBranch(r.Context(), &branch)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, created, s.logger)
}

// handleInventoryAudit lists titles whose catalog-wide copy counter
// disagrees with the sum of their branch shelf counts.
func (s *Server) handleInventoryAudit(w http.ResponseWriter, r *http.Request) {
	mismatches, err := s.catalog.InventoryAudit(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, mismatches, s.logger)
}
