package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/store"
)

const bookColumns = `isbn, title, publication_year, available_copies, status,
	category_id, created_at, updated_at`

func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var b domain.Book

	var (
		categoryID sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&b.ISBN,
		&b.Title,
		&b.PublicationYear,
		&b.AvailableCopies,
		&b.Status,
		&categoryID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.CategoryID = categoryID.String

	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// CreateBook inserts a new catalog entry.
// Returns store.ErrAlreadyExists if the ISBN is already catalogued.
func (t *Tx) CreateBook(ctx context.Context, b *domain.Book) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO books (
			isbn, title, publication_year, available_copies, status,
			category_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ISBN,
		b.Title,
		b.PublicationYear,
		b.AvailableCopies,
		b.Status,
		nullString(b.CategoryID),
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetBook fetches a catalog entry by ISBN with its category and authors
// resolved. Returns store.ErrNotFound if absent.
func (t *Tx) GetBook(ctx context.Context, isbn string) (*domain.Book, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = ?`, isbn)

	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if b.CategoryID != "" {
		var c domain.Category
		err = t.tx.QueryRowContext(ctx,
			`SELECT id, name FROM categories WHERE id = ?`, b.CategoryID).
			Scan(&c.ID, &c.Name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			b.Category = &c
		}
	}

	b.Authors, err = t.bookAuthors(ctx, isbn)
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (t *Tx) bookAuthors(ctx context.Context, isbn string) ([]domain.Author, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT a.id, a.name, a.biography, a.nationality, a.born_at, a.genre
		FROM authors a
		JOIN book_authors ba ON ba.author_id = a.id
		WHERE ba.book_isbn = ?
		ORDER BY a.name`, isbn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []domain.Author
	for rows.Next() {
		var a domain.Author
		var bio, nationality, genre, bornAt sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &bio, &nationality, &bornAt, &genre); err != nil {
			return nil, err
		}
		a.Biography = bio.String
		a.Nationality = nationality.String
		a.Genre = genre.String
		a.BornAt, err = parseNullableTime(bornAt)
		if err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// ListBooks returns every catalog entry ordered by title.
func (t *Tx) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return t.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY title`)
}

// SearchBooksByTitle returns entries whose title contains the fragment,
// case-insensitively.
func (t *Tx) SearchBooksByTitle(ctx context.Context, title string) ([]*domain.Book, error) {
	return t.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books
		WHERE title LIKE ? COLLATE NOCASE ORDER BY title`,
		"%"+title+"%")
}

// SearchBooksByAuthor returns entries with an author whose name contains
// the fragment, case-insensitively.
func (t *Tx) SearchBooksByAuthor(ctx context.Context, author string) ([]*domain.Book, error) {
	return t.queryBooks(ctx, `
		SELECT DISTINCT b.isbn, b.title, b.publication_year, b.available_copies,
			b.status, b.category_id, b.created_at, b.updated_at
		FROM books b
		JOIN book_authors ba ON ba.book_isbn = b.isbn
		JOIN authors a ON a.id = ba.author_id
		WHERE a.name LIKE ? COLLATE NOCASE
		ORDER BY b.title`,
		"%"+author+"%")
}

// ListBooksByCategory returns entries in one category ordered by title.
func (t *Tx) ListBooksByCategory(ctx context.Context, categoryID string) ([]*domain.Book, error) {
	return t.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books WHERE category_id = ? ORDER BY title`,
		categoryID)
}

func (t *Tx) queryBooks(ctx context.Context, query string, args ...any) ([]*domain.Book, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook performs a full row update on an existing catalog entry.
// Returns store.ErrNotFound if the ISBN is not catalogued.
func (t *Tx) UpdateBook(ctx context.Context, b *domain.Book) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE books SET
			title = ?,
			publication_year = ?,
			available_copies = ?,
			status = ?,
			category_id = ?,
			updated_at = ?
		WHERE isbn = ?`,
		b.Title,
		b.PublicationYear,
		b.AvailableCopies,
		b.Status,
		nullString(b.CategoryID),
		formatTime(b.UpdatedAt),
		b.ISBN,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateCategory inserts a category.
func (t *Tx) CreateCategory(ctx context.Context, c *domain.Category) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

// CreateAuthor inserts an author.
func (t *Tx) CreateAuthor(ctx context.Context, a *domain.Author) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO authors (id, name, biography, nationality, born_at, genre)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Name,
		nullString(a.Biography),
		nullString(a.Nationality),
		nullTimeString(a.BornAt),
		nullString(a.Genre),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

// SetBookAuthors replaces the author list attached to an ISBN.
func (t *Tx) SetBookAuthors(ctx context.Context, isbn string, authorIDs []string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM book_authors WHERE book_isbn = ?`, isbn)
	if err != nil {
		return err
	}
	for _, authorID := range authorIDs {
		_, err = t.tx.ExecContext(ctx,
			`INSERT INTO book_authors (book_isbn, author_id) VALUES (?, ?)`,
			isbn, authorID)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateBranch inserts a branch.
func (t *Tx) CreateBranch(ctx context.Context, b *domain.Branch) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO branches (id, name, location, contact) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, nullString(b.Location), nullString(b.Contact))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

// GetBranch fetches a branch by id. Returns store.ErrNotFound if absent.
func (t *Tx) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	var b domain.Branch
	var location, contact sql.NullString

	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, location, contact FROM branches WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &location, &contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	b.Location = location.String
	b.Contact = contact.String
	return &b, nil
}

// BranchInventory returns the copy count of a title at one branch. A
// missing inventory row reads as zero copies.
func (t *Tx) BranchInventory(ctx context.Context, isbn, branchID string) (int, error) {
	var copies int
	err := t.tx.QueryRowContext(ctx,
		`SELECT copies FROM branch_inventory WHERE book_isbn = ? AND branch_id = ?`,
		isbn, branchID).Scan(&copies)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return copies, err
}

// SetBranchInventory upserts the copy count of a title at one branch.
func (t *Tx) SetBranchInventory(ctx context.Context, isbn, branchID string, copies int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO branch_inventory (book_isbn, branch_id, copies)
		VALUES (?, ?, ?)
		ON CONFLICT (book_isbn, branch_id) DO UPDATE SET copies = excluded.copies`,
		isbn, branchID, copies)
	return err
}

// SumBranchInventory totals the per-branch copy counts for a title.
func (t *Tx) SumBranchInventory(ctx context.Context, isbn string) (int, error) {
	var total int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(copies), 0) FROM branch_inventory WHERE book_isbn = ?`,
		isbn).Scan(&total)
	return total, err
}
