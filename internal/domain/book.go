// Package domain contains the core business entities and domain logic for the Stacks lending catalog.
package domain

import "time"

// BookStatus represents the catalog-wide availability state of a title.
type BookStatus string

const (
	// BookStatusAvailable indicates at least one copy is on a shelf somewhere.
	BookStatusAvailable BookStatus = "available"
	// BookStatusCheckedOut indicates every copy is out on loan.
	BookStatusCheckedOut BookStatus = "checked_out"
	// BookStatusReserved is a staff-set override; the counter mutators leave it alone.
	BookStatusReserved BookStatus = "reserved"
	// BookStatusMaintenance marks a title pulled from circulation for repair.
	BookStatusMaintenance BookStatus = "maintenance"
)

// Book represents a title in the lending catalog. AvailableCopies is the
// catalog-wide aggregate; per-branch counts live in branch inventory rows
// and the circulation workflows keep the two in step.
type Book struct {
	ISBN            string     `json:"isbn"`
	Title           string     `json:"title"`
	PublicationYear int        `json:"publication_year"`
	AvailableCopies int        `json:"available_copies"`
	Status          BookStatus `json:"status"`
	CategoryID      string     `json:"category_id,omitempty"`
	Category        *Category  `json:"category,omitempty"`
	Authors         []Author   `json:"authors,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Category classifies a book.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Author describes a contributor to one or more books.
type Author struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Biography   string     `json:"biography,omitempty"`
	Nationality string     `json:"nationality,omitempty"`
	BornAt      *time.Time `json:"born_at,omitempty"`
	Genre       string     `json:"genre,omitempty"`
}

// Branch is a physical library location holding its own copy counts.
type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// IsAvailable reports whether the title can be borrowed catalog-wide:
// copies remain and no status override is in effect.
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0 && b.Status == BookStatusAvailable
}

// DecrementCopies takes one copy off the aggregate count. Crossing to zero
// flips the status to checked out. Already at zero is a silent no-op, not
// an error: branch-level checks are what reject an impossible borrow.
func (b *Book) DecrementCopies() {
	if b.AvailableCopies <= 0 {
		return
	}
	b.AvailableCopies--
	if b.AvailableCopies == 0 {
		b.Status = BookStatusCheckedOut
	}
}

// IncrementCopies puts one copy back on the aggregate count. A checked-out
// title becomes available again once the count is positive. A reserved or
// maintenance override survives both mutators only while the count stays
// above zero: DecrementCopies forces checked_out when it crosses to zero.
func (b *Book) IncrementCopies() {
	b.AvailableCopies++
	if b.AvailableCopies > 0 && b.Status == BookStatusCheckedOut {
		b.Status = BookStatusAvailable
	}
}

// Validate checks the fields every catalog entry must carry.
func (b *Book) Validate() bool {
	return b.ISBN != "" &&
		b.Title != "" &&
		b.PublicationYear > 0 &&
		b.AvailableCopies >= 0
}
