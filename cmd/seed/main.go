// Package main provides a tool to seed the database with demo circulation data.
//
// This creates a small catalog across two branches plus a handful of members,
// then runs a few borrows so reports and account endpoints have data to show.
//
// Usage:
//
//	DB_PATH=stacks.db go run ./cmd/seed
//	DB_PATH=stacks.db go run ./cmd/seed --with-loans=false  # Catalog only
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/logger"
	"github.com/stacksapp/stacks-server/internal/service"
	"github.com/stacksapp/stacks-server/internal/store/sqlite"
	"github.com/stacksapp/stacks-server/internal/validation"
)

var withLoans = flag.Bool("with-loans", true, "Borrow a few books after seeding the catalog")

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "stacks.db"
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	appLogger := logger.New(logger.Config{Environment: "development"})

	s, err := sqlite.Open(dbPath, appLogger.Logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	catalog := service.NewCatalogService(s, appLogger.Logger)
	members := service.NewMemberService(s, validation.New(), appLogger.Logger)
	circulation := service.NewCirculationService(s, appLogger.Logger)

	branches := seedBranches(ctx, catalog)
	isbns := seedCatalog(ctx, catalog, branches)
	memberIDs := seedMembers(ctx, members)

	if *withLoans {
		seedLoans(ctx, circulation, memberIDs, isbns, branches)
	}

	fmt.Println("Done.")
}

func seedBranches(ctx context.Context, catalog *service.CatalogService) []string {
	specs := []domain.Branch{
		{Name: "Central", Location: "1 Library Square", Contact: "central@stacks.example"},
		{Name: "Riverside", Location: "14 Mill Road", Contact: "riverside@stacks.example"},
	}

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		b := spec
		branch, err := catalog.AddBranch(ctx, &b)
		if err != nil {
			log.Fatalf("Failed to create branch %s: %v", spec.Name, err)
		}
		fmt.Printf("Created branch %s (%s)\n", branch.Name, branch.ID)
		ids = append(ids, branch.ID)
	}
	return ids
}

func seedCatalog(ctx context.Context, catalog *service.CatalogService, branches []string) []string {
	fiction, err := catalog.AddCategory(ctx, "Fiction")
	if err != nil {
		log.Fatalf("Failed to create category: %v", err)
	}
	science, err := catalog.AddCategory(ctx, "Science")
	if err != nil {
		log.Fatalf("Failed to create category: %v", err)
	}

	authors := map[string]string{}
	for _, name := range []string{"Ursula K. Le Guin", "Carl Sagan", "Octavia E. Butler"} {
		a, err := catalog.AddAuthor(ctx, &domain.Author{Name: name})
		if err != nil {
			log.Fatalf("Failed to create author %s: %v", name, err)
		}
		authors[name] = a.ID
	}

	books := []struct {
		input  service.AddBookInput
		copies []int // per branch, same order as branches
	}{
		{
			input: service.AddBookInput{
				ISBN:            "9780441007318",
				Title:           "The Left Hand of Darkness",
				PublicationYear: 1969,
				CategoryID:      fiction.ID,
				AuthorIDs:       []string{authors["Ursula K. Le Guin"]},
			},
			copies: []int{3, 1},
		},
		{
			input: service.AddBookInput{
				ISBN:            "9780345539434",
				Title:           "Cosmos",
				PublicationYear: 1980,
				CategoryID:      science.ID,
				AuthorIDs:       []string{authors["Carl Sagan"]},
			},
			copies: []int{2, 2},
		},
		{
			input: service.AddBookInput{
				ISBN:            "9780807083697",
				Title:           "Kindred",
				PublicationYear: 1979,
				CategoryID:      fiction.ID,
				AuthorIDs:       []string{authors["Octavia E. Butler"]},
			},
			copies: []int{1, 0},
		},
	}

	isbns := make([]string, 0, len(books))
	for _, b := range books {
		book, err := catalog.AddBook(ctx, b.input)
		if err != nil {
			log.Fatalf("Failed to create book %s: %v", b.input.Title, err)
		}
		for i, branchID := range branches {
			if b.copies[i] == 0 {
				continue
			}
			if err := catalog.SetBranchInventory(ctx, book.ISBN, branchID, b.copies[i]); err != nil {
				log.Fatalf("Failed to set inventory for %s: %v", book.Title, err)
			}
		}
		fmt.Printf("Created book %q (%s)\n", book.Title, book.ISBN)
		isbns = append(isbns, book.ISBN)
	}
	return isbns
}

func seedMembers(ctx context.Context, members *service.MemberService) []string {
	inputs := []service.RegisterMemberInput{
		{
			Type:      domain.MemberTypeStudent,
			FullName:  "Ada Okafor",
			Email:     "ada.okafor@stacks.example",
			StudentID: "S-1042",
		},
		{
			Type:       domain.MemberTypeFaculty,
			FullName:   "Miriam Castillo",
			Email:      "m.castillo@stacks.example",
			EmployeeID: "F-220",
			Department: "Physics",
		},
	}

	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		m, err := members.Register(ctx, input)
		if err != nil {
			log.Fatalf("Failed to register member %s: %v", input.FullName, err)
		}
		fmt.Printf("Registered %s member %s (%s)\n", m.Type, m.FullName, m.ID)
		ids = append(ids, m.ID)
	}
	return ids
}

func seedLoans(ctx context.Context, circulation *service.CirculationService, memberIDs, isbns, branches []string) {
	loans := []struct {
		member, isbn, branch string
	}{
		{memberIDs[0], isbns[0], branches[0]},
		{memberIDs[1], isbns[1], branches[1]},
	}

	for _, l := range loans {
		outcome := circulation.Borrow(ctx, l.member, l.isbn, l.branch)
		if !outcome.Success {
			log.Fatalf("Seed borrow rejected: %s", outcome.Message)
		}
		fmt.Printf("Borrowed %q for %s (loan %s, due %s)\n", outcome.BookTitle, l.member, outcome.LoanID, outcome.DueAt.Format("2006-01-02"))
	}
}
