// cmd/seed/main.go
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bookcatalog/internal/catalog"
	"bookcatalog/internal/clients"
	"bookcatalog/internal/config"
	"bookcatalog/internal/telemetry"

	"go.uber.org/zap"
)

type sample struct {
	title, author, isbn, category, location string
	year, copies                            int
	status                                  catalog.Status
}

var samples = []sample{
	{"Introduction to Algorithms", "Thomas H. Cormen", "9780262033848", "Computer Science", "Engineering Library", 2009, 4, catalog.StatusAvailable},
	{"The History of the Ancient World", "Susan Wise Bauer", "9780393059748", "History", "Humanities Library", 2007, 0, catalog.StatusCheckedOut},
	{"Principles of Microeconomics", "N. Gregory Mankiw", "9781305971493", "Economics", "Business Library", 2019, 2, catalog.StatusReserved},
}

func (s sample) input() catalog.BookInput {
	status := string(s.status)
	return catalog.BookInput{
		Title:           &s.title,
		Author:          &s.author,
		ISBN:            &s.isbn,
		Category:        &s.category,
		PublishYear:     catalog.IntNumber(s.year),
		AvailableCopies: catalog.IntNumber(s.copies),
		Location:        &s.location,
		Status:          &status,
	}
}

func main() {
	cfg, err := config.Load(".env", ".env.local")
	if err != nil {
		os.Stderr.WriteString("load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, "console")
	if err != nil {
		os.Stderr.WriteString("create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := seed(ctx, clients.NewCatalogClient(cfg.CatalogURL), logger); err != nil {
		logger.Fatal("seeding failed", zap.String("catalog", cfg.CatalogURL), zap.Error(err))
	}
}

// seed creates the sample books, leaving any whose ISBN already exists.
func seed(ctx context.Context, svc catalog.Service, logger *zap.Logger) error {
	if err := svc.Health(ctx); err != nil {
		return err
	}
	for _, s := range samples {
		book, err := svc.Create(ctx, s.input())
		switch {
		case errors.Is(err, catalog.ErrDuplicateISBN):
			logger.Info("already present", zap.String("isbn", s.isbn))
		case err != nil:
			return err
		default:
			logger.Info("created", zap.String("id", book.ID.String()), zap.String("title", book.Title))
		}
	}
	return nil
}
