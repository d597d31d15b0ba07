package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/book"
	"github.com/xenking/bookstore/internal/storage/postgres"
)

type bookJSON struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Author   string          `json:"author"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Active   bool            `json:"active"`
}

var seedUsers = []auth.User{
	{ID: "user-admin", Email: "admin@bookstore.com", FirstName: "Admin", LastName: "User", Role: auth.RoleAdmin},
	{ID: "user-customer", Email: "user@bookstore.com", FirstName: "Test", LastName: "User", Role: auth.RoleCustomer},
}

func main() {
	var (
		databaseURL string
		booksFile   string
		jwtSecret   string
		jwtIssuer   string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&booksFile, "books-file", "db/seed/books.json", "path to books JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "secret to sign development tokens with (or JWT_SECRET env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "bookstore", "issuer of development tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of development tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, booksFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if jwtSecret == "" {
		slog.Warn("no jwt secret given, skipping development tokens")
	} else if err := printTokens(jwtSecret, jwtIssuer, tokenTTL); err != nil {
		slog.Error("mint tokens failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, booksFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedBooks(ctx, postgres.NewBookRepository(pool), booksFile); err != nil {
		return errors.Wrap(err, "seed books")
	}

	if err := seedAccounts(ctx, postgres.NewUserRepository(pool)); err != nil {
		return errors.Wrap(err, "seed users")
	}

	return nil
}

func seedBooks(ctx context.Context, repo *postgres.BookRepository, booksFile string) error {
	slog.Info("reading books file", slog.String("path", booksFile))

	data, err := os.ReadFile(booksFile)
	if err != nil {
		return errors.Wrap(err, "read books file")
	}

	var books []bookJSON
	if err := json.Unmarshal(data, &books); err != nil {
		return errors.Wrap(err, "parse books JSON")
	}

	slog.Info("upserting books", slog.Int("count", len(books)))

	for _, b := range books {
		if err := repo.Upsert(ctx, book.Book{
			ID:       b.ID,
			Title:    b.Title,
			Author:   b.Author,
			Category: b.Category,
			Price:    b.Price,
			Stock:    b.Stock,
			IsActive: b.Active,
		}); err != nil {
			return errors.Wrapf(err, "upsert book %s", b.ID)
		}

		slog.Info("upserted book", slog.String("id", b.ID), slog.String("title", b.Title))
	}

	return nil
}

func seedAccounts(ctx context.Context, repo *postgres.UserRepository) error {
	for _, u := range seedUsers {
		if err := repo.Upsert(ctx, u); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.Email)
		}

		slog.Info("upserted user", slog.String("id", u.ID), slog.String("email", u.Email), slog.String("role", string(u.Role)))
	}

	return nil
}

func printTokens(secret, issuer string, ttl time.Duration) error {
	verifier, err := auth.NewVerifier(secret, issuer)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, u := range seedUsers {
		token, err := verifier.Mint(auth.Identity{UserID: u.ID, Role: u.Role}, now, ttl)
		if err != nil {
			return errors.Wrapf(err, "mint token for %s", u.Email)
		}

		slog.Info("development token",
			slog.String("email", u.Email),
			slog.String("expires", now.Add(ttl).Format(time.RFC3339)),
			slog.String("token", token),
		)
	}

	return nil
}
