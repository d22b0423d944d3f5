package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapeq/scrapeq/internal/domain"
)

// ProductStore persists extracted product records to Postgres.
type ProductStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProductStore(pool *pgxpool.Pool, logger *slog.Logger) *ProductStore {
	return &ProductStore{pool: pool, logger: logger.With("component", "product_store")}
}

// Insert writes products one row at a time, skipping individual rows that
// fail so one bad record does not lose a whole page. It errors only when
// nothing could be written from a non-empty batch.
func (s *ProductStore) Insert(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	query := `
		INSERT INTO products (
			title, url, seller, current_price, original_price,
			discount_percentage, currency, rating, review_count,
			category, page, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	inserted := 0
	for _, p := range products {
		_, err := s.pool.Exec(ctx, query,
			p.Title,
			p.URL,
			p.Seller,
			p.CurrentPrice,
			p.OriginalPrice,
			p.DiscountPercentage,
			p.Currency,
			p.Rating,
			p.ReviewCount,
			p.Category,
			p.Page,
			p.ScrapedAt,
		)
		if err != nil {
			s.logger.ErrorContext(ctx, "insert product", "title", p.Title, "error", err)
			continue
		}
		inserted++
	}

	if inserted == 0 {
		return fmt.Errorf("no products inserted out of %d", len(products))
	}

	s.logger.InfoContext(ctx, "products persisted", "inserted", inserted, "total", len(products))
	return nil
}
