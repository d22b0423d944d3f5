package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapeq/scrapeq/internal/domain"
	"github.com/scrapeq/scrapeq/internal/ratelimit"
)

// Scraper fetches listing pages and extracts product records. Every outbound
// request goes through the rate limiter and retry handler.
type Scraper struct {
	client  *http.Client
	limited *ratelimit.Limited
	logger  *slog.Logger
}

func New(limited *ratelimit.Limited, logger *slog.Logger) *Scraper {
	return &Scraper{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limited: limited,
		logger:  logger.With("component", "scraper"),
	}
}

// Extract loads the listing page at rawURL and returns up to maxItems product
// records parsed from it.
func (s *Scraper) Extract(ctx context.Context, rawURL string, maxItems int) ([]domain.Product, error) {
	targetDomain := ratelimit.ExtractDomain(rawURL)

	var products []domain.Product
	err := s.limited.Do(ctx, targetDomain, func(ctx context.Context) error {
		doc, err := s.fetch(ctx, rawURL)
		if err != nil {
			return err
		}

		products, err = s.parseListing(doc, rawURL, maxItems)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "extraction finished", "url", rawURL, "products", len(products))
	return products, nil
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NonRetryableError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	req.Header.Set("Accept-Language", "es-UY,es;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.NavigationError(fmt.Errorf("load %s: %w", rawURL, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domain.RateLimitError(fmt.Errorf("throttled by %s", rawURL))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domain.NavigationError(fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, domain.ExtractionError(fmt.Errorf("parse %s: %w", rawURL, err))
	}
	return doc, nil
}

func (s *Scraper) parseListing(doc *goquery.Document, rawURL string, maxItems int) ([]domain.Product, error) {
	cards := doc.Find(selProductCard)
	if cards.Length() == 0 {
		return nil, domain.ExtractionError(fmt.Errorf("no product cards found at %s", rawURL))
	}

	category, page := requestParams(rawURL)
	now := time.Now().UTC()

	var products []domain.Product
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		if maxItems > 0 && len(products) >= maxItems {
			return false
		}

		title := cleanText(card.Find(selProductTitle).First().Text())
		if title == "" {
			return true // sponsored placeholder cards have no title node
		}

		link, _ := card.Find(selProductLink).First().Attr("href")

		products = append(products, domain.Product{
			Title:              title,
			URL:                link,
			Seller:             cleanText(card.Find(selProductSeller).First().Text()),
			CurrentPrice:       parsePrice(card.Find(selProductPrice).First().Text()),
			OriginalPrice:      parsePrice(card.Find(selProductOldPrice).First().Text()),
			DiscountPercentage: parseDiscount(card.Find(selProductDiscount).First().Text()),
			Currency:           "UYU",
			Rating:             parseRating(card.Find(selProductRating).First().Text()),
			ReviewCount:        parseReviewCount(card.Find(selProductReviews).First().Text()),
			Category:           category,
			Page:               page,
			ScrapedAt:          now,
		})
		return true
	})

	if len(products) == 0 {
		return nil, domain.ExtractionError(fmt.Errorf("no products extracted from %s", rawURL))
	}
	return products, nil
}

// requestParams recovers the category and page the listing URL was built
// with, so each record can be attributed back to its dedup key.
func requestParams(rawURL string) (string, int) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 1
	}
	category := u.Query().Get("category")
	page := 1
	if p := u.Query().Get("page"); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &page); err != nil || page < 1 {
			page = 1
		}
	}
	return category, page
}
