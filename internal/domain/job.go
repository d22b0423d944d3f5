package domain

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Request is the unit of requested work: one category page of a listing site.
type Request struct {
	URL         string `json:"url"`
	Category    string `json:"category"`
	Page        int    `json:"page"`
	MaxProducts int    `json:"max_products"`
}

// Job is a Request with a lifecycle. It lives on the broker: pending jobs sit
// in the tasks queue, finished ones are republished to the results or failed
// queue. Status moves pending → processing → completed|failed and never back.
type Job struct {
	ID           string  `json:"id"`
	Request      Request `json:"request"`
	Status       Status  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	StartedAt    *string `json:"started_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	ResultFile   *string `json:"result_file,omitempty"`
}

// Response is the cacheable summary of a job's last known outcome.
type Response struct {
	TaskID      string `json:"task_id"`
	Status      Status `json:"status"`
	Message     string `json:"message"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Page        int    `json:"page"`
	MaxProducts int    `json:"max_products"`
}

// Result summarizes a completed extraction run.
type Result struct {
	TaskID        string   `json:"task_id"`
	ProductsCount int      `json:"products_count"`
	SuccessRate   float64  `json:"success_rate"`
	Duration      float64  `json:"duration"`
	OutputFile    string   `json:"output_file"`
	Errors        []string `json:"errors,omitempty"`
}

// Product is one extracted listing record.
type Product struct {
	Title              string   `json:"title"`
	URL                string   `json:"url"`
	Seller             string   `json:"seller"`
	CurrentPrice       *float64 `json:"current_price"`
	OriginalPrice      *float64 `json:"original_price,omitempty"`
	DiscountPercentage string   `json:"discount_percentage,omitempty"`
	Currency           string   `json:"currency"`
	Rating             *float64 `json:"rating,omitempty"`
	ReviewCount        *int     `json:"review_count,omitempty"`
	Category           string   `json:"category"`
	Page               int      `json:"page"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// DedupKey canonicalizes a (category, page) pair. The same pair always maps
// to the same key regardless of input case.
func DedupKey(category string, page int) string {
	return fmt.Sprintf("%s:page:%d", strings.ToUpper(category), page)
}

func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
