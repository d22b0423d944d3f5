package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scrapeq/scrapeq/internal/usecase"
)

// Target is one category/page pair to resubmit on every tick.
type Target struct {
	Category string
	Page     int
}

// ParseTargets parses "MLU107:1,MLU1055:2" style entries. A bare category
// defaults to page 1.
func ParseTargets(entries []string) ([]Target, error) {
	var targets []Target
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		category, pageStr, found := strings.Cut(entry, ":")
		page := 1
		if found {
			p, err := strconv.Atoi(pageStr)
			if err != nil || p < 1 {
				return nil, fmt.Errorf("invalid page in target %q", entry)
			}
			page = p
		}
		targets = append(targets, Target{Category: category, Page: page})
	}
	return targets, nil
}

// Dispatcher periodically resubmits the configured targets. The dedup cache
// short-circuits any pair whose previous result is still fresh, so a tight
// schedule degrades to a no-op rather than duplicate scrapes.
type Dispatcher struct {
	scrape   *usecase.ScrapeUsecase
	targets  []Target
	schedule cron.Schedule
	logger   *slog.Logger
}

func NewDispatcher(scrape *usecase.ScrapeUsecase, cronExpr string, targets []Target, logger *slog.Logger) (*Dispatcher, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cronExpr, err)
	}
	return &Dispatcher{
		scrape:   scrape,
		targets:  targets,
		schedule: sched,
		logger:   logger.With("component", "dispatcher"),
	}, nil
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("dispatcher started", "targets", len(d.targets))

	for {
		next := d.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("dispatcher shut down")
			return
		case <-timer.C:
			d.dispatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context) {
	for _, t := range d.targets {
		resp, err := d.scrape.Submit(ctx, usecase.SubmitInput{
			Category: t.Category,
			Page:     t.Page,
		})
		if err != nil {
			d.logger.Error("scheduled submission", "category", t.Category, "page", t.Page, "error", err)
			continue
		}
		d.logger.Info("scheduled submission", "category", t.Category, "page", t.Page,
			"task_id", resp.TaskID, "status", string(resp.Status))
	}
}
