package boostapi

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/suspectuso/boost-tracker/internal/payment"
)

const (
	DefaultPageItems   = 1000
	MaxPageItems       = 1000 // the API caps a page here
	DefaultMaxPages    = 100
	DefaultPageTimeout = 30 * time.Second

	enrichConcurrency = 16
)

// Pager fetches pages of stored boosts
type Pager interface {
	GetBoosts(ctx context.Context, q Query) ([]payment.Invoice, error)
}

// Filters restricts which historical boosts are requested
type Filters struct {
	Before       int64
	After        int64
	Podcasts     []string
	EventGUIDs   []string
	EpisodeGUIDs []string
}

// Loader replays historical boosts oldest to newest
type Loader struct {
	pager       Pager
	resolver    payment.RemoteResolver
	log         *slog.Logger
	items       int
	maxPages    int
	pageTimeout time.Duration
}

// NewLoader creates a Loader. Zero items or maxPages fall back to defaults;
// items above what the API serves per page are clamped.
func NewLoader(pager Pager, resolver payment.RemoteResolver, items, maxPages int, log *slog.Logger) *Loader {
	if items <= 0 {
		items = DefaultPageItems
	}
	if items > MaxPageItems {
		log.Warn("page size above api limit, clamping", "items", items, "max", MaxPageItems)
		items = MaxPageItems
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &Loader{
		pager:       pager,
		resolver:    resolver,
		log:         log,
		items:       items,
		maxPages:    maxPages,
		pageTimeout: DefaultPageTimeout,
	}
}

// Load pages through the boosts API and hands every boost to fn, marked as
// old. It returns the newest creation date seen, starting from f.After.
// Fetch failures end the load early; they are logged, not returned.
func (l *Loader) Load(ctx context.Context, f Filters, fn func(payment.Payment)) int64 {
	watermark := f.After

	for page := 1; ; page++ {
		if page > l.maxPages {
			l.log.Warn("historical load stopped at page limit", "max_pages", l.maxPages)
			break
		}

		invoices, err := l.fetchPage(ctx, f, page)
		if err != nil {
			l.log.Warn("fetch boosts page", "page", page, "error", err)
			break
		}

		if len(invoices) == 0 {
			break
		}

		for _, p := range l.preparePage(ctx, invoices) {
			if ctx.Err() != nil {
				return watermark
			}
			fn(p)
		}

		for _, inv := range invoices {
			if date := int64(inv.CreationDate); date > watermark {
				watermark = date
			}
		}

		l.log.Debug("historical page replayed", "page", page, "records", len(invoices))

		if len(invoices) < l.items {
			break
		}
	}

	return watermark
}

func (l *Loader) fetchPage(ctx context.Context, f Filters, page int) ([]payment.Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, l.pageTimeout)
	defer cancel()

	return l.pager.GetBoosts(ctx, Query{
		Page:         page,
		Items:        l.items,
		CreatedAtGT:  f.After,
		CreatedAtLT:  f.Before,
		Podcasts:     f.Podcasts,
		EventGUIDs:   f.EventGUIDs,
		EpisodeGUIDs: f.EpisodeGUIDs,
	})
}

// preparePage normalizes, sorts and enriches one page. Enrichment runs
// concurrently so the lookups land in the same resolver batch.
func (l *Loader) preparePage(ctx context.Context, invoices []payment.Invoice) []payment.Payment {
	payments := make([]payment.Payment, 0, len(invoices))
	for _, inv := range invoices {
		p, ok := inv.Boost()
		if !ok {
			continue
		}
		p.IsOld = true
		payments = append(payments, p)
	}

	sort.SliceStable(payments, func(i, j int) bool {
		return payments[i].CreationDate < payments[j].CreationDate
	})

	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range payments {
		i := i
		g.Go(func() error {
			payments[i] = payment.Enrich(ctx, l.resolver, payments[i])
			return nil
		})
	}
	g.Wait()

	return payments
}
