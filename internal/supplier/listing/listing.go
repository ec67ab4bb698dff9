// Package listing turns an unknown product listing into ProductRecords and
// follows its pagination one page at a time.
package listing

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"supplierbot/internal/components/assert"
	"supplierbot/internal/components/telemetry"
	"supplierbot/internal/supplier"
	"supplierbot/internal/supplier/fetch"
)

const (
	report_extractor_page      = "extractor.page"
	report_extractor_max_pages = "extractor.max-pages"
	report_extractor_loop      = "extractor.pagination-loop"
)

// Fetcher is the part of *fetch.Fetcher the extractor needs.
type Fetcher interface {
	Get(ctx context.Context, target string) (fetch.Page, error)
}

type Options struct {
	// MaxPages bounds the amount of pages visited when following pagination,
	// defaults to 200.
	MaxPages int
}

type Extractor struct {
	fetcher Fetcher
	opts    Options
	tel     telemetry.API
}

func NewExtractor(fetcher Fetcher, opts Options, tel telemetry.API) Extractor {
	assert.NotNil(fetcher)
	assert.NotNil(tel)
	if opts.MaxPages <= 0 {
		opts.MaxPages = 200
	}
	return Extractor{
		fetcher: fetcher,
		opts:    opts,
		tel:     telemetry.NewScopedAPI("listing", tel),
	}
}

func visitKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

// Records lazily fetches the listing starting at start and yields its records
// in page order. A fetch failure is yielded once as the last element. The
// sequence holds no state between iterations, iterating it again starts over
// from the first page.
func (e Extractor) Records(ctx context.Context, start string) iter.Seq2[supplier.ProductRecord, error] {
	return func(yield func(supplier.ProductRecord, error) bool) {
		visited := map[string]struct{}{}
		target := start

		for pages := 1; ; pages++ {
			page, err := e.fetcher.Get(ctx, target)
			if err != nil {
				yield(supplier.ProductRecord{}, err)
				return
			}
			visited[visitKey(page.URL)] = struct{}{}

			records, strategy := ExtractPage(page.Doc)
			if strategy == "" {
				e.tel.ReportDebug(report_extractor_page, supplier.ErrExtractionEmpty, page.URL.String())
			} else {
				e.tel.ReportDebug(report_extractor_page, page.URL.String(), strategy, len(records))
			}
			for _, r := range records {
				if !yield(r, nil) {
					return
				}
			}

			next := NextPage(page.URL, page.Doc)
			if next == nil {
				return
			}
			if _, seen := visited[visitKey(next)]; seen {
				e.tel.ReportDebug(report_extractor_loop, next.String())
				return
			}
			if pages >= e.opts.MaxPages {
				e.tel.ReportWarning(
					report_extractor_max_pages,
					fmt.Errorf("stopped after %d pages", pages),
					next.String(),
				)
				return
			}
			visited[visitKey(next)] = struct{}{}
			target = next.String()
		}
	}
}

// Collect drains seq, returning the records read before the first error
// alongside that error.
func Collect(seq iter.Seq2[supplier.ProductRecord, error]) ([]supplier.ProductRecord, error) {
	records := []supplier.ProductRecord{}
	for r, err := range seq {
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
	return records, nil
}
