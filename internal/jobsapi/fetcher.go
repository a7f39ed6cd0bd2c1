package jobsapi

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 100

// Searcher returns one page of listing stubs.
type Searcher interface {
	SearchPage(ctx context.Context, page, size int) (*SearchResult, error)
}

// FetchResult is the outcome of walking the search endpoint.
type FetchResult struct {
	TotalReported int
	Pages         int
	Stubs         []catalog.ListingStub
}

// Fetcher walks the search endpoint page by page.
type Fetcher struct {
	searcher Searcher
	pageSize int
}

// NewFetcher creates a Fetcher with a fixed page size.
func NewFetcher(searcher Searcher, pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fetcher{searcher: searcher, pageSize: pageSize}
}

// PageSize returns the fixed page size.
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// PageCount returns ceil(total/size), capped by maxPages when maxPages > 0.
func PageCount(total, size, maxPages int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	pages := (total + size - 1) / size
	if maxPages > 0 && maxPages < pages {
		return maxPages
	}
	return pages
}

// FetchAll fetches every page the first response says exists, or at most
// maxPages when maxPages > 0. Any page failure aborts the whole fetch.
// Request spacing comes from the searcher's throttle.
func (f *Fetcher) FetchAll(ctx context.Context, maxPages int) (*FetchResult, error) {
	first, err := f.searcher.SearchPage(ctx, 1, f.pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch page 1: %w", err)
	}

	total := first.TotalReported
	pages := PageCount(total, f.pageSize, maxPages)
	log.Printf("[fetcher] total=%d pageSize=%d pages=%d", total, f.pageSize, pages)

	result := &FetchResult{
		TotalReported: total,
		Pages:         1,
		Stubs:         append([]catalog.ListingStub(nil), first.Stubs...),
	}
	if pages <= 1 {
		return result, nil
	}

	for page := 2; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		next, err := f.searcher.SearchPage(ctx, page, f.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d of %d: %w", page, pages, err)
		}
		result.Stubs = append(result.Stubs, next.Stubs...)
		result.Pages++
	}

	log.Printf("[fetcher] fetched %d listings from %d pages", len(result.Stubs), result.Pages)
	return result, nil
}
