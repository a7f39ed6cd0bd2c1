package jobsapi

import (
	"context"
	"log"

	"github.com/jonathan/job-catalog/internal/catalog"
)

// DetailSource returns the full record for a reference number.
type DetailSource interface {
	Detail(ctx context.Context, refNr string) (*catalog.JobDetailRecord, error)
}

// Enricher turns listing stubs into detail records.
type Enricher struct {
	source DetailSource
}

// NewEnricher creates an Enricher.
func NewEnricher(source DetailSource) *Enricher {
	return &Enricher{source: source}
}

// Enrich never fails. When the detail call fails the record is built from the
// stub alone and degraded is true. Fields the detail body leaves empty are
// filled from the stub.
func (e *Enricher) Enrich(ctx context.Context, stub catalog.ListingStub) (rec *catalog.JobDetailRecord, degraded bool) {
	fallback := catalog.FromStub(stub)

	detail, err := e.source.Detail(ctx, stub.RefNr)
	if err != nil {
		log.Printf("[enricher] %s: detail unavailable, using listing data: %v", stub.RefNr, err)
		return fallback, true
	}
	if detail == nil {
		log.Printf("[enricher] %s: empty detail, using listing data", stub.RefNr)
		return fallback, true
	}

	merged := catalog.MergeDetail(*fallback, *detail)
	return &merged, false
}
