package drawer

import (
	"context"

	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/search"
)

// SearchCatalog runs a debounced catalog search. Superseded queries
// return search.ErrStale.
func (d *Drawer) SearchCatalog(ctx context.Context, text string) ([]domain.CatalogEntry, error) {
	return runSearch(d, ctx, d.catalogSearch, text)
}

func (d *Drawer) SearchPatients(ctx context.Context, text string) ([]domain.PartyRef, error) {
	return runSearch(d, ctx, d.patientSearch, text)
}

func (d *Drawer) SearchDoctors(ctx context.Context, text string) ([]domain.PartyRef, error) {
	return runSearch(d, ctx, d.doctorSearch, text)
}

// AddFromCatalog adds a picked catalog entry as a new line.
func (d *Drawer) AddFromCatalog(entry domain.CatalogEntry) error {
	return d.Dispatch(calc.AddCatalogItem{Entry: entry})
}

func runSearch[T any](d *Drawer, ctx context.Context, s *search.Searcher[T], text string) ([]T, error) {
	if d.isClosed() {
		return nil, ErrDrawerClosed
	}

	callCtx, release := d.bound(ctx)
	defer release()

	results, err := s.Query(callCtx, text)
	if d.isClosed() {
		return nil, ErrDrawerClosed
	}
	return results, err
}

func (d *Drawer) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
