// Package drawer is the bill drawer session. A Drawer owns one bill and
// one mode, routes every edit through calc.Reduce, gates submits with
// form validation, and talks to the bill API through the collaborator
// interfaces in billing/domain.
package drawer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/adapter"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
	"github.com/smallbiznis/clinicdesk/internal/billing/search"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"go.uber.org/zap"
)

var (
	ErrDrawerClosed  = errors.New("drawer_closed")
	ErrSubmitPending = errors.New("submit_pending")
	ErrReadOnly      = errors.New("read_only")
	ErrInvalidMode   = errors.New("invalid_mode")
)

// Deps are the collaborators and settings a drawer needs.
type Deps struct {
	Gateway domain.BillGateway
	Catalog domain.CatalogLookup
	Parties domain.PartyLookup
	Rules   form.Rules
	Clock   clock.Clock
	Log     *zap.Logger

	SearchDebounce  time.Duration
	CatalogPageSize int
	DefaultBillType string
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.CatalogPageSize <= 0 {
		d.CatalogPageSize = 20
	}
	if d.DefaultBillType == "" {
		d.DefaultBillType = domain.BillTypeOPD
	}
	return d
}

// Drawer is safe for concurrent use.
type Drawer struct {
	deps      Deps
	log       *zap.Logger
	validator *form.PayloadValidator

	// lifetime is cancelled by Close; every network call is bound to it.
	lifetime context.Context
	close    context.CancelFunc

	catalogSearch *search.Searcher[domain.CatalogEntry]
	patientSearch *search.Searcher[domain.PartyRef]
	doctorSearch  *search.Searcher[domain.PartyRef]

	mu       sync.Mutex
	mode     domain.Mode
	bill     domain.Bill
	snapshot *domain.Bill
	draft    domain.PaymentDraft
	errs     form.FieldErrors
	notice   string
	pending  bool
	closed   bool
}

func newDrawer(deps Deps) *Drawer {
	deps = deps.withDefaults()
	lifetime, cancel := context.WithCancel(context.Background())

	d := &Drawer{
		deps:      deps,
		log:       deps.Log.Named("billing.drawer"),
		validator: form.NewPayloadValidator(),
		lifetime:  lifetime,
		close:     cancel,
		errs:      form.FieldErrors{},
	}

	d.catalogSearch = search.New(deps.SearchDebounce, func(ctx context.Context, text string) ([]domain.CatalogEntry, error) {
		return deps.Catalog.SearchCatalog(ctx, domain.CatalogQuery{
			SearchText: text,
			ActiveOnly: true,
			PageSize:   deps.CatalogPageSize,
		})
	})
	d.patientSearch = search.New(deps.SearchDebounce, func(ctx context.Context, text string) ([]domain.PartyRef, error) {
		return deps.Parties.SearchParties(ctx, domain.PartyPatient, text)
	})
	d.doctorSearch = search.New(deps.SearchDebounce, func(ctx context.Context, text string) ([]domain.PartyRef, error) {
		return deps.Parties.SearchParties(ctx, domain.PartyDoctor, text)
	})
	return d
}

// NewCreate opens an empty drawer in create mode dated now.
func NewCreate(deps Deps) *Drawer {
	d := newDrawer(deps)
	d.mode = domain.ModeCreate

	bill := domain.Bill{
		BillDate: d.deps.Clock.Now(),
		BillType: d.deps.DefaultBillType,
	}
	if len(d.deps.Rules.PaymentModes) > 0 {
		bill.PaymentMode = d.deps.Rules.PaymentModes[0]
	}
	d.bill = calc.Recompute(bill)
	return d
}

// Open hydrates a stored bill and enters mode, which must be view, edit
// or collect.
func Open(ctx context.Context, deps Deps, id snowflake.ID, mode domain.Mode) (*Drawer, error) {
	if mode != domain.ModeView && mode != domain.ModeEdit && mode != domain.ModeCollect {
		return nil, ErrInvalidMode
	}

	d := newDrawer(deps)
	resp, err := d.deps.Gateway.FetchBill(ctx, id)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.mode = domain.ModeView
	d.bill = adapter.Hydrate(resp)

	switch mode {
	case domain.ModeEdit:
		err = d.Edit()
	case domain.ModeCollect:
		err = d.Collect()
	}
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Close cancels the lifecycle token. In-flight calls are abandoned and
// their results are never applied.
func (d *Drawer) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.catalogSearch.Cancel()
	d.patientSearch.Cancel()
	d.doctorSearch.Cancel()
	d.close()
}

// State is a point-in-time copy of the drawer.
type State struct {
	Mode         domain.Mode
	Capabilities domain.Capabilities
	Bill         domain.Bill
	Draft        domain.PaymentDraft
	Errors       form.FieldErrors
	Notice       string
	Pending      bool
	Closed       bool
}

func (d *Drawer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	errs := make(form.FieldErrors, len(d.errs))
	for k, v := range d.errs {
		errs[k] = v
	}
	return State{
		Mode:         d.mode,
		Capabilities: domain.CapabilitiesOf(d.mode),
		Bill:         d.bill.Clone(),
		Draft:        d.draft,
		Errors:       errs,
		Notice:       d.notice,
		Pending:      d.pending,
		Closed:       d.closed,
	}
}

// Dispatch applies one edit through the reducer.
func (d *Drawer) Dispatch(action calc.Action) error {
	return d.mutate(action.Scope(), func(b domain.Bill) domain.Bill {
		return calc.Reduce(b, action)
	})
}

func (d *Drawer) SelectPatient(p domain.PartyRef) error {
	return d.mutate(domain.ScopeParty, func(b domain.Bill) domain.Bill {
		b.Patient = p
		return b
	})
}

func (d *Drawer) SelectDoctor(p domain.PartyRef) error {
	return d.mutate(domain.ScopeParty, func(b domain.Bill) domain.Bill {
		b.Doctor = p
		return b
	})
}

func (d *Drawer) SetBillDate(t time.Time) error {
	return d.mutate(domain.ScopeItems, func(b domain.Bill) domain.Bill {
		b.BillDate = t
		return b
	})
}

func (d *Drawer) mutate(scope domain.Scope, fn func(domain.Bill) domain.Bill) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.editableLocked(scope); err != nil {
		return err
	}
	// Collect mode edits the payment draft, never the bill.
	if d.mode == domain.ModeCollect {
		return ErrReadOnly
	}
	d.bill = calc.Recompute(fn(d.bill.Clone()))
	d.notice = ""
	return nil
}

func (d *Drawer) editableLocked(scope domain.Scope) error {
	switch {
	case d.closed:
		return ErrDrawerClosed
	case d.pending:
		return ErrSubmitPending
	case !domain.CapabilitiesOf(d.mode).Allows(scope):
		return ErrReadOnly
	}
	return nil
}

// SetPaymentDraft replaces the collect-mode payment input.
func (d *Drawer) SetPaymentDraft(draft domain.PaymentDraft) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.editableLocked(domain.ScopePayment); err != nil {
		return err
	}
	if d.mode != domain.ModeCollect {
		return ErrInvalidMode
	}
	d.draft = draft
	return nil
}

// PaymentPreview reconciles the bill as if the current draft amount had
// been recorded. Outside collect mode it is the bill's own reconciliation.
func (d *Drawer) PaymentPreview() domain.Reconciliation {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != domain.ModeCollect {
		return d.bill.Reconciliation
	}
	amount, msg := form.ParseAmount(d.draft.Amount)
	if msg != "" {
		amount = decimal.Zero
	}
	return calc.Reconcile(d.bill.TotalAmount, d.bill.ReceivedAmount.Add(amount))
}

// Edit moves view -> edit and remembers the bill so CancelEdit can
// restore it.
func (d *Drawer) Edit() error {
	return d.transition(domain.ModeEdit, func() {
		snap := d.bill.Clone()
		d.snapshot = &snap
	})
}

// CancelEdit discards unsaved edits and returns to view mode.
func (d *Drawer) CancelEdit() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != domain.ModeEdit {
		return form.ErrInvalidTransition
	}
	if err := d.transitionLocked(domain.ModeView); err != nil {
		return err
	}
	if d.snapshot != nil {
		d.bill = *d.snapshot
		d.snapshot = nil
	}
	return nil
}

// Collect moves view -> collect with a fresh payment draft.
func (d *Drawer) Collect() error {
	return d.transition(domain.ModeCollect, func() {
		d.draft = domain.PaymentDraft{Mode: d.bill.PaymentMode}
	})
}

// CancelCollect drops the payment draft and returns to view mode.
func (d *Drawer) CancelCollect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != domain.ModeCollect {
		return form.ErrInvalidTransition
	}
	if err := d.transitionLocked(domain.ModeView); err != nil {
		return err
	}
	d.draft = domain.PaymentDraft{}
	return nil
}

func (d *Drawer) transition(to domain.Mode, onEnter func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transitionLocked(to); err != nil {
		return err
	}
	onEnter()
	return nil
}

func (d *Drawer) transitionLocked(to domain.Mode) error {
	if d.closed {
		return ErrDrawerClosed
	}
	if d.pending {
		return ErrSubmitPending
	}
	mode, err := form.Transition(d.mode, to)
	if err != nil {
		return err
	}
	d.mode = mode
	d.errs = form.FieldErrors{}
	d.notice = ""
	return nil
}

// bound returns a context cancelled when either ctx ends or the drawer
// is closed.
func (d *Drawer) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(d.lifetime, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}
