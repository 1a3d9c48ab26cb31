package drawer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
	"github.com/smallbiznis/clinicdesk/internal/billing/search"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeGateway struct {
	mu       sync.Mutex
	stored   map[snowflake.ID]domain.BillResponse
	nextID   snowflake.ID
	failWith error
	// block, when set, holds every call until it is closed.
	block   chan struct{}
	entered chan struct{}
	creates int
	updates int
	pays    []domain.PaymentRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{stored: map[snowflake.ID]domain.BillResponse{}, nextID: 1000}
}

func (g *fakeGateway) wait(ctx context.Context) error {
	g.mu.Lock()
	block, entered := g.block, g.entered
	g.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failWith
}

func (g *fakeGateway) FetchBill(ctx context.Context, id snowflake.ID) (domain.BillResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	resp, ok := g.stored[id]
	if !ok {
		return domain.BillResponse{}, domain.ErrNotFound
	}
	return resp, nil
}

func (g *fakeGateway) CreateBill(ctx context.Context, p domain.BillPayload) (domain.BillResponse, error) {
	if err := g.wait(ctx); err != nil {
		return domain.BillResponse{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	g.nextID++
	resp := responseFor(g.nextID, p)
	g.stored[resp.ID] = resp
	return resp, nil
}

func (g *fakeGateway) UpdateBill(ctx context.Context, id snowflake.ID, p domain.BillPayload) (domain.BillResponse, error) {
	if err := g.wait(ctx); err != nil {
		return domain.BillResponse{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates++
	resp := responseFor(id, p)
	g.stored[id] = resp
	return resp, nil
}

func (g *fakeGateway) RecordPayment(ctx context.Context, id snowflake.ID, req domain.PaymentRequest) (domain.BillResponse, error) {
	if err := g.wait(ctx); err != nil {
		return domain.BillResponse{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pays = append(g.pays, req)
	resp := g.stored[id]
	resp.ReceivedAmount = resp.ReceivedAmount.Add(req.Amount)
	g.stored[id] = resp
	return resp, nil
}

func responseFor(id snowflake.ID, p domain.BillPayload) domain.BillResponse {
	return domain.BillResponse{
		ID:              id,
		BillNumber:      "B-" + id.String(),
		PatientID:       p.PatientID,
		PatientName:     "Asha",
		DoctorID:        p.DoctorID,
		DoctorName:      "Dr. Rao",
		BillDate:        p.BillDate,
		BillType:        p.BillType,
		DiscountPercent: p.DiscountPercent,
		ReceivedAmount:  p.ReceivedAmount,
		PaymentMode:     p.PaymentMode,
		Items:           p.Items,
	}
}

type userErr struct{ msg string }

func (e userErr) Error() string       { return "api: " + e.msg }
func (e userErr) UserMessage() string { return e.msg }

type fakeLookup struct {
	entries []domain.CatalogEntry
	parties map[domain.PartyKind][]domain.PartyRef
}

func (f fakeLookup) SearchCatalog(ctx context.Context, q domain.CatalogQuery) ([]domain.CatalogEntry, error) {
	return f.entries, nil
}

func (f fakeLookup) SearchParties(ctx context.Context, kind domain.PartyKind, text string) ([]domain.PartyRef, error) {
	return f.parties[kind], nil
}

func (f fakeLookup) GetParty(ctx context.Context, kind domain.PartyKind, id snowflake.ID) (domain.PartyRef, error) {
	return domain.PartyRef{ID: id}, nil
}

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testDeps(g *fakeGateway) Deps {
	lookup := fakeLookup{
		entries: []domain.CatalogEntry{{ID: 1, Name: "Consultation", Code: "CONS", UnitPrice: dec("500")}},
		parties: map[domain.PartyKind][]domain.PartyRef{
			domain.PartyPatient: {{ID: 10, Name: "Asha"}},
			domain.PartyDoctor:  {{ID: 20, Name: "Dr. Rao"}},
		},
	}
	return Deps{
		Gateway: g,
		Catalog: lookup,
		Parties: lookup,
		Rules:   form.Rules{PaymentModes: []string{"cash", "card", "upi"}},
		Clock:   clock.NewFakeClock(now),
		Log:     zap.NewNop(),
	}
}

// readyDrawer is a create-mode drawer that passes validation.
func readyDrawer(t *testing.T, g *fakeGateway) *Drawer {
	t.Helper()
	d := NewCreate(testDeps(g))
	require.NoError(t, d.SelectPatient(domain.PartyRef{ID: 10, Name: "Asha"}))
	require.NoError(t, d.SelectDoctor(domain.PartyRef{ID: 20, Name: "Dr. Rao"}))
	require.NoError(t, d.AddFromCatalog(domain.CatalogEntry{ID: 1, Name: "Consultation", Code: "CONS", UnitPrice: dec("500")}))
	require.NoError(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 2}))
	require.NoError(t, d.Dispatch(calc.SetDiscountPercent{Percent: dec("10")}))
	return d
}

func TestNewCreate_Defaults(t *testing.T) {
	d := NewCreate(testDeps(newFakeGateway()))
	st := d.State()

	assert.Equal(t, domain.ModeCreate, st.Mode)
	assert.Equal(t, now, st.Bill.BillDate)
	assert.Equal(t, domain.BillTypeOPD, st.Bill.BillType)
	assert.Equal(t, "cash", st.Bill.PaymentMode)
	assert.Equal(t, domain.PaymentStatusPaid, st.Bill.PaymentStatus)
	assert.True(t, st.Capabilities.CanEditParty)
}

func TestSubmit_InvalidDoesNotCallGateway(t *testing.T) {
	g := newFakeGateway()
	d := NewCreate(testDeps(g))

	out := d.Submit(context.Background())

	assert.Equal(t, StatusInvalid, out.Status)
	assert.Contains(t, out.Errors, form.FieldPatient)
	assert.Contains(t, out.Errors, form.FieldDoctor)
	assert.Contains(t, out.Errors, form.FieldItems)
	assert.Equal(t, 0, g.creates)
	assert.Equal(t, domain.ModeCreate, d.State().Mode)
}

func TestSubmit_CreateMovesToView(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)

	out := d.Submit(context.Background())
	require.Equal(t, StatusSaved, out.Status, out.Notice)

	st := d.State()
	assert.Equal(t, domain.ModeView, st.Mode)
	assert.True(t, st.Bill.Persisted())
	assert.Equal(t, "B-1001", st.Bill.BillNumber)
	assert.True(t, dec("900").Equal(st.Bill.TotalAmount))
	assert.Equal(t, domain.PaymentStatusUnpaid, st.Bill.PaymentStatus)
	assert.Empty(t, st.Errors)
	assert.Equal(t, 1, g.creates)
}

func TestSubmit_FailureLeavesStateUnchanged(t *testing.T) {
	g := newFakeGateway()
	g.failWith = userErr{msg: "Doctor is not available"}
	d := readyDrawer(t, g)
	before := d.State()

	out := d.Submit(context.Background())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "Doctor is not available", out.Notice)

	after := d.State()
	assert.Equal(t, domain.ModeCreate, after.Mode)
	assert.False(t, after.Bill.Persisted())
	require.Len(t, after.Bill.Items, len(before.Bill.Items))
	assert.Equal(t, before.Bill.Items[0].Quantity, after.Bill.Items[0].Quantity)
	assert.True(t, before.Bill.TotalAmount.Equal(after.Bill.TotalAmount))
	assert.Equal(t, "Doctor is not available", after.Notice)
	assert.False(t, after.Pending)
}

func TestSubmit_GenericNoticeForUnknownErrors(t *testing.T) {
	g := newFakeGateway()
	g.failWith = errors.New("dial tcp: connection refused")
	d := readyDrawer(t, g)

	out := d.Submit(context.Background())

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, noticeGeneric, out.Notice)
}

func TestSubmit_OverlappingSubmitRejected(t *testing.T) {
	g := newFakeGateway()
	g.block = make(chan struct{})
	g.entered = make(chan struct{}, 1)
	d := readyDrawer(t, g)

	first := make(chan Outcome, 1)
	go func() { first <- d.Submit(context.Background()) }()
	<-g.entered

	assert.True(t, d.State().Pending)
	second := d.Submit(context.Background())
	assert.Equal(t, StatusRejected, second.Status)

	// Edits are refused while the save is in flight.
	assert.ErrorIs(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 5}), ErrSubmitPending)

	close(g.block)
	assert.Equal(t, StatusSaved, (<-first).Status)
	assert.Equal(t, 1, g.creates)
}

func TestSubmit_CloseDiscardsLateResult(t *testing.T) {
	g := newFakeGateway()
	g.block = make(chan struct{})
	g.entered = make(chan struct{}, 1)
	d := readyDrawer(t, g)

	done := make(chan Outcome, 1)
	go func() { done <- d.Submit(context.Background()) }()
	<-g.entered

	d.Close()

	select {
	case out := <-done:
		assert.Equal(t, StatusDiscarded, out.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after close")
	}

	st := d.State()
	assert.True(t, st.Closed)
	assert.False(t, st.Bill.Persisted())
	assert.Equal(t, domain.ModeCreate, st.Mode)
	assert.ErrorIs(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 3}), ErrDrawerClosed)
	assert.Equal(t, StatusDiscarded, d.Submit(context.Background()).Status)
}

func TestEdit_CancelRestoresSnapshot(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)
	saved := d.State().Bill

	require.NoError(t, d.Edit())
	require.NoError(t, d.Dispatch(calc.RemoveLine{Index: 0}))
	assert.Empty(t, d.State().Bill.Items)

	require.NoError(t, d.CancelEdit())
	st := d.State()
	assert.Equal(t, domain.ModeView, st.Mode)
	require.Len(t, st.Bill.Items, 1)
	assert.True(t, saved.TotalAmount.Equal(st.Bill.TotalAmount))
}

func TestEdit_PartyIsReadOnly(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)
	require.NoError(t, d.Edit())

	assert.ErrorIs(t, d.SelectPatient(domain.PartyRef{ID: 99}), ErrReadOnly)
	assert.NoError(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 3}))

	out := d.Submit(context.Background())
	require.Equal(t, StatusSaved, out.Status)
	assert.Equal(t, 1, g.updates)
	assert.True(t, dec("1350").Equal(d.State().Bill.TotalAmount))
}

func TestEdit_ReceivedAmountIsReadOnly(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)
	received := d.State().Bill.ReceivedAmount
	require.NoError(t, d.Edit())

	assert.False(t, d.State().Capabilities.CanEditReceived)
	assert.ErrorIs(t, d.Dispatch(calc.SetReceivedAmount{Amount: dec("0")}), ErrReadOnly)
	assert.NoError(t, d.Dispatch(calc.SetPaymentMode{Mode: "card"}))
	assert.True(t, received.Equal(d.State().Bill.ReceivedAmount))
}

func TestView_IsReadOnly(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)

	assert.ErrorIs(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 3}), ErrReadOnly)
	assert.ErrorIs(t, d.Dispatch(calc.SetReceivedAmount{Amount: dec("1")}), ErrReadOnly)
	assert.Equal(t, StatusRejected, d.Submit(context.Background()).Status)
}

func TestCollect_RecordsPayment(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)

	require.NoError(t, d.Collect())
	assert.ErrorIs(t, d.Dispatch(calc.SetQuantity{Index: 0, Quantity: 3}), ErrReadOnly)

	require.NoError(t, d.SetPaymentDraft(domain.PaymentDraft{Amount: "abc", Mode: "cash"}))
	out := d.Submit(context.Background())
	assert.Equal(t, StatusInvalid, out.Status)
	assert.Contains(t, out.Errors, form.FieldAmount)
	assert.Empty(t, g.pays)

	require.NoError(t, d.SetPaymentDraft(domain.PaymentDraft{Amount: "400", Mode: "upi"}))
	preview := d.PaymentPreview()
	assert.True(t, dec("500").Equal(preview.BalanceAmount))
	assert.Equal(t, domain.PaymentStatusPartial, preview.PaymentStatus)
	// The bill itself is untouched until the payment is recorded.
	assert.Equal(t, domain.PaymentStatusUnpaid, d.State().Bill.PaymentStatus)

	out = d.Submit(context.Background())
	require.Equal(t, StatusSaved, out.Status, out.Notice)

	st := d.State()
	assert.Equal(t, domain.ModeView, st.Mode)
	assert.True(t, dec("400").Equal(st.Bill.ReceivedAmount))
	assert.True(t, dec("500").Equal(st.Bill.BalanceAmount))
	assert.Equal(t, domain.PaymentStatusPartial, st.Bill.PaymentStatus)
	require.Len(t, g.pays, 1)
	assert.Equal(t, "upi", g.pays[0].PaymentMode)
}

func TestOpen_HydratesInRequestedMode(t *testing.T) {
	g := newFakeGateway()
	d := readyDrawer(t, g)
	require.Equal(t, StatusSaved, d.Submit(context.Background()).Status)
	id := d.State().Bill.ID
	d.Close()

	opened, err := Open(context.Background(), testDeps(g), id, domain.ModeCollect)
	require.NoError(t, err)
	defer opened.Close()

	st := opened.State()
	assert.Equal(t, domain.ModeCollect, st.Mode)
	assert.Equal(t, "cash", st.Draft.Mode)
	assert.True(t, dec("900").Equal(st.Bill.TotalAmount))

	_, err = Open(context.Background(), testDeps(g), id, domain.ModeCreate)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = Open(context.Background(), testDeps(g), 424242, domain.ModeView)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearch_UsesCollaborators(t *testing.T) {
	d := NewCreate(testDeps(newFakeGateway()))

	entries, err := d.SearchCatalog(context.Background(), "cons")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	patients, err := d.SearchPatients(context.Background(), "as")
	require.NoError(t, err)
	assert.Equal(t, "Asha", patients[0].Name)

	doctors, err := d.SearchDoctors(context.Background(), "ra")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Rao", doctors[0].Name)

	d.Close()
	_, err = d.SearchCatalog(context.Background(), "cons")
	assert.ErrorIs(t, err, ErrDrawerClosed)
}

func TestSearch_CloseAbandonsPendingQuery(t *testing.T) {
	deps := testDeps(newFakeGateway())
	deps.SearchDebounce = time.Second
	d := NewCreate(deps)

	done := make(chan error, 1)
	go func() {
		_, err := d.SearchCatalog(context.Background(), "cons")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	d.Close()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrDrawerClosed) || errors.Is(err, search.ErrStale), "%v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not return after close")
	}
}
