package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/clinicdesk/internal/audit/domain"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/receipt"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/smallbiznis/clinicdesk/internal/observability"
	obsmetrics "github.com/smallbiznis/clinicdesk/internal/observability/metrics"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
	"github.com/smallbiznis/clinicdesk/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBillService struct {
	mock.Mock
}

func (m *mockBillService) Create(ctx context.Context, payload billingdomain.BillPayload) (billingdomain.BillResponse, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(billingdomain.BillResponse), args.Error(1)
}

func (m *mockBillService) Update(ctx context.Context, id string, payload billingdomain.BillPayload) (billingdomain.BillResponse, error) {
	args := m.Called(ctx, id, payload)
	return args.Get(0).(billingdomain.BillResponse), args.Error(1)
}

func (m *mockBillService) Get(ctx context.Context, id string) (billingdomain.BillResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(billingdomain.BillResponse), args.Error(1)
}

func (m *mockBillService) List(ctx context.Context, req billingdomain.ListBillRequest) (billingdomain.ListBillResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(billingdomain.ListBillResponse), args.Error(1)
}

func (m *mockBillService) RecordPayment(ctx context.Context, id string, req billingdomain.PaymentRequest) (billingdomain.BillResponse, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(billingdomain.BillResponse), args.Error(1)
}

func (m *mockBillService) ListPayments(ctx context.Context, id string) ([]billingdomain.PaymentResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).([]billingdomain.PaymentResponse), args.Error(1)
}

type fakeCatalogService struct {
	lastQuery billingdomain.CatalogQuery
	entries   []billingdomain.CatalogEntry
	createErr error
}

func (f *fakeCatalogService) SearchCatalog(ctx context.Context, q billingdomain.CatalogQuery) ([]billingdomain.CatalogEntry, error) {
	f.lastQuery = q
	return f.entries, nil
}

func (f *fakeCatalogService) Create(ctx context.Context, req catalogdomain.CreateProcedureRequest) (catalogdomain.Procedure, error) {
	if f.createErr != nil {
		return catalogdomain.Procedure{}, f.createErr
	}
	return catalogdomain.Procedure{ID: 1, Name: req.Name, Code: req.Code, UnitCharge: req.UnitCharge, Active: !req.Inactive}, nil
}

func (f *fakeCatalogService) Get(ctx context.Context, id snowflake.ID) (catalogdomain.Procedure, error) {
	return catalogdomain.Procedure{}, catalogdomain.ErrNotFound
}

func (f *fakeCatalogService) GetMany(ctx context.Context, ids []snowflake.ID) (map[snowflake.ID]catalogdomain.Procedure, error) {
	return map[snowflake.ID]catalogdomain.Procedure{}, nil
}

type fakePartyService struct {
	patients []billingdomain.PartyRef
}

func (f *fakePartyService) SearchParties(ctx context.Context, kind billingdomain.PartyKind, text string) ([]billingdomain.PartyRef, error) {
	if kind == billingdomain.PartyPatient {
		return f.patients, nil
	}
	return []billingdomain.PartyRef{}, nil
}

func (f *fakePartyService) GetParty(ctx context.Context, kind billingdomain.PartyKind, id snowflake.ID) (billingdomain.PartyRef, error) {
	if kind == billingdomain.PartyDoctor {
		return billingdomain.PartyRef{}, partydomain.ErrInactiveDoctor
	}
	for _, p := range f.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return billingdomain.PartyRef{}, partydomain.ErrNotFound
}

func (f *fakePartyService) CreatePatient(ctx context.Context, req partydomain.CreatePatientRequest) (partydomain.Patient, error) {
	return partydomain.Patient{ID: 10, MRN: req.MRN, Name: req.Name, DateOfBirth: req.DateOfBirth}, nil
}

func (f *fakePartyService) CreateDoctor(ctx context.Context, req partydomain.CreateDoctorRequest) (partydomain.Doctor, error) {
	return partydomain.Doctor{}, partydomain.ErrDuplicate
}

type auditCall struct {
	action   string
	targetID string
	metadata map[string]any
}

type fakeAuditService struct {
	calls   []auditCall
	lastReq auditdomain.ListAuditLogRequest
	logs    []auditdomain.AuditLog
}

func (f *fakeAuditService) AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error {
	call := auditCall{action: action, metadata: metadata}
	if targetID != nil {
		call.targetID = *targetID
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastReq = req
	return auditdomain.ListAuditLogResponse{AuditLogs: f.logs}, nil
}

type testServer struct {
	engine  *gin.Engine
	bills   *mockBillService
	catalog *fakeCatalogService
	parties *fakePartyService
	audit   *fakeAuditService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpMetrics, err := obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	ts := &testServer{
		engine:  NewEngine(observability.Config{Environment: "test"}, httpMetrics),
		bills:   &mockBillService{},
		catalog: &fakeCatalogService{},
		parties: &fakePartyService{},
		audit:   &fakeAuditService{},
	}
	NewServer(ServerParams{
		Gin:        ts.engine,
		Cfg:        config.Config{HTTPPort: "0"},
		CatalogSvc: ts.catalog,
		PartySvc:   ts.parties,
		BillSvc:    ts.bills,
		Receipts:   receipt.NewRenderer(config.Config{ClinicName: "Test Clinic"}, zap.NewNop()),
		Billing:    config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		AuditSvc:   ts.audit,
		Log:        zap.NewNop(),
	})
	t.Cleanup(func() { ts.bills.AssertExpectations(t) })
	return ts
}

func (ts *testServer) do(method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func sampleBill() billingdomain.BillResponse {
	return billingdomain.BillResponse{
		ID:             42,
		BillNumber:     "OPD-01J0000000000000000000000",
		PatientID:      10,
		PatientName:    "Asha Kulkarni",
		DoctorID:       20,
		DoctorName:     "Dr. Meera Rao",
		BillDate:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		BillType:       billingdomain.BillTypeOPD,
		SubtotalAmount: decimal.NewFromInt(500),
		TotalAmount:    decimal.NewFromInt(500),
		BalanceAmount:  decimal.NewFromInt(500),
		PaymentStatus:  billingdomain.PaymentStatusUnpaid,
		PaymentMode:    "cash",
		Items: []billingdomain.WireItem{
			{Name: "Consultation", Quantity: 1, UnitCharge: decimal.NewFromInt(500), LineTotal: decimal.NewFromInt(500), ItemOrder: 1},
		},
	}
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestCreateBill(t *testing.T) {
	ts := newTestServer(t)

	ts.bills.On("Create", mock.Anything, mock.MatchedBy(func(p billingdomain.BillPayload) bool {
		return p.PatientID == 10 && len(p.Items) == 1 && p.Items[0].UnitCharge.Equal(decimal.NewFromInt(500))
	})).Return(sampleBill(), nil).Once()

	rec := ts.do(http.MethodPost, "/api/bills", map[string]any{
		"patient_id":       "10",
		"doctor_id":        "20",
		"bill_date":        "2026-03-01T00:00:00Z",
		"bill_type":        "opd",
		"discount_percent": "0",
		"payment_mode":     "cash",
		"received_amount":  "0",
		"items": []map[string]any{
			{"name": "Consultation", "quantity": 1, "unit_charge": "500", "item_order": 1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data billingdomain.BillResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, snowflake.ID(42), resp.Data.ID)
	assert.True(t, decimal.NewFromInt(500).Equal(resp.Data.TotalAmount))

	require.Len(t, ts.audit.calls, 1)
	assert.Equal(t, "bill.create", ts.audit.calls[0].action)
	assert.Equal(t, "42", ts.audit.calls[0].targetID)
	assert.Equal(t, "500.00", ts.audit.calls[0].metadata["total_amount"])
}

func TestCreateBill_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bills", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
}

func TestBillErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantField  string
	}{
		{
			name:       "field validation",
			err:        &billingdomain.ValidationError{Fields: map[string]string{"items[0].unit_charge": "Charge cannot be negative", "bill_date": "Bill date is required"}},
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
			wantField:  "bill_date",
		},
		{
			name:       "unknown procedure",
			err:        billingdomain.ErrInvalidProcedure,
			wantStatus: http.StatusBadRequest,
			wantType:   "validation_error",
			wantField:  "procedure",
		},
		{
			name:       "party change",
			err:        billingdomain.ErrPartyImmutable,
			wantStatus: http.StatusConflict,
			wantType:   "conflict",
		},
		{
			name:       "missing bill",
			err:        billingdomain.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   "not_found",
		},
		{
			name:       "unexpected",
			err:        assert.AnError,
			wantStatus: http.StatusInternalServerError,
			wantType:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.bills.On("Update", mock.Anything, "42", mock.Anything).Return(billingdomain.BillResponse{}, tt.err).Once()

			rec := ts.do(http.MethodPut, "/api/bills/42", sampleBill())
			assert.Equal(t, tt.wantStatus, rec.Code)

			payload := decodeError(t, rec)
			assert.Equal(t, tt.wantType, payload.Type)
			if tt.wantField != "" {
				require.NotEmpty(t, payload.Errors)
				assert.Equal(t, tt.wantField, payload.Errors[0].Field)
			}
		})
	}
}

func TestListBills_PassesFilters(t *testing.T) {
	ts := newTestServer(t)

	ts.bills.On("List", mock.Anything, mock.MatchedBy(func(req billingdomain.ListBillRequest) bool {
		return req.PatientID == "10" &&
			req.PaymentStatus == "partial" &&
			req.PageSize == 5 &&
			req.PageToken == "abc" &&
			req.BillFrom != nil && req.BillFrom.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) &&
			req.BillTo != nil && req.BillTo.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	})).Return(billingdomain.ListBillResponse{Bills: []billingdomain.BillResponse{sampleBill()}}, nil).Once()

	rec := ts.do(http.MethodGet, "/api/bills?patient_id=10&payment_status=partial&page_size=5&page_token=abc&bill_from=2026-03-01&bill_to=2026-03-01", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListBills_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/bills?bill_from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bill_from", decodeError(t, rec).Errors[0].Field)

	ts.bills.On("List", mock.Anything, mock.Anything).Return(billingdomain.ListBillResponse{}, option.ErrInvalidPageToken).Once()
	rec = ts.do(http.MethodGet, "/api/bills?page_token=zzz", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_page_token", decodeError(t, rec).Errors[0].Code)
}

func TestRecordBillPayment(t *testing.T) {
	ts := newTestServer(t)

	paid := sampleBill()
	paid.PaymentStatus = billingdomain.PaymentStatusPaid
	ts.bills.On("RecordPayment", mock.Anything, "42", mock.MatchedBy(func(req billingdomain.PaymentRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(500)) && req.PaymentMode == "upi"
	})).Return(paid, nil).Once()

	rec := ts.do(http.MethodPost, "/api/bills/42/payments", map[string]any{"amount": "500", "payment_mode": "upi", "payment_details": "UPI-REF-99887766"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payment_status":"paid"`)

	require.Len(t, ts.audit.calls, 1)
	assert.Equal(t, "bill.payment", ts.audit.calls[0].action)
	assert.Equal(t, "500.00", ts.audit.calls[0].metadata["amount"])
	assert.Equal(t, "paid", ts.audit.calls[0].metadata["payment_status"])
}

func TestFailedWritesAreNotAudited(t *testing.T) {
	ts := newTestServer(t)

	ts.bills.On("RecordPayment", mock.Anything, "42", mock.Anything).
		Return(billingdomain.BillResponse{}, billingdomain.ErrInvalidPaymentMode).Once()

	rec := ts.do(http.MethodPost, "/api/bills/42/payments", map[string]any{"amount": "1", "payment_mode": "barter"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.audit.calls)
}

func TestListBillAuditLogs(t *testing.T) {
	ts := newTestServer(t)
	ts.audit.logs = []auditdomain.AuditLog{{ID: 1, Action: "bill.create", TargetType: "bill"}}

	ts.bills.On("Get", mock.Anything, "42").Return(sampleBill(), nil).Once()

	rec := ts.do(http.MethodGet, "/api/bills/42/audit-logs?page_size=5&action=bill.create", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"action":"bill.create"`)
	assert.Equal(t, "bill", ts.audit.lastReq.TargetType)
	assert.Equal(t, "42", ts.audit.lastReq.TargetID)
	assert.Equal(t, "bill.create", ts.audit.lastReq.Action)
	assert.Equal(t, 5, ts.audit.lastReq.PageSize)
}

func TestListBillAuditLogs_UnknownBill(t *testing.T) {
	ts := newTestServer(t)

	ts.bills.On("Get", mock.Anything, "99").Return(billingdomain.BillResponse{}, billingdomain.ErrNotFound).Once()

	rec := ts.do(http.MethodGet, "/api/bills/99/audit-logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteGuardErrors(t *testing.T) {
	status, payload := mapError(ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", payload.Type)

	status, payload = mapError(ErrPaymentInProgress)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "another payment on this bill is being recorded", payload.Message)
}

func TestRenderBillReceipt(t *testing.T) {
	ts := newTestServer(t)

	ts.bills.On("Get", mock.Anything, "42").Return(sampleBill(), nil).Once()
	ts.bills.On("ListPayments", mock.Anything, "42").Return([]billingdomain.PaymentResponse{}, nil).Once()

	rec := ts.do(http.MethodGet, "/api/bills/42/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "OPD-01J0000000000000000000000.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestListProcedures_Query(t *testing.T) {
	ts := newTestServer(t)
	ts.catalog.entries = []billingdomain.CatalogEntry{{ID: 7, Name: "X-Ray Chest", Code: "x-ray-chest", UnitPrice: decimal.NewFromInt(650)}}

	rec := ts.do(http.MethodGet, "/api/procedures?search=+xray+&active_only=true&page_size=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billingdomain.CatalogQuery{SearchText: "xray", ActiveOnly: true, PageSize: 5}, ts.catalog.lastQuery)
	assert.Contains(t, rec.Body.String(), `"code":"x-ray-chest"`)

	rec = ts.do(http.MethodGet, "/api/procedures?active_only=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcedureErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/procedures/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.catalog.createErr = catalogdomain.ErrDuplicateCode
	rec = ts.do(http.MethodPost, "/api/procedures", map[string]any{"name": "X-Ray", "unit_charge": "650"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestParties(t *testing.T) {
	ts := newTestServer(t)
	ts.parties.patients = []billingdomain.PartyRef{{ID: 10, Name: "Asha Kulkarni"}}

	rec := ts.do(http.MethodGet, "/api/patients?search=asha", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Asha Kulkarni")

	rec = ts.do(http.MethodGet, "/api/patients/10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/patients/11", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/patients/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/doctors/20", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "doctor_id", decodeError(t, rec).Errors[0].Field)

	rec = ts.do(http.MethodPost, "/api/patients", map[string]any{"mrn": "MRN-9", "name": "Ravi", "date_of_birth": "1990-05-01"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mrn":"MRN-9"`)

	rec = ts.do(http.MethodPost, "/api/patients", map[string]any{"mrn": "MRN-9", "name": "Ravi", "date_of_birth": "01/05/1990"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/doctors", map[string]any{"registration_no": "REG-1", "name": "Dr. Rao"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBillingSettings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/settings/billing", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data billingSettingsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Data.PaymentModes, "cash")
	assert.Equal(t, "opd", resp.Data.DefaultBillType)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(billingdomain.ErrInvalidPaymentMode)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_payment_mode", code)

	typ, _ = classifyErrorForLog(assert.AnError)
	assert.Equal(t, "server_error", typ)
}
