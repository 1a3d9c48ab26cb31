package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/calc"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
	catalogdomain "github.com/smallbiznis/clinicdesk/internal/catalog/domain"
	"github.com/smallbiznis/clinicdesk/internal/clock"
	"github.com/smallbiznis/clinicdesk/internal/config"
	obsmetrics "github.com/smallbiznis/clinicdesk/internal/observability/metrics"
	partydomain "github.com/smallbiznis/clinicdesk/internal/party/domain"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Catalog catalogdomain.Service
	Parties partydomain.Service
	Billing *config.BillingConfigHolder `optional:"true"`
	Metrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	catalog   catalogdomain.Service
	parties   partydomain.Service
	billing   *config.BillingConfigHolder
	metrics   *obsmetrics.Metrics
	validator *form.PayloadValidator
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		catalog:   p.Catalog,
		parties:   p.Parties,
		billing:   p.Billing,
		metrics:   p.Metrics,
		validator: form.NewPayloadValidator(),
	}
}

// Create stores a new bill. Totals are recomputed here; any totals the
// caller sent are ignored.
func (s *Service) Create(ctx context.Context, payload domain.BillPayload) (domain.BillResponse, error) {
	if err := s.validatePayload(payload); err != nil {
		return domain.BillResponse{}, err
	}

	patient, err := s.resolveParty(ctx, domain.PartyPatient, payload.PatientID)
	if err != nil {
		return domain.BillResponse{}, err
	}
	doctor, err := s.resolveParty(ctx, domain.PartyDoctor, payload.DoctorID)
	if err != nil {
		return domain.BillResponse{}, err
	}
	items, err := s.resolveItems(ctx, payload.Items)
	if err != nil {
		return domain.BillResponse{}, err
	}

	bill := calc.Recompute(domain.Bill{
		Patient:         patient,
		Doctor:          doctor,
		VisitID:         payload.VisitID,
		BillDate:        payload.BillDate.UTC(),
		BillType:        payload.BillType,
		Category:        strings.TrimSpace(payload.Category),
		Items:           items,
		DiscountPercent: payload.DiscountPercent,
		ReceivedAmount:  payload.ReceivedAmount,
		PaymentMode:     normalizeMode(payload.PaymentMode),
		PaymentNotes:    strings.TrimSpace(payload.PaymentNotes),
	})

	now := s.clock.Now().UTC()
	record := domain.BillRecord{
		ID:          s.genID.Generate(),
		BillNumber:  newBillNumber(bill.BillType),
		PatientID:   patient.ID,
		PatientName: patient.Name,
		DoctorID:    doctor.ID,
		DoctorName:  doctor.Name,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
	}
	applyBill(&record, bill, now)
	itemRecords := s.itemRecords(record.ID, bill.Items, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertBill(ctx, tx, &record, itemRecords); err != nil {
			return err
		}
		if !bill.ReceivedAmount.IsPositive() {
			return nil
		}
		return s.repo.InsertPayment(ctx, tx, &domain.PaymentRecord{
			ID:             s.genID.Generate(),
			BillID:         record.ID,
			Amount:         bill.ReceivedAmount,
			PaymentMode:    bill.PaymentMode,
			PaymentDetails: bill.PaymentNotes,
			CreatedAt:      now,
		})
	})
	if err != nil {
		return domain.BillResponse{}, err
	}

	s.metrics.RecordBillCreated(ctx, record.BillType)
	if bill.ReceivedAmount.IsPositive() {
		s.metrics.RecordPayment(ctx, record.PaymentMode, string(record.PaymentStatus), bill.ReceivedAmount)
	}
	s.log.Info("bill created",
		zap.String("bill_id", record.ID.String()),
		zap.String("bill_number", record.BillNumber),
		zap.String("total_amount", record.TotalAmount.StringFixed(2)),
		zap.String("payment_status", string(record.PaymentStatus)),
	)
	return toResponse(record, itemRecords), nil
}

// Update replaces the item list, discount and payment mode of a stored bill.
// The patient and doctor cannot change. The received amount is owned by the
// payment ledger, so the stored value is kept and only RecordPayment moves it.
func (s *Service) Update(ctx context.Context, id string, payload domain.BillPayload) (domain.BillResponse, error) {
	billID, err := parseID(id)
	if err != nil {
		return domain.BillResponse{}, err
	}
	if err := s.validatePayload(payload); err != nil {
		return domain.BillResponse{}, err
	}
	items, err := s.resolveItems(ctx, payload.Items)
	if err != nil {
		return domain.BillResponse{}, err
	}

	var (
		record      domain.BillRecord
		itemRecords []domain.BillItemRecord
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByIDForUpdate(ctx, tx, billID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}
		if existing.PatientID != payload.PatientID || existing.DoctorID != payload.DoctorID {
			return domain.ErrPartyImmutable
		}

		bill := calc.Recompute(domain.Bill{
			VisitID:         payload.VisitID,
			BillDate:        payload.BillDate.UTC(),
			BillType:        payload.BillType,
			Category:        strings.TrimSpace(payload.Category),
			Items:           items,
			DiscountPercent: payload.DiscountPercent,
			ReceivedAmount:  existing.ReceivedAmount,
			PaymentMode:     normalizeMode(payload.PaymentMode),
			PaymentNotes:    strings.TrimSpace(payload.PaymentNotes),
		})

		now := s.clock.Now().UTC()
		record = *existing
		applyBill(&record, bill, now)
		itemRecords = s.itemRecords(record.ID, bill.Items, now)

		if err := s.repo.UpdateBill(ctx, tx, &record); err != nil {
			return err
		}
		return s.repo.ReplaceItems(ctx, tx, record.ID, itemRecords)
	})
	if err != nil {
		return domain.BillResponse{}, err
	}

	s.metrics.RecordBillUpdated(ctx, record.BillType)
	s.log.Info("bill updated",
		zap.String("bill_id", record.ID.String()),
		zap.String("total_amount", record.TotalAmount.StringFixed(2)),
		zap.String("payment_status", string(record.PaymentStatus)),
	)
	return toResponse(record, itemRecords), nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.BillResponse, error) {
	billID, err := parseID(id)
	if err != nil {
		return domain.BillResponse{}, err
	}

	record, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return domain.BillResponse{}, err
	}
	if record == nil {
		return domain.BillResponse{}, domain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, billID)
	if err != nil {
		return domain.BillResponse{}, err
	}
	return toResponse(*record, items), nil
}

// List returns bill headers, newest first. Items are not loaded.
func (s *Service) List(ctx context.Context, req domain.ListBillRequest) (domain.ListBillResponse, error) {
	filter := domain.ListBillFilter{
		BillFrom: req.BillFrom,
		BillTo:   req.BillTo,
	}
	if strings.TrimSpace(req.PatientID) != "" {
		id, err := parseID(req.PatientID)
		if err != nil {
			return domain.ListBillResponse{}, err
		}
		filter.PatientID = id
	}
	if strings.TrimSpace(req.DoctorID) != "" {
		id, err := parseID(req.DoctorID)
		if err != nil {
			return domain.ListBillResponse{}, err
		}
		filter.DoctorID = id
	}
	if status := strings.TrimSpace(req.PaymentStatus); status != "" {
		switch domain.PaymentStatus(status) {
		case domain.PaymentStatusUnpaid, domain.PaymentStatusPartial, domain.PaymentStatusPaid:
			filter.PaymentStatus = domain.PaymentStatus(status)
		default:
			return domain.ListBillResponse{}, domain.ErrInvalidStatus
		}
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	records, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListBillResponse{}, err
	}

	limit := page.Size()
	pageInfo := pagination.BuildCursorPageInfo(records, int32(limit), func(b *domain.BillRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        b.ID.String(),
			CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(records) > limit {
		records = records[:limit]
	}

	bills := make([]domain.BillResponse, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		bills = append(bills, toResponse(*record, nil))
	}

	resp := domain.ListBillResponse{Bills: bills}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// RecordPayment adds an incremental payment to a stored bill.
func (s *Service) RecordPayment(ctx context.Context, id string, req domain.PaymentRequest) (domain.BillResponse, error) {
	billID, err := parseID(id)
	if err != nil {
		return domain.BillResponse{}, err
	}
	if errs := s.validator.Payment(req); !errs.Empty() {
		return domain.BillResponse{}, &domain.ValidationError{Fields: errs}
	}
	if !s.rules().PaymentModeAllowed(req.PaymentMode) {
		return domain.BillResponse{}, domain.ErrInvalidPaymentMode
	}

	var (
		record domain.BillRecord
		items  []domain.BillItemRecord
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByIDForUpdate(ctx, tx, billID)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now().UTC()
		record = *existing
		record.ReceivedAmount = record.ReceivedAmount.Add(req.Amount)
		recon := calc.Reconcile(record.TotalAmount, record.ReceivedAmount)
		record.BalanceAmount = recon.BalanceAmount
		record.PaymentStatus = recon.PaymentStatus
		record.PaymentMode = normalizeMode(req.PaymentMode)
		record.UpdatedAt = now

		if err := s.repo.UpdateBill(ctx, tx, &record); err != nil {
			return err
		}
		if err := s.repo.InsertPayment(ctx, tx, &domain.PaymentRecord{
			ID:             s.genID.Generate(),
			BillID:         record.ID,
			Amount:         req.Amount,
			PaymentMode:    record.PaymentMode,
			PaymentDetails: strings.TrimSpace(req.PaymentDetails),
			CreatedAt:      now,
		}); err != nil {
			return err
		}

		items, err = s.repo.ListItems(ctx, tx, record.ID)
		return err
	})
	if err != nil {
		return domain.BillResponse{}, err
	}

	s.metrics.RecordPayment(ctx, record.PaymentMode, string(record.PaymentStatus), req.Amount)
	s.log.Info("payment recorded",
		zap.String("bill_id", record.ID.String()),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("payment_mode", record.PaymentMode),
		zap.String("payment_status", string(record.PaymentStatus)),
	)
	return toResponse(record, items), nil
}

func (s *Service) ListPayments(ctx context.Context, id string) ([]domain.PaymentResponse, error) {
	billID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.FindByID(ctx, s.db, billID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}

	payments, err := s.repo.ListPayments(ctx, s.db, billID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, domain.PaymentResponse{
			ID:             p.ID,
			BillID:         p.BillID,
			Amount:         p.Amount,
			PaymentMode:    p.PaymentMode,
			PaymentDetails: p.PaymentDetails,
			CreatedAt:      p.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) rules() form.Rules {
	if s.billing == nil {
		return form.Rules{PaymentModes: config.DefaultBillingConfig().PaymentModes}
	}
	return form.Rules{PaymentModes: s.billing.Get().PaymentModes}
}

func (s *Service) validatePayload(payload domain.BillPayload) error {
	if errs := s.validator.BillPayload(payload); !errs.Empty() {
		return &domain.ValidationError{Fields: errs}
	}
	if !s.rules().PaymentModeAllowed(payload.PaymentMode) {
		return domain.ErrInvalidPaymentMode
	}
	return nil
}

func (s *Service) resolveParty(ctx context.Context, kind domain.PartyKind, id snowflake.ID) (domain.PartyRef, error) {
	invalid := domain.ErrInvalidPatient
	if kind == domain.PartyDoctor {
		invalid = domain.ErrInvalidDoctor
	}

	ref, err := s.parties.GetParty(ctx, kind, id)
	switch {
	case errors.Is(err, partydomain.ErrNotFound), errors.Is(err, partydomain.ErrInactiveDoctor):
		return domain.PartyRef{}, invalid
	case err != nil:
		return domain.PartyRef{}, err
	}
	return ref, nil
}

// resolveItems orders the wire items by item_order and checks every
// catalog reference. A missing code is filled from the catalog.
func (s *Service) resolveItems(ctx context.Context, wire []domain.WireItem) ([]domain.LineItem, error) {
	ordered := make([]domain.WireItem, len(wire))
	copy(ordered, wire)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ItemOrder < ordered[j].ItemOrder
	})

	ids := make([]snowflake.ID, 0, len(ordered))
	for _, item := range ordered {
		if item.ProcedureID != nil {
			ids = append(ids, *item.ProcedureID)
		}
	}
	procedures := map[snowflake.ID]catalogdomain.Procedure{}
	if len(ids) > 0 {
		found, err := s.catalog.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		procedures = found
	}

	items := make([]domain.LineItem, 0, len(ordered))
	for _, item := range ordered {
		line := domain.LineItem{
			Name:         strings.TrimSpace(item.Name),
			Code:         strings.TrimSpace(item.Code),
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitCharge,
			LineDiscount: decimal.Zero,
			Note:         strings.TrimSpace(item.Note),
		}
		if item.ProcedureID != nil {
			procedure, ok := procedures[*item.ProcedureID]
			if !ok {
				return nil, domain.ErrInvalidProcedure
			}
			id := procedure.ID
			line.ItemID = &id
			if line.Code == "" {
				line.Code = procedure.Code
			}
		}
		items = append(items, line)
	}
	return items, nil
}

func (s *Service) itemRecords(billID snowflake.ID, items []domain.LineItem, now time.Time) []domain.BillItemRecord {
	out := make([]domain.BillItemRecord, 0, len(items))
	for i, item := range items {
		out = append(out, domain.BillItemRecord{
			ID:          s.genID.Generate(),
			BillID:      billID,
			ProcedureID: item.ItemID,
			Name:        item.Name,
			Code:        item.Code,
			Note:        item.Note,
			Quantity:    item.Quantity,
			UnitCharge:  item.UnitPrice,
			LineTotal:   item.LineTotal,
			ItemOrder:   i + 1,
			CreatedAt:   now,
		})
	}
	return out
}

func applyBill(record *domain.BillRecord, bill domain.Bill, now time.Time) {
	record.VisitID = bill.VisitID
	record.BillDate = bill.BillDate
	record.BillType = bill.BillType
	record.Category = bill.Category
	record.DiscountPercent = bill.DiscountPercent
	record.SubtotalAmount = bill.SubtotalAmount
	record.DiscountAmount = bill.DiscountAmount
	record.TaxAmount = bill.TaxAmount
	record.TotalAmount = bill.TotalAmount
	record.ReceivedAmount = bill.ReceivedAmount
	record.BalanceAmount = bill.BalanceAmount
	record.PaymentStatus = bill.PaymentStatus
	record.PaymentMode = bill.PaymentMode
	record.PaymentNotes = bill.PaymentNotes
	record.UpdatedAt = now
}

func toResponse(record domain.BillRecord, items []domain.BillItemRecord) domain.BillResponse {
	wire := make([]domain.WireItem, 0, len(items))
	for _, item := range items {
		wire = append(wire, domain.WireItem{
			ProcedureID: item.ProcedureID,
			Name:        item.Name,
			Code:        item.Code,
			Note:        item.Note,
			Quantity:    item.Quantity,
			UnitCharge:  item.UnitCharge,
			LineTotal:   item.LineTotal,
			ItemOrder:   item.ItemOrder,
		})
	}

	return domain.BillResponse{
		ID:              record.ID,
		BillNumber:      record.BillNumber,
		VisitID:         record.VisitID,
		PatientID:       record.PatientID,
		PatientName:     record.PatientName,
		DoctorID:        record.DoctorID,
		DoctorName:      record.DoctorName,
		BillDate:        record.BillDate,
		BillType:        record.BillType,
		Category:        record.Category,
		DiscountPercent: record.DiscountPercent,
		SubtotalAmount:  record.SubtotalAmount,
		DiscountAmount:  record.DiscountAmount,
		TaxAmount:       record.TaxAmount,
		TotalAmount:     record.TotalAmount,
		ReceivedAmount:  record.ReceivedAmount,
		BalanceAmount:   record.BalanceAmount,
		PaymentStatus:   record.PaymentStatus,
		PaymentMode:     record.PaymentMode,
		PaymentNotes:    record.PaymentNotes,
		Items:           wire,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}

func newBillNumber(billType string) string {
	return strings.ToUpper(billType) + "-" + ulid.Make().String()
}
