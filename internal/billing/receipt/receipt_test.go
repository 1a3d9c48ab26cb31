package receipt

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleBill() domain.BillResponse {
	return domain.BillResponse{
		ID:              1,
		BillNumber:      "OPD-01J0000000",
		PatientName:     "Asha Kulkarni",
		DoctorName:      "Dr. Meera Rao",
		BillDate:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		BillType:        "opd",
		DiscountPercent: decimal.NewFromInt(10),
		SubtotalAmount:  decimal.NewFromInt(1000),
		DiscountAmount:  decimal.NewFromInt(100),
		TaxAmount:       decimal.Zero,
		TotalAmount:     decimal.NewFromInt(900),
		ReceivedAmount:  decimal.NewFromInt(400),
		BalanceAmount:   decimal.NewFromInt(500),
		PaymentStatus:   domain.PaymentStatusPartial,
		Items: []domain.WireItem{
			{Name: "Consultation", Note: "follow-up", Quantity: 2, UnitCharge: decimal.NewFromInt(500), LineTotal: decimal.NewFromInt(1000), ItemOrder: 1},
		},
	}
}

func TestBuildData(t *testing.T) {
	r := NewRenderer(config.Config{ClinicName: "Sunrise Clinic"}, zap.NewNop())

	data := r.BuildData(sampleBill(), []domain.PaymentResponse{
		{Amount: decimal.NewFromInt(400), PaymentMode: "bank_transfer", CreatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	})

	assert.Equal(t, "Sunrise Clinic", data.ClinicName)
	assert.Equal(t, "01 Mar 2026", data.BillDate)
	assert.Equal(t, "OPD", data.BillType)
	assert.Equal(t, "100.00 (10%)", data.Discount)
	assert.Equal(t, "900.00", data.Total)
	assert.Equal(t, "PARTIAL", data.PaymentStatus)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Consultation - follow-up", data.Items[0].Description)
	assert.Equal(t, "1000.00", data.Items[0].Amount)
	require.Len(t, data.Payments, 1)
	assert.Equal(t, "bank transfer", data.Payments[0].Mode)
}

func TestRender_ProducesPDF(t *testing.T) {
	r := NewRenderer(config.Config{}, zap.NewNop())

	out, err := r.Render(context.Background(), sampleBill(), nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRender_CancelledContext(t *testing.T) {
	r := NewRenderer(config.Config{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, sampleBill(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
