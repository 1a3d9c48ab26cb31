// Package receipt renders a stored bill as a printable PDF.
package receipt

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	mconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/config"
	"go.uber.org/zap"
)

const dateLayout = "02 Jan 2006"

// Data is the flattened, display-ready content of a receipt.
type Data struct {
	ClinicName  string
	BillNumber  string
	BillDate    string
	BillType    string
	PatientName string
	DoctorName  string

	Items []Item

	Subtotal      string
	Discount      string
	Tax           string
	Total         string
	Received      string
	Balance       string
	PaymentStatus string

	Payments []Payment
}

type Item struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

type Payment struct {
	Date    string
	Mode    string
	Amount  string
	Details string
}

type Renderer struct {
	clinicName string
	log        *zap.Logger
}

func NewRenderer(cfg config.Config, log *zap.Logger) *Renderer {
	name := strings.TrimSpace(cfg.ClinicName)
	if name == "" {
		name = "ClinicDesk"
	}
	return &Renderer{clinicName: name, log: log.Named("billing.receipt")}
}

// BuildData formats bill and payments for printing.
func (r *Renderer) BuildData(bill domain.BillResponse, payments []domain.PaymentResponse) Data {
	data := Data{
		ClinicName:    r.clinicName,
		BillNumber:    bill.BillNumber,
		BillDate:      bill.BillDate.Format(dateLayout),
		BillType:      strings.ToUpper(bill.BillType),
		PatientName:   bill.PatientName,
		DoctorName:    bill.DoctorName,
		Subtotal:      bill.SubtotalAmount.StringFixed(2),
		Discount:      bill.DiscountAmount.StringFixed(2),
		Tax:           bill.TaxAmount.StringFixed(2),
		Total:         bill.TotalAmount.StringFixed(2),
		Received:      bill.ReceivedAmount.StringFixed(2),
		Balance:       bill.BalanceAmount.StringFixed(2),
		PaymentStatus: strings.ToUpper(string(bill.PaymentStatus)),
	}
	if bill.DiscountPercent.IsPositive() {
		data.Discount = fmt.Sprintf("%s (%s%%)", data.Discount, bill.DiscountPercent.String())
	}

	for _, item := range bill.Items {
		desc := item.Name
		if item.Note != "" {
			desc += " - " + item.Note
		}
		data.Items = append(data.Items, Item{
			Description: desc,
			Qty:         item.Quantity,
			UnitPrice:   item.UnitCharge.StringFixed(2),
			Amount:      item.LineTotal.StringFixed(2),
		})
	}
	for _, p := range payments {
		data.Payments = append(data.Payments, Payment{
			Date:    p.CreatedAt.Format(dateLayout),
			Mode:    strings.ReplaceAll(p.PaymentMode, "_", " "),
			Amount:  p.Amount.StringFixed(2),
			Details: p.PaymentDetails,
		})
	}
	return data
}

// Render returns the PDF bytes of the receipt.
func (r *Renderer) Render(ctx context.Context, bill domain.BillResponse, payments []domain.PaymentResponse) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := r.BuildData(bill, payments)

	cfg := mconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, data.ClinicName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "Receipt", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(20,
		col.New(6).Add(
			text.New("Bill number: "+data.BillNumber, props.Text{Top: 0, Size: 9}),
			text.New("Bill date: "+data.BillDate, props.Text{Top: 5, Size: 9}),
			text.New("Type: "+data.BillType, props.Text{Top: 10, Size: 9}),
		),
		col.New(6).Add(
			text.New("Patient: "+data.PatientName, props.Text{Top: 0, Size: 9, Align: align.Right}),
			text.New("Doctor: "+data.DoctorName, props.Text{Top: 5, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(8,
		text.NewCol(6, "Procedure", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit charge", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))
	for _, item := range data.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(2, line.NewCol(12))

	for _, row := range [][2]string{
		{"Subtotal", data.Subtotal},
		{"Discount", data.Discount},
		{"Tax", data.Tax},
		{"Total", data.Total},
		{"Received", data.Received},
		{"Balance", data.Balance},
	} {
		m.AddRow(7,
			col.New(7),
			text.NewCol(2, row[0], props.Text{Size: 9}),
			text.NewCol(3, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(7),
		text.NewCol(2, "Status", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, data.PaymentStatus, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if len(data.Payments) > 0 {
		m.AddRow(10, text.NewCol(12, "Payments", props.Text{Style: fontstyle.Bold, Size: 10, Top: 3}))
		for _, p := range data.Payments {
			m.AddRow(7,
				text.NewCol(3, p.Date, props.Text{Size: 9}),
				text.NewCol(3, p.Mode, props.Text{Size: 9}),
				text.NewCol(4, p.Details, props.Text{Size: 9}),
				text.NewCol(2, p.Amount, props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	doc, err := m.Generate()
	if err != nil {
		r.log.Error("receipt render failed", zap.String("bill_id", bill.ID.String()), zap.Error(err))
		return nil, err
	}
	return doc.GetBytes(), nil
}
