package drawer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicdesk/internal/billing/adapter"
	"github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/internal/billing/form"
	"go.uber.org/zap"
)

// Status is the result kind of a submit.
type Status string

const (
	StatusSaved     Status = "saved"
	StatusInvalid   Status = "invalid"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusDiscarded Status = "discarded"
)

// Outcome reports what a submit did. Errors never escape Submit; they
// are carried here as field messages or a single notice.
type Outcome struct {
	Status Status
	Errors form.FieldErrors
	Notice string
}

const (
	noticeGeneric  = "Could not save the bill. Please try again."
	noticeTimeout  = "The server took too long to respond. Please try again."
	noticePending  = "A save is already in progress."
	noticeClosed   = "The drawer was closed."
	noticeNoSubmit = "Nothing to save in this mode."
	noticePayment  = "Could not record the payment. Please try again."
)

// userMessager is implemented by errors that carry a message fit for the
// operator, such as client.APIError.
type userMessager interface {
	UserMessage() string
}

type submitKind int

const (
	submitCreate submitKind = iota + 1
	submitUpdate
	submitPayment
)

type request struct {
	kind    submitKind
	billID  snowflake.ID
	payload domain.BillPayload
	payment domain.PaymentRequest
}

// Submit validates the bill for the current mode and, if valid, sends it.
// On success the drawer takes the stored record and returns to view mode.
// On failure the in-memory bill is left exactly as it was.
func (d *Drawer) Submit(ctx context.Context) Outcome {
	req, outcome, ok := d.beginSubmit()
	if !ok {
		return outcome
	}

	callCtx, release := d.bound(ctx)
	resp, err := d.send(callCtx, req)
	release()

	return d.finishSubmit(req, resp, err)
}

func (d *Drawer) beginSubmit() (request, Outcome, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.closed:
		return request{}, Outcome{Status: StatusDiscarded, Notice: noticeClosed}, false
	case d.pending:
		return request{}, Outcome{Status: StatusRejected, Notice: noticePending}, false
	case !d.mode.Submittable():
		return request{}, Outcome{Status: StatusRejected, Notice: noticeNoSubmit}, false
	}

	errs := d.deps.Rules.Validate(d.mode, d.bill, d.draft)
	var req request
	if errs.Empty() {
		req = d.buildRequestLocked()
		for field, msg := range d.wireErrorsLocked(req) {
			if _, exists := errs[field]; !exists {
				errs[field] = msg
			}
		}
	}
	d.errs = errs
	if !errs.Empty() {
		d.notice = ""
		return request{}, Outcome{Status: StatusInvalid, Errors: copyErrors(errs)}, false
	}

	d.pending = true
	d.notice = ""
	return req, Outcome{}, true
}

func (d *Drawer) buildRequestLocked() request {
	switch d.mode {
	case domain.ModeCollect:
		return request{kind: submitPayment, billID: d.bill.ID, payment: adapter.ToPaymentRequest(d.draft)}
	case domain.ModeEdit:
		return request{kind: submitUpdate, billID: d.bill.ID, payload: adapter.ToPayload(d.bill)}
	default:
		return request{kind: submitCreate, payload: adapter.ToPayload(d.bill)}
	}
}

func (d *Drawer) wireErrorsLocked(req request) form.FieldErrors {
	if req.kind == submitPayment {
		return d.validator.Payment(req.payment)
	}
	return d.validator.BillPayload(req.payload)
}

func (d *Drawer) send(ctx context.Context, req request) (domain.BillResponse, error) {
	switch req.kind {
	case submitCreate:
		return d.deps.Gateway.CreateBill(ctx, req.payload)
	case submitUpdate:
		return d.deps.Gateway.UpdateBill(ctx, req.billID, req.payload)
	case submitPayment:
		return d.deps.Gateway.RecordPayment(ctx, req.billID, req.payment)
	default:
		return domain.BillResponse{}, fmt.Errorf("unknown submit kind %d", req.kind)
	}
}

func (d *Drawer) finishSubmit(req request, resp domain.BillResponse, err error) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = false
	if d.closed {
		d.log.Debug("discarding submit result after close", zap.Int("kind", int(req.kind)))
		return Outcome{Status: StatusDiscarded, Notice: noticeClosed}
	}

	if err != nil {
		d.notice = noticeFor(req.kind, err)
		d.log.Warn("bill submit failed",
			zap.Int("kind", int(req.kind)),
			zap.String("bill_id", req.billID.String()),
			zap.Error(err),
		)
		return Outcome{Status: StatusFailed, Notice: d.notice}
	}

	d.bill = adapter.Hydrate(resp)
	d.mode = domain.ModeView
	d.snapshot = nil
	d.draft = domain.PaymentDraft{}
	d.errs = form.FieldErrors{}
	d.notice = ""

	d.log.Info("bill saved",
		zap.Int("kind", int(req.kind)),
		zap.String("bill_id", resp.ID.String()),
		zap.String("payment_status", string(resp.PaymentStatus)),
	)
	return Outcome{Status: StatusSaved}
}

func noticeFor(kind submitKind, err error) string {
	var um userMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return noticeTimeout
	}
	if kind == submitPayment {
		return noticePayment
	}
	return noticeGeneric
}

func copyErrors(errs form.FieldErrors) form.FieldErrors {
	out := make(form.FieldErrors, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}
