package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clinicdesk/internal/audit/domain"
	billingdomain "github.com/smallbiznis/clinicdesk/internal/billing/domain"
	"github.com/smallbiznis/clinicdesk/pkg/db/pagination"
	"go.uber.org/zap"
)

func (s *Server) CreateBill(c *gin.Context) {
	var req billingdomain.BillPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditBill(c, auditdomain.ActionBillCreate, resp, map[string]any{
		"bill_number":  resp.BillNumber,
		"patient_id":   resp.PatientID.String(),
		"doctor_id":    resp.DoctorID.String(),
		"total_amount": resp.TotalAmount.StringFixed(2),
		"item_count":   len(resp.Items),
	})

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateBill(c *gin.Context) {
	var req billingdomain.BillPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditBill(c, auditdomain.ActionBillUpdate, resp, map[string]any{
		"bill_number":     resp.BillNumber,
		"total_amount":    resp.TotalAmount.StringFixed(2),
		"received_amount": resp.ReceivedAmount.StringFixed(2),
		"payment_status":  string(resp.PaymentStatus),
		"item_count":      len(resp.Items),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBillByID(c *gin.Context) {
	resp, err := s.billSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBills(c *gin.Context) {
	var query struct {
		pagination.Pagination
		PatientID     string `form:"patient_id"`
		DoctorID      string `form:"doctor_id"`
		PaymentStatus string `form:"payment_status"`
		BillFrom      string `form:"bill_from"`
		BillTo        string `form:"bill_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	billFrom, err := parseOptionalTime(query.BillFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("bill_from", "invalid_bill_from", "invalid bill_from"))
		return
	}
	billTo, err := parseOptionalTime(query.BillTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("bill_to", "invalid_bill_to", "invalid bill_to"))
		return
	}

	resp, err := s.billSvc.List(c.Request.Context(), billingdomain.ListBillRequest{
		PageToken:     query.PageToken,
		PageSize:      int32(query.PageSize),
		PatientID:     strings.TrimSpace(query.PatientID),
		DoctorID:      strings.TrimSpace(query.DoctorID),
		PaymentStatus: strings.TrimSpace(query.PaymentStatus),
		BillFrom:      billFrom,
		BillTo:        billTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecordBillPayment(c *gin.Context) {
	var req billingdomain.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))

	lease, ok, err := s.limiter.TryLockBill(ctx, id)
	if err != nil {
		s.log.Warn("bill lock unavailable", zap.String("bill_id", id), zap.Error(err))
	} else if !ok {
		AbortWithError(c, ErrPaymentInProgress)
		return
	}
	defer func() {
		if err := s.limiter.ReleaseBill(context.WithoutCancel(ctx), lease); err != nil {
			s.log.Warn("bill lock release failed", zap.String("bill_id", id), zap.Error(err))
		}
	}()

	resp, err := s.billSvc.RecordPayment(ctx, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditBill(c, auditdomain.ActionBillPayment, resp, map[string]any{
		"bill_number":     resp.BillNumber,
		"amount":          req.Amount.StringFixed(2),
		"payment_mode":    resp.PaymentMode,
		"payment_details": req.PaymentDetails,
		"balance_amount":  resp.BalanceAmount.StringFixed(2),
		"payment_status":  string(resp.PaymentStatus),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListBillPayments(c *gin.Context) {
	resp, err := s.billSvc.ListPayments(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RenderBillReceipt streams the printable receipt of a stored bill.
func (s *Server) RenderBillReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	id := strings.TrimSpace(c.Param("id"))

	bill, err := s.billSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	payments, err := s.billSvc.ListPayments(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.receipts.Render(ctx, bill, payments)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", bill.BillNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// ListBillAuditLogs returns the change history of one bill, newest first.
func (s *Server) ListBillAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var query struct {
		pagination.Pagination
		Action string `form:"action"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	bill, err := s.billSvc.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		Action:     strings.TrimSpace(query.Action),
		TargetType: auditdomain.TargetTypeBill,
		TargetID:   bill.ID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// auditBill records a bill change. A failed write is logged by the audit
// service and never fails the request.
func (s *Server) auditBill(c *gin.Context, action string, bill billingdomain.BillResponse, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := bill.ID.String()
	_ = s.auditSvc.AuditLog(c.Request.Context(), action, auditdomain.TargetTypeBill, &targetID, metadata)
}
