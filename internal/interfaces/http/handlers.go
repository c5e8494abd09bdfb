package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	appwf "github.com/garyjia/inspector-vouchers/internal/application/workflow"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// OpenVoucherRequest opens (or returns) the actor's voucher for a period
type OpenVoucherRequest struct {
	Month int `json:"month" binding:"required,min=1,max=12"`
	Year  int `json:"year" binding:"required"`
}

// AddTripRequest attaches a trip to the actor's voucher for the trip's month
type AddTripRequest struct {
	TripDate    string          `json:"trip_date" binding:"required"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Miles       decimal.Decimal `json:"miles"`
	Lodging     decimal.Decimal `json:"lodging"`
	Meals       decimal.Decimal `json:"meals"`
	PerDiemDays int             `json:"per_diem_days"`
	Other       decimal.Decimal `json:"other"`
}

// RejectRequest carries the rejection reason
type RejectRequest struct {
	Reason string `json:"reason"`
}

// AssignmentRequestBody files a reassignment request on behalf of the actor
type AssignmentRequestBody struct {
	InspectorID int64  `json:"inspector_id" binding:"required"`
	Reason      string `json:"reason"`
}

// ResolveRequest carries the resolver's decision
type ResolveRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

// CancelRequest carries the cancel reason
type CancelRequest struct {
	Reason string `json:"reason"`
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id", "invalid id "+strconv.Quote(c.Param("id")))
		return 0, false
	}
	return id, true
}

// bindOptionalJSON binds a body when one was sent. An empty body leaves obj
// at its zero value.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		badRequest(c, "body", err.Error())
		return false
	}
	return true
}

// OpenVoucher handles POST /api/vouchers
func (h *Handlers) OpenVoucher(c *gin.Context) {
	var req OpenVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	v, err := h.services.Voucher.OpenVoucher(c.Request.Context(), actorID(c), req.Month, req.Year)
	if err != nil {
		h.writeError(c, "open voucher", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: v})
}

// VoucherView is a voucher plus the actions its status still permits
type VoucherView struct {
	*entity.Voucher
	AllowedActions []workflow.Trigger `json:"allowed_actions"`
}

// GetVoucher handles GET /api/vouchers/:id
func (h *Handlers) GetVoucher(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	v, err := h.services.Voucher.GetVoucher(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get voucher", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: VoucherView{
		Voucher:        v,
		AllowedActions: appwf.AllowedActions(v.Status),
	}})
}

// ListCertifications handles GET /api/vouchers/:id/certifications
func (h *Handlers) ListCertifications(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entries, err := h.services.Voucher.ListCertifications(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "list certifications", err)
		return
	}
	if entries == nil {
		entries = []*entity.CertificationEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// SubmitVoucher handles POST /api/vouchers/:id/submit
func (h *Handlers) SubmitVoucher(c *gin.Context) {
	h.transition(c, "submit", h.services.Voucher.SubmitVoucher)
}

// ApproveAsSupervisor handles POST /api/vouchers/:id/approve/supervisor
func (h *Handlers) ApproveAsSupervisor(c *gin.Context) {
	h.transition(c, "approve supervisor", h.services.Voucher.ApproveAsSupervisor)
}

// ApproveAsFleetManager handles POST /api/vouchers/:id/approve/fleet
func (h *Handlers) ApproveAsFleetManager(c *gin.Context) {
	h.transition(c, "approve fleet", h.services.Voucher.ApproveAsFleetManager)
}

// ReopenVoucher handles POST /api/vouchers/:id/reopen
func (h *Handlers) ReopenVoucher(c *gin.Context) {
	h.transition(c, "reopen", h.services.Voucher.ReopenVoucher)
}

// RejectVoucher handles POST /api/vouchers/:id/reject
func (h *Handlers) RejectVoucher(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	v, err := h.services.Voucher.RejectVoucher(c.Request.Context(), id, actorID(c), req.Reason)
	if err != nil {
		h.writeError(c, "reject", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: v})
}

type transitionFunc func(ctx context.Context, voucherID, actorID int64) (*entity.Voucher, error)

func (h *Handlers) transition(c *gin.Context, op string, fn transitionFunc) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	v, err := fn(c.Request.Context(), id, actorID(c))
	if err != nil {
		h.writeError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: v})
}

// AddTrip handles POST /api/trips
func (h *Handlers) AddTrip(c *gin.Context) {
	var req AddTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.TripDate)
	if err != nil {
		badRequest(c, "trip_date", "trip_date must be YYYY-MM-DD")
		return
	}

	trip, err := h.services.Voucher.AddTrip(c.Request.Context(), actorID(c), &entity.Trip{
		TripDate:    date,
		Origin:      req.Origin,
		Destination: req.Destination,
		Miles:       req.Miles,
		Lodging:     req.Lodging,
		Meals:       req.Meals,
		PerDiemDays: req.PerDiemDays,
		Other:       req.Other,
	})
	if err != nil {
		h.writeError(c, "add trip", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: trip})
}

// ListPendingApprovals handles GET /api/approvals/pending
func (h *Handlers) ListPendingApprovals(c *gin.Context) {
	vouchers, err := h.services.Voucher.ListPendingForApprover(c.Request.Context(), actorID(c))
	if err != nil {
		h.writeError(c, "list pending approvals", err)
		return
	}
	if vouchers == nil {
		vouchers = []*entity.Voucher{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: vouchers})
}

// RequestAssignment handles POST /api/assignment-requests
func (h *Handlers) RequestAssignment(c *gin.Context) {
	var req AssignmentRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	ar, err := h.services.Assignment.RequestAssignment(c.Request.Context(), req.InspectorID, actorID(c), req.Reason)
	if err != nil {
		h.writeError(c, "request assignment", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: ar})
}

// ListPendingAssignments handles GET /api/assignment-requests/pending
func (h *Handlers) ListPendingAssignments(c *gin.Context) {
	reqs, err := h.services.Assignment.ListAssignmentsForResolver(c.Request.Context(), actorID(c))
	if err != nil {
		h.writeError(c, "list assignment requests", err)
		return
	}
	if reqs == nil {
		reqs = []*entity.AssignmentRequest{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

// GetAssignment handles GET /api/assignment-requests/:id
func (h *Handlers) GetAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ar, err := h.services.Assignment.GetAssignment(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get assignment request", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ar})
}

// ResolveAssignment handles POST /api/assignment-requests/:id/resolve
func (h *Handlers) ResolveAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	ar, err := h.services.Assignment.ResolveAssignment(c.Request.Context(), id, actorID(c), entity.AssignmentDecision(req.Decision), req.Notes)
	if err != nil {
		h.writeError(c, "resolve assignment", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ar})
}

// CancelAssignment handles POST /api/assignment-requests/:id/cancel
func (h *Handlers) CancelAssignment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	ar, err := h.services.Assignment.CancelAssignment(c.Request.Context(), id, actorID(c), req.Reason)
	if err != nil {
		h.writeError(c, "cancel assignment", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: ar})
}

// ExportQuery selects the period to export
type ExportQuery struct {
	Month int `form:"month" binding:"required"`
	Year  int `form:"year" binding:"required"`
}

// ExportApproved handles GET /api/exports/vouchers?month=&year=
func (h *Handlers) ExportApproved(c *gin.Context) {
	var q ExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "query", "month and year are required")
		return
	}

	content, name, err := h.services.Export.ExportApproved(c.Request.Context(), q.Month, q.Year)
	if err != nil {
		h.writeError(c, "export", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, content)
}
