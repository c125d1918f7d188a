package handler

import (
	"net/http"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/middleware"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/response"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/repository"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/service"
)

// AttendanceHandler records marks and serves the read views over the
// ledger.
type AttendanceHandler struct {
	redeemer *service.RedemptionService
	queries  *service.AttendanceQueryService
}

func NewAttendanceHandler(redeemer *service.RedemptionService, queries *service.AttendanceQueryService) *AttendanceHandler {
	return &AttendanceHandler{redeemer: redeemer, queries: queries}
}

type markRequest struct {
	QRToken string `json:"qrToken"`
}

type markResponse struct {
	Status string `json:"status"`
}

type attendancePage struct {
	Records    []service.AttendanceView `json:"records"`
	Pagination repository.PageResult    `json:"pagination"`
}

func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}

	var req markRequest
	if err := decodeJSON(r, &req); err != nil || req.QRToken == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "qrToken is required", nil)
		return
	}

	outcome, err := h.redeemer.Redeem(r.Context(), req.QRToken, claims.Subject, claims.TenantID)
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "could not record attendance", nil)
		return
	}
	if !outcome.Accepted {
		observability.Audit(r, "redemption.rejected",
			"tenant_id", claims.TenantID,
			"student_id", claims.Subject,
			"reason", string(outcome.Reason),
		)
		response.Error(w, r, rejectStatusCode(outcome.Reason), string(outcome.Reason), rejectMessage(outcome.Reason), nil)
		return
	}

	observability.Audit(r, "redemption.accepted",
		"tenant_id", claims.TenantID,
		"student_id", claims.Subject,
		"status", string(outcome.Status),
	)
	response.JSON(w, r, http.StatusOK, markResponse{Status: string(outcome.Status)})
}

func (h *AttendanceHandler) MyAttendance(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	views, pageRes, err := h.queries.StudentAttendance(r.Context(), claims.TenantID, claims.Subject, pageFromQuery(r))
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "could not load attendance", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, attendancePage{Records: views, Pagination: pageRes})
}

// Report serves tenant-wide records. Passing issuer_id=me narrows the
// view to sessions the caller opened.
func (h *AttendanceHandler) Report(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page := pageFromQuery(r)

	var (
		views   []service.AttendanceView
		pageRes repository.PageResult
		err     error
	)
	if r.URL.Query().Get("issuer_id") == "me" {
		views, pageRes, err = h.queries.IssuerReport(r.Context(), claims.TenantID, claims.Subject, page)
	} else {
		views, pageRes, err = h.queries.TenantReport(r.Context(), claims.TenantID, page)
	}
	if err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "could not load report", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, attendancePage{Records: views, Pagination: pageRes})
}

func rejectStatusCode(reason service.RejectReason) int {
	switch reason {
	case service.ReasonSessionNotFound:
		return http.StatusNotFound
	case service.ReasonSessionExpired, service.ReasonSessionRevokedOrExpired:
		return http.StatusGone
	case service.ReasonTenantMismatch:
		return http.StatusForbidden
	case service.ReasonDuplicateRedemption:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func rejectMessage(reason service.RejectReason) string {
	switch reason {
	case service.ReasonSessionNotFound:
		return "no session matches this code"
	case service.ReasonSessionExpired:
		return "this session has expired"
	case service.ReasonSessionRevokedOrExpired:
		return "this session is no longer active"
	case service.ReasonTenantMismatch:
		return "this code belongs to another tenant"
	case service.ReasonDuplicateRedemption:
		return "attendance already recorded"
	default:
		return "redemption rejected"
	}
}
