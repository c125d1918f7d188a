package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/middleware"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/http/response"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/observability"
	"github.com/sandeepkv93/qr-attendance-session-service/internal/service"
)

// QRHandler opens attendance windows for authenticated teachers.
type QRHandler struct {
	issuer *service.IssuerService
}

func NewQRHandler(issuer *service.IssuerService) *QRHandler {
	return &QRHandler{issuer: issuer}
}

type generateRequest struct {
	Subject string `json:"subject"`
	Class   string `json:"class"`
	Period  int    `json:"period"`
}

type generateResponse struct {
	QRToken   string    `json:"qrToken"`
	Subject   string    `json:"subject"`
	Class     string    `json:"class"`
	Period    int       `json:"period"`
	ExpiresAt time.Time `json:"expiresAt"`
	LateUntil time.Time `json:"lateUntil"`
}

func (h *QRHandler) Generate(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", nil)
		return
	}
	// Clients may omit both; the issuance core itself rejects blanks.
	if req.Class == "" {
		req.Class = "General"
	}
	if req.Period == 0 {
		req.Period = 1
	}

	session, err := h.issuer.IssueSession(r.Context(), claims.TenantID, claims.Subject, req.Subject, req.Class, req.Period)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), map[string]string{
				"field": verr.Field,
			})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "could not persist session", nil)
		return
	}

	observability.Audit(r, "session.issued",
		"tenant_id", session.TenantID,
		"issuer_id", session.IssuerID,
		"subject", session.Subject,
		"class", session.ClassLabel,
		"period", session.Period,
	)
	response.JSON(w, r, http.StatusCreated, generateResponse{
		QRToken:   session.Token,
		Subject:   session.Subject,
		Class:     session.ClassLabel,
		Period:    session.Period,
		ExpiresAt: session.ExpiresAt,
		LateUntil: session.LateThreshold,
	})
}
