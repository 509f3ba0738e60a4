// Package handler exposes the age verification endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agegate/internal/age/models"
	"agegate/internal/age/service"
	"agegate/internal/platform/middleware"
	jsonResponse "agegate/internal/transport/http/json"
	"agegate/internal/transport/http/shared"
	dErrors "agegate/pkg/domain-errors"
	s "agegate/pkg/string"
	"agegate/pkg/validation"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the age verification operations the handler fronts.
type Service interface {
	Start(ctx context.Context, userID string) (*service.StartResponse, error)
	Result(ctx context.Context, userID, handle string) error
	Verified(ctx context.Context, userID string) (bool, error)
}

// Handler handles the age verification endpoints. All routes require an
// authenticated user; the parent router applies the auth middleware.
type Handler struct {
	age    Service
	logger *slog.Logger
}

// New creates a new age Handler with the given service and logger.
func New(age Service, logger *slog.Logger) *Handler {
	return &Handler{
		age:    age,
		logger: logger,
	}
}

// Register registers the age routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/age/start", h.HandleStart)
	r.Post("/age/result", h.HandleResult)
	r.Get("/age/status", h.HandleStatus)
}

// startResponse is the wire form of a start outcome. SessionPointer is omitted
// for already-verified callers.
type startResponse struct {
	Verified       bool                   `json:"verified"`
	Handle         string                 `json:"handle,omitempty"`
	SessionPointer *models.SessionPointer `json:"session_pointer,omitempty"`
}

type resultRequest struct {
	Handle string `json:"handle" validate:"required,notblank"`
}

// HandleStart implements POST /age/start.
// Opens a disclosure session with the proof server and returns the handle the
// caller polls plus the session pointer for their Yivi app. Callers that are
// already verified get { "verified": true } without an upstream round trip.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	userID := middleware.GetUserID(ctx)

	res, err := h.age.Start(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "start verification failed",
			"error", err,
			"request_id", requestID,
		)
		shared.WriteError(w, err)
		return
	}

	out := startResponse{Verified: res.Verified}
	if !res.Verified {
		out.Handle = res.Handle
		out.SessionPointer = &res.SessionPointer
	}

	h.logger.InfoContext(ctx, "verification session response",
		"request_id", requestID,
		"already_verified", res.Verified,
	)

	jsonResponse.WriteJSON(w, http.StatusOK, out)
}

// HandleResult implements POST /age/result.
// Input: { "handle": "..." }
// Output: { "verified": true } once the disclosure produced a valid proof.
// While the disclosure is still in progress the caller gets 409 and should
// poll again.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	userID := middleware.GetUserID(ctx)

	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode result request",
			"error", err,
			"request_id", requestID,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	s.TrimStrings(&req.Handle)
	if err := validation.Validate(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid result request",
			"error", err,
			"request_id", requestID,
		)
		shared.WriteError(w, err)
		return
	}

	if err := h.age.Result(ctx, userID, req.Handle); err != nil {
		// Pending polls are expected traffic, not errors worth an error log.
		if dErrors.HasCode(err, dErrors.CodeNotYetComplete) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "resolve verification result failed",
			"error", err,
			"request_id", requestID,
		)
		shared.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification recorded",
		"request_id", requestID,
	)

	jsonResponse.WriteJSON(w, http.StatusOK, map[string]any{
		"verified": true,
	})
}

// HandleStatus implements GET /age/status.
// Output: { "verified": bool }
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	userID := middleware.GetUserID(ctx)

	verified, err := h.age.Verified(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "verification status lookup failed",
			"error", err,
			"request_id", requestID,
		)
		shared.WriteError(w, err)
		return
	}

	jsonResponse.WriteJSON(w, http.StatusOK, map[string]any{
		"verified": verified,
	})
}
