// Package handler exposes the skip-trace HTTP surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"skiptrace/internal/platform/middleware"
	"skiptrace/internal/skiptrace"
	dErrors "skiptrace/pkg/domain-errors"
	"skiptrace/pkg/platform/httputil"
)

const maxPropertyAddresses = 3

// Service defines the lookup operations the handler depends on.
type Service interface {
	Lookup(ctx context.Context, req skiptrace.LookupRequest) (*skiptrace.LookupResult, error)
	Credits(ctx context.Context, userID string) (skiptrace.CreditBalance, error)
}

// Handler handles skip-trace endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates the skip-trace Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the skip-trace routes with the shared middleware chain.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(2 * time.Minute))
	router.Use(middleware.ContentTypeJSON)
	router.Post("/skiptrace", h.handleLookup)
	router.Get("/skiptrace/credits", h.handleCredits)

	r.Mount("/", router)
}

type lookupRequest struct {
	UserID            string              `json:"userId"`
	OwnerName         string              `json:"ownerName"`
	InputAddress      skiptrace.Address   `json:"inputAddress"`
	PropertyAddresses []skiptrace.Address `json:"propertyAddresses"`
	Options           skiptrace.Options   `json:"options"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid lookup request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	addresses := dedupeAddresses(req.PropertyAddresses)
	if len(addresses) > maxPropertyAddresses {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at most 3 property addresses per lookup"))
		return
	}

	result, err := h.service.Lookup(ctx, skiptrace.LookupRequest{
		UserID:            req.UserID,
		OwnerName:         req.OwnerName,
		InputAddress:      req.InputAddress,
		PropertyAddresses: addresses,
		Options:           req.Options,
	})
	if err != nil {
		code := dErrors.CodeOf(err)
		if code == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "lookup failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		} else {
			h.logger.WarnContext(ctx, "lookup rejected",
				"request_id", requestID,
				"code", string(code),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "userId query parameter is required"))
		return
	}

	balance, err := h.service.Credits(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "credit balance fetch failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"free":   balance.Free,
		"paid":   balance.Paid,
		"total":  balance.Total(),
	})
}

// dedupeAddresses drops repeated addresses by their normalized cache key,
// keeping first occurrences in order.
func dedupeAddresses(addrs []skiptrace.Address) []skiptrace.Address {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]skiptrace.Address, 0, len(addrs))
	for _, a := range addrs {
		key := a.Key()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
