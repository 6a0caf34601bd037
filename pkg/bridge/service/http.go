package service

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/stablebridge/cctp-middleware/pkg/app/errors"
	apphttp "github.com/stablebridge/cctp-middleware/pkg/app/http"
	"github.com/stablebridge/cctp-middleware/pkg/bridge"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service  Service
	validate *validator.Validate
	logger   *zap.Logger
}

// RegisterRoutes registers the bridge endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}

	r.Post("/bridges", apphttp.HandleError(h.createBridge))
	r.Get("/bridges", apphttp.HandleError(h.listActiveBridges))
	r.Get("/bridges/{id}", apphttp.HandleError(h.getBridge))
	r.Post("/bridges/{id}/abandon", apphttp.HandleError(h.abandonBridge))
	r.Post("/claims", apphttp.HandleError(h.claim))
}

// createBridge initiates a transfer. The burn is submitted before the
// response; attestation and claim continue in the background, so the
// reply is 202 with the trackingId to poll.
func (h *HTTP) createBridge(w http.ResponseWriter, r *http.Request) error {
	var req CreateBridgeRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return apperrors.BadRequestError(nil, "amount must be a decimal integer string")
	}

	result, err := h.service.StartBridge(r.Context(), &bridge.BridgeRequest{
		Amount:              amount,
		Recipient:           req.Recipient,
		DestinationChain:    req.DestinationChain,
		IncludeFeeBreakdown: req.IncludeFeeBreakdown,
	})
	if err != nil {
		return toServiceError(err)
	}

	h.writeJSON(w, http.StatusAccepted, &CreateBridgeResponse{
		TrackingID:   result.TrackingID,
		Phase:        string(bridge.PhaseInitiated),
		SourceTxHash: result.SourceTxHash,
		MessageHash:  result.MessageHash,
		Fees:         toFeeResponse(result.Fees),
	})
	return nil
}

func (h *HTTP) listActiveBridges(w http.ResponseWriter, r *http.Request) error {
	active, err := h.service.GetActiveBridges(r.Context())
	if err != nil {
		return apperrors.GeneralError(err)
	}

	bridges := make([]*BridgeStatusResponse, len(active))
	for i, status := range active {
		bridges[i] = toStatusResponse(status)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"bridges": bridges})
	return nil
}

func (h *HTTP) getBridge(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")

	status, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if status == nil {
		return apperrors.ResourceNotFoundError(nil, "unknown tracking id: "+id)
	}

	h.writeJSON(w, http.StatusOK, toStatusResponse(status))
	return nil
}

func (h *HTTP) abandonBridge(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")

	status, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	if status == nil {
		return apperrors.ResourceNotFoundError(nil, "unknown tracking id: "+id)
	}

	if err := h.service.MarkAbandoned(r.Context(), id); err != nil {
		return apperrors.GeneralError(err)
	}

	updated, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		return apperrors.GeneralError(err)
	}

	h.writeJSON(w, http.StatusOK, toStatusResponse(updated))
	return nil
}

// claim submits a manual recovery claim for a transfer whose automated
// claim failed. A failed on-chain claim is a 200 with success=false.
func (h *HTTP) claim(w http.ResponseWriter, r *http.Request) error {
	var req ClaimRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	result, err := h.service.ClaimOnDestination(r.Context(), &bridge.ClaimRequest{
		Message:          req.Message,
		Attestation:      req.Attestation,
		DestinationChain: req.DestinationChain,
	})
	if err != nil {
		return toServiceError(err)
	}

	h.writeJSON(w, http.StatusOK, &ClaimResponse{
		Success:    result.Success,
		DestTxHash: result.DestTxHash,
		Error:      result.Error,
	})
	return nil
}

func (h *HTTP) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, "validation failed: "+err.Error())
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// toServiceError maps bridge error categories onto HTTP-facing service
// errors.
func toServiceError(err error) error {
	switch {
	case bridge.IsCategory(err, bridge.CategoryValidation):
		return apperrors.BadRequestError(err, err.Error())
	case bridge.IsCategory(err, bridge.CategoryAttestationTimeout):
		return apperrors.TimeoutError(err, err.Error())
	case bridge.IsCategory(err, bridge.CategoryAttestationService),
		bridge.IsCategory(err, bridge.CategoryTransaction),
		bridge.IsCategory(err, bridge.CategoryExtraction):
		return apperrors.DependencyFailureError(err, err.Error())
	default:
		return apperrors.GeneralError(err)
	}
}
