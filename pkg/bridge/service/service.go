// Package service exposes the bridge orchestrator over HTTP.
package service

import (
	"context"
	"time"

	"github.com/stablebridge/cctp-middleware/pkg/bridge"
)

// Service is the narrow orchestrator surface the HTTP layer needs.
type Service interface {
	StartBridge(ctx context.Context, req *bridge.BridgeRequest) (*bridge.BridgeResult, error)
	ClaimOnDestination(ctx context.Context, req *bridge.ClaimRequest) (*bridge.ClaimResult, error)
	GetStatus(ctx context.Context, trackingID string) (*bridge.BridgeStatus, error)
	GetActiveBridges(ctx context.Context) ([]*bridge.BridgeStatus, error)
	MarkAbandoned(ctx context.Context, trackingID string) error
}

// CreateBridgeRequest is the POST /bridges payload.
type CreateBridgeRequest struct {
	// Amount in USDC smallest units, decimal string.
	Amount              string `json:"amount" validate:"required,number"`
	Recipient           string `json:"recipient" validate:"omitempty,eth_addr"`
	DestinationChain    string `json:"destinationChain" validate:"required"`
	IncludeFeeBreakdown bool   `json:"includeFeeBreakdown"`
}

// FeeBreakdownResponse carries the flat-fee computation, all values in
// smallest units.
type FeeBreakdownResponse struct {
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	NetAmount string `json:"netAmount"`
}

// CreateBridgeResponse is returned with 202 once initiation completed.
type CreateBridgeResponse struct {
	TrackingID   string                `json:"trackingId"`
	Phase        string                `json:"phase"`
	SourceTxHash string                `json:"sourceTxHash"`
	MessageHash  string                `json:"messageHash"`
	Fees         *FeeBreakdownResponse `json:"fees,omitempty"`
}

// BridgeStatusResponse is the tracked state of one transfer.
type BridgeStatusResponse struct {
	TrackingID          string    `json:"trackingId"`
	Phase               string    `json:"phase"`
	SourceChain         string    `json:"sourceChain"`
	DestinationChain    string    `json:"destinationChain"`
	Amount              string    `json:"amount"`
	SourceTxHash        *string   `json:"sourceTxHash,omitempty"`
	DestTxHash          *string   `json:"destTxHash,omitempty"`
	MessageHash         *string   `json:"messageHash,omitempty"`
	Attestation         *string   `json:"attestation,omitempty"`
	ErrorMessage        *string   `json:"errorMessage,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
	EstimatedCompletion time.Time `json:"estimatedCompletion"`
}

// ClaimRequest is the POST /claims payload for manual recovery claims.
type ClaimRequest struct {
	Message          string `json:"message" validate:"required"`
	Attestation      string `json:"attestation" validate:"required"`
	DestinationChain string `json:"destinationChain" validate:"required"`
}

// ClaimResponse reports the claim outcome; on-chain failure is a
// response, not an HTTP error.
type ClaimResponse struct {
	Success    bool   `json:"success"`
	DestTxHash string `json:"destTxHash,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toStatusResponse(status *bridge.BridgeStatus) *BridgeStatusResponse {
	return &BridgeStatusResponse{
		TrackingID:          status.TrackingID,
		Phase:               string(status.Phase),
		SourceChain:         status.SourceChain,
		DestinationChain:    status.DestinationChain,
		Amount:              status.Amount,
		SourceTxHash:        status.SourceTxHash,
		DestTxHash:          status.DestTxHash,
		MessageHash:         status.MessageHash,
		Attestation:         status.Attestation,
		ErrorMessage:        status.ErrorMessage,
		CreatedAt:           status.CreatedAt,
		UpdatedAt:           status.UpdatedAt,
		EstimatedCompletion: status.EstimatedCompletion,
	}
}

func toFeeResponse(fees *bridge.FeeBreakdown) *FeeBreakdownResponse {
	if fees == nil {
		return nil
	}
	return &FeeBreakdownResponse{
		Amount:    fees.Amount.String(),
		Fee:       fees.Fee.String(),
		NetAmount: fees.NetAmount.String(),
	}
}
