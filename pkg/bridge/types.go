// Package bridge implements the CCTP bridge orchestrator: burn on the
// source chain, wait for the off-chain attestation, claim on the
// destination chain, tracking per-transfer state throughout.
package bridge

import (
	"math/big"
	"time"
)

// Phase is the current step of a transfer's lifecycle.
type Phase string

const (
	PhaseInitiated          Phase = "initiated"
	PhasePendingAttestation Phase = "pending_attestation"
	PhaseAttested           Phase = "attested"
	PhaseClaiming           Phase = "claiming"
	PhaseCompleted          Phase = "completed"
	PhaseFailed             Phase = "failed"
	PhaseAbandoned          Phase = "abandoned"
)

// Terminal reports whether no transition leaves this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseAbandoned:
		return true
	}
	return false
}

// phaseEstimates holds the static average remaining duration per
// phase, used for the estimated-completion timestamp. These are not
// measured from live network latency.
var phaseEstimates = map[Phase]time.Duration{
	PhaseInitiated:          15 * time.Minute,
	PhasePendingAttestation: 13 * time.Minute,
	PhaseAttested:           2 * time.Minute,
	PhaseClaiming:           1 * time.Minute,
}

// BridgeRequest describes a transfer to initiate. Immutable once
// submitted.
type BridgeRequest struct {
	// Amount in USDC smallest units (6 decimals). Must be positive.
	Amount *big.Int
	// Recipient is the destination mint recipient. Defaults to the
	// orchestrator's own account when empty.
	Recipient string
	// DestinationChain names a configured destination.
	DestinationChain string
	// IncludeFeeBreakdown requests a fee breakdown in the result.
	IncludeFeeBreakdown bool
}

// FeeBreakdown is the flat-fee computation for a transfer.
type FeeBreakdown struct {
	Amount    *big.Int
	Fee       *big.Int
	NetAmount *big.Int
}

// BridgeStatus is the tracked state of one transfer, keyed by
// trackingId and owned by the StatusStore.
type BridgeStatus struct {
	TrackingID          string
	Phase               Phase
	SourceChain         string
	DestinationChain    string
	Amount              string
	SourceTxHash        *string
	DestTxHash          *string
	MessageHash         *string
	Attestation         *string
	ErrorMessage        *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	EstimatedCompletion time.Time
}

// StatusFields is a partial update merged into a BridgeStatus. Nil
// fields are preserved on the existing record.
type StatusFields struct {
	SourceChain      *string
	DestinationChain *string
	Amount           *string
	SourceTxHash     *string
	DestTxHash       *string
	MessageHash      *string
	Attestation      *string
	ErrorMessage     *string
}

// BridgeResult is the outcome of a successful initiation.
type BridgeResult struct {
	TrackingID   string
	SourceTxHash string
	// Message is the hex-encoded raw burn message.
	Message string
	// MessageHash keys the attestation lookup.
	MessageHash string
	Fees        *FeeBreakdown
}

// AttestationResult is the outcome of an attestation wait.
type AttestationResult struct {
	Status      string
	Attestation string
}

// Attestation wait statuses.
const (
	AttestationStatusPending  = "pending"
	AttestationStatusAttested = "attested"
)

// ClaimRequest describes a destination-chain claim. Message and
// Attestation are hex-encoded byte strings.
type ClaimRequest struct {
	Message          string
	Attestation      string
	DestinationChain string
}

// ClaimResult is the outcome of a claim attempt. On-chain execution
// failure is reported here, never as an error.
type ClaimResult struct {
	Success    bool
	DestTxHash string
	Error      string
}

// ExecuteResult is the outcome of a full pipeline run.
type ExecuteResult struct {
	Success      bool
	SourceTxHash string
	DestTxHash   string
	TrackingID   string
}

// ProgressEvent is broadcast on the progress channel after every
// phase transition.
type ProgressEvent struct {
	TrackingID string
	Phase      Phase
	TxHash     string
	Error      string
}

// PollOptions overrides attestation polling for a single
// WaitForAttestation call. Zero values fall back to the configured
// defaults.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
}

func strPtr(s string) *string {
	return &s
}
