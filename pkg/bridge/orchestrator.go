package bridge

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stablebridge/cctp-middleware/internal/metrics"
	"github.com/stablebridge/cctp-middleware/pkg/attestation"
	"github.com/stablebridge/cctp-middleware/pkg/chain"
)

// ProgressChannel is the event bus channel carrying ProgressEvents.
const ProgressChannel = "progress"

var hexPayloadPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]+$`)

// AttestationClient looks up attestations keyed by message hash.
type AttestationClient interface {
	Get(ctx context.Context, messageHash string) (*attestation.Result, error)
}

// DestinationConfig describes one claimable destination chain.
type DestinationConfig struct {
	Domain             uint32
	MessageTransmitter string
}

// Config carries the orchestrator's operating parameters.
type Config struct {
	SourceChain        string
	Account            string
	USDCContract       string
	TokenMessenger     string
	MessageTransmitter string
	Destinations       map[string]DestinationConfig

	// FlatFee is the service fee in smallest units.
	FlatFee int64

	// Attestation polling defaults; override per call via PollOptions.
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Orchestrator drives a transfer through burn, attestation and claim,
// tracking status and publishing progress events after every phase
// transition. Distinct transfers may run concurrently; within one
// transfer every step blocks until it resolves.
type Orchestrator struct {
	cfg          Config
	source       chain.Client
	destinations map[string]chain.Client
	attester     AttestationClient
	store        StatusStore
	events       *EventBus
	logger       *zap.Logger
}

// NewOrchestrator assembles the bridge orchestrator.
func NewOrchestrator(
	cfg Config,
	source chain.Client,
	destinations map[string]chain.Client,
	attester AttestationClient,
	store StatusStore,
	events *EventBus,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		source:       source,
		destinations: destinations,
		attester:     attester,
		store:        store,
		events:       events,
		logger:       logger,
	}
}

// InitiateBridge validates the request, ensures allowance, submits the
// burn transaction and extracts the protocol message from its receipt.
// Validation never reaches the network; a transaction or extraction
// failure aborts before any status record is created.
func (o *Orchestrator) InitiateBridge(ctx context.Context, req *BridgeRequest) (*BridgeResult, error) {
	if err := o.validateRequest(req); err != nil {
		metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryValidation.String()).Inc()
		return nil, err
	}

	var fees *FeeBreakdown
	if req.IncludeFeeBreakdown {
		fees = ComputeFees(req.Amount, o.cfg.FlatFee)
	}

	account := common.HexToAddress(o.cfg.Account)
	recipient := account
	if req.Recipient != "" {
		recipient = common.HexToAddress(req.Recipient)
	}

	usdc := common.HexToAddress(o.cfg.USDCContract)
	messenger := common.HexToAddress(o.cfg.TokenMessenger)

	if err := o.ensureAllowance(ctx, usdc, account, messenger, req.Amount); err != nil {
		return nil, err
	}

	dest := o.cfg.Destinations[req.DestinationChain]
	burnIntent := chain.EncodeDepositForBurn(messenger, req.Amount, dest.Domain, recipient, usdc)

	receipt, txHash, err := o.submitAndAwait(ctx, o.source, o.cfg.SourceChain, "burn", burnIntent)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryTransaction.String()).Inc()
		return nil, err
	}
	if !receipt.Succeeded() {
		metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryTransaction.String()).Inc()
		return nil, TransactionErrorf("burn transaction reverted: %s", txHash)
	}

	transmitter := common.HexToAddress(o.cfg.MessageTransmitter)
	message, ok := chain.ExtractMessageSent(receipt.Logs, transmitter)
	if !ok {
		metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryExtraction.String()).Inc()
		return nil, ExtractionErrorf("no MessageSent log in burn receipt %s", txHash)
	}
	messageHash := chain.MessageHash(message).Hex()

	trackingID := newTrackingID()
	o.transition(ctx, trackingID, PhaseInitiated, StatusFields{
		SourceChain:      strPtr(o.cfg.SourceChain),
		DestinationChain: strPtr(req.DestinationChain),
		Amount:           strPtr(req.Amount.String()),
		SourceTxHash:     strPtr(txHash),
		MessageHash:      strPtr(messageHash),
	}, txHash, "")

	o.logger.Info("Bridge initiated",
		zap.String("tracking_id", trackingID),
		zap.String("destination", req.DestinationChain),
		zap.String("amount", req.Amount.String()),
		zap.String("source_tx_hash", txHash),
		zap.String("message_hash", messageHash))

	return &BridgeResult{
		TrackingID:   trackingID,
		SourceTxHash: txHash,
		Message:      "0x" + hex.EncodeToString(message),
		MessageHash:  messageHash,
		Fees:         fees,
	}, nil
}

// WaitForAttestation polls the attestation service at a fixed interval
// until the attestation is complete or the attempt budget runs out.
// Options apply to this call only and never touch the shared defaults.
func (o *Orchestrator) WaitForAttestation(ctx context.Context, messageHash string, opts *PollOptions) (*AttestationResult, error) {
	interval := o.cfg.PollInterval
	maxAttempts := o.cfg.MaxPollAttempts
	if opts != nil {
		if opts.Interval > 0 {
			interval = opts.Interval
		}
		if opts.MaxAttempts > 0 {
			maxAttempts = opts.MaxAttempts
		}
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := o.attester.Get(ctx, messageHash)
		switch {
		case err != nil:
			metrics.AttestationPollsTotal.WithLabelValues("error").Inc()
			// A transient lookup error consumes the attempt; only the
			// final one is surfaced.
			if attempt == maxAttempts {
				metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryAttestationService.String()).Inc()
				return nil, AttestationServiceError(err)
			}
			o.logger.Warn("Attestation lookup failed",
				zap.String("message_hash", messageHash),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case result.Complete():
			metrics.AttestationPollsTotal.WithLabelValues("complete").Inc()
			metrics.AttestationWaitDuration.Observe(time.Since(start).Seconds())
			return &AttestationResult{
				Status:      AttestationStatusAttested,
				Attestation: result.Attestation,
			}, nil
		default:
			metrics.AttestationPollsTotal.WithLabelValues("pending").Inc()
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	metrics.ErrorsTotal.WithLabelValues("orchestrator", CategoryAttestationTimeout.String()).Inc()
	return nil, AttestationTimeoutError(maxAttempts)
}

// ClaimOnDestination submits the destination-chain claim. Malformed
// input raises a validation error before any network call; on-chain
// execution failure is an expected business outcome and is returned in
// the result, never as an error.
func (o *Orchestrator) ClaimOnDestination(ctx context.Context, req *ClaimRequest) (*ClaimResult, error) {
	if req.Message == "" || !hexPayloadPattern.MatchString(req.Message) {
		return nil, ValidationErrorf("malformed message: not a hex-encoded byte string")
	}
	if req.Attestation == "" || !hexPayloadPattern.MatchString(req.Attestation) {
		return nil, ValidationErrorf("malformed attestation: not a hex-encoded byte string")
	}

	destCfg, ok := o.cfg.Destinations[req.DestinationChain]
	if !ok {
		return nil, ValidationErrorf("unsupported destination chain: %s", req.DestinationChain)
	}
	destClient, ok := o.destinations[req.DestinationChain]
	if !ok {
		return nil, ValidationErrorf("no chain client configured for %s", req.DestinationChain)
	}

	message, err := decodeHex(req.Message)
	if err != nil {
		return nil, ValidationErrorf("malformed message: %v", err)
	}
	attestationBytes, err := decodeHex(req.Attestation)
	if err != nil {
		return nil, ValidationErrorf("malformed attestation: %v", err)
	}

	intent := chain.EncodeReceiveMessage(common.HexToAddress(destCfg.MessageTransmitter), message, attestationBytes)

	receipt, txHash, err := o.submitAndAwait(ctx, destClient, req.DestinationChain, "claim", intent)
	if err != nil {
		o.logger.Warn("Claim submission failed",
			zap.String("destination", req.DestinationChain),
			zap.Error(err))
		return &ClaimResult{Success: false, DestTxHash: txHash, Error: err.Error()}, nil
	}
	if !receipt.Succeeded() {
		return &ClaimResult{
			Success:    false,
			DestTxHash: txHash,
			Error:      fmt.Sprintf("claim transaction reverted: %s", txHash),
		}, nil
	}

	return &ClaimResult{Success: true, DestTxHash: txHash}, nil
}

// ExecuteBridge runs the full pipeline sequentially: initiate, wait
// for the attestation, claim. Each phase transition is persisted and
// published before the next step begins. A claim failure is recorded
// as failed and then re-raised so pipeline callers observe it; the
// burned funds stay claimable manually through ClaimOnDestination.
func (o *Orchestrator) ExecuteBridge(ctx context.Context, req *BridgeRequest) (*ExecuteResult, error) {
	start := time.Now()

	result, err := o.InitiateBridge(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.resumePipeline(ctx, req, result, start)
}

// StartBridge initiates the transfer synchronously and finishes the
// rest of the pipeline in the background, so callers get the
// trackingId as soon as the burn is on chain. Validation and
// initiation failures are still raised synchronously.
func (o *Orchestrator) StartBridge(ctx context.Context, req *BridgeRequest) (*BridgeResult, error) {
	start := time.Now()

	result, err := o.InitiateBridge(ctx, req)
	if err != nil {
		return nil, err
	}

	go func() {
		// Detached from the request context: the transfer outlives it.
		if _, err := o.resumePipeline(context.Background(), req, result, start); err != nil {
			o.logger.Error("Bridge pipeline failed",
				zap.String("tracking_id", result.TrackingID),
				zap.Error(err))
		}
	}()

	return result, nil
}

func (o *Orchestrator) resumePipeline(ctx context.Context, req *BridgeRequest, result *BridgeResult, start time.Time) (*ExecuteResult, error) {
	trackingID := result.TrackingID

	o.transition(ctx, trackingID, PhasePendingAttestation, StatusFields{}, "", "")

	att, err := o.WaitForAttestation(ctx, result.MessageHash, nil)
	if err != nil {
		o.fail(ctx, trackingID, req.DestinationChain, "", err.Error())
		return nil, err
	}

	o.transition(ctx, trackingID, PhaseAttested, StatusFields{
		Attestation: strPtr(att.Attestation),
	}, "", "")
	o.transition(ctx, trackingID, PhaseClaiming, StatusFields{}, "", "")

	claim, err := o.ClaimOnDestination(ctx, &ClaimRequest{
		Message:          result.Message,
		Attestation:      att.Attestation,
		DestinationChain: req.DestinationChain,
	})
	if err != nil {
		o.fail(ctx, trackingID, req.DestinationChain, "", err.Error())
		return nil, err
	}
	if !claim.Success {
		o.fail(ctx, trackingID, req.DestinationChain, claim.DestTxHash, claim.Error)
		return nil, fmt.Errorf("claim on %s failed: %s", req.DestinationChain, claim.Error)
	}

	o.transition(ctx, trackingID, PhaseCompleted, StatusFields{
		DestTxHash: strPtr(claim.DestTxHash),
	}, claim.DestTxHash, "")

	metrics.BridgesTotal.WithLabelValues(req.DestinationChain, string(PhaseCompleted)).Inc()
	metrics.BridgeDuration.WithLabelValues(req.DestinationChain).Observe(time.Since(start).Seconds())

	o.logger.Info("Bridge completed",
		zap.String("tracking_id", trackingID),
		zap.String("dest_tx_hash", claim.DestTxHash))

	return &ExecuteResult{
		Success:      true,
		SourceTxHash: result.SourceTxHash,
		DestTxHash:   claim.DestTxHash,
		TrackingID:   trackingID,
	}, nil
}

// GetStatus returns the status record for a trackingId, nil when
// unknown.
func (o *Orchestrator) GetStatus(ctx context.Context, trackingID string) (*BridgeStatus, error) {
	return o.store.Get(ctx, trackingID)
}

// GetActiveBridges returns every transfer in a non-terminal phase.
func (o *Orchestrator) GetActiveBridges(ctx context.Context) ([]*BridgeStatus, error) {
	return o.store.GetActive(ctx)
}

// MarkAbandoned marks a transfer abandoned. Idempotent.
func (o *Orchestrator) MarkAbandoned(ctx context.Context, trackingID string) error {
	if err := o.store.MarkAbandoned(ctx, trackingID); err != nil {
		return err
	}
	o.refreshActiveGauge(ctx)
	return nil
}

// Subscribe registers a progress handler; dispose the returned
// subscription to stop receiving events.
func (o *Orchestrator) Subscribe(channel string, handler Handler) *Subscription {
	return o.events.Subscribe(channel, handler)
}

func (o *Orchestrator) validateRequest(req *BridgeRequest) error {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return ValidationErrorf("non-positive amount")
	}
	if req.Recipient != "" && !common.IsHexAddress(req.Recipient) {
		return ValidationErrorf("malformed recipient address: %s", req.Recipient)
	}
	if req.DestinationChain == o.cfg.SourceChain {
		return ValidationErrorf("destination chain must differ from source chain %s", o.cfg.SourceChain)
	}
	if _, ok := o.cfg.Destinations[req.DestinationChain]; !ok {
		return ValidationErrorf("unsupported destination chain: %s", req.DestinationChain)
	}
	return nil
}

// ensureAllowance reads the current ERC-20 allowance and, when it is
// short, submits an approval and blocks for its receipt. Approval and
// burn are strictly sequential so they cannot race the nonce or the
// allowance state.
func (o *Orchestrator) ensureAllowance(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	raw, err := o.source.Read(ctx, chain.EncodeAllowanceCall(token, owner, spender))
	if err != nil {
		return WrapTransactionError(err, "failed to read allowance")
	}

	allowance := chain.DecodeAllowance(raw)
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	o.logger.Info("Allowance insufficient, submitting approval",
		zap.String("allowance", allowance.String()),
		zap.String("required", amount.String()))

	receipt, txHash, err := o.submitAndAwait(ctx, o.source, o.cfg.SourceChain, "approve", chain.EncodeApprove(token, spender, amount))
	if err != nil {
		return err
	}
	if !receipt.Succeeded() {
		return TransactionErrorf("approval transaction reverted: %s", txHash)
	}
	return nil
}

// submitAndAwait simulates, broadcasts and blocks for the receipt of
// one transaction. No internal retry: a failure is reported
// immediately.
func (o *Orchestrator) submitAndAwait(ctx context.Context, client chain.Client, chainName, operation string, intent chain.TxIntent) (*chain.Receipt, string, error) {
	prepared, err := client.Simulate(ctx, intent)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(chainName, operation, "simulate_failed").Inc()
		return nil, "", WrapTransactionError(err, "%s simulation failed", operation)
	}

	txHash, err := client.Send(ctx, prepared)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(chainName, operation, "send_failed").Inc()
		return nil, "", WrapTransactionError(err, "%s submission failed", operation)
	}
	metrics.TransactionsSent.WithLabelValues(chainName, operation, "sent").Inc()

	receipt, err := client.AwaitReceipt(ctx, txHash)
	if err != nil {
		return nil, txHash, WrapTransactionError(err, "failed to await %s receipt %s", operation, txHash)
	}
	return receipt, txHash, nil
}

// transition persists a phase change and publishes the matching
// progress event. A storage failure after a broadcast transaction is
// logged rather than raised: the transfer exists on chain regardless.
func (o *Orchestrator) transition(ctx context.Context, trackingID string, phase Phase, fields StatusFields, txHash, errMsg string) {
	if _, err := o.store.Update(ctx, trackingID, phase, fields); err != nil {
		o.logger.Error("Failed to update bridge status",
			zap.String("tracking_id", trackingID),
			zap.String("phase", string(phase)),
			zap.Error(err))
	}

	o.events.Publish(ProgressChannel, ProgressEvent{
		TrackingID: trackingID,
		Phase:      phase,
		TxHash:     txHash,
		Error:      errMsg,
	})

	metrics.PhaseTransitions.WithLabelValues(string(phase)).Inc()
	o.refreshActiveGauge(ctx)
}

func (o *Orchestrator) fail(ctx context.Context, trackingID, destination, destTxHash, errMsg string) {
	fields := StatusFields{ErrorMessage: strPtr(errMsg)}
	if destTxHash != "" {
		fields.DestTxHash = strPtr(destTxHash)
	}
	o.transition(ctx, trackingID, PhaseFailed, fields, destTxHash, errMsg)
	metrics.BridgesTotal.WithLabelValues(destination, string(PhaseFailed)).Inc()

	o.logger.Error("Bridge failed",
		zap.String("tracking_id", trackingID),
		zap.String("destination", destination),
		zap.String("error", errMsg))
}

func (o *Orchestrator) refreshActiveGauge(ctx context.Context) {
	active, err := o.store.GetActive(ctx)
	if err != nil {
		return
	}
	metrics.ActiveBridges.Set(float64(len(active)))
}

func newTrackingID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("bridge-%d-%s", time.Now().UnixMilli(), suffix)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
