package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/stablebridge/cctp-middleware/pkg/attestation"
	"github.com/stablebridge/cctp-middleware/pkg/chain"
)

const (
	testAccount         = "0x1111111111111111111111111111111111111111"
	testUSDC            = "0x2222222222222222222222222222222222222222"
	testMessenger       = "0x3333333333333333333333333333333333333333"
	testTransmitter     = "0x4444444444444444444444444444444444444444"
	testDestTransmitter = "0x5555555555555555555555555555555555555555"
)

var trackingIDPattern = regexp.MustCompile(`^bridge-\d+-[a-z0-9]{8}$`)

func newTestOrchestrator(source, dest *MockChainClient, attester *MockAttestationClient) *Orchestrator {
	cfg := Config{
		SourceChain:        "ethereum",
		Account:            testAccount,
		USDCContract:       testUSDC,
		TokenMessenger:     testMessenger,
		MessageTransmitter: testTransmitter,
		Destinations: map[string]DestinationConfig{
			"base": {Domain: 6, MessageTransmitter: testDestTransmitter},
		},
		FlatFee:         100,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 3,
	}
	destinations := map[string]chain.Client{"base": dest}
	return NewOrchestrator(cfg, source, destinations, attester, NewMemoryStatusStore(), NewEventBus(zap.NewNop()), zap.NewNop())
}

// burnReceipt builds a successful burn receipt carrying a MessageSent
// log for the given raw message.
func burnReceipt(txHash string, message []byte) *chain.Receipt {
	return &chain.Receipt{
		Status: chain.ReceiptStatusSuccess,
		TxHash: txHash,
		Logs:   []chain.Log{messageSentLog(common.HexToAddress(testTransmitter), message)},
	}
}

func TestInitiateBridge_ValidationRejectsBeforeAnyChainCall(t *testing.T) {
	tests := []struct {
		name string
		req  *BridgeRequest
	}{
		{"zero amount", &BridgeRequest{Amount: big.NewInt(0), DestinationChain: "base"}},
		{"negative amount", &BridgeRequest{Amount: big.NewInt(-5), DestinationChain: "base"}},
		{"nil amount", &BridgeRequest{DestinationChain: "base"}},
		{"malformed recipient", &BridgeRequest{Amount: big.NewInt(100), Recipient: "not-an-address", DestinationChain: "base"}},
		{"destination equals source", &BridgeRequest{Amount: big.NewInt(100), DestinationChain: "ethereum"}},
		{"unsupported destination", &BridgeRequest{Amount: big.NewInt(100), DestinationChain: "solana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &MockChainClient{}
			orch := newTestOrchestrator(source, &MockChainClient{}, &MockAttestationClient{})

			_, err := orch.InitiateBridge(context.Background(), tt.req)
			if !IsCategory(err, CategoryValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if source.ReadCalls != 0 || source.SimulateCalls != 0 || source.SendCalls != 0 {
				t.Errorf("Expected no chain calls, got read=%d simulate=%d send=%d",
					source.ReadCalls, source.SimulateCalls, source.SendCalls)
			}
		})
	}
}

func TestInitiateBridge_SufficientAllowanceSkipsApproval(t *testing.T) {
	message := []byte("burn-message-payload")
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(5_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return burnReceipt(txHash, message), nil
		},
	}
	orch := newTestOrchestrator(source, &MockChainClient{}, &MockAttestationClient{})

	result, err := orch.InitiateBridge(context.Background(), &BridgeRequest{
		Amount:              big.NewInt(1_000_000),
		DestinationChain:    "base",
		IncludeFeeBreakdown: true,
	})
	if err != nil {
		t.Fatalf("InitiateBridge failed: %v", err)
	}

	if source.SimulateCalls != 1 || source.SendCalls != 1 {
		t.Errorf("Expected exactly one simulate/send pair, got simulate=%d send=%d",
			source.SimulateCalls, source.SendCalls)
	}
	if to := source.SimulatedIntents[0].To; to != common.HexToAddress(testMessenger) {
		t.Errorf("Expected burn intent to TokenMessenger, got %s", to.Hex())
	}
	if !trackingIDPattern.MatchString(result.TrackingID) {
		t.Errorf("Malformed tracking id: %s", result.TrackingID)
	}
	if result.Message != "0x"+hex.EncodeToString(message) {
		t.Errorf("Unexpected message: %s", result.Message)
	}
	if result.MessageHash != chain.MessageHash(message).Hex() {
		t.Errorf("Unexpected message hash: %s", result.MessageHash)
	}
	if result.Fees == nil {
		t.Fatal("Expected fee breakdown")
	}
	if result.Fees.Fee.Int64() != 100 || result.Fees.NetAmount.Int64() != 999_900 {
		t.Errorf("Unexpected fees: fee=%s net=%s", result.Fees.Fee, result.Fees.NetAmount)
	}

	status, err := orch.GetStatus(context.Background(), result.TrackingID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status == nil || status.Phase != PhaseInitiated {
		t.Errorf("Expected initiated status record, got %+v", status)
	}
}

func TestInitiateBridge_ShortAllowanceApprovesFirst(t *testing.T) {
	message := []byte("burn-message-payload")
	var sequence []string

	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(0)), nil
		},
	}
	source.SendFunc = func(ctx context.Context, tx *chain.PreparedTx) (string, error) {
		if *tx.Tx.To() == common.HexToAddress(testUSDC) {
			sequence = append(sequence, "send approve")
		} else {
			sequence = append(sequence, "send burn")
		}
		return tx.Hash(), nil
	}
	source.AwaitReceiptFunc = func(ctx context.Context, txHash string) (*chain.Receipt, error) {
		if source.AwaitCalls == 1 {
			sequence = append(sequence, "await approve")
			return &chain.Receipt{Status: chain.ReceiptStatusSuccess, TxHash: txHash}, nil
		}
		sequence = append(sequence, "await burn")
		return burnReceipt(txHash, message), nil
	}
	orch := newTestOrchestrator(source, &MockChainClient{}, &MockAttestationClient{})

	_, err := orch.InitiateBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(1_000_000),
		DestinationChain: "base",
	})
	if err != nil {
		t.Fatalf("InitiateBridge failed: %v", err)
	}

	if source.SimulateCalls != 2 || source.SendCalls != 2 {
		t.Errorf("Expected two simulate/send pairs, got simulate=%d send=%d",
			source.SimulateCalls, source.SendCalls)
	}
	want := []string{"send approve", "await approve", "send burn", "await burn"}
	if strings.Join(sequence, ", ") != strings.Join(want, ", ") {
		t.Errorf("Approval not awaited before burn: %v", sequence)
	}
	if to := source.SimulatedIntents[0].To; to != common.HexToAddress(testUSDC) {
		t.Errorf("Expected first intent to USDC contract, got %s", to.Hex())
	}
	if to := source.SimulatedIntents[1].To; to != common.HexToAddress(testMessenger) {
		t.Errorf("Expected second intent to TokenMessenger, got %s", to.Hex())
	}
}

func TestInitiateBridge_BurnRevertIsTransactionError(t *testing.T) {
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(5_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return &chain.Receipt{Status: 0, TxHash: txHash}, nil
		},
	}
	orch := newTestOrchestrator(source, &MockChainClient{}, &MockAttestationClient{})

	_, err := orch.InitiateBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(100),
		DestinationChain: "base",
	})
	if !IsCategory(err, CategoryTransaction) {
		t.Fatalf("Expected transaction error, got %v", err)
	}
}

func TestInitiateBridge_MissingMessageSentLogIsExtractionError(t *testing.T) {
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(5_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return &chain.Receipt{Status: chain.ReceiptStatusSuccess, TxHash: txHash}, nil
		},
	}
	orch := newTestOrchestrator(source, &MockChainClient{}, &MockAttestationClient{})

	_, err := orch.InitiateBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(100),
		DestinationChain: "base",
	})
	if !IsCategory(err, CategoryExtraction) {
		t.Fatalf("Expected extraction error, got %v", err)
	}

	active, err := orch.GetActiveBridges(context.Background())
	if err != nil {
		t.Fatalf("GetActiveBridges failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no status record for a failed initiation, got %d", len(active))
	}
}

func TestWaitForAttestation_PendingThenComplete(t *testing.T) {
	attester := &MockAttestationClient{}
	attester.GetFunc = func(ctx context.Context, messageHash string) (*attestation.Result, error) {
		if attester.GetCalls <= 3 {
			return &attestation.Result{Status: attestation.StatusPending}, nil
		}
		return &attestation.Result{Status: attestation.StatusComplete, Attestation: "0xabcdef"}, nil
	}
	orch := newTestOrchestrator(&MockChainClient{}, &MockChainClient{}, attester)

	result, err := orch.WaitForAttestation(context.Background(), "0xhash", &PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
	})
	if err != nil {
		t.Fatalf("WaitForAttestation failed: %v", err)
	}
	if result.Status != AttestationStatusAttested {
		t.Errorf("Expected status attested, got %s", result.Status)
	}
	if result.Attestation != "0xabcdef" {
		t.Errorf("Unexpected attestation: %s", result.Attestation)
	}
	if attester.GetCalls != 4 {
		t.Errorf("Expected 4 lookups, got %d", attester.GetCalls)
	}
}

func TestWaitForAttestation_ExhaustedBudgetIsTimeout(t *testing.T) {
	attester := &MockAttestationClient{}
	orch := newTestOrchestrator(&MockChainClient{}, &MockChainClient{}, attester)

	_, err := orch.WaitForAttestation(context.Background(), "0xhash", &PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 5,
	})
	if !IsCategory(err, CategoryAttestationTimeout) {
		t.Fatalf("Expected attestation timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "after 5 attempts") {
		t.Errorf("Expected attempt count in message, got %q", err.Error())
	}
	if attester.GetCalls != 5 {
		t.Errorf("Expected exactly 5 lookups, got %d", attester.GetCalls)
	}
}

func TestWaitForAttestation_PersistentErrorsAreServiceError(t *testing.T) {
	attester := &MockAttestationClient{
		GetFunc: func(ctx context.Context, messageHash string) (*attestation.Result, error) {
			return nil, errors.New("connection refused")
		},
	}
	orch := newTestOrchestrator(&MockChainClient{}, &MockChainClient{}, attester)

	_, err := orch.WaitForAttestation(context.Background(), "0xhash", &PollOptions{
		Interval:    time.Millisecond,
		MaxAttempts: 3,
	})
	if !IsCategory(err, CategoryAttestationService) {
		t.Fatalf("Expected attestation service error, got %v", err)
	}
	if attester.GetCalls != 3 {
		t.Errorf("Expected 3 lookups, got %d", attester.GetCalls)
	}
}

func TestClaimOnDestination_MalformedInputRejectedSynchronously(t *testing.T) {
	tests := []struct {
		name string
		req  *ClaimRequest
	}{
		{"non-hex message", &ClaimRequest{Message: "zzzz", Attestation: "0xabcd", DestinationChain: "base"}},
		{"empty message", &ClaimRequest{Attestation: "0xabcd", DestinationChain: "base"}},
		{"non-hex attestation", &ClaimRequest{Message: "0xabcd", Attestation: "nope", DestinationChain: "base"}},
		{"unsupported destination", &ClaimRequest{Message: "0xabcd", Attestation: "0xabcd", DestinationChain: "solana"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := &MockChainClient{}
			orch := newTestOrchestrator(&MockChainClient{}, dest, &MockAttestationClient{})

			_, err := orch.ClaimOnDestination(context.Background(), tt.req)
			if !IsCategory(err, CategoryValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if dest.SimulateCalls != 0 || dest.SendCalls != 0 {
				t.Errorf("Expected no destination chain calls, got simulate=%d send=%d",
					dest.SimulateCalls, dest.SendCalls)
			}
		})
	}
}

func TestClaimOnDestination_RevertIsResultNotError(t *testing.T) {
	dest := &MockChainClient{
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return &chain.Receipt{Status: 0, TxHash: txHash}, nil
		},
	}
	orch := newTestOrchestrator(&MockChainClient{}, dest, &MockAttestationClient{})

	result, err := orch.ClaimOnDestination(context.Background(), &ClaimRequest{
		Message:          "0xdeadbeef",
		Attestation:      "0xabcd",
		DestinationChain: "base",
	})
	if err != nil {
		t.Fatalf("Expected claim failure in result, got error: %v", err)
	}
	if result.Success {
		t.Fatal("Expected failed claim result")
	}
	if !strings.Contains(result.Error, "reverted") {
		t.Errorf("Expected revert reason in result, got %q", result.Error)
	}
	if result.DestTxHash == "" {
		t.Error("Expected dest tx hash on a reverted claim")
	}
}

func TestClaimOnDestination_SubmissionFailureIsResultNotError(t *testing.T) {
	dest := &MockChainClient{
		SendFunc: func(ctx context.Context, tx *chain.PreparedTx) (string, error) {
			return "", errors.New("nonce too low")
		},
	}
	orch := newTestOrchestrator(&MockChainClient{}, dest, &MockAttestationClient{})

	result, err := orch.ClaimOnDestination(context.Background(), &ClaimRequest{
		Message:          "0xdeadbeef",
		Attestation:      "0xabcd",
		DestinationChain: "base",
	})
	if err != nil {
		t.Fatalf("Expected claim failure in result, got error: %v", err)
	}
	if result.Success {
		t.Fatal("Expected failed claim result")
	}
	if !strings.Contains(result.Error, "nonce too low") {
		t.Errorf("Expected underlying cause in result, got %q", result.Error)
	}
}

func TestExecuteBridge_HappyPath(t *testing.T) {
	message := []byte("full-pipeline-message")
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(10_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return burnReceipt(txHash, message), nil
		},
	}
	dest := &MockChainClient{}
	attester := &MockAttestationClient{}
	attester.GetFunc = func(ctx context.Context, messageHash string) (*attestation.Result, error) {
		if messageHash != chain.MessageHash(message).Hex() {
			return nil, fmt.Errorf("unexpected message hash %s", messageHash)
		}
		if attester.GetCalls == 1 {
			return &attestation.Result{Status: attestation.StatusPending}, nil
		}
		return &attestation.Result{Status: attestation.StatusComplete, Attestation: "0xa77e57ed"}, nil
	}
	orch := newTestOrchestrator(source, dest, attester)

	var phases []Phase
	sub := orch.Subscribe(ProgressChannel, func(event ProgressEvent) {
		phases = append(phases, event.Phase)
	})
	defer sub.Unsubscribe()

	result, err := orch.ExecuteBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(1_000_000),
		DestinationChain: "base",
	})
	if err != nil {
		t.Fatalf("ExecuteBridge failed: %v", err)
	}
	if !result.Success {
		t.Fatal("Expected successful pipeline result")
	}
	if result.SourceTxHash == "" || result.DestTxHash == "" {
		t.Errorf("Expected both tx hashes, got source=%q dest=%q", result.SourceTxHash, result.DestTxHash)
	}

	status, err := orch.GetStatus(context.Background(), result.TrackingID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Phase != PhaseCompleted {
		t.Errorf("Expected phase completed, got %s", status.Phase)
	}
	if status.DestTxHash == nil || *status.DestTxHash != result.DestTxHash {
		t.Errorf("Status dest tx hash does not match result: %v", status.DestTxHash)
	}
	if status.Attestation == nil {
		t.Error("Expected attestation recorded, got none")
	} else if *status.Attestation != "0xa77e57ed" {
		t.Errorf("Expected attestation recorded, got %q", *status.Attestation)
	}
	if status.Amount != "1000000" {
		t.Errorf("Expected amount 1000000, got %s", status.Amount)
	}

	want := []Phase{PhaseInitiated, PhasePendingAttestation, PhaseAttested, PhaseClaiming, PhaseCompleted}
	if len(phases) != len(want) {
		t.Fatalf("Expected %d progress events, got %d: %v", len(want), len(phases), phases)
	}
	for i, phase := range want {
		if phases[i] != phase {
			t.Errorf("Progress event %d: expected %s, got %s", i, phase, phases[i])
		}
	}
}

func TestExecuteBridge_ClaimFailureRecordsFailed(t *testing.T) {
	message := []byte("doomed-claim-message")
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(10_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return burnReceipt(txHash, message), nil
		},
	}
	dest := &MockChainClient{
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return &chain.Receipt{Status: 0, TxHash: txHash}, nil
		},
	}
	attester := &MockAttestationClient{
		GetFunc: func(ctx context.Context, messageHash string) (*attestation.Result, error) {
			return &attestation.Result{Status: attestation.StatusComplete, Attestation: "0xa77e57ed"}, nil
		},
	}
	orch := newTestOrchestrator(source, dest, attester)

	var lastEvent ProgressEvent
	sub := orch.Subscribe(ProgressChannel, func(event ProgressEvent) {
		lastEvent = event
	})
	defer sub.Unsubscribe()

	_, err := orch.ExecuteBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(1_000_000),
		DestinationChain: "base",
	})
	if err == nil {
		t.Fatal("Expected pipeline error on claim failure")
	}
	if !strings.Contains(err.Error(), "claim on base failed") {
		t.Errorf("Expected claim failure message, got %q", err.Error())
	}

	if lastEvent.Phase != PhaseFailed {
		t.Errorf("Expected final failed event, got %s", lastEvent.Phase)
	}
	if lastEvent.Error == "" {
		t.Error("Expected error on failed event")
	}

	status, err := orch.GetStatus(context.Background(), lastEvent.TrackingID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Phase != PhaseFailed {
		t.Errorf("Expected phase failed, got %s", status.Phase)
	}
	if status.ErrorMessage == nil {
		t.Error("Expected revert reason recorded, got none")
	} else if !strings.Contains(*status.ErrorMessage, "reverted") {
		t.Errorf("Expected revert reason recorded, got %q", *status.ErrorMessage)
	}

	active, err := orch.GetActiveBridges(context.Background())
	if err != nil {
		t.Fatalf("GetActiveBridges failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Failed bridge must not be active, got %d records", len(active))
	}
}

func TestExecuteBridge_AttestationTimeoutRecordsFailed(t *testing.T) {
	message := []byte("stuck-attestation-message")
	source := &MockChainClient{
		ReadFunc: func(ctx context.Context, call chain.ContractCall) ([]byte, error) {
			return allowanceBytes(big.NewInt(10_000_000)), nil
		},
		AwaitReceiptFunc: func(ctx context.Context, txHash string) (*chain.Receipt, error) {
			return burnReceipt(txHash, message), nil
		},
	}
	attester := &MockAttestationClient{}
	orch := newTestOrchestrator(source, &MockChainClient{}, attester)

	var lastEvent ProgressEvent
	sub := orch.Subscribe(ProgressChannel, func(event ProgressEvent) {
		lastEvent = event
	})
	defer sub.Unsubscribe()

	_, err := orch.ExecuteBridge(context.Background(), &BridgeRequest{
		Amount:           big.NewInt(1_000_000),
		DestinationChain: "base",
	})
	if !IsCategory(err, CategoryAttestationTimeout) {
		t.Fatalf("Expected attestation timeout, got %v", err)
	}

	status, err := orch.GetStatus(context.Background(), lastEvent.TrackingID)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.Phase != PhaseFailed {
		t.Errorf("Expected phase failed, got %s", status.Phase)
	}
	if status.ErrorMessage == nil {
		t.Error("Expected timeout recorded, got none")
	} else if !strings.Contains(*status.ErrorMessage, "attestation still pending") {
		t.Errorf("Expected timeout recorded, got %q", *status.ErrorMessage)
	}
}

func TestNewTrackingID_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newTrackingID()
		if !trackingIDPattern.MatchString(id) {
			t.Fatalf("Malformed tracking id: %s", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate tracking id: %s", id)
		}
		seen[id] = true
	}
}
