package bridge

import (
	"context"
	"sync"
	"time"
)

// StatusStore tracks BridgeStatus records keyed by trackingId.
// Update merges partial fields into the existing record, creating it
// when absent. Implementations must be safe for concurrent use by
// independent pipelines.
type StatusStore interface {
	Update(ctx context.Context, trackingID string, phase Phase, fields StatusFields) (*BridgeStatus, error)
	// Get returns nil when the trackingId is unknown.
	Get(ctx context.Context, trackingID string) (*BridgeStatus, error)
	// GetActive returns every record whose phase is non-terminal.
	GetActive(ctx context.Context) ([]*BridgeStatus, error)
	// MarkAbandoned sets a non-terminal record's phase to abandoned.
	// Idempotent: a terminal record only gets its updatedAt refreshed.
	MarkAbandoned(ctx context.Context, trackingID string) error
}

// ApplyStatusUpdate merges a partial update into an existing record
// and returns the new record. Fields absent from the update are
// preserved, createdAt is set exactly once, updatedAt and the
// phase-derived estimated completion are refreshed on every write,
// and a terminal phase is never demoted to a non-terminal one. Every
// StatusStore backend goes through this function so the merge
// contract cannot drift between them.
func ApplyStatusUpdate(existing *BridgeStatus, trackingID string, phase Phase, fields StatusFields, now time.Time) *BridgeStatus {
	var status BridgeStatus
	if existing != nil {
		status = *existing
	} else {
		status = BridgeStatus{
			TrackingID: trackingID,
			CreatedAt:  now,
		}
	}

	if existing == nil || !existing.Phase.Terminal() || phase.Terminal() {
		status.Phase = phase
	}

	if fields.SourceChain != nil {
		status.SourceChain = *fields.SourceChain
	}
	if fields.DestinationChain != nil {
		status.DestinationChain = *fields.DestinationChain
	}
	if fields.Amount != nil {
		status.Amount = *fields.Amount
	}
	if fields.SourceTxHash != nil {
		status.SourceTxHash = fields.SourceTxHash
	}
	if fields.DestTxHash != nil {
		status.DestTxHash = fields.DestTxHash
	}
	if fields.MessageHash != nil {
		status.MessageHash = fields.MessageHash
	}
	if fields.Attestation != nil {
		status.Attestation = fields.Attestation
	}
	if fields.ErrorMessage != nil {
		status.ErrorMessage = fields.ErrorMessage
	}

	status.UpdatedAt = now
	status.EstimatedCompletion = now.Add(phaseEstimates[status.Phase])

	return &status
}

// cloneStatus returns a copy detached from the stored record: the
// optional pointer fields are duplicated so callers cannot mutate
// store state through them.
func cloneStatus(status *BridgeStatus) *BridgeStatus {
	out := *status
	out.SourceTxHash = clonePtr(status.SourceTxHash)
	out.DestTxHash = clonePtr(status.DestTxHash)
	out.MessageHash = clonePtr(status.MessageHash)
	out.Attestation = clonePtr(status.Attestation)
	out.ErrorMessage = clonePtr(status.ErrorMessage)
	return &out
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MemoryStatusStore is a mutex-guarded in-memory StatusStore.
type MemoryStatusStore struct {
	mu      sync.RWMutex
	records map[string]*BridgeStatus
}

// NewMemoryStatusStore creates an empty in-memory status store.
func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{records: make(map[string]*BridgeStatus)}
}

// Update merges fields into the record for trackingID, creating it
// when absent.
func (s *MemoryStatusStore) Update(_ context.Context, trackingID string, phase Phase, fields StatusFields) (*BridgeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := ApplyStatusUpdate(s.records[trackingID], trackingID, phase, fields, time.Now())
	s.records[trackingID] = updated

	return cloneStatus(updated), nil
}

// Get returns a copy of the record, or nil when unknown.
func (s *MemoryStatusStore) Get(_ context.Context, trackingID string) (*BridgeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.records[trackingID]
	if !ok {
		return nil, nil
	}
	return cloneStatus(status), nil
}

// GetActive returns copies of every non-terminal record.
func (s *MemoryStatusStore) GetActive(_ context.Context) ([]*BridgeStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*BridgeStatus
	for _, status := range s.records {
		if status.Phase.Terminal() {
			continue
		}
		active = append(active, cloneStatus(status))
	}
	return active, nil
}

// MarkAbandoned transitions a non-terminal record to abandoned. On a
// terminal record only updatedAt is refreshed; it never errors.
func (s *MemoryStatusStore) MarkAbandoned(_ context.Context, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[trackingID]
	if !ok {
		return nil
	}

	phase := PhaseAbandoned
	if existing.Phase.Terminal() {
		phase = existing.Phase
	}
	s.records[trackingID] = ApplyStatusUpdate(existing, trackingID, phase, StatusFields{}, time.Now())
	return nil
}
