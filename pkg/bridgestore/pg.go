package bridgestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/stablebridge/cctp-middleware/pkg/bridge"
	"github.com/stablebridge/cctp-middleware/pkg/pgutil"
)

var terminalPhases = []string{
	string(bridge.PhaseCompleted),
	string(bridge.PhaseFailed),
	string(bridge.PhaseAbandoned),
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the bridge status store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// EnsureSchema creates the bridge_statuses table and its indexes.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	if err := pgutil.CreateSchema(ctx, db, &BridgeStatusDao{}); err != nil {
		return fmt.Errorf("failed to create bridge status schema: %w", err)
	}
	if err := pgutil.CreateModelIndexes(ctx, db, &BridgeStatusDao{}, "phase", "created_at"); err != nil {
		return fmt.Errorf("failed to create bridge status indexes: %w", err)
	}
	return nil
}

// Update merges partial fields into the record for trackingID inside a
// transaction, creating it when absent. The row is locked so
// concurrent writers cannot interleave their merges.
func (s *pgStore) Update(ctx context.Context, trackingID string, phase bridge.Phase, fields bridge.StatusFields) (*bridge.BridgeStatus, error) {
	var merged *bridge.BridgeStatus

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := lockRow(ctx, tx, trackingID)
		if err != nil {
			return err
		}

		merged = bridge.ApplyStatusUpdate(existing, trackingID, phase, fields, time.Now())
		return upsert(ctx, tx, merged, existing == nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update bridge status: %w", err)
	}

	return merged, nil
}

// Get returns the record for trackingID, nil when unknown.
func (s *pgStore) Get(ctx context.Context, trackingID string) (*bridge.BridgeStatus, error) {
	dao := new(BridgeStatusDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("tracking_id = ?", trackingID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bridge status: %w", err)
	}
	return toStatus(dao), nil
}

// GetActive returns every record whose phase is non-terminal, oldest
// first.
func (s *pgStore) GetActive(ctx context.Context) ([]*bridge.BridgeStatus, error) {
	var daos []BridgeStatusDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("phase NOT IN (?)", bun.In(terminalPhases)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bridges: %w", err)
	}

	statuses := make([]*bridge.BridgeStatus, len(daos))
	for i := range daos {
		statuses[i] = toStatus(&daos[i])
	}
	return statuses, nil
}

// MarkAbandoned sets a non-terminal record's phase to abandoned.
// Unknown tracking ids are a no-op; terminal records only get their
// updatedAt refreshed.
func (s *pgStore) MarkAbandoned(ctx context.Context, trackingID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := lockRow(ctx, tx, trackingID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}

		phase := bridge.PhaseAbandoned
		if existing.Phase.Terminal() {
			phase = existing.Phase
		}
		merged := bridge.ApplyStatusUpdate(existing, trackingID, phase, bridge.StatusFields{}, time.Now())
		return upsert(ctx, tx, merged, false)
	})
	if err != nil {
		return fmt.Errorf("failed to mark bridge abandoned: %w", err)
	}
	return nil
}

func lockRow(ctx context.Context, tx bun.Tx, trackingID string) (*bridge.BridgeStatus, error) {
	dao := new(BridgeStatusDao)
	err := tx.NewSelect().
		Model(dao).
		Where("tracking_id = ?", trackingID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return toStatus(dao), nil
}

func upsert(ctx context.Context, tx bun.Tx, status *bridge.BridgeStatus, isNew bool) error {
	dao := toDao(status)
	if isNew {
		_, err := tx.NewInsert().Model(dao).Exec(ctx)
		return err
	}
	_, err := tx.NewUpdate().
		Model(dao).
		WherePK().
		Exec(ctx)
	return err
}
