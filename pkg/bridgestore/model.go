// Package bridgestore persists bridge transfer status records in
// PostgreSQL.
package bridgestore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/stablebridge/cctp-middleware/pkg/bridge"
)

// BridgeStatusDao is a data access object that maps directly to the
// 'bridge_statuses' table in PostgreSQL.
type BridgeStatusDao struct {
	bun.BaseModel       `bun:"table:bridge_statuses,alias:bs"`
	TrackingID          string    `bun:"tracking_id,pk,type:varchar(64)"`
	Phase               string    `bun:"phase,notnull,type:varchar(32)"`
	SourceChain         string    `bun:"source_chain,type:varchar(32)"`
	DestinationChain    string    `bun:"destination_chain,type:varchar(32)"`
	Amount              string    `bun:"amount,type:varchar(78)"`
	SourceTxHash        *string   `bun:"source_tx_hash,type:varchar(66)"`
	DestTxHash          *string   `bun:"dest_tx_hash,type:varchar(66)"`
	MessageHash         *string   `bun:"message_hash,type:varchar(66)"`
	Attestation         *string   `bun:"attestation,type:text"`
	ErrorMessage        *string   `bun:"error_message,type:text"`
	CreatedAt           time.Time `bun:"created_at,notnull"`
	UpdatedAt           time.Time `bun:"updated_at,notnull"`
	EstimatedCompletion time.Time `bun:"estimated_completion,notnull"`
}

// toDao converts a bridge.BridgeStatus to BridgeStatusDao.
func toDao(status *bridge.BridgeStatus) *BridgeStatusDao {
	return &BridgeStatusDao{
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

// toStatus converts a BridgeStatusDao to bridge.BridgeStatus.
func toStatus(dao *BridgeStatusDao) *bridge.BridgeStatus {
	return &bridge.BridgeStatus{
		TrackingID:          dao.TrackingID,
		Phase:               bridge.Phase(dao.Phase),
		SourceChain:         dao.SourceChain,
		DestinationChain:    dao.DestinationChain,
		Amount:              dao.Amount,
		SourceTxHash:        dao.SourceTxHash,
		DestTxHash:          dao.DestTxHash,
		MessageHash:         dao.MessageHash,
		Attestation:         dao.Attestation,
		ErrorMessage:        dao.ErrorMessage,
		CreatedAt:           dao.CreatedAt,
		UpdatedAt:           dao.UpdatedAt,
		EstimatedCompletion: dao.EstimatedCompletion,
	}
}
