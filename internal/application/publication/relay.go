package publication

import (
	"context"
	"fmt"

	"certverify-backend/internal/domain"
	"certverify-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Relay plays the external actor in-process: prepare, stage, publish, confirm.
type Relay struct {
	Coordinator *Coordinator
	Publisher   domain.LedgerPublisher
	Metrics     *metrics.Metrics
}

type RelayResult struct {
	BatchID uuid.UUID             `json:"batch_id"`
	Items   int                   `json:"items"`
	Staged  int                   `json:"staged"`
	Receipt *domain.LedgerReceipt `json:"receipt,omitempty"`
	Confirm *ConfirmResult        `json:"confirm,omitempty"`
}

// Publish anchors every pending certificate of issuerID. A publisher error leaves rows staged
// and nothing is confirmed.
func (r *Relay) Publish(ctx context.Context, issuerID uuid.UUID) (*RelayResult, error) {
	if r.Publisher == nil {
		return nil, domain.ErrLedgerUnavailable
	}
	batch, err := r.Coordinator.PrepareBatch(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	out := &RelayResult{BatchID: batch.ID, Items: len(batch.Items)}
	if len(batch.Items) == 0 {
		return out, nil
	}

	if out.Staged, err = r.Coordinator.StageBatch(ctx, issuerID, batch.Items); err != nil {
		return nil, err
	}

	receipt, err := r.Publisher.Publish(ctx, batch.Entries())
	r.Metrics.LedgerPublish(err == nil)
	if err != nil {
		log.Error().Err(err).
			Str("issuer_id", issuerID.String()).
			Str("batch_id", batch.ID.String()).
			Int("items", len(batch.Items)).
			Msg("ledger publish failed")
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	out.Receipt = receipt

	block := receipt.BlockNumber
	if out.Confirm, err = r.Coordinator.ConfirmBatch(ctx, issuerID, receipt.TxRef, &block, batch.Items); err != nil {
		return nil, err
	}
	if r.Coordinator.Batches != nil {
		_ = r.Coordinator.Batches.Delete(ctx, batch.ID)
	}
	log.Info().
		Str("issuer_id", issuerID.String()).
		Str("tx_ref", receipt.TxRef).
		Uint64("block", receipt.BlockNumber).
		Int("updated", out.Confirm.Updated).
		Msg("batch published to ledger")
	return out, nil
}
