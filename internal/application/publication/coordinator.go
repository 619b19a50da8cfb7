// Package publication prepares certificate fingerprints for an external append-only ledger
// and records the ledger's success report.
package publication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"certverify-backend/internal/application/fingerprint"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultBatchTTL = 30 * time.Minute

// Skip reasons reported by ConfirmBatch.
const (
	SkipMissing          = "missing"
	SkipForeignIssuer    = "foreign_issuer"
	SkipFingerprintStale = "fingerprint_changed"
	SkipAlreadyPublished = "already_published"
)

type Item struct {
	CertificateID     uuid.UUID `json:"id"`
	CertificateNumber string    `json:"certificate_number"`
	FingerprintHash   string    `json:"fingerprint_hash"`
}

// Batch is a side-effect-free snapshot of an issuer's not-yet-published certificates.
type Batch struct {
	ID         uuid.UUID `json:"id"`
	IssuerID   uuid.UUID `json:"issuer_id"`
	Items      []Item    `json:"items"`
	PreparedAt time.Time `json:"prepared_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Entries converts the batch into the pairs handed to a ledger publisher.
func (b *Batch) Entries() []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(b.Items))
	for _, it := range b.Items {
		out = append(out, domain.LedgerEntry{FingerprintHash: it.FingerprintHash, CertificateNumber: it.CertificateNumber})
	}
	return out
}

type SkippedItem struct {
	CertificateID uuid.UUID `json:"id"`
	Reason        string    `json:"reason"`
}

type ConfirmResult struct {
	Updated int           `json:"updated"`
	Skipped []SkippedItem `json:"skipped"`
}

// BatchStore remembers prepared batches for a limited time. Load returns domain.ErrNotFound
// for unknown or expired batches.
type BatchStore interface {
	Save(ctx context.Context, b *Batch, ttl time.Duration) error
	Load(ctx context.Context, id uuid.UUID) (*Batch, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Coordinator struct {
	Certificates domain.CertificateRepository
	Batches      BatchStore
	Metrics      *metrics.Metrics
	BatchTTL     time.Duration
	Now          func() time.Time
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Coordinator) ttl() time.Duration {
	if c.BatchTTL > 0 {
		return c.BatchTTL
	}
	return DefaultBatchTTL
}

// PrepareBatch snapshots every unpublished or staged certificate of issuerID. Certificate
// rows are not modified. The batch is remembered when a BatchStore is configured; a cache
// failure is logged and the batch is still returned.
func (c *Coordinator) PrepareBatch(ctx context.Context, issuerID uuid.UUID) (*Batch, error) {
	certs, err := c.Certificates.ListUnpublished(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	now := c.now()
	b := &Batch{
		ID:         uuid.New(),
		IssuerID:   issuerID,
		Items:      make([]Item, 0, len(certs)),
		PreparedAt: now,
		ExpiresAt:  now.Add(c.ttl()),
	}
	for _, cert := range certs {
		b.Items = append(b.Items, Item{
			CertificateID:     cert.ID,
			CertificateNumber: cert.CertificateNumber,
			FingerprintHash:   cert.FingerprintHash,
		})
	}
	if c.Batches != nil && len(b.Items) > 0 {
		if err := c.Batches.Save(ctx, b, c.ttl()); err != nil {
			log.Warn().Err(err).Str("batch_id", b.ID.String()).Msg("prepared batch not cached")
		}
	}
	return b, nil
}

// StageBatch marks items as handed to the ledger publisher. Only unpublished rows that still
// belong to issuerID and still carry the item's fingerprint move; the count moved is returned.
func (c *Coordinator) StageBatch(ctx context.Context, issuerID uuid.UUID, items []Item) (int, error) {
	staged := 0
	at := c.now()
	for _, it := range items {
		hash, ok := fingerprint.Normalize(it.FingerprintHash)
		if !ok {
			continue
		}
		ok, err := c.Certificates.TransitionPublication(ctx, domain.PublicationTransition{
			CertificateID: it.CertificateID,
			IssuerID:      issuerID,
			ExpectedHash:  hash,
			To:            domain.PublicationStaged,
			At:            at,
		})
		if err != nil {
			return staged, err
		}
		if ok {
			staged++
		}
	}
	return staged, nil
}

// ConfirmBatch records a successful ledger publish. Stale, foreign, missing and already
// published items are skipped and reported, never returned as errors, so confirming the
// same items twice updates nothing the second time.
func (c *Coordinator) ConfirmBatch(ctx context.Context, issuerID uuid.UUID, txRef string, blockNumber *uint64, items []Item) (*ConfirmResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, fmt.Errorf("%w: transaction reference is required", domain.ErrInvalidConfirmation)
	}
	res := &ConfirmResult{Skipped: []SkippedItem{}}
	at := c.now()
	for _, it := range items {
		hash, wellFormed := fingerprint.Normalize(it.FingerprintHash)
		cert, err := c.Certificates.FindByID(ctx, it.CertificateID)
		if errors.Is(err, domain.ErrNotFound) {
			res.skip(it, SkipMissing)
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case cert.IssuerID != issuerID:
			res.skip(it, SkipForeignIssuer)
			continue
		case !wellFormed || cert.FingerprintHash != hash:
			res.skip(it, SkipFingerprintStale)
			continue
		case cert.PublicationState == domain.PublicationPublished:
			res.skip(it, SkipAlreadyPublished)
			continue
		}

		ok, err := c.Certificates.TransitionPublication(ctx, domain.PublicationTransition{
			CertificateID: it.CertificateID,
			IssuerID:      issuerID,
			ExpectedHash:  hash,
			To:            domain.PublicationPublished,
			ExternalTxRef: txRef,
			LedgerBlock:   blockNumber,
			At:            at,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			// lost a race with a concurrent confirm
			res.skip(it, SkipAlreadyPublished)
			continue
		}
		res.Updated++
	}

	c.Metrics.PublicationConfirmed(res.Updated)
	c.Metrics.BatchItemsSkipped(len(res.Skipped))
	if len(res.Skipped) > 0 {
		log.Info().
			Str("issuer_id", issuerID.String()).
			Str("tx_ref", txRef).
			Int("updated", res.Updated).
			Int("skipped", len(res.Skipped)).
			Msg("publication confirmed with skipped items")
		for _, sk := range res.Skipped {
			log.Debug().Err(sk.Err()).Str("tx_ref", txRef).Msg("batch item skipped")
		}
	}
	return res, nil
}

// Err reports the skip as an error wrapping domain.ErrStaleBatchItem.
func (s SkippedItem) Err() error {
	return fmt.Errorf("%w: %s (%s)", domain.ErrStaleBatchItem, s.CertificateID, s.Reason)
}

func (r *ConfirmResult) skip(it Item, reason string) {
	r.Skipped = append(r.Skipped, SkippedItem{CertificateID: it.CertificateID, Reason: reason})
}

// ConfirmPrepared confirms a remembered batch by id and forgets it.
func (c *Coordinator) ConfirmPrepared(ctx context.Context, issuerID, batchID uuid.UUID, txRef string, blockNumber *uint64) (*ConfirmResult, error) {
	b, err := c.loadBatch(ctx, issuerID, batchID)
	if err != nil {
		return nil, err
	}
	res, err := c.ConfirmBatch(ctx, issuerID, txRef, blockNumber, b.Items)
	if err != nil {
		return nil, err
	}
	if err := c.Batches.Delete(ctx, batchID); err != nil {
		log.Warn().Err(err).Str("batch_id", batchID.String()).Msg("confirmed batch not evicted")
	}
	return res, nil
}

// AbandonBatch forgets a remembered batch. Staged rows stay staged and are offered again by
// the next PrepareBatch.
func (c *Coordinator) AbandonBatch(ctx context.Context, issuerID, batchID uuid.UUID) error {
	if _, err := c.loadBatch(ctx, issuerID, batchID); err != nil {
		return err
	}
	return c.Batches.Delete(ctx, batchID)
}

func (c *Coordinator) loadBatch(ctx context.Context, issuerID, batchID uuid.UUID) (*Batch, error) {
	if c.Batches == nil {
		return nil, domain.ErrNotFound
	}
	b, err := c.Batches.Load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.IssuerID != issuerID {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (c *Coordinator) PendingCount(ctx context.Context, issuerID uuid.UUID) (int64, error) {
	return c.Certificates.CountUnpublished(ctx, issuerID)
}
